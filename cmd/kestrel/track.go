package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/dandantas/kestrel/internal/api"
	"github.com/dandantas/kestrel/internal/channel"
	"github.com/dandantas/kestrel/internal/config"
	"github.com/dandantas/kestrel/internal/connection"
	"github.com/dandantas/kestrel/internal/model"
	"github.com/dandantas/kestrel/internal/notify"
	"github.com/dandantas/kestrel/internal/poll"
	"github.com/dandantas/kestrel/internal/transport"
)

var createJobs int

var trackCmd = &cobra.Command{
	Use:   "track [job-id...]",
	Short: "Track jobs until they finish, printing progress and notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrack(args)
	},
}

func init() {
	trackCmd.Flags().IntVar(&createJobs, "create", 0, "create N demo jobs on the backend and track them")
}

func runTrack(jobIDs []string) error {
	cfg := config.Load()
	config.InitLogger(cfg)

	for i := 0; i < createJobs; i++ {
		id, err := createDemoJob(cfg.APIBaseURL)
		if err != nil {
			return fmt.Errorf("create demo job: %w", err)
		}
		jobIDs = append(jobIDs, id)
	}
	if len(jobIDs) == 0 {
		return fmt.Errorf("no job ids given (pass ids or --create N)")
	}

	dialer := transport.NewWebSocketDialer(cfg.ConnectTimeout)
	chClient := channel.NewClient(dialer, channel.Config{
		BaseURL:        cfg.ChannelBaseURL,
		ConnectTimeout: cfg.ConnectTimeout,
		Reconnect: channel.Backoff{
			Initial:     cfg.ReconnectBaseDelay,
			Max:         cfg.ReconnectMaxDelay,
			MaxAttempts: cfg.MaxReconnectAttempts,
		},
	})
	apiClient := api.NewClient(cfg.APIBaseURL, cfg.FetchTimeout)
	poller := poll.New(apiClient, poll.Config{
		Interval:          cfg.PollInterval,
		FallbackThreshold: cfg.FallbackThreshold,
		FetchTimeout:      cfg.FetchTimeout,
	})
	mgr := connection.NewManager(chClient, poller, connection.Config{
		PollInterval:        cfg.PollInterval,
		HealthCheckInterval: cfg.HealthCheckInterval,
		ChannelRetryBase:    cfg.ChannelRetryBase,
		ChannelRetryMax:     cfg.ChannelRetryMax,
		MaxChannelRetries:   cfg.MaxChannelRetries,
		TerminalGrace:       cfg.TerminalGrace,
	})
	defer mgr.Close()
	defer chClient.Close()
	defer poller.Close()

	center := notify.NewCenter(notify.Config{DismissAfter: cfg.NotificationTTL})
	defer center.Close()
	unsubscribe := mgr.AddStatusListener(center.Observe)
	defer unsubscribe()
	center.Subscribe(func(n model.Notification) {
		fmt.Printf("[%s] %s: %s\n", n.Severity, n.Title, n.Message)
	})

	var remaining atomic.Int64
	remaining.Store(int64(len(jobIDs)))
	done := make(chan struct{})

	for _, jobID := range jobIDs {
		id := jobID
		err := mgr.RegisterJob(id, connection.Handlers{
			OnMessage: func(msg model.Message) {
				printMessage(id, msg)
				if msg.Terminal() && remaining.Add(-1) == 0 {
					close(done)
				}
			},
			OnStatusChange: func(st model.ConnectionStatus) {
				slog.Debug("Status changed",
					"job_id", id,
					"mode", st.Mode,
					"health", st.Health,
					"connected", st.IsConnected,
				)
			},
		})
		if err != nil {
			return fmt.Errorf("register %s: %w", id, err)
		}
	}

	// Periodic at-a-glance summary while jobs run.
	summary := cron.New()
	summary.AddFunc("@every 30s", func() {
		st := mgr.GlobalStatus()
		slog.Info("Connection summary",
			"mode", st.Mode,
			"health", st.Health,
			"connected", st.IsConnected,
			"messages", st.Metrics.MessageCount,
			"errors", st.Metrics.ErrorCount,
		)
	})
	summary.Start()
	defer summary.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-done:
		slog.Info("All jobs finished")
	case <-sigChan:
		slog.Info("Received shutdown signal")
	}
	return nil
}

func printMessage(jobID string, msg model.Message) {
	switch msg.Type {
	case model.MessageProgress:
		p := msg.Progress
		fmt.Printf("%s: %.0f%% step %d/%d %s\n", jobID, p.Percentage, p.CurrentStep, p.TotalSteps, p.StepName)
	case model.MessageError:
		fmt.Printf("%s: FAILED: %s\n", jobID, msg.Error.Message)
	case model.MessageCompletion:
		r := msg.Completion.Result
		fmt.Printf("%s: completed, %d rows in %dms\n", jobID, r.RowCount, r.ElapsedMs)
	}
}

// createDemoJob asks the dev backend to play a scripted job
func createDemoJob(baseURL string) (string, error) {
	body, _ := json.Marshal(map[string]interface{}{"step_duration_ms": 1000})
	resp, err := http.Post(baseURL+"/api/v1/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var out struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.JobID, nil
}
