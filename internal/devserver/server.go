// Package devserver is a development stub of the query backend: it
// plays scripted jobs and serves the same status, result, and channel
// endpoints the real backend exposes, so the tracker can be exercised
// end to end without backend infrastructure.
package devserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/dandantas/kestrel/pkg/middleware"
)

// Server plays scripted jobs and serves their tracking endpoints
type Server struct {
	store    *jobStore
	upgrader websocket.Upgrader
}

// New creates a dev server
func New() *Server {
	return &Server{
		store: newJobStore(),
		upgrader: websocket.Upgrader{
			// Dev-only server; the browser frontend runs on another port.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// CreateJob registers a scripted job and starts playing it. It returns
// the new job id.
func (s *Server) CreateJob(script Script) string {
	id := uuid.New().String()
	j := newJob(id, script)
	s.store.add(j)
	go j.run()
	slog.Info("Dev job created", "job_id", id, "steps", len(j.script.Steps), "fail_at", j.script.FailAtStep)
	return id
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS("*"))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/jobs", func(r chi.Router) {
		// The channel endpoint hijacks the connection; it stays outside
		// the logging middleware's response recorder.
		r.Get("/{jobID}/ws", s.handleChannel)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Logging)
			r.Post("/", s.handleCreate)
			r.Get("/{jobID}/status", s.handleStatus)
			r.Get("/{jobID}/result", s.handleResult)
		})
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // channel streams stay open indefinitely
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Dev server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type createRequest struct {
	Steps          []string `json:"steps,omitempty"`
	StepDurationMs int      `json:"step_duration_ms,omitempty"`
	FailAtStep     int      `json:"fail_at_step,omitempty"`
	FailMessage    string   `json:"fail_message,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := s.CreateJob(Script{
		Steps:        req.Steps,
		StepDuration: time.Duration(req.StepDurationMs) * time.Millisecond,
		FailAtStep:   req.FailAtStep,
		FailMessage:  req.FailMessage,
	})
	writeJSON(w, http.StatusCreated, map[string]string{"job_id": id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	j, err := s.store.get(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, j.statusResponse())
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	j, err := s.store.get(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	j.mu.Lock()
	result := j.result
	j.mu.Unlock()
	if result == nil {
		writeError(w, http.StatusConflict, "job not completed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleChannel upgrades to a websocket and streams the job's messages
// until the job reaches a terminal state
func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	j, err := s.store.get(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Channel upgrade failed", "job_id", j.id, "error", err)
		return
	}
	defer conn.Close()

	msgs, cancel := j.watch()
	defer cancel()

	// Drain client frames so close handshakes and pings are processed.
	go func() {
		for {
			if _, _, rerr := conn.ReadMessage(); rerr != nil {
				cancel()
				return
			}
		}
	}()

	for msg := range msgs {
		payload, merr := json.Marshal(msg)
		if merr != nil {
			continue
		}
		if werr := conn.WriteMessage(websocket.TextMessage, payload); werr != nil {
			return
		}
	}

	// Job finished; close the channel cleanly.
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished")
	conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error":   http.StatusText(statusCode),
		"message": message,
	})
}
