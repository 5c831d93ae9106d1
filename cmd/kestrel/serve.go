package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dandantas/kestrel/internal/config"
	"github.com/dandantas/kestrel/internal/devserver"
)

var demoJobs int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the development stub backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().IntVar(&demoJobs, "demo", 0, "pre-create N scripted demo jobs")
}

func runServe() error {
	cfg := config.Load()
	config.InitLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := devserver.New()
	for i := 0; i < demoJobs; i++ {
		srv.CreateJob(devserver.Script{StepDuration: 2 * time.Second})
	}
	return srv.Run(ctx, ":"+cfg.DevServerPort)
}
