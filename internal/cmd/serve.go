package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coppermind/ingrain/internal/observability"
	"github.com/coppermind/ingrain/internal/server"
	signalstore "github.com/coppermind/ingrain/pkg/signal"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP control surface",
	Long: `Serve the job control API.

Endpoints:
  GET  /healthz
  GET  /api/jobs                       list jobs (?state=running,paused)
  GET  /api/jobs/{id}                  job status
  POST /api/jobs/{id}/pause            request pause
  POST /api/jobs/{id}/resume           request resume
  POST /api/jobs/{id}/cancel           request cancel
  GET  /api/jobs/{id}/events           live progress as Server-Sent Events

Jobs started by 'ingrain sync' against the same data directory show up
here and accept control requests. Event streams cover jobs running in the
serving process.`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	overrides := map[string]any{}
	if serveHost != "" || servePort != 0 {
		section := map[string]any{}
		if serveHost != "" {
			section["host"] = serveHost
		}
		if servePort != 0 {
			section["port"] = servePort
		}
		overrides["server"] = section
	}
	cfg, err := loadConfig(overrides)
	if err != nil {
		return err
	}

	log := observability.CLILogger
	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, signalstore.NewFSStore(cfg.JobsDir()), nil, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("serving control surface",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("data_dir", cfg.DataDir))
	return srv.ListenAndServe(ctx)
}
