package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/amenityscan/amenityscan/internal/config"
	httpiface "github.com/amenityscan/amenityscan/internal/interfaces/http"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline and serve the result over HTTP",
		Long:  "Executes one pipeline run, then serves /dataset, /priorities, /gaps, /summary, /health, and /metrics until interrupted",
		RunE:  runServe,
	}
	cmd.Flags().String("host", "", "Listen host (overrides config)")
	cmd.Flags().Int("port", 0, "Listen port (overrides config)")
	cmd.Flags().Duration("timeout", 5*time.Minute, "Pipeline run deadline")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	applyLogLevel(cmd)
	configDir, _ := cmd.Flags().GetString("config")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	serverCfg := httpiface.DefaultServerConfig()
	if cfg.Runtime.Server.Host != "" {
		serverCfg.Host = cfg.Runtime.Server.Host
	}
	if cfg.Runtime.Server.Port != 0 {
		serverCfg.Port = cfg.Runtime.Server.Port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		serverCfg.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		serverCfg.Port = port
	}

	metrics := httpiface.NewMetricsRegistry()
	server, err := httpiface.NewServer(serverCfg, metrics, log.Logger)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(context.Background(), timeout)
	res, sum, err := executeRun(runCtx, cfg, metrics, 10)
	cancel()
	if err != nil {
		return err
	}
	server.SetResult(res, sum)
	log.Info().Str("run_id", res.RunID).Str("addr", server.Address()).Msg("serving run result")

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
