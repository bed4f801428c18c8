package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"behavioralsignals-sdk-go/internal/app"
	"behavioralsignals-sdk-go/internal/config"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// globalFlags override values read from the environment.
type globalFlags struct {
	kafkaBrokers []string
	metricsAddr  string
	logLevel     string
}

func (g *globalFlags) config() *config.Config {
	cfg := config.Load()
	if len(g.kafkaBrokers) > 0 {
		cfg.Kafka.Brokers = g.kafkaBrokers
		cfg.Kafka.Enabled = true
	}
	if g.metricsAddr != "" {
		cfg.Observability.MetricsAddr = g.metricsAddr
	}
	if g.logLevel != "" {
		cfg.Observability.LogLevel = g.logLevel
	}
	return cfg
}

// start builds and authenticates the application. Callers must
// Shutdown it.
func (g *globalFlags) start(cmd *cobra.Command) (*app.Application, error) {
	a := app.New(g.config())
	if err := a.Start(cmd.Context()); err != nil {
		a.Shutdown()
		return nil, err
	}
	return a, nil
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "bsig",
		Short: "Behavioral Signals API client",
		Long: `Submit audio for behavioral and deepfake analysis, stream live audio
and inspect processes.

Credentials are read from USER_ID and API_KEY, or from a .env file in the
working directory.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringSliceVar(&g.kafkaBrokers, "kafka-brokers", nil, "publish results to these Kafka brokers")
	root.PersistentFlags().StringVar(&g.metricsAddr, "metrics-addr", "", "serve /metrics, /healthz and /readyz on this address")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error (default from LOG_LEVEL)")

	root.AddCommand(
		batchCmd(g),
		bulkCmd(g),
		streamCmd(g),
		processesCmd(g),
		resultsCmd(g),
		emulateCmd(g),
	)
	return root
}

// writeJSON writes v as indented JSON to path, or to w when path is empty.
func writeJSON(w io.Writer, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = w.Write(data)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
