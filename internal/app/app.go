package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"behavioralsignals-sdk-go/internal/config"
	"behavioralsignals-sdk-go/internal/events"
	"behavioralsignals-sdk-go/internal/observability"
	"behavioralsignals-sdk-go/internal/observability/logging"
	"behavioralsignals-sdk-go/pkg/behavioralsignals"
)

// Application holds process-wide state for one CLI invocation.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config
	Client      *behavioralsignals.Client
	Publisher   *events.Publisher

	metricsServer *observability.Server
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Config) *Application {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	a.Logger.Debug().
		Str("method", "New").
		Str("apiUrl", cfg.API.BaseURL).
		Str("streamingUrl", cfg.API.StreamingURL).
		Msg("Application created")
	return a
}

// setupLogger configures zerolog for the CLI. Logs go to stderr so
// stdout stays free for command output.
func (a *Application) setupLogger() {
	logging.Init(logging.Config{
		Level:      a.Cfg.Observability.LogLevel,
		Format:     a.Cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})
	a.Logger = logging.WithComponent("application").With().
		Str("service", "bsig").
		Logger()
}

// Start authenticates the SDK client and brings up the optional metrics
// endpoint and Kafka sink. Extra options are applied after the
// configured ones.
func (a *Application) Start(ctx context.Context, opts ...behavioralsignals.Option) error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	if err := a.Cfg.Validate(); err != nil {
		return err
	}
	a.StartupTime = time.Now().UTC()

	if addr := a.Cfg.Observability.MetricsAddr; addr != "" {
		a.metricsServer = observability.NewServer(addr, nil)
		a.metricsServer.Start()
	}

	all := append(a.Cfg.ClientOptions(), behavioralsignals.WithLogger(logging.WithComponent("behavioralsignals")))
	client, err := behavioralsignals.New(ctx, a.Cfg.Credentials.ClientID, a.Cfg.Credentials.APIKey, append(all, opts...)...)
	if err != nil {
		return err
	}
	a.Client = client
	if a.metricsServer != nil {
		a.metricsServer.SetReady(true)
	}

	a.Publisher = events.New(&events.Config{
		Enabled:     a.Cfg.Kafka.Enabled,
		Brokers:     a.Cfg.Kafka.Brokers,
		TopicBatch:  a.Cfg.Kafka.TopicBatch,
		TopicStream: a.Cfg.Kafka.TopicStream,
		Principal:   a.Cfg.Kafka.Principal,
	})

	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("clientId", a.Cfg.Credentials.ClientID).
		Bool("kafka", a.Publisher.Enabled()).
		Msg("Client authenticated")
	return nil
}

// API returns the named product API: "behavioral" or "deepfakes".
func (a *Application) API(name string) (*behavioralsignals.API, error) {
	if a.Client == nil {
		return nil, fmt.Errorf("application not started")
	}
	switch name {
	case "", "behavioral":
		return a.Client.Behavioral, nil
	case "deepfakes":
		return a.Client.Deepfakes, nil
	default:
		return nil, fmt.Errorf("unknown api %q (want behavioral or deepfakes)", name)
	}
}

// PollOptions returns polling settings from the configuration.
func (a *Application) PollOptions() behavioralsignals.PollOptions {
	return behavioralsignals.PollOptions{
		Interval:    a.Cfg.Poll.Interval,
		Backoff:     1.5,
		MaxInterval: a.Cfg.Poll.MaxInterval,
	}
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			shutdownLogger.Warn().Err(err).Msg("Failed to close Kafka publisher")
		}
	}
	if a.Client != nil {
		if err := a.Client.Close(); err != nil {
			shutdownLogger.Warn().Err(err).Msg("Failed to close client")
		}
	}
	if a.metricsServer != nil {
		a.metricsServer.SetReady(false)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			shutdownLogger.Warn().Err(err).Msg("Failed to stop metrics server")
		}
	}
	shutdownLogger.Debug().Msg("Application shut down")
}
