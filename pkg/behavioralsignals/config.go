package behavioralsignals

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"behavioralsignals-sdk-go/internal/observability/logging"
)

const (
	DefaultBaseURL      = "https://api.behavioralsignals.com/v5"
	DefaultStreamingURL = "streaming.behavioralsignals.com:443"
	DefaultTimeout      = 30 * time.Second

	defaultUserAgent = "behavioralsignals-sdk-go/1.0"
	maxMetadataBytes = 64 * 1024
)

// Session is the identity, credential and endpoint policy of a client.
// It is fixed at construction and safe to share.
type Session struct {
	ClientID     string
	APIKey       string
	BaseURL      string
	StreamingURL string
	// Timeout bounds each batch HTTP call. Streams are bounded only by the
	// caller's context.
	Timeout time.Duration
	UseTLS  bool
}

func (s Session) validate() error {
	if strings.TrimSpace(s.ClientID) == "" {
		return &ValidationError{Field: "client id", Reason: "must not be empty"}
	}
	if strings.TrimSpace(s.APIKey) == "" {
		return &ValidationError{Field: "api key", Reason: "must not be empty"}
	}
	if s.BaseURL == "" {
		return &ValidationError{Field: "base url", Reason: "must not be empty"}
	}
	if s.StreamingURL == "" {
		return &ValidationError{Field: "streaming url", Reason: "must not be empty"}
	}
	if s.Timeout < 0 {
		return &ValidationError{Field: "timeout", Reason: "must not be negative"}
	}
	return nil
}

// Option configures a Client.
type Option func(*settings)

type settings struct {
	session    Session
	httpClient *http.Client
	logger     *zerolog.Logger
	dialOpts   []grpc.DialOption
	userAgent  string
}

func defaultSettings(clientID, apiKey string) settings {
	return settings{
		session: Session{
			ClientID:     clientID,
			APIKey:       apiKey,
			BaseURL:      DefaultBaseURL,
			StreamingURL: DefaultStreamingURL,
			Timeout:      DefaultTimeout,
			UseTLS:       true,
		},
		userAgent: defaultUserAgent,
	}
}

func (s *settings) resolveLogger() zerolog.Logger {
	if s.logger != nil {
		return *s.logger
	}
	return logging.WithComponent("behavioralsignals")
}

// WithBaseURL overrides the batch API root, e.g. for a staging deployment.
func WithBaseURL(u string) Option {
	return func(s *settings) { s.session.BaseURL = strings.TrimRight(u, "/") }
}

// WithStreamingURL overrides the streaming endpoint (host:port or a gRPC
// target such as "dns:///host:443").
func WithStreamingURL(target string) Option {
	return func(s *settings) { s.session.StreamingURL = target }
}

// WithTimeout sets the per-call HTTP timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.session.Timeout = d }
}

// WithTLS toggles TLS on the streaming connection.
func WithTLS(enabled bool) Option {
	return func(s *settings) { s.session.UseTLS = enabled }
}

// WithHTTPClient replaces the HTTP client. Its transport is still wrapped
// with metrics instrumentation.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.httpClient = c }
}

// WithLogger sets the logger used by the client.
func WithLogger(l zerolog.Logger) Option {
	return func(s *settings) { s.logger = &l }
}

// WithDialOptions appends gRPC dial options for the streaming connection.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(s *settings) { s.dialOpts = append(s.dialOpts, opts...) }
}

// WithUserAgent sets the User-Agent sent on batch calls.
func WithUserAgent(ua string) Option {
	return func(s *settings) { s.userAgent = ua }
}
