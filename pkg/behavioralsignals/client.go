package behavioralsignals

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"behavioralsignals-sdk-go/internal/observability"
	"behavioralsignals-sdk-go/internal/observability/metrics"
	"behavioralsignals-sdk-go/internal/schema"
	pb "behavioralsignals-sdk-go/proto"
)

// Client is an authenticated session with the Behavioral Signals API.
// It is safe for concurrent use.
type Client struct {
	session   Session
	http      *httpTransport
	conn      *grpc.ClientConn
	stub      pb.BehavioralStreamingApiClient
	validator *schema.Validator
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	// Behavioral is the emotion, intent and speaker-trait analysis API.
	Behavioral *API
	// Deepfakes is the synthetic-speech detection API.
	Deepfakes *API
}

// New authenticates clientID and apiKey against the API and returns a
// ready client. Rejected credentials yield an AuthenticationError.
func New(ctx context.Context, clientID, apiKey string, opts ...Option) (*Client, error) {
	st := defaultSettings(clientID, apiKey)
	for _, opt := range opts {
		opt(&st)
	}
	if err := st.session.validate(); err != nil {
		return nil, err
	}

	logger := st.resolveLogger()
	m := metrics.DefaultMetrics

	c := &Client{
		session:   st.session,
		http:      newHTTPTransport(st, m, logger),
		validator: schema.New(maxMetadataBytes),
		metrics:   m,
		logger:    logger,
	}

	if err := c.authenticate(ctx); err != nil {
		return nil, err
	}

	conn, err := dialStreaming(st, m, logger)
	if err != nil {
		return nil, &TransportError{Op: "dial streaming", Err: err}
	}
	c.conn = conn
	c.stub = pb.NewBehavioralStreamingApiClient(conn)

	c.Behavioral = &API{
		client: c,
		name:   "behavioral",
		prefix: "",
		open:   c.stub.StreamAudio,
	}
	c.Deepfakes = &API{
		client: c,
		name:   "deepfakes",
		prefix: "detection/",
		open:   c.stub.DeepfakeDetection,
	}

	logger.Info().
		Str("clientId", st.session.ClientID).
		Str("baseUrl", st.session.BaseURL).
		Str("streamingUrl", st.session.StreamingURL).
		Bool("tls", st.session.UseTLS).
		Msg("Behavioral Signals client ready")
	return c, nil
}

func dialStreaming(st settings, m *metrics.Metrics, logger zerolog.Logger) (*grpc.ClientConn, error) {
	creds := insecure.NewCredentials()
	if st.session.UseTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithUserAgent(st.userAgent),
		grpc.WithChainStreamInterceptor(observability.StreamClientInterceptor(m, logger)),
	}
	dialOpts = append(dialOpts, st.dialOpts...)
	return grpc.NewClient(st.session.StreamingURL, dialOpts...)
}

func (c *Client) authenticate(ctx context.Context) error {
	header := http.Header{}
	header.Set(headerAuthClient, c.session.ClientID)
	_, err := c.http.do(ctx, apiRequest{
		op:     "auth",
		method: http.MethodGet,
		path:   "auth",
		header: header,
	})
	if err == nil {
		return nil
	}
	switch code := statusCode(err); code {
	case http.StatusUnauthorized, http.StatusForbidden:
		authErr := &AuthenticationError{StatusCode: code, Err: err}
		if apiErr, ok := AsAPIError(err); ok {
			authErr.Message = apiErr.Message
		}
		return authErr
	}
	return fmt.Errorf("authenticate: %w", err)
}

// Session returns the client's immutable session.
func (c *Client) Session() Session {
	return c.session
}

// Close releases the streaming connection. Streams still open fail.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
