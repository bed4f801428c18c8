package behavioralsignals

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"behavioralsignals-sdk-go/internal/observability/metrics"
)

const (
	headerAuthToken  = "X-Auth-Token"
	headerAuthClient = "X-Auth-Client"
	headerTotalCount = "X-Total-Count"
)

type httpTransport struct {
	baseURL    string
	apiKey     string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

func newHTTPTransport(st settings, m *metrics.Metrics, logger zerolog.Logger) *httpTransport {
	base := st.httpClient
	if base == nil {
		base = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		}
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	hc := *base
	hc.Transport = m.InstrumentRoundTripper(rt)

	return &httpTransport{
		baseURL:    strings.TrimRight(st.session.BaseURL, "/"),
		apiKey:     st.session.APIKey,
		userAgent:  st.userAgent,
		timeout:    st.session.Timeout,
		httpClient: &hc,
		metrics:    m,
		logger:     logger,
	}
}

type apiRequest struct {
	op          string
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	header      http.Header
}

type apiResponse struct {
	status int
	header http.Header
	body   []byte
}

// do sends req and returns the body of a 2xx response. Other statuses map
// to APIError when the body is a structured error, TransportError otherwise.
func (t *httpTransport) do(ctx context.Context, req apiRequest) (*apiResponse, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	u := t.baseURL + "/" + strings.TrimLeft(req.path, "/")
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, req.body)
	if err != nil {
		return nil, &ValidationError{Field: "request", Err: err}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", t.userAgent)
	httpReq.Header.Set(headerAuthToken, t.apiKey)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		t.logger.Debug().Err(err).Str("op", req.op).Msg("HTTP request failed")
		return nil, t.fail(req.op, &TransportError{Op: req.op, Err: err})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, t.fail(req.op, &TransportError{Op: req.op, StatusCode: resp.StatusCode, Err: err})
	}

	t.logger.Debug().
		Str("op", req.op).
		Str("method", req.method).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("HTTP request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, t.fail(req.op, errorFromResponse(req.op, resp.StatusCode, body))
	}
	return &apiResponse{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

func (t *httpTransport) fail(op string, err error) error {
	t.metrics.RecordAPIError(op, errorKind(err))
	return err
}

type errorBody struct {
	Code    *int           `json:"code"`
	Message *string        `json:"message"`
	Detail  any            `json:"detail"`
	Details map[string]any `json:"details"`
}

func errorFromResponse(op string, status int, body []byte) error {
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && (eb.Code != nil || eb.Message != nil || eb.Detail != nil) {
		apiErr := &APIError{StatusCode: status, Code: status, Details: eb.Details}
		if eb.Code != nil {
			apiErr.Code = *eb.Code
		}
		switch {
		case eb.Message != nil:
			apiErr.Message = *eb.Message
		case eb.Detail != nil:
			if s, ok := eb.Detail.(string); ok {
				apiErr.Message = s
			} else if raw, err := json.Marshal(eb.Detail); err == nil {
				apiErr.Message = string(raw)
			}
		}
		return apiErr
	}
	return &TransportError{Op: op, StatusCode: status, Body: strings.TrimSpace(string(body))}
}

// statusCode returns the HTTP status carried by err, or 0.
func statusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}

func decodeJSON(op string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		var de *DecodingError
		if errors.As(err, &de) {
			return err
		}
		return &DecodingError{Target: op, Err: err}
	}
	return nil
}
