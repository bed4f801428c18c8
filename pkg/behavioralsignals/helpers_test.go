package behavioralsignals

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	pb "behavioralsignals-sdk-go/proto"
)

const (
	testClientID = "123"
	testAPIKey   = "secret-key"
)

// fakeAPI answers /v5/auth and hands every other request to handler.
type fakeAPI struct {
	server     *httptest.Server
	handler    http.HandlerFunc
	hits       atomic.Int32
	authClient atomic.Value
}

func newFakeAPI(t *testing.T, handler http.HandlerFunc) *fakeAPI {
	t.Helper()
	f := &fakeAPI{handler: handler}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v5/auth" {
			f.authClient.Store(r.Header.Get(headerAuthClient))
			if r.Header.Get(headerAuthClient) == "" || r.Header.Get(headerAuthToken) != testAPIKey {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"code":401,"message":"invalid credentials"}`))
				return
			}
			w.Write([]byte(`{}`))
			return
		}
		f.hits.Add(1)
		if r.Header.Get(headerAuthToken) != testAPIKey {
			t.Errorf("expected %s header on %s", headerAuthToken, r.URL.Path)
		}
		if f.handler == nil {
			http.NotFound(w, r)
			return
		}
		f.handler(w, r)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) baseURL() string {
	return f.server.URL + "/v5"
}

func newTestClient(t *testing.T, api *fakeAPI, opts ...Option) *Client {
	t.Helper()
	all := append([]Option{
		WithBaseURL(api.baseURL()),
		WithStreamingURL("passthrough:///unused"),
		WithTLS(false),
		WithLogger(zerolog.Nop()),
	}, opts...)
	c, err := New(context.Background(), testClientID, testAPIKey, all...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// newStreamingClient serves srv over an in-memory listener and returns a
// client dialing it.
func newStreamingClient(t *testing.T, srv pb.BehavioralStreamingApiServer, clientID string) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(pb.ServerCodec())
	pb.RegisterBehavioralStreamingApiServer(gs, srv)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	api := newFakeAPI(t, nil)
	c, err := New(context.Background(), clientID, testAPIKey,
		WithBaseURL(api.baseURL()),
		WithStreamingURL("passthrough:///bufnet"),
		WithTLS(false),
		WithLogger(zerolog.Nop()),
		WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		})),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func processJSON(pid int64, status ProcessStatus) string {
	return `{"pid":` + strconv.FormatInt(pid, 10) + `,"cid":123,"name":"call.wav","status":` + strconv.Itoa(int(status)) +
		`,"statusmsg":"","duration":12.5,"datetime":"2025-03-01T10:00:00","meta":null}`
}
