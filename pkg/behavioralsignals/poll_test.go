package behavioralsignals

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"
)

// sequenceHandler serves the given statuses for process 5 in order,
// repeating the last one.
func sequenceHandler(t *testing.T, statuses ...ProcessStatus) http.HandlerFunc {
	var mu sync.Mutex
	i := 0
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v5/clients/123/processes/5/results" {
			writeJSON(w, http.StatusOK, resultsBody)
			return
		}
		mu.Lock()
		s := statuses[min(i, len(statuses)-1)]
		i++
		mu.Unlock()
		writeJSON(w, http.StatusOK, processJSON(5, s))
	}
}

func fastPoll() PollOptions {
	return PollOptions{Interval: time.Millisecond}
}

func TestWait_ReachesCompleted(t *testing.T) {
	api := newFakeAPI(t, sequenceHandler(t, StatusPending, StatusPending, StatusProcessing, StatusCompleted))
	c := newTestClient(t, api)

	var seen []ProcessStatus
	opts := fastPoll()
	opts.OnStatus = func(p Process) { seen = append(seen, p.Status) }

	p, err := c.Behavioral.Wait(context.Background(), 5, opts)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !p.IsCompleted() {
		t.Errorf("expected COMPLETED, got %s", p.Status)
	}
	want := []ProcessStatus{StatusPending, StatusPending, StatusProcessing, StatusCompleted}
	if len(seen) != len(want) {
		t.Fatalf("expected %d observations, got %v", len(want), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("observation %d: expected %s, got %s", i, want[i], seen[i])
		}
	}
}

func TestWait_TerminalFailuresAreReturned(t *testing.T) {
	for _, final := range []ProcessStatus{StatusFailed, StatusInsufficientCredits} {
		t.Run(final.String(), func(t *testing.T) {
			api := newFakeAPI(t, sequenceHandler(t, StatusProcessing, final))
			c := newTestClient(t, api)

			p, err := c.Behavioral.Wait(context.Background(), 5, fastPoll())
			if err != nil {
				t.Fatalf("expected no error for terminal %s, got %v", final, err)
			}
			if p.Status != final {
				t.Errorf("expected %s, got %s", final, p.Status)
			}
		})
	}
}

func TestWait_UnknownStatus(t *testing.T) {
	api := newFakeAPI(t, sequenceHandler(t, StatusPending, ProcessStatus(7)))
	c := newTestClient(t, api)

	p, err := c.Behavioral.Wait(context.Background(), 5, fastPoll())
	var unexpected *UnexpectedStatusError
	if !errors.As(err, &unexpected) {
		t.Fatalf("expected UnexpectedStatusError, got %v", err)
	}
	if unexpected.Process.Status != 7 || p == nil || p.Status != 7 {
		t.Errorf("expected status 7 surfaced, got %+v", unexpected.Process)
	}
}

func TestWait_StatusRegression(t *testing.T) {
	api := newFakeAPI(t, sequenceHandler(t, StatusProcessing, StatusPending))
	c := newTestClient(t, api)

	_, err := c.Behavioral.Wait(context.Background(), 5, fastPoll())
	var anomaly *ProtocolAnomalyError
	if !errors.As(err, &anomaly) {
		t.Fatalf("expected ProtocolAnomalyError, got %v", err)
	}
	if anomaly.From != StatusProcessing || anomaly.To != StatusPending {
		t.Errorf("unexpected anomaly %+v", anomaly)
	}
}

func TestWait_Cancelled(t *testing.T) {
	api := newFakeAPI(t, sequenceHandler(t, StatusProcessing))
	c := newTestClient(t, api)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p, err := c.Behavioral.Wait(ctx, 5, PollOptions{Interval: 10 * time.Millisecond})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if p == nil || !p.IsProcessing() {
		t.Errorf("expected last snapshot to be returned, got %+v", p)
	}
}

func TestPollOptions_Backoff(t *testing.T) {
	opts := PollOptions{Interval: 100 * time.Millisecond, Backoff: 2, MaxInterval: 300 * time.Millisecond}
	d := opts.interval()
	var got []time.Duration
	for range 4 {
		got = append(got, d)
		d = opts.next(d)
	}
	want := []time.Duration{100, 200, 300, 300}
	for i := range want {
		if got[i] != want[i]*time.Millisecond {
			t.Errorf("step %d: expected %v, got %v", i, want[i]*time.Millisecond, got[i])
		}
	}

	if (PollOptions{}).interval() != DefaultPollInterval {
		t.Error("expected default interval")
	}
	if fixed := (PollOptions{Interval: time.Second}); fixed.next(time.Second) != time.Second {
		t.Error("expected fixed interval without backoff")
	}
}

func TestAnalyze(t *testing.T) {
	statuses := sequenceHandler(t, StatusProcessing, StatusCompleted)
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeJSON(w, http.StatusOK, processJSON(5, StatusPending))
			return
		}
		statuses(w, r)
	})
	c := newTestClient(t, api)

	path := writeTempAudio(t, "call.wav", []byte("audio"))
	res, p, err := c.Behavioral.Analyze(context.Background(), path, SubmitOptions{}, fastPoll())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !p.IsCompleted() {
		t.Errorf("expected COMPLETED process, got %s", p.Status)
	}
	if len(res.Results) != 3 {
		t.Errorf("expected 3 results, got %d", len(res.Results))
	}
}

func TestAnalyze_FailedProcess(t *testing.T) {
	for _, final := range []ProcessStatus{StatusFailed, StatusInsufficientCredits} {
		t.Run(final.String(), func(t *testing.T) {
			statuses := sequenceHandler(t, final)
			api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodPost {
					writeJSON(w, http.StatusOK, processJSON(5, StatusPending))
					return
				}
				statuses(w, r)
			})
			c := newTestClient(t, api)

			path := writeTempAudio(t, "call.wav", []byte("audio"))
			res, p, err := c.Behavioral.Analyze(context.Background(), path, SubmitOptions{}, fastPoll())
			if err != nil {
				t.Fatalf("expected no error for terminal %s, got %v", final, err)
			}
			if res != nil {
				t.Errorf("expected no results, got %+v", res)
			}
			if p == nil || p.Status != final {
				t.Errorf("expected %s process returned, got %+v", final, p)
			}
			// submit and one poll; results are never requested
			if got := api.hits.Load(); got != 2 {
				t.Errorf("expected 2 requests, got %d", got)
			}
		})
	}
}

func TestAnalyze_RegressionFromSubmitSnapshot(t *testing.T) {
	statuses := sequenceHandler(t, StatusPending, StatusCompleted)
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeJSON(w, http.StatusOK, processJSON(5, StatusProcessing))
			return
		}
		statuses(w, r)
	})
	c := newTestClient(t, api)

	path := writeTempAudio(t, "call.wav", []byte("audio"))
	_, p, err := c.Behavioral.Analyze(context.Background(), path, SubmitOptions{}, fastPoll())
	var anomaly *ProtocolAnomalyError
	if !errors.As(err, &anomaly) {
		t.Fatalf("expected ProtocolAnomalyError, got %v", err)
	}
	if anomaly.From != StatusProcessing || anomaly.To != StatusPending {
		t.Errorf("unexpected anomaly %+v", anomaly)
	}
	if p == nil || p.Status != StatusPending {
		t.Errorf("expected offending snapshot returned, got %+v", p)
	}
}

func TestWaitFrom_TerminalSnapshot(t *testing.T) {
	api := newFakeAPI(t, sequenceHandler(t, StatusProcessing))
	c := newTestClient(t, api)

	in := &Process{ID: 5, Status: StatusFailed}
	p, err := c.Behavioral.WaitFrom(context.Background(), in, fastPoll())
	if err != nil || p != in {
		t.Fatalf("expected snapshot returned as is, got %+v, %v", p, err)
	}
	if got := api.hits.Load(); got != 0 {
		t.Errorf("expected no requests, got %d", got)
	}
	if _, err := c.Behavioral.WaitFrom(context.Background(), nil, fastPoll()); !IsValidationError(err) {
		t.Errorf("expected ValidationError for nil process, got %v", err)
	}
}

func TestWait_BeforePoll(t *testing.T) {
	api := newFakeAPI(t, sequenceHandler(t, StatusPending, StatusProcessing, StatusCompleted))
	c := newTestClient(t, api)

	var calls int
	opts := fastPoll()
	opts.BeforePoll = func(context.Context) error {
		calls++
		return nil
	}
	if _, err := c.Behavioral.Wait(context.Background(), 5, opts); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected one call per poll, got %d", calls)
	}

	boom := errors.New("limiter closed")
	opts.BeforePoll = func(context.Context) error { return boom }
	before := api.hits.Load()
	if _, err := c.Behavioral.Wait(context.Background(), 5, opts); !errors.Is(err, boom) {
		t.Errorf("expected %v, got %v", boom, err)
	}
	if api.hits.Load() != before {
		t.Error("expected no status request after BeforePoll failed")
	}
}
