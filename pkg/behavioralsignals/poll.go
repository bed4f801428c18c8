package behavioralsignals

import (
	"context"
	"time"

	"behavioralsignals-sdk-go/internal/observability/logging"
)

const DefaultPollInterval = time.Second

// PollOptions controls Wait.
type PollOptions struct {
	// Interval is the delay between polls. Defaults to one second.
	Interval time.Duration
	// Backoff multiplies the delay after each non-terminal poll. Values
	// at or below 1 keep the interval fixed.
	Backoff float64
	// MaxInterval caps the delay when Backoff is set.
	MaxInterval time.Duration
	// OnStatus, if set, observes every snapshot in order.
	OnStatus func(Process)
	// BeforePoll, if set, runs before every status request. An error
	// stops polling. Bulk callers use it to share a request rate limit.
	BeforePoll func(context.Context) error
}

func (o PollOptions) interval() time.Duration {
	if o.Interval <= 0 {
		return DefaultPollInterval
	}
	return o.Interval
}

func (o PollOptions) next(d time.Duration) time.Duration {
	if o.Backoff <= 1 {
		return d
	}
	n := time.Duration(float64(d) * o.Backoff)
	if o.MaxInterval > 0 && n > o.MaxInterval {
		n = o.MaxInterval
	}
	return n
}

// Wait polls process pid until it reaches a terminal status and returns
// that snapshot. FAILED and INSUFFICIENT_CREDITS are returned, not raised.
// Cancelling ctx stops polling and returns the last snapshot with ctx's error.
func (a *API) Wait(ctx context.Context, pid int64, opts PollOptions) (*Process, error) {
	return a.wait(ctx, pid, nil, opts)
}

// WaitFrom is Wait seeded with a snapshot the caller already holds, such
// as the one returned by Submit. A later status that moves backwards
// from it is reported as a ProtocolAnomalyError.
func (a *API) WaitFrom(ctx context.Context, p *Process, opts PollOptions) (*Process, error) {
	if p == nil {
		return nil, &ValidationError{Field: "process", Reason: "is nil"}
	}
	if p.IsTerminal() {
		return p, nil
	}
	return a.wait(ctx, p.ID, p, opts)
}

func (a *API) wait(ctx context.Context, pid int64, last *Process, opts PollOptions) (*Process, error) {
	logger := logging.WithProcess(a.client.logger, a.name, pid)
	delay := opts.interval()

	for {
		if last != nil {
			if err := sleepCtx(ctx, delay); err != nil {
				return last, err
			}
			delay = opts.next(delay)
		}
		if opts.BeforePoll != nil {
			if err := opts.BeforePoll(ctx); err != nil {
				if ctx.Err() != nil {
					return last, ctx.Err()
				}
				return last, err
			}
		}
		p, err := a.GetProcess(ctx, pid)
		if err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			return last, err
		}
		a.client.metrics.RecordPoll(p.Status.String())
		if opts.OnStatus != nil {
			opts.OnStatus(*p)
		}

		if !p.Status.Known() {
			a.client.metrics.RecordAPIError(a.name+".wait", "unexpected_status")
			return p, &UnexpectedStatusError{Process: *p}
		}
		if last != nil && p.Status.rank() < last.Status.rank() {
			a.client.metrics.RecordAPIError(a.name+".wait", "protocol_anomaly")
			return p, &ProtocolAnomalyError{ProcessID: pid, From: last.Status, To: p.Status}
		}
		if last == nil || last.Status != p.Status {
			logger.Debug().Str("status", p.Status.String()).Msg("Process status changed")
		}
		if p.IsTerminal() {
			logger.Info().
				Str("status", p.Status.String()).
				Str("statusMessage", p.StatusMessage).
				Msg("Process reached terminal status")
			return p, nil
		}
		last = p
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Analyze submits the file at path, waits for it to finish and fetches
// its results. A process that ends FAILED or INSUFFICIENT_CREDITS is
// returned with nil results and a nil error; branch on its Status.
func (a *API) Analyze(ctx context.Context, path string, submit SubmitOptions, poll PollOptions) (*ResultResponse, *Process, error) {
	p, err := a.SubmitFile(ctx, path, submit)
	if err != nil {
		return nil, nil, err
	}
	final, err := a.WaitFrom(ctx, p, poll)
	if err != nil {
		return nil, final, err
	}
	if !final.IsCompleted() {
		return nil, final, nil
	}
	res, err := a.FetchResult(ctx, final)
	if err != nil {
		return nil, final, err
	}
	return res, final, nil
}
