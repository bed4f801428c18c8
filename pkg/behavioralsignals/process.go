package behavioralsignals

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ProcessStatus is the lifecycle state of a batch process as reported by
// the service. Values outside the known set are kept as-is.
type ProcessStatus int

const (
	StatusPending             ProcessStatus = 0
	StatusProcessing          ProcessStatus = 1
	StatusCompleted           ProcessStatus = 2
	StatusFailed              ProcessStatus = -1
	StatusInsufficientCredits ProcessStatus = -2
)

// Known reports whether s is one of the documented statuses.
func (s ProcessStatus) Known() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusInsufficientCredits:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition will happen.
func (s ProcessStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusInsufficientCredits:
		return true
	}
	return false
}

func (s ProcessStatus) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusProcessing:
		return "PROCESSING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	case StatusInsufficientCredits:
		return "INSUFFICIENT_CREDITS"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// rank orders statuses along the lifecycle. Unknown statuses rank -1.
func (s ProcessStatus) rank() int {
	switch {
	case s == StatusPending:
		return 0
	case s == StatusProcessing:
		return 1
	case s.IsTerminal():
		return 2
	default:
		return -1
	}
}

// Process is a snapshot of a batch job. Snapshots are values; polling
// returns a new one each time.
type Process struct {
	ID            int64
	ClientID      int64
	Name          string
	Status        ProcessStatus
	StatusMessage string
	// Duration is the audio length in seconds, zero when not yet known.
	Duration  float64
	CreatedAt time.Time
	// Meta is the caller's metadata, returned verbatim.
	Meta json.RawMessage
}

func (p Process) IsPending() bool             { return p.Status == StatusPending }
func (p Process) IsProcessing() bool          { return p.Status == StatusProcessing }
func (p Process) IsCompleted() bool           { return p.Status == StatusCompleted }
func (p Process) IsFailed() bool              { return p.Status == StatusFailed }
func (p Process) IsInsufficientCredits() bool { return p.Status == StatusInsufficientCredits }
func (p Process) IsTerminal() bool            { return p.Status.IsTerminal() }

type processWire struct {
	Pid       *int64          `json:"pid"`
	Cid       *int64          `json:"cid"`
	Name      string          `json:"name"`
	Status    *int            `json:"status"`
	StatusMsg *string         `json:"statusmsg"`
	Duration  *float64        `json:"duration"`
	Datetime  *string         `json:"datetime"`
	Meta      json.RawMessage `json:"meta,omitempty"`
}

var processTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseProcessTime(v string) (time.Time, error) {
	var lastErr error
	for _, layout := range processTimeLayouts {
		t, err := time.Parse(layout, v)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func (p *Process) UnmarshalJSON(data []byte) error {
	var w processWire
	if err := json.Unmarshal(data, &w); err != nil {
		return &DecodingError{Target: "process", Err: err}
	}
	switch {
	case w.Pid == nil:
		return &DecodingError{Target: "process", Field: "pid", Err: errMissing}
	case w.Cid == nil:
		return &DecodingError{Target: "process", Field: "cid", Err: errMissing}
	case w.Status == nil:
		return &DecodingError{Target: "process", Field: "status", Err: errMissing}
	}

	out := Process{
		ID:       *w.Pid,
		ClientID: *w.Cid,
		Name:     w.Name,
		Status:   ProcessStatus(*w.Status),
	}
	if w.StatusMsg != nil {
		out.StatusMessage = *w.StatusMsg
	}
	if w.Duration != nil {
		out.Duration = *w.Duration
	}
	if w.Datetime != nil && *w.Datetime != "" {
		t, err := parseProcessTime(*w.Datetime)
		if err != nil {
			return &DecodingError{Target: "process", Field: "datetime", Err: err}
		}
		out.CreatedAt = t
	}
	if len(w.Meta) > 0 && !bytes.Equal(w.Meta, []byte("null")) {
		out.Meta = append(json.RawMessage(nil), w.Meta...)
	}
	*p = out
	return nil
}

func (p Process) MarshalJSON() ([]byte, error) {
	pid, cid, status := p.ID, p.ClientID, int(p.Status)
	msg, duration := p.StatusMessage, p.Duration
	w := processWire{
		Pid:       &pid,
		Cid:       &cid,
		Name:      p.Name,
		Status:    &status,
		StatusMsg: &msg,
		Duration:  &duration,
		Meta:      p.Meta,
	}
	if !p.CreatedAt.IsZero() {
		ts := p.CreatedAt.Format(time.RFC3339Nano)
		w.Datetime = &ts
	}
	return json.Marshal(w)
}

// ProcessList is one page of processes.
type ProcessList struct {
	Processes []Process `json:"processes"`
	// TotalCount is the server-reported total across pages when available,
	// otherwise the page length.
	TotalCount int `json:"totalCount"`
}

// Filter returns the processes with the given status, in page order.
func (l ProcessList) Filter(status ProcessStatus) []Process {
	var out []Process
	for _, p := range l.Processes {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out
}

func (l ProcessList) Completed() []Process  { return l.Filter(StatusCompleted) }
func (l ProcessList) Processing() []Process { return l.Filter(StatusProcessing) }
func (l ProcessList) Failed() []Process     { return l.Filter(StatusFailed) }
