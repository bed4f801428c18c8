package behavioralsignals

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errMissing = errors.New("required field missing")

// Level is the granularity of results. LevelAll is only meaningful as a
// streaming request option; result items are always segment or utterance.
type Level string

const (
	LevelSegment   Level = "segment"
	LevelUtterance Level = "utterance"
	LevelAll       Level = "all"
)

// ParseLevel validates a level name.
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelSegment, LevelUtterance, LevelAll:
		return l, nil
	}
	return "", &ValidationError{Field: "level", Reason: fmt.Sprintf("%q is not one of segment, utterance, all", s)}
}

// Prediction is one label and its score.
type Prediction struct {
	Label string
	// Posterior is nil when the service omitted it.
	Posterior *float64
}

// Score returns the posterior, or zero when absent.
func (p Prediction) Score() float64 {
	if p.Posterior == nil {
		return 0
	}
	return *p.Posterior
}

// ResultItem is one classification over an audio interval.
type ResultItem struct {
	ID          string
	StartTime   float64
	EndTime     float64
	Task        string
	Predictions []Prediction
	FinalLabel  *string
	Level       Level
	Embedding   *string
}

// Duration is the interval length in seconds.
func (r ResultItem) Duration() float64 {
	return r.EndTime - r.StartTime
}

// Top returns the highest-scoring prediction.
func (r ResultItem) Top() (Prediction, bool) {
	if len(r.Predictions) == 0 {
		return Prediction{}, false
	}
	best := r.Predictions[0]
	for _, p := range r.Predictions[1:] {
		if p.Score() > best.Score() {
			best = p
		}
	}
	return best, true
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func parseSeconds(v string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(v), 64)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type predictionWire struct {
	Label     *string     `json:"label"`
	Posterior *flexString `json:"posterior"`
}

type resultItemWire struct {
	ID         *flexString      `json:"id"`
	StartTime  *flexString      `json:"startTime"`
	EndTime    *flexString      `json:"endTime"`
	Task       *string          `json:"task"`
	Prediction []predictionWire `json:"prediction"`
	FinalLabel *string          `json:"finalLabel"`
	Level      *string          `json:"level"`
	Embedding  *string          `json:"embedding"`
}

func (r *ResultItem) UnmarshalJSON(data []byte) error {
	var w resultItemWire
	if err := json.Unmarshal(data, &w); err != nil {
		return &DecodingError{Target: "result item", Err: err}
	}
	missing := func(field string) error {
		return &DecodingError{Target: "result item", Field: field, Err: errMissing}
	}
	switch {
	case w.ID == nil:
		return missing("id")
	case w.StartTime == nil:
		return missing("startTime")
	case w.EndTime == nil:
		return missing("endTime")
	case w.Task == nil:
		return missing("task")
	case w.Level == nil:
		return missing("level")
	}

	start, err := parseSeconds(string(*w.StartTime))
	if err != nil {
		return &DecodingError{Target: "result item", Field: "startTime", Err: err}
	}
	end, err := parseSeconds(string(*w.EndTime))
	if err != nil {
		return &DecodingError{Target: "result item", Field: "endTime", Err: err}
	}
	level := Level(*w.Level)
	if level != LevelSegment && level != LevelUtterance {
		return &DecodingError{Target: "result item", Field: "level", Err: fmt.Errorf("%q is not segment or utterance", *w.Level)}
	}

	out := ResultItem{
		ID:         string(*w.ID),
		StartTime:  start,
		EndTime:    end,
		Task:       *w.Task,
		FinalLabel: w.FinalLabel,
		Level:      level,
		Embedding:  w.Embedding,
	}
	for i, pw := range w.Prediction {
		var p Prediction
		if pw.Label != nil {
			p.Label = *pw.Label
		}
		if pw.Posterior != nil && *pw.Posterior != "" {
			score, err := parseSeconds(string(*pw.Posterior))
			if err != nil {
				return &DecodingError{Target: "result item", Field: fmt.Sprintf("prediction[%d].posterior", i), Err: err}
			}
			p.Posterior = &score
		}
		out.Predictions = append(out.Predictions, p)
	}
	*r = out
	return nil
}

// MarshalJSON writes the wire shape, with times and posteriors as strings.
func (r ResultItem) MarshalJSON() ([]byte, error) {
	type predictionOut struct {
		Label     string  `json:"label"`
		Posterior *string `json:"posterior,omitempty"`
	}
	type itemOut struct {
		ID         string          `json:"id"`
		StartTime  string          `json:"startTime"`
		EndTime    string          `json:"endTime"`
		Task       string          `json:"task"`
		Prediction []predictionOut `json:"prediction"`
		FinalLabel *string         `json:"finalLabel,omitempty"`
		Level      string          `json:"level"`
		Embedding  *string         `json:"embedding,omitempty"`
	}
	out := itemOut{
		ID:         r.ID,
		StartTime:  formatSeconds(r.StartTime),
		EndTime:    formatSeconds(r.EndTime),
		Task:       r.Task,
		Prediction: make([]predictionOut, 0, len(r.Predictions)),
		FinalLabel: r.FinalLabel,
		Level:      string(r.Level),
		Embedding:  r.Embedding,
	}
	for _, p := range r.Predictions {
		po := predictionOut{Label: p.Label}
		if p.Posterior != nil {
			s := formatSeconds(*p.Posterior)
			po.Posterior = &s
		}
		out.Prediction = append(out.Prediction, po)
	}
	return json.Marshal(out)
}

// ResultResponse is the full result set of a completed batch process.
type ResultResponse struct {
	ProcessID int64
	ClientID  int64
	Code      int
	Message   string
	Results   []ResultItem
}

type resultResponseWire struct {
	Pid     *int64          `json:"pid"`
	Cid     *int64          `json:"cid"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Results json.RawMessage `json:"results"`
}

func (r *ResultResponse) UnmarshalJSON(data []byte) error {
	var w resultResponseWire
	if err := json.Unmarshal(data, &w); err != nil {
		return &DecodingError{Target: "result response", Err: err}
	}
	switch {
	case w.Pid == nil:
		return &DecodingError{Target: "result response", Field: "pid", Err: errMissing}
	case w.Cid == nil:
		return &DecodingError{Target: "result response", Field: "cid", Err: errMissing}
	case w.Results == nil:
		return &DecodingError{Target: "result response", Field: "results", Err: errMissing}
	}
	out := ResultResponse{
		ProcessID: *w.Pid,
		ClientID:  *w.Cid,
		Code:      w.Code,
		Message:   w.Message,
		Results:   []ResultItem{},
	}
	if !bytes.Equal(w.Results, []byte("null")) {
		if err := json.Unmarshal(w.Results, &out.Results); err != nil {
			var de *DecodingError
			if errors.As(err, &de) {
				return err
			}
			return &DecodingError{Target: "result response", Field: "results", Err: err}
		}
	}
	*r = out
	return nil
}

func (r ResultResponse) MarshalJSON() ([]byte, error) {
	type responseOut struct {
		Pid     int64        `json:"pid"`
		Cid     int64        `json:"cid"`
		Code    int          `json:"code"`
		Message string       `json:"message"`
		Results []ResultItem `json:"results"`
	}
	results := r.Results
	if results == nil {
		results = []ResultItem{}
	}
	return json.Marshal(responseOut{r.ProcessID, r.ClientID, r.Code, r.Message, results})
}

// ByTask returns every item for task, in response order. Items are not
// deduplicated.
func (r ResultResponse) ByTask(task string) []ResultItem {
	var out []ResultItem
	for _, item := range r.Results {
		if item.Task == task {
			out = append(out, item)
		}
	}
	return out
}

// Tasks lists the distinct task names in order of first appearance.
func (r ResultResponse) Tasks() []string {
	seen := make(map[string]bool)
	var out []string
	for _, item := range r.Results {
		if !seen[item.Task] {
			seen[item.Task] = true
			out = append(out, item.Task)
		}
	}
	return out
}
