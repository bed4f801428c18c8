package events

import (
	"context"
	"encoding/json"
	"testing"

	"behavioralsignals-sdk-go/pkg/behavioralsignals"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.Enabled() {
				t.Error("expected publisher to be disabled")
			}
			if p.writerBatch != nil || p.writerStream != nil {
				t.Error("expected nil writers when disabled")
			}
		})
	}
}

func TestNew_Enabled(t *testing.T) {
	p := New(&Config{
		Enabled:     true,
		Brokers:     []string{"localhost:9092"},
		TopicBatch:  "test.batch",
		TopicStream: "test.stream",
		Principal:   "123",
	})
	defer p.Close()

	if !p.Enabled() {
		t.Fatal("expected publisher to be enabled")
	}
	if p.writerBatch.Topic != "test.batch" || p.writerStream.Topic != "test.stream" {
		t.Errorf("unexpected writer topics %s, %s", p.writerBatch.Topic, p.writerStream.Topic)
	}
}

func TestPublisher_PublishBatchResult_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false, TopicBatch: "test.batch", Principal: "123"})

	proc := behavioralsignals.Process{ID: 5, ClientID: 123, Name: "call.wav", Status: behavioralsignals.StatusCompleted}
	res := &behavioralsignals.ResultResponse{ProcessID: 5, ClientID: 123, Results: []behavioralsignals.ResultItem{
		{ID: "0", StartTime: 0, EndTime: 1.5, Task: "emotion", Level: behavioralsignals.LevelSegment},
	}}
	if err := p.PublishBatchResult(context.Background(), "behavioral", proc, res); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
	if err := p.PublishBatchResult(context.Background(), "behavioral", proc, nil); err != nil {
		t.Errorf("expected no error without results, got %v", err)
	}
}

func TestPublisher_PublishStreamResult_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false, TopicStream: "test.stream"})

	res := &behavioralsignals.StreamResult{ProcessID: 42, MessageID: 3}
	if err := p.PublishStreamResult(context.Background(), "deepfakes", "stream-1", res); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_Publish_InvalidJSON(t *testing.T) {
	p := New(&Config{Enabled: false})

	err := p.publish(context.Background(), nil, "t", "batch", "k", make(chan int))
	if err == nil {
		t.Error("expected error for unmarshalable event")
	}
}

func TestBatchResultEvent_WireShape(t *testing.T) {
	event := BatchResultEvent{
		EventType: EventTypeBatchResult,
		API:       "behavioral",
		ProcessID: 5,
		Status:    "COMPLETED",
		Results: []behavioralsignals.ResultItem{
			{ID: "0", StartTime: 0.5, EndTime: 1.25, Task: "emotion", Level: behavioralsignals.LevelSegment},
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	item := decoded["results"].([]any)[0].(map[string]any)
	if item["startTime"] != "0.5" || item["endTime"] != "1.25" {
		t.Errorf("expected result items in wire shape, got %v", item)
	}
	if decoded["pid"] != float64(5) {
		t.Errorf("expected pid 5, got %v", decoded["pid"])
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}
