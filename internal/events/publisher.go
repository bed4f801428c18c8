// Package events publishes analysis results to Kafka.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"behavioralsignals-sdk-go/internal/observability/metrics"
	"behavioralsignals-sdk-go/pkg/behavioralsignals"
)

const (
	EventTypeBatchResult  = "behavioralsignals.batch.result"
	EventTypeStreamResult = "behavioralsignals.stream.result"
)

// BatchResultEvent is published once per completed or failed batch process.
type BatchResultEvent struct {
	EventType     string                         `json:"eventType"`
	API           string                         `json:"api"`
	ProcessID     int64                          `json:"pid"`
	ClientID      int64                          `json:"cid"`
	Name          string                         `json:"name"`
	Status        string                         `json:"status"`
	StatusMessage string                         `json:"statusMessage,omitempty"`
	Results       []behavioralsignals.ResultItem `json:"results,omitempty"`
	PublishedAt   time.Time                      `json:"publishedAt"`
}

// StreamResultEvent is published per server message of a stream.
type StreamResultEvent struct {
	EventType   string                         `json:"eventType"`
	API         string                         `json:"api"`
	StreamID    string                         `json:"streamId"`
	ProcessID   int64                          `json:"pid"`
	MessageID   int64                          `json:"messageId"`
	Results     []behavioralsignals.ResultItem `json:"results"`
	PublishedAt time.Time                      `json:"publishedAt"`
}

// Publisher publishes result events to separate batch and stream topics.
type Publisher struct {
	writerBatch  *kafka.Writer
	writerStream *kafka.Writer
	principal    string
	topicBatch   string
	topicStream  string
	enabled      bool
	metrics      *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers     []string
	TopicBatch  string
	TopicStream string
	Principal   string
	Enabled     bool
}

// New creates a publisher. A nil or disabled config gives a log-only
// publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{metrics: m}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:   cfg.Principal,
			topicBatch:  cfg.TopicBatch,
			topicStream: cfg.TopicStream,
			metrics:     m,
		}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicBatch", cfg.TopicBatch).
		Str("topicStream", cfg.TopicStream).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerBatch:  newWriter(cfg.TopicBatch),
		writerStream: newWriter(cfg.TopicStream),
		principal:    cfg.Principal,
		topicBatch:   cfg.TopicBatch,
		topicStream:  cfg.TopicStream,
		enabled:      true,
		metrics:      m,
	}
}

// Enabled reports whether events reach Kafka.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// PublishBatchResult publishes the final state of a batch process, keyed by pid.
func (p *Publisher) PublishBatchResult(ctx context.Context, api string, proc behavioralsignals.Process, res *behavioralsignals.ResultResponse) error {
	event := BatchResultEvent{
		EventType:     EventTypeBatchResult,
		API:           api,
		ProcessID:     proc.ID,
		ClientID:      proc.ClientID,
		Name:          proc.Name,
		Status:        proc.Status.String(),
		StatusMessage: proc.StatusMessage,
		PublishedAt:   time.Now().UTC(),
	}
	if res != nil {
		event.Results = res.Results
	}
	return p.publish(ctx, p.writerBatch, p.topicBatch, "batch", strconv.FormatInt(proc.ID, 10), event)
}

// PublishStreamResult publishes one stream message, keyed by stream id so
// a stream's messages stay ordered within a partition.
func (p *Publisher) PublishStreamResult(ctx context.Context, api, streamID string, res *behavioralsignals.StreamResult) error {
	event := StreamResultEvent{
		EventType:   EventTypeStreamResult,
		API:         api,
		StreamID:    streamID,
		ProcessID:   res.ProcessID,
		MessageID:   res.MessageID,
		Results:     res.Results,
		PublishedAt: time.Now().UTC(),
	}
	return p.publish(ctx, p.writerStream, p.topicStream, "stream", streamID, event)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		Int("bytes", len(payload)).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerBatch != nil {
		if e := p.writerBatch.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing batch writer")
			err = e
		}
	}
	if p.writerStream != nil {
		if e := p.writerStream.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing stream writer")
			err = e
		}
	}
	return err
}
