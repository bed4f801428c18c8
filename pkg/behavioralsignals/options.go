package behavioralsignals

import (
	"fmt"
	"math"

	pb "behavioralsignals-sdk-go/proto"
)

const DefaultSampleRate = 16000

// StreamingOptions is the handshake configuration of a stream. It is
// immutable once built.
type StreamingOptions struct {
	sampleRate int
	level      Level
}

// DefaultStreamingOptions is 16 kHz at segment level.
func DefaultStreamingOptions() StreamingOptions {
	return StreamingOptions{sampleRate: DefaultSampleRate, level: LevelSegment}
}

// NewStreamingOptions validates and builds streaming options.
func NewStreamingOptions(sampleRate int, level Level) (StreamingOptions, error) {
	if sampleRate <= 0 {
		return StreamingOptions{}, &ValidationError{Field: "sample rate", Reason: "must be positive"}
	}
	if sampleRate > math.MaxInt32 {
		return StreamingOptions{}, &ValidationError{Field: "sample rate", Reason: "does not fit in 32 bits"}
	}
	l, err := ParseLevel(string(level))
	if err != nil {
		return StreamingOptions{}, err
	}
	return StreamingOptions{sampleRate: sampleRate, level: l}, nil
}

func (o StreamingOptions) SampleRate() int { return o.sampleRate }
func (o StreamingOptions) Level() Level    { return o.level }

func (o StreamingOptions) valid() bool {
	return o.sampleRate > 0 && o.level != ""
}

// audioConfig builds the handshake payload. LevelAll leaves the level
// unset so the server returns both granularities.
func (o StreamingOptions) audioConfig() *pb.AudioConfig {
	cfg := &pb.AudioConfig{SampleRateHertz: int32(o.sampleRate)}
	switch o.level {
	case LevelSegment:
		l := pb.LevelSegment
		cfg.Level = &l
	case LevelUtterance:
		l := pb.LevelUtterance
		cfg.Level = &l
	}
	return cfg
}

func levelFromWire(l pb.Level) (Level, error) {
	switch l {
	case pb.LevelSegment:
		return LevelSegment, nil
	case pb.LevelUtterance:
		return LevelUtterance, nil
	}
	return "", fmt.Errorf("unknown level %s", l)
}
