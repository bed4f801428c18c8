// Package proto holds the wire messages and gRPC stubs for the streaming
// analysis service described in behavioral_streaming.proto.
//
// The messages are encoded directly with protowire and travel through
// Codec, so no generated descriptor code is needed.
package proto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Level selects the granularity of streamed results.
type Level int32

const (
	LevelSegment   Level = 0
	LevelUtterance Level = 1
)

// String returns the wire name of the level.
func (l Level) String() string {
	switch l {
	case LevelSegment:
		return "segment"
	case LevelUtterance:
		return "utterance"
	default:
		return fmt.Sprintf("Level(%d)", int32(l))
	}
}

// AudioConfig is sent once, in the handshake frame.
type AudioConfig struct {
	SampleRateHertz int32
	// Level is nil when the server should return every granularity.
	Level *Level
}

// AudioStream is one client→server frame. Exactly one of Config and
// AudioContent is set.
type AudioStream struct {
	Cid          int32
	XAuthToken   string
	Config       *AudioConfig
	AudioContent []byte
}

// GetConfig returns the handshake config, or nil for audio frames.
func (m *AudioStream) GetConfig() *AudioConfig {
	if m == nil {
		return nil
	}
	return m.Config
}

// GetAudioContent returns the audio payload, or nil for the handshake.
func (m *AudioStream) GetAudioContent() []byte {
	if m == nil {
		return nil
	}
	return m.AudioContent
}

// Prediction is one label with its posterior, as the service sends it.
type Prediction struct {
	Label     string
	Posterior string
}

// InferenceResult is a single per-segment or per-utterance result.
type InferenceResult struct {
	Id         string
	StartTime  string
	EndTime    string
	Task       string
	Prediction []*Prediction
	FinalLabel *string
	Level      Level
	Embedding  *string
}

// StreamResult is one server→client frame.
type StreamResult struct {
	Cid       int32
	Pid       int32
	MessageId int32
	Result    []*InferenceResult
}

// Field numbers.
const (
	audioConfigSampleRate protowire.Number = 1
	audioConfigLevel      protowire.Number = 2

	audioStreamCid          protowire.Number = 1
	audioStreamAuthToken    protowire.Number = 2
	audioStreamConfig       protowire.Number = 3
	audioStreamAudioContent protowire.Number = 4

	predictionLabel     protowire.Number = 1
	predictionPosterior protowire.Number = 2

	resultId         protowire.Number = 1
	resultStartTime  protowire.Number = 2
	resultEndTime    protowire.Number = 3
	resultTask       protowire.Number = 4
	resultPrediction protowire.Number = 5
	resultFinalLabel protowire.Number = 6
	resultLevel      protowire.Number = 7
	resultEmbedding  protowire.Number = 8

	streamResultCid       protowire.Number = 1
	streamResultPid       protowire.Number = 2
	streamResultMessageId protowire.Number = 3
	streamResultResult    protowire.Number = 4
)

// MarshalWire encodes the config in protobuf wire format.
func (m *AudioConfig) MarshalWire() ([]byte, error) {
	var b []byte
	b = appendInt32(b, audioConfigSampleRate, m.SampleRateHertz)
	if m.Level != nil {
		b = protowire.AppendTag(b, audioConfigLevel, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(*m.Level)))
	}
	return b, nil
}

// UnmarshalWire decodes the config from protobuf wire format.
func (m *AudioConfig) UnmarshalWire(b []byte) error {
	*m = AudioConfig{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case audioConfigSampleRate:
			v, n, err := consumeInt32(typ, b)
			m.SampleRateHertz = v
			return n, err
		case audioConfigLevel:
			v, n, err := consumeInt32(typ, b)
			lvl := Level(v)
			m.Level = &lvl
			return n, err
		}
		return skipField(num, typ, b)
	})
}

// MarshalWire encodes the frame in protobuf wire format.
func (m *AudioStream) MarshalWire() ([]byte, error) {
	if m.Config != nil && m.AudioContent != nil {
		return nil, fmt.Errorf("audio stream frame sets both config and audio content")
	}
	var b []byte
	b = appendInt32(b, audioStreamCid, m.Cid)
	b = appendString(b, audioStreamAuthToken, m.XAuthToken)
	switch {
	case m.Config != nil:
		cfg, err := m.Config.MarshalWire()
		if err != nil {
			return nil, err
		}
		b = appendBytes(b, audioStreamConfig, cfg)
	case m.AudioContent != nil:
		b = appendBytes(b, audioStreamAudioContent, m.AudioContent)
	}
	return b, nil
}

// UnmarshalWire decodes the frame from protobuf wire format.
func (m *AudioStream) UnmarshalWire(b []byte) error {
	*m = AudioStream{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case audioStreamCid:
			v, n, err := consumeInt32(typ, b)
			m.Cid = v
			return n, err
		case audioStreamAuthToken:
			v, n, err := consumeBytes(typ, b)
			m.XAuthToken = string(v)
			return n, err
		case audioStreamConfig:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return n, err
			}
			cfg := &AudioConfig{}
			if err := cfg.UnmarshalWire(v); err != nil {
				return n, err
			}
			m.Config, m.AudioContent = cfg, nil
			return n, nil
		case audioStreamAudioContent:
			v, n, err := consumeBytes(typ, b)
			m.Config, m.AudioContent = nil, append([]byte{}, v...)
			return n, err
		}
		return skipField(num, typ, b)
	})
}

// MarshalWire encodes the prediction in protobuf wire format.
func (m *Prediction) MarshalWire() ([]byte, error) {
	var b []byte
	b = appendString(b, predictionLabel, m.Label)
	b = appendString(b, predictionPosterior, m.Posterior)
	return b, nil
}

// UnmarshalWire decodes the prediction from protobuf wire format.
func (m *Prediction) UnmarshalWire(b []byte) error {
	*m = Prediction{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case predictionLabel:
			v, n, err := consumeBytes(typ, b)
			m.Label = string(v)
			return n, err
		case predictionPosterior:
			v, n, err := consumeBytes(typ, b)
			m.Posterior = string(v)
			return n, err
		}
		return skipField(num, typ, b)
	})
}

// MarshalWire encodes the result in protobuf wire format.
func (m *InferenceResult) MarshalWire() ([]byte, error) {
	var b []byte
	b = appendString(b, resultId, m.Id)
	b = appendString(b, resultStartTime, m.StartTime)
	b = appendString(b, resultEndTime, m.EndTime)
	b = appendString(b, resultTask, m.Task)
	for _, p := range m.Prediction {
		if p == nil {
			continue
		}
		pb, err := p.MarshalWire()
		if err != nil {
			return nil, err
		}
		b = appendBytes(b, resultPrediction, pb)
	}
	if m.FinalLabel != nil {
		b = protowire.AppendTag(b, resultFinalLabel, protowire.BytesType)
		b = protowire.AppendString(b, *m.FinalLabel)
	}
	b = appendInt32(b, resultLevel, int32(m.Level))
	if m.Embedding != nil {
		b = protowire.AppendTag(b, resultEmbedding, protowire.BytesType)
		b = protowire.AppendString(b, *m.Embedding)
	}
	return b, nil
}

// UnmarshalWire decodes the result from protobuf wire format.
func (m *InferenceResult) UnmarshalWire(b []byte) error {
	*m = InferenceResult{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case resultId:
			v, n, err := consumeBytes(typ, b)
			m.Id = string(v)
			return n, err
		case resultStartTime:
			v, n, err := consumeBytes(typ, b)
			m.StartTime = string(v)
			return n, err
		case resultEndTime:
			v, n, err := consumeBytes(typ, b)
			m.EndTime = string(v)
			return n, err
		case resultTask:
			v, n, err := consumeBytes(typ, b)
			m.Task = string(v)
			return n, err
		case resultPrediction:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return n, err
			}
			p := &Prediction{}
			if err := p.UnmarshalWire(v); err != nil {
				return n, err
			}
			m.Prediction = append(m.Prediction, p)
			return n, nil
		case resultFinalLabel:
			v, n, err := consumeBytes(typ, b)
			s := string(v)
			m.FinalLabel = &s
			return n, err
		case resultLevel:
			v, n, err := consumeInt32(typ, b)
			m.Level = Level(v)
			return n, err
		case resultEmbedding:
			v, n, err := consumeBytes(typ, b)
			s := string(v)
			m.Embedding = &s
			return n, err
		}
		return skipField(num, typ, b)
	})
}

// MarshalWire encodes the frame in protobuf wire format.
func (m *StreamResult) MarshalWire() ([]byte, error) {
	var b []byte
	b = appendInt32(b, streamResultCid, m.Cid)
	b = appendInt32(b, streamResultPid, m.Pid)
	b = appendInt32(b, streamResultMessageId, m.MessageId)
	for _, r := range m.Result {
		if r == nil {
			continue
		}
		rb, err := r.MarshalWire()
		if err != nil {
			return nil, err
		}
		b = appendBytes(b, streamResultResult, rb)
	}
	return b, nil
}

// UnmarshalWire decodes the frame from protobuf wire format.
func (m *StreamResult) UnmarshalWire(b []byte) error {
	*m = StreamResult{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case streamResultCid:
			v, n, err := consumeInt32(typ, b)
			m.Cid = v
			return n, err
		case streamResultPid:
			v, n, err := consumeInt32(typ, b)
			m.Pid = v
			return n, err
		case streamResultMessageId:
			v, n, err := consumeInt32(typ, b)
			m.MessageId = v
			return n, err
		case streamResultResult:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return n, err
			}
			r := &InferenceResult{}
			if err := r.UnmarshalWire(v); err != nil {
				return n, err
			}
			m.Result = append(m.Result, r)
			return n, nil
		}
		return skipField(num, typ, b)
	})
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(v)))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// decodeFields walks a message, handing each field body to fn. fn returns
// how many bytes of b it consumed.
func decodeFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n, err := fn(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		b = b[n:]
	}
	return nil
}

func consumeInt32(typ protowire.Type, b []byte) (int32, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("wire type %d, want varint", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return int32(v), n, nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("wire type %d, want bytes", typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func skipField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}
