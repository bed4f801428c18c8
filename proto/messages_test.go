package proto

import (
	"bytes"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestAudioStream_HandshakeRoundTrip(t *testing.T) {
	lvl := LevelUtterance
	in := &AudioStream{
		Cid:        42,
		XAuthToken: "secret",
		Config:     &AudioConfig{SampleRateHertz: 16000, Level: &lvl},
	}

	data, err := Codec{}.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out AudioStream
	if err := (Codec{}).Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if out.Cid != 42 || out.XAuthToken != "secret" {
		t.Errorf("auth fields not preserved: %+v", out)
	}
	if out.GetAudioContent() != nil {
		t.Error("handshake frame should not carry audio")
	}
	cfg := out.GetConfig()
	if cfg == nil {
		t.Fatal("expected config")
	}
	if cfg.SampleRateHertz != 16000 {
		t.Errorf("expected 16000 Hz, got %d", cfg.SampleRateHertz)
	}
	if cfg.Level == nil || *cfg.Level != LevelUtterance {
		t.Errorf("expected utterance level, got %v", cfg.Level)
	}
}

func TestAudioConfig_SegmentLevelKeepsPresence(t *testing.T) {
	// segment is the zero value; it must still be written when set.
	lvl := LevelSegment
	data, err := (&AudioConfig{SampleRateHertz: 8000, Level: &lvl}).MarshalWire()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out AudioConfig
	if err := out.UnmarshalWire(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Level == nil {
		t.Fatal("expected level presence to survive the round trip")
	}

	data, _ = (&AudioConfig{SampleRateHertz: 8000}).MarshalWire()
	if err := out.UnmarshalWire(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Level != nil {
		t.Errorf("expected no level, got %v", *out.Level)
	}
}

func TestAudioStream_AudioFrame(t *testing.T) {
	in := &AudioStream{Cid: 7, XAuthToken: "k", AudioContent: []byte{1, 2, 3}}
	data, err := in.MarshalWire()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out AudioStream
	if err := out.UnmarshalWire(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Config != nil {
		t.Error("audio frame should not carry config")
	}
	if !bytes.Equal(out.AudioContent, []byte{1, 2, 3}) {
		t.Errorf("unexpected audio %v", out.AudioContent)
	}
}

func TestAudioStream_BothPayloadsRejected(t *testing.T) {
	in := &AudioStream{Config: &AudioConfig{SampleRateHertz: 1}, AudioContent: []byte{1}}
	if _, err := in.MarshalWire(); err == nil {
		t.Error("expected error when both oneof members are set")
	}
}

func TestStreamResult_OptionalFields(t *testing.T) {
	label := "neutral"
	in := &StreamResult{
		Cid:       1,
		Pid:       99,
		MessageId: 3,
		Result: []*InferenceResult{
			{
				Id:         "0",
				StartTime:  "0.00",
				EndTime:    "2.50",
				Task:       "emotion",
				Prediction: []*Prediction{{Label: "neutral", Posterior: "0.81"}, {Label: "happy", Posterior: "0.10"}},
				FinalLabel: &label,
				Level:      LevelUtterance,
			},
			{Id: "1", StartTime: "2.5", EndTime: "3", Task: "gender"},
		},
	}

	data, err := in.MarshalWire()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out StreamResult
	if err := out.UnmarshalWire(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if out.Pid != 99 || out.MessageId != 3 || len(out.Result) != 2 {
		t.Fatalf("unexpected frame %+v", out)
	}
	first := out.Result[0]
	if first.FinalLabel == nil || *first.FinalLabel != "neutral" {
		t.Errorf("final label lost: %v", first.FinalLabel)
	}
	if len(first.Prediction) != 2 || first.Prediction[1].Posterior != "0.10" {
		t.Errorf("predictions lost: %+v", first.Prediction)
	}
	if first.Embedding != nil {
		t.Error("embedding should stay absent")
	}
	second := out.Result[1]
	if second.FinalLabel != nil || len(second.Prediction) != 0 || second.Level != LevelSegment {
		t.Errorf("unexpected second result %+v", second)
	}
}

func TestStreamResult_SkipsUnknownFields(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, 5)
	b = protowire.AppendTag(b, 50, protowire.BytesType)
	b = protowire.AppendString(b, "future field")

	var out StreamResult
	if err := out.UnmarshalWire(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Pid != 5 {
		t.Errorf("expected pid 5, got %d", out.Pid)
	}
}

func TestStreamResult_Truncated(t *testing.T) {
	data, _ := (&StreamResult{Pid: 300}).MarshalWire()
	var out StreamResult
	if err := out.UnmarshalWire(data[:len(data)-1]); err == nil {
		t.Error("expected error on truncated input")
	}
}

func TestCodec_RejectsForeignTypes(t *testing.T) {
	if _, err := (Codec{}).Marshal("not a message"); err == nil {
		t.Error("expected marshal error")
	}
	var s string
	if err := (Codec{}).Unmarshal(nil, &s); err == nil {
		t.Error("expected unmarshal error")
	}
	if (Codec{}).Name() != "proto" {
		t.Error("codec must use the proto content subtype")
	}
}
