package behavioralsignals

import (
	"context"
	"errors"
	"io"
	"iter"
	"strconv"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"behavioralsignals-sdk-go/internal/streamphase"
	pb "behavioralsignals-sdk-go/proto"
)

// echoServer answers every audio frame with one segment result and
// records what it received. A non-nil reject ends every stream with that
// error before reading.
type echoServer struct {
	pb.UnimplementedBehavioralStreamingApiServer

	mu      sync.Mutex
	frames  []*pb.AudioStream
	methods []string
	reject  error
}

func (s *echoServer) StreamAudio(stream pb.BehavioralStreamingApi_StreamAudioServer) error {
	return s.serve("StreamAudio", stream)
}

func (s *echoServer) DeepfakeDetection(stream pb.BehavioralStreamingApi_StreamAudioServer) error {
	return s.serve("DeepfakeDetection", stream)
}

func (s *echoServer) serve(method string, stream pb.BehavioralStreamingApi_StreamAudioServer) error {
	s.mu.Lock()
	s.methods = append(s.methods, method)
	s.mu.Unlock()
	if s.reject != nil {
		return s.reject
	}

	var n int32
	for {
		frame, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.frames = append(s.frames, frame)
		s.mu.Unlock()

		if frame.GetConfig() != nil {
			continue
		}
		n++
		label := "neutral"
		err = stream.Send(&pb.StreamResult{
			Cid:       frame.Cid,
			Pid:       42,
			MessageId: n,
			Result: []*pb.InferenceResult{{
				Id:         strconv.Itoa(int(n)),
				StartTime:  strconv.Itoa(int(n - 1)),
				EndTime:    strconv.Itoa(int(n)),
				Task:       "emotion",
				Prediction: []*pb.Prediction{{Label: "neutral", Posterior: "0.9"}},
				FinalLabel: &label,
				Level:      pb.LevelSegment,
			}},
		})
		if err != nil {
			return err
		}
	}
}

func (s *echoServer) received() []*pb.AudioStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*pb.AudioStream(nil), s.frames...)
}

func collect(t *testing.T, s *Stream) ([]*StreamResult, error) {
	t.Helper()
	var out []*StreamResult
	for res, err := range s.Results() {
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

func TestStream_HandshakeThenAudio(t *testing.T) {
	srv := &echoServer{}
	c := newStreamingClient(t, srv, testClientID)

	chunks := [][]byte{[]byte("aaaa"), []byte("bbbb"), []byte("cc")}
	stream, err := c.Behavioral.Stream(context.Background(), SliceChunks(chunks...), DefaultStreamingOptions())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	results, err := collect(t, stream)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, res := range results {
		if res.MessageID != int64(i+1) || res.ProcessID != 42 || res.ClientID != 123 {
			t.Errorf("result %d: unexpected header %+v", i, res)
		}
		item := res.Results[0]
		if item.Level != LevelSegment || item.Duration() != 1 || item.Predictions[0].Score() != 0.9 {
			t.Errorf("result %d: unexpected item %+v", i, item)
		}
	}

	frames := srv.received()
	if len(frames) != 4 {
		t.Fatalf("expected handshake plus 3 audio frames, got %d", len(frames))
	}
	cfg := frames[0].GetConfig()
	if cfg == nil || cfg.SampleRateHertz != 16000 || cfg.Level == nil || *cfg.Level != pb.LevelSegment {
		t.Errorf("expected segment handshake at 16 kHz, got %+v", frames[0])
	}
	for i, f := range frames {
		if f.Cid != 123 || f.XAuthToken != testAPIKey {
			t.Errorf("frame %d: expected credentials, got cid=%d token=%q", i, f.Cid, f.XAuthToken)
		}
		if i > 0 && string(f.GetAudioContent()) != string(chunks[i-1]) {
			t.Errorf("frame %d: audio out of order", i)
		}
	}

	if _, err := stream.Recv(); !errors.Is(err, io.EOF) {
		t.Errorf("expected sticky io.EOF, got %v", err)
	}
}

func TestStream_LevelAllOmitsLevel(t *testing.T) {
	srv := &echoServer{}
	c := newStreamingClient(t, srv, testClientID)

	opts, _ := NewStreamingOptions(8000, LevelAll)
	stream, err := c.Behavioral.Stream(context.Background(), SliceChunks(), opts)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	if results, err := collect(t, stream); err != nil || len(results) != 0 {
		t.Fatalf("expected clean empty stream, got %d results, %v", len(results), err)
	}
	frames := srv.received()
	if len(frames) != 1 {
		t.Fatalf("expected only the handshake, got %d frames", len(frames))
	}
	if cfg := frames[0].GetConfig(); cfg.Level != nil || cfg.SampleRateHertz != 8000 {
		t.Errorf("unexpected handshake %+v", cfg)
	}
}

func TestStream_SourceErrorKeepsPartialResults(t *testing.T) {
	srv := &echoServer{}
	c := newStreamingClient(t, srv, testClientID)

	boom := errors.New("microphone unplugged")
	source := func(yield func([]byte, error) bool) {
		if !yield([]byte("one"), nil) || !yield([]byte("two"), nil) {
			return
		}
		yield(nil, boom)
	}

	stream, err := c.Behavioral.Stream(context.Background(), source, DefaultStreamingOptions())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	results, err := collect(t, stream)
	if len(results) != 2 {
		t.Errorf("expected results for the 2 chunks sent, got %d", len(results))
	}
	var srcErr *SourceError
	if !errors.As(err, &srcErr) || !errors.Is(err, boom) {
		t.Errorf("expected SourceError wrapping %v, got %v", boom, err)
	}
}

func TestStream_Unauthenticated(t *testing.T) {
	srv := &echoServer{reject: status.Error(codes.Unauthenticated, "bad token")}
	c := newStreamingClient(t, srv, testClientID)

	stream, err := c.Behavioral.Stream(context.Background(), SliceChunks([]byte("x")), DefaultStreamingOptions())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	results, err := collect(t, stream)
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
	if !IsAuthenticationError(err) {
		t.Errorf("expected AuthenticationError, got %v", err)
	}
}

func TestStream_ServerFailure(t *testing.T) {
	srv := &echoServer{reject: status.Error(codes.Internal, "model crashed")}
	c := newStreamingClient(t, srv, testClientID)

	stream, err := c.Behavioral.Stream(context.Background(), SliceChunks([]byte("x")), DefaultStreamingOptions())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	_, err = stream.Recv()
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if status.Code(te.Err) != codes.Internal {
		t.Errorf("expected Internal status preserved, got %v", te.Err)
	}
}

func TestStream_NonNumericClientID(t *testing.T) {
	srv := &echoServer{}
	c := newStreamingClient(t, srv, "acme-corp")

	_, err := c.Behavioral.Stream(context.Background(), SliceChunks(), DefaultStreamingOptions())
	if !IsValidationError(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(srv.received()) != 0 {
		t.Error("expected nothing sent")
	}
}

func TestStream_InvalidOptions(t *testing.T) {
	c := newStreamingClient(t, &echoServer{}, testClientID)

	if _, err := c.Behavioral.Stream(context.Background(), SliceChunks(), StreamingOptions{}); !IsValidationError(err) {
		t.Errorf("expected ValidationError for zero options, got %v", err)
	}
	if _, err := c.Behavioral.Stream(context.Background(), nil, DefaultStreamingOptions()); !IsValidationError(err) {
		t.Errorf("expected ValidationError for nil source, got %v", err)
	}
}

func TestStream_DeepfakesMethod(t *testing.T) {
	srv := &echoServer{}
	c := newStreamingClient(t, srv, testClientID)

	stream, err := c.Deepfakes.Stream(context.Background(), SliceChunks([]byte("x")), DefaultStreamingOptions())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()
	if _, err := collect(t, stream); err != nil {
		t.Fatalf("results: %v", err)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.methods) != 1 || srv.methods[0] != "DeepfakeDetection" {
		t.Errorf("expected DeepfakeDetection, got %v", srv.methods)
	}
}

func TestStream_CloseReleasesBlockedSource(t *testing.T) {
	srv := &echoServer{}
	c := newStreamingClient(t, srv, testClientID)

	// An endless source: Close must stop it through failed sends.
	var source iter.Seq2[[]byte, error] = func(yield func([]byte, error) bool) {
		for {
			if !yield(make([]byte, 320), nil) {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}

	stream, err := c.Behavioral.Stream(context.Background(), source, DefaultStreamingOptions())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if _, err := stream.Recv(); err != nil {
		t.Fatalf("first Recv: %v", err)
	}

	done := make(chan struct{})
	go func() {
		stream.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	if _, err := stream.Recv(); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled after Close, got %v", err)
	}
	if stream.Close() != nil {
		t.Error("expected second Close to be a no-op")
	}
}

func TestStream_AudioBeforeHandshakeRejected(t *testing.T) {
	s := &Stream{lifecycle: streamphase.NewLifecycle("s1")}
	err := s.writeAudio(&pb.AudioStream{AudioContent: []byte("x")})
	if !errors.Is(err, streamphase.ErrAudioBeforeHandshake) {
		t.Errorf("expected ErrAudioBeforeHandshake, got %v", err)
	}
}

func TestStreamResultFromWire_BadTime(t *testing.T) {
	_, err := streamResultFromWire(&pb.StreamResult{Result: []*pb.InferenceResult{{StartTime: "soon", EndTime: "1"}}})
	var de *DecodingError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodingError, got %v", err)
	}
	if de.Field != "result[0].start_time" {
		t.Errorf("unexpected field %q", de.Field)
	}
}

func TestStreamResultFromWire_UnknownLevel(t *testing.T) {
	_, err := streamResultFromWire(&pb.StreamResult{Result: []*pb.InferenceResult{{StartTime: "0", EndTime: "1", Level: pb.Level(7)}}})
	var de *DecodingError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodingError, got %v", err)
	}
	if de.Field != "result[0].level" {
		t.Errorf("unexpected field %q", de.Field)
	}
}
