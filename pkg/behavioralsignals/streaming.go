package behavioralsignals

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"behavioralsignals-sdk-go/internal/observability/logging"
	"behavioralsignals-sdk-go/internal/streamphase"
	pb "behavioralsignals-sdk-go/proto"
)

// StreamResult is one server message: the results ready at that point of
// the stream.
type StreamResult struct {
	ClientID  int64        `json:"cid"`
	ProcessID int64        `json:"pid"`
	MessageID int64        `json:"messageId"`
	Results   []ResultItem `json:"results"`
}

// Stream is an open streaming session. Audio is sent in the background
// from the source given to API.Stream; results are read with Recv or
// Results. Close must be called to release the stream.
type Stream struct {
	id        string
	client    pb.BehavioralStreamingApi_StreamAudioClient
	cancel    context.CancelFunc
	lifecycle *streamphase.Lifecycle
	logger    zerolog.Logger

	sendDone chan struct{}

	mu      sync.Mutex
	sendErr error
	recvErr error

	closeOnce sync.Once
}

// Stream opens a bidirectional session, sends the handshake and then one
// frame per chunk yielded by chunks. Credentials are carried on every
// frame. A chunk error half-closes the stream; results already produced
// are still delivered, then Recv returns a SourceError.
func (a *API) Stream(ctx context.Context, chunks iter.Seq2[[]byte, error], opts StreamingOptions) (*Stream, error) {
	if chunks == nil {
		return nil, &ValidationError{Field: "audio source", Reason: "is nil"}
	}
	if !opts.valid() {
		return nil, &ValidationError{Field: "streaming options", Reason: "use NewStreamingOptions or DefaultStreamingOptions"}
	}
	cid, err := strconv.ParseInt(a.client.session.ClientID, 10, 32)
	if err != nil {
		return nil, &ValidationError{Field: "client id", Reason: "streaming requires a numeric client id", Err: err}
	}

	id := uuid.NewString()
	logger := logging.WithStream(a.client.logger, a.name, id, opts.SampleRate())

	streamCtx, cancel := context.WithCancel(ctx)
	client, err := a.open(streamCtx)
	if err != nil {
		cancel()
		return nil, streamError(err)
	}

	s := &Stream{
		id:        id,
		client:    client,
		cancel:    cancel,
		lifecycle: streamphase.NewLifecycle(id),
		logger:    logger,
		sendDone:  make(chan struct{}),
	}
	go s.sendLoop(int32(cid), a.client.session.APIKey, chunks, opts)

	logger.Info().Str("level", string(opts.Level())).Msg("Stream opened")
	return s, nil
}

// ID identifies the stream in logs.
func (s *Stream) ID() string {
	return s.id
}

func (s *Stream) sendLoop(cid int32, token string, chunks iter.Seq2[[]byte, error], opts StreamingOptions) {
	defer close(s.sendDone)

	if err := s.writeHandshake(&pb.AudioStream{Cid: cid, XAuthToken: token, Config: opts.audioConfig()}); err != nil {
		s.stopSending(err)
		return
	}

	for chunk, err := range chunks {
		if err != nil {
			s.stopSending(&SourceError{Err: err})
			return
		}
		if chunk == nil {
			chunk = []byte{}
		}
		if err := s.writeAudio(&pb.AudioStream{Cid: cid, XAuthToken: token, AudioContent: chunk}); err != nil {
			s.stopSending(err)
			return
		}
	}

	s.lifecycle.Close()
	if err := s.client.CloseSend(); err != nil {
		s.logger.Debug().Err(err).Msg("CloseSend failed")
	}
	s.logger.Debug().Int("frames", s.lifecycle.Frames()).Msg("Audio source exhausted")
}

func (s *Stream) writeHandshake(frame *pb.AudioStream) error {
	if err := s.lifecycle.SendHandshake(); err != nil {
		return err
	}
	return s.client.Send(frame)
}

func (s *Stream) writeAudio(frame *pb.AudioStream) error {
	if err := s.lifecycle.SendAudio(); err != nil {
		return err
	}
	return s.client.Send(frame)
}

// stopSending ends the send side after a failure. Send errors are not
// kept: the real status of the stream arrives through Recv.
func (s *Stream) stopSending(err error) {
	s.lifecycle.Abort()
	var srcErr *SourceError
	if errors.As(err, &srcErr) {
		s.mu.Lock()
		s.sendErr = err
		s.mu.Unlock()
		s.logger.Warn().Err(srcErr.Err).Msg("Audio source failed, half-closing stream")
	} else if !errors.Is(err, io.EOF) {
		s.logger.Debug().Err(err).Msg("Send failed")
	}
	if cerr := s.client.CloseSend(); cerr != nil {
		s.logger.Debug().Err(cerr).Msg("CloseSend failed")
	}
}

// Recv returns the next result. It returns io.EOF when the server ends
// the stream normally. After any error every later call returns the same
// error.
func (s *Stream) Recv() (*StreamResult, error) {
	s.mu.Lock()
	if s.recvErr != nil {
		err := s.recvErr
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	msg, err := s.client.Recv()
	if err != nil {
		return nil, s.finish(err)
	}
	res, err := streamResultFromWire(msg)
	if err != nil {
		return nil, s.finish(err)
	}
	return res, nil
}

func (s *Stream) finish(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recvErr != nil {
		return s.recvErr
	}

	switch {
	case errors.Is(err, io.EOF):
		err = io.EOF
		if s.sendErr != nil {
			err = s.sendErr
		}
	default:
		var de *DecodingError
		if !errors.As(err, &de) {
			err = streamError(err)
		}
	}
	s.recvErr = err
	s.cancel()

	if errors.Is(err, io.EOF) {
		s.logger.Info().Msg("Stream completed")
	} else {
		s.logger.Warn().Err(err).Msg("Stream ended with error")
	}
	return err
}

// Results iterates over results until the stream ends. A normal end
// stops the sequence; any other end yields one final error.
func (s *Stream) Results() iter.Seq2[*StreamResult, error] {
	return func(yield func(*StreamResult, error) bool) {
		for {
			res, err := s.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(res, nil) {
				return
			}
		}
	}
}

// Close cancels the stream if still running and waits for the sender to
// stop. It is safe to call more than once. Sources that block forever
// will block Close.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.sendDone

		s.mu.Lock()
		if s.recvErr == nil {
			s.recvErr = context.Canceled
			s.logger.Info().Msg("Stream closed by caller")
		}
		s.mu.Unlock()
	})
	return nil
}

// streamError maps a gRPC failure onto the SDK's error types.
func streamError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return &TransportError{Op: "stream", Err: err}
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return &AuthenticationError{Message: st.Message(), Err: err}
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	case codes.InvalidArgument:
		return &APIError{Code: int(st.Code()), Message: st.Message()}
	default:
		return &TransportError{Op: "stream", Err: err}
	}
}

func streamResultFromWire(msg *pb.StreamResult) (*StreamResult, error) {
	out := &StreamResult{
		ClientID:  int64(msg.Cid),
		ProcessID: int64(msg.Pid),
		MessageID: int64(msg.MessageId),
		Results:   make([]ResultItem, 0, len(msg.Result)),
	}
	for i, r := range msg.Result {
		if r == nil {
			continue
		}
		field := func(name string) string { return fmt.Sprintf("result[%d].%s", i, name) }
		start, err := parseSeconds(r.StartTime)
		if err != nil {
			return nil, &DecodingError{Target: "stream result", Field: field("start_time"), Err: err}
		}
		end, err := parseSeconds(r.EndTime)
		if err != nil {
			return nil, &DecodingError{Target: "stream result", Field: field("end_time"), Err: err}
		}
		level, err := levelFromWire(r.Level)
		if err != nil {
			return nil, &DecodingError{Target: "stream result", Field: field("level"), Err: err}
		}
		item := ResultItem{
			ID:         r.Id,
			StartTime:  start,
			EndTime:    end,
			Task:       r.Task,
			FinalLabel: r.FinalLabel,
			Level:      level,
			Embedding:  r.Embedding,
		}
		for j, p := range r.Prediction {
			if p == nil {
				continue
			}
			pred := Prediction{Label: p.Label}
			if p.Posterior != "" {
				score, err := parseSeconds(p.Posterior)
				if err != nil {
					return nil, &DecodingError{Target: "stream result", Field: field(fmt.Sprintf("prediction[%d].posterior", j)), Err: err}
				}
				pred.Posterior = &score
			}
			item.Predictions = append(item.Predictions, pred)
		}
		out.Results = append(out.Results, item)
	}
	return out, nil
}
