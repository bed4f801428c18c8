// Package observability provides gRPC interceptors for metrics and logging.
package observability

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"behavioralsignals-sdk-go/internal/observability/metrics"
	pb "behavioralsignals-sdk-go/proto"
)

// StreamClientInterceptor returns a gRPC client stream interceptor that
// records stream lifecycle and frame metrics and logs each stream's end.
// Callers must cancel the stream context once they are done with it.
func StreamClientInterceptor(m *metrics.Metrics, logger zerolog.Logger) grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		start := time.Now()
		m.RecordStreamStart()

		cs, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			m.RecordStreamEnd(false, time.Since(start).Seconds())
			st, _ := status.FromError(err)
			logger.Warn().
				Str("method", method).
				Str("code", st.Code().String()).
				Msg("gRPC stream open failed")
			return nil, err
		}

		observed := &observedStream{
			ClientStream: cs,
			metrics:      m,
			logger:       logger,
			method:       method,
			start:        start,
		}
		// A stream abandoned by its caller never sees RecvMsg fail, so
		// its end is taken from the context instead.
		go func() {
			<-ctx.Done()
			observed.finish(ctx.Err())
		}()
		return observed, nil
	}
}

type observedStream struct {
	grpc.ClientStream
	metrics *metrics.Metrics
	logger  zerolog.Logger
	method  string
	start   time.Time

	once     sync.Once
	mu       sync.Mutex
	sent     int
	received int
}

func (s *observedStream) SendMsg(m any) error {
	err := s.ClientStream.SendMsg(m)
	if err != nil {
		return err
	}
	if frame, ok := m.(*pb.AudioStream); ok {
		if frame.GetConfig() != nil {
			s.metrics.RecordFrameSent("config", 0)
		} else {
			s.metrics.RecordFrameSent("audio", len(frame.GetAudioContent()))
		}
	}
	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
	return nil
}

func (s *observedStream) RecvMsg(m any) error {
	err := s.ClientStream.RecvMsg(m)
	if err != nil {
		s.finish(err)
		return err
	}
	if frame, ok := m.(*pb.StreamResult); ok {
		s.metrics.RecordResultFrame(len(frame.Result))
	}
	s.mu.Lock()
	s.received++
	s.mu.Unlock()
	return nil
}

func (s *observedStream) finish(err error) {
	s.once.Do(func() {
		duration := time.Since(s.start)
		success := errors.Is(err, io.EOF)
		s.metrics.RecordStreamEnd(success, duration.Seconds())

		code := "OK"
		if !success {
			code = status.Code(err).String()
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				code = status.FromContextError(err).Code().String()
			}
		}

		s.mu.Lock()
		sent, received := s.sent, s.received
		s.mu.Unlock()

		s.logger.Info().
			Str("method", s.method).
			Str("code", code).
			Dur("duration", duration).
			Int("framesSent", sent).
			Int("framesReceived", received).
			Bool("success", success).
			Msg("gRPC stream completed")
	})
}
