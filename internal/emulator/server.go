// Package emulator is a local stand-in for the streaming API. It speaks
// the same wire protocol and returns canned predictions, for trying the
// CLI and SDK without service credentials.
package emulator

import (
	"errors"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"behavioralsignals-sdk-go/internal/streamphase"
	pb "behavioralsignals-sdk-go/proto"
)

// Limits bound a single stream.
type Limits struct {
	MaxAudioBytes int64
	MaxDuration   time.Duration
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxAudioBytes: 50 * 1024 * 1024, // ~27 minutes at 16kHz 16-bit mono
		MaxDuration:   30 * time.Minute,
	}
}

// Config configures the emulator.
type Config struct {
	// ClientID and APIKey are the only credentials accepted.
	ClientID int32
	APIKey   string
	// SegmentSeconds is the audio length covered by each segment result.
	SegmentSeconds float64
	Limits         Limits
}

// Server implements the streaming service.
type Server struct {
	pb.UnimplementedBehavioralStreamingApiServer

	cfg    Config
	logger zerolog.Logger
	pids   atomic.Int32
}

// New creates an emulator. SegmentSeconds defaults to 2.
func New(cfg Config, logger zerolog.Logger) *Server {
	if cfg.SegmentSeconds <= 0 {
		cfg.SegmentSeconds = 2
	}
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}
	return &Server{cfg: cfg, logger: logger.With().Str("component", "emulator").Logger()}
}

// Register adds the emulator to g.
func Register(g *grpc.Server, s *Server) {
	pb.RegisterBehavioralStreamingApiServer(g, s)
}

func (s *Server) StreamAudio(stream pb.BehavioralStreamingApi_StreamAudioServer) error {
	return s.serve(stream, BehavioralTasks)
}

func (s *Server) DeepfakeDetection(stream pb.BehavioralStreamingApi_StreamAudioServer) error {
	return s.serve(stream, DeepfakeTasks)
}

func (s *Server) authorize(frame *pb.AudioStream) error {
	if frame.Cid != s.cfg.ClientID || frame.XAuthToken != s.cfg.APIKey {
		return status.Error(codes.Unauthenticated, "invalid credentials")
	}
	return nil
}

func (s *Server) serve(stream pb.BehavioralStreamingApi_StreamAudioServer, tasks []Task) error {
	id := uuid.NewString()
	lifecycle := streamphase.NewLifecycle(id)
	logger := s.logger.With().Str("streamId", id).Logger()

	first, err := stream.Recv()
	if err != nil {
		return err
	}
	if err := s.authorize(first); err != nil {
		logger.Warn().Int32("cid", first.Cid).Msg("Rejected handshake")
		return err
	}
	cfg := first.GetConfig()
	if cfg == nil {
		return status.Error(codes.InvalidArgument, streamphase.ErrAudioBeforeHandshake.Error())
	}
	if err := lifecycle.SendHandshake(); err != nil {
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	if cfg.SampleRateHertz <= 0 {
		return status.Error(codes.InvalidArgument, "sample_rate_hertz must be positive")
	}

	seg := newSegmenter(tasks, int(cfg.SampleRateHertz), s.cfg.SegmentSeconds, cfg.Level)
	pid := s.pids.Add(1)
	started := time.Now()
	var messageID int32
	var total int64

	send := func(results []*pb.InferenceResult) error {
		if len(results) == 0 {
			return nil
		}
		messageID++
		return stream.Send(&pb.StreamResult{
			Cid:       s.cfg.ClientID,
			Pid:       pid,
			MessageId: messageID,
			Result:    results,
		})
	}

	logger.Info().
		Int32("pid", pid).
		Int32("sampleRate", cfg.SampleRateHertz).
		Msg("Stream started")

	for {
		frame, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			lifecycle.Close()
			if err := send(seg.flush()); err != nil {
				return err
			}
			logger.Info().
				Int32("pid", pid).
				Int("frames", lifecycle.Frames()).
				Int64("bytes", total).
				Msg("Stream completed")
			return nil
		}
		if err != nil {
			lifecycle.Abort()
			return err
		}
		if err := s.authorize(frame); err != nil {
			lifecycle.Abort()
			return status.Error(codes.PermissionDenied, "credentials changed mid-stream")
		}
		if frame.GetConfig() != nil {
			lifecycle.Abort()
			return status.Error(codes.FailedPrecondition, streamphase.ErrHandshakeAlreadySent.Error())
		}
		if err := lifecycle.SendAudio(); err != nil {
			return status.Error(codes.FailedPrecondition, err.Error())
		}

		total += int64(len(frame.AudioContent))
		if total > s.cfg.Limits.MaxAudioBytes || time.Since(started) > s.cfg.Limits.MaxDuration {
			lifecycle.Abort()
			logger.Warn().Int64("bytes", total).Msg("Stream limit exceeded")
			return status.Error(codes.ResourceExhausted, "stream limit exceeded after "+strconv.FormatInt(total, 10)+" bytes")
		}
		if err := send(seg.add(len(frame.AudioContent))); err != nil {
			return err
		}
	}
}
