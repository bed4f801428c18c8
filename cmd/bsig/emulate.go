package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"behavioralsignals-sdk-go/internal/app"
	"behavioralsignals-sdk-go/internal/emulator"
	pb "behavioralsignals-sdk-go/proto"
)

func emulateCmd(g *globalFlags) *cobra.Command {
	var (
		grpcAddr       string
		httpAddr       string
		clientID       string
		apiKey         string
		segmentSeconds float64
		maxBytes       int64
	)

	cmd := &cobra.Command{
		Use:   "emulate",
		Short: "Run a local streaming API emulator with canned results",
		Long: `Run a local stand-in for the streaming API. It accepts the configured
credentials, serves GET /auth over HTTP and both streaming RPCs over gRPC
without TLS, and answers with canned predictions.

Point the other commands at it with:
  BSIG_API_URL=http://localhost:8080 BSIG_STREAMING_URL=localhost:50051 BSIG_USE_TLS=false`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app.New(g.config())
			if clientID == "" {
				clientID = a.Cfg.Credentials.ClientID
			}
			if apiKey == "" {
				apiKey = a.Cfg.Credentials.APIKey
			}
			cid, err := strconv.ParseInt(clientID, 10, 32)
			if err != nil || apiKey == "" {
				return fmt.Errorf("emulator needs a numeric client id and an api key (flags or USER_ID/API_KEY)")
			}

			limits := emulator.DefaultLimits()
			if maxBytes > 0 {
				limits.MaxAudioBytes = maxBytes
			}
			emu := emulator.New(emulator.Config{
				ClientID:       int32(cid),
				APIKey:         apiKey,
				SegmentSeconds: segmentSeconds,
				Limits:         limits,
			}, a.Logger)

			return serveEmulator(cmd.Context(), a, emu, grpcAddr, httpAddr)
		},
	}

	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", ":50051", "streaming listen address")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "auth endpoint listen address")
	cmd.Flags().StringVar(&clientID, "client-id", "", "accepted client id (default USER_ID)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "accepted api key (default API_KEY)")
	cmd.Flags().Float64Var(&segmentSeconds, "segment-seconds", 2, "audio covered by each segment result")
	cmd.Flags().Int64Var(&maxBytes, "max-bytes", 0, "per-stream audio limit (default 50MiB)")

	return cmd
}

// serveEmulator runs both listeners until ctx is done.
func serveEmulator(ctx context.Context, a *app.Application, emu *emulator.Server, grpcAddr, httpAddr string) error {
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", grpcAddr, err)
	}

	server := grpc.NewServer(pb.ServerCodec())

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(pb.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	emulator.Register(server, emu)

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           emu.AuthHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		a.Logger.Info().Str("addr", lis.Addr().String()).Msg("Streaming emulator started")
		errCh <- server.Serve(lis)
	}()
	go func() {
		a.Logger.Info().Str("addr", httpAddr).Msg("Auth endpoint started")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	a.Logger.Info().Msg("Shutting down emulator")
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	server.GracefulStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpServer.Shutdown(shutdownCtx)
	return err
}
