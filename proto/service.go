package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "behavioral_api.grpc.v1.BehavioralStreamingApi"

const (
	BehavioralStreamingApi_StreamAudio_FullMethodName       = "/" + ServiceName + "/StreamAudio"
	BehavioralStreamingApi_DeepfakeDetection_FullMethodName = "/" + ServiceName + "/DeepfakeDetection"
)

type (
	// BehavioralStreamingApi_StreamAudioClient is the client side of either RPC.
	BehavioralStreamingApi_StreamAudioClient = grpc.BidiStreamingClient[AudioStream, StreamResult]
	// BehavioralStreamingApi_StreamAudioServer is the server side of either RPC.
	BehavioralStreamingApi_StreamAudioServer = grpc.BidiStreamingServer[AudioStream, StreamResult]
)

// BehavioralStreamingApiClient is the client API for the streaming service.
type BehavioralStreamingApiClient interface {
	StreamAudio(ctx context.Context, opts ...grpc.CallOption) (BehavioralStreamingApi_StreamAudioClient, error)
	DeepfakeDetection(ctx context.Context, opts ...grpc.CallOption) (BehavioralStreamingApi_StreamAudioClient, error)
}

type behavioralStreamingApiClient struct {
	cc grpc.ClientConnInterface
}

// NewBehavioralStreamingApiClient wraps a connection.
func NewBehavioralStreamingApiClient(cc grpc.ClientConnInterface) BehavioralStreamingApiClient {
	return &behavioralStreamingApiClient{cc: cc}
}

func (c *behavioralStreamingApiClient) StreamAudio(ctx context.Context, opts ...grpc.CallOption) (BehavioralStreamingApi_StreamAudioClient, error) {
	return c.open(ctx, 0, BehavioralStreamingApi_StreamAudio_FullMethodName, opts)
}

func (c *behavioralStreamingApiClient) DeepfakeDetection(ctx context.Context, opts ...grpc.CallOption) (BehavioralStreamingApi_StreamAudioClient, error) {
	return c.open(ctx, 1, BehavioralStreamingApi_DeepfakeDetection_FullMethodName, opts)
}

func (c *behavioralStreamingApiClient) open(ctx context.Context, idx int, method string, opts []grpc.CallOption) (BehavioralStreamingApi_StreamAudioClient, error) {
	cOpts := append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	stream, err := c.cc.NewStream(ctx, &BehavioralStreamingApi_ServiceDesc.Streams[idx], method, cOpts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[AudioStream, StreamResult]{ClientStream: stream}, nil
}

// BehavioralStreamingApiServer is the server API for the streaming service.
type BehavioralStreamingApiServer interface {
	StreamAudio(BehavioralStreamingApi_StreamAudioServer) error
	DeepfakeDetection(BehavioralStreamingApi_StreamAudioServer) error
}

// UnimplementedBehavioralStreamingApiServer can be embedded to satisfy
// BehavioralStreamingApiServer.
type UnimplementedBehavioralStreamingApiServer struct{}

func (UnimplementedBehavioralStreamingApiServer) StreamAudio(BehavioralStreamingApi_StreamAudioServer) error {
	return status.Error(codes.Unimplemented, "method StreamAudio not implemented")
}

func (UnimplementedBehavioralStreamingApiServer) DeepfakeDetection(BehavioralStreamingApi_StreamAudioServer) error {
	return status.Error(codes.Unimplemented, "method DeepfakeDetection not implemented")
}

// RegisterBehavioralStreamingApiServer registers srv on s. The server must
// be created with ServerCodec().
func RegisterBehavioralStreamingApiServer(s grpc.ServiceRegistrar, srv BehavioralStreamingApiServer) {
	s.RegisterService(&BehavioralStreamingApi_ServiceDesc, srv)
}

func streamAudioHandler(srv any, stream grpc.ServerStream) error {
	return srv.(BehavioralStreamingApiServer).StreamAudio(&grpc.GenericServerStream[AudioStream, StreamResult]{ServerStream: stream})
}

func deepfakeDetectionHandler(srv any, stream grpc.ServerStream) error {
	return srv.(BehavioralStreamingApiServer).DeepfakeDetection(&grpc.GenericServerStream[AudioStream, StreamResult]{ServerStream: stream})
}

// BehavioralStreamingApi_ServiceDesc describes the service for grpc.
var BehavioralStreamingApi_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BehavioralStreamingApiServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamAudio",
			Handler:       streamAudioHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
		{
			StreamName:    "DeepfakeDetection",
			Handler:       deepfakeDetectionHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "behavioral_streaming.proto",
}
