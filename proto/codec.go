package proto

import (
	"fmt"

	"google.golang.org/grpc"
	gproto "google.golang.org/protobuf/proto"
)

// WireMessage is implemented by every message in this package.
type WireMessage interface {
	MarshalWire() ([]byte, error)
	UnmarshalWire([]byte) error
}

// Codec is a gRPC codec for WireMessage values. It registers under the
// "proto" name so requests carry the standard application/grpc+proto
// content type. Generated protobuf messages, such as those of the health
// service sharing a server, are passed to the protobuf runtime.
type Codec struct{}

// Marshal encodes v, which must be a WireMessage or a protobuf message.
func (Codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case WireMessage:
		return m.MarshalWire()
	case gproto.Message:
		return gproto.Marshal(m)
	}
	return nil, fmt.Errorf("proto codec: cannot marshal %T", v)
}

// Unmarshal decodes data into v, which must be a WireMessage or a
// protobuf message.
func (Codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case WireMessage:
		return m.UnmarshalWire(data)
	case gproto.Message:
		return gproto.Unmarshal(data, m)
	}
	return fmt.Errorf("proto codec: cannot unmarshal into %T", v)
}

// Name returns the content subtype.
func (Codec) Name() string {
	return "proto"
}

// ServerCodec returns the server option a BehavioralStreamingApi server
// needs to decode these messages.
func ServerCodec() grpc.ServerOption {
	return grpc.ForceServerCodec(Codec{})
}
