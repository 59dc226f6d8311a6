package grpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/goclaw/dayloop/pkg/eventbus"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ActorClient calls the actor service.
type ActorClient struct {
	cc grpc.ClientConnInterface
}

// NewActorClient wraps a client connection.
func NewActorClient(cc grpc.ClientConnInterface) *ActorClient {
	return &ActorClient{cc: cc}
}

// ListActors returns the registered actors as decoded JSON.
func (c *ActorClient) ListActors(ctx context.Context, opts ...grpc.CallOption) (map[string]any, error) {
	out := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, fullMethod("ListActors"), &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// Call invokes a unary method taking a Struct request, such as "GetPlan"
// or "SubmitAction", and decodes the response into out when it is non-nil.
func (c *ActorClient) Call(ctx context.Context, method string, req map[string]any, out any, opts ...grpc.CallOption) error {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, fullMethod(method), in, resp, opts...); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return fromStruct(resp, out)
}

// EventStream is an open WatchEvents call.
type EventStream struct {
	stream grpc.ClientStream
}

// WatchEvents opens an event stream for actor, or for every actor when actor
// is empty. It returns once the server has subscribed.
func (c *ActorClient) WatchEvents(ctx context.Context, actor string, opts ...grpc.CallOption) (*EventStream, error) {
	stream, err := c.cc.NewStream(ctx, &ActorServiceDesc.Streams[0], fullMethod("WatchEvents"), opts...)
	if err != nil {
		return nil, err
	}
	req, err := structpb.NewStruct(map[string]any{"actor": actor})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	if _, err := stream.Header(); err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}

// Recv blocks for the next event.
func (s *EventStream) Recv() (eventbus.Envelope, error) {
	msg := &structpb.Struct{}
	if err := s.stream.RecvMsg(msg); err != nil {
		return eventbus.Envelope{}, err
	}
	var env eventbus.Envelope
	if err := fromStruct(msg, &env); err != nil {
		return eventbus.Envelope{}, err
	}
	return env, nil
}

func fromStruct(in *structpb.Struct, out any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func fullMethod(name string) string {
	return "/" + ActorServiceName + "/" + name
}
