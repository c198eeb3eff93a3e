package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/dmitrijs2005/docbroker/internal/common"
	"github.com/dmitrijs2005/docbroker/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// CommandHandler routes an inbound command line to the document it
// addresses.
type CommandHandler interface {
	HandleCommand(ctx context.Context, docKey, command string) error
}

const (
	serviceName      = "docbroker.v1.SessionChannel"
	attachMethodName = "/" + serviceName + "/Attach"
)

// attachService is the server contract behind the hand-written service
// descriptor. The stream carries wrapperspb.StringValue messages in both
// directions: commands inbound, notifications outbound. The document key
// travels in stream metadata under common.DocKeyHeaderName.
type attachService interface {
	attach(stream grpc.ServerStream) error
}

func attachHandler(srv any, stream grpc.ServerStream) error {
	return srv.(attachService).attach(stream)
}

var sessionChannelServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*attachService)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Attach",
			Handler:       attachHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

// attachedStream is one live session attachment. gRPC allows at most one
// concurrent SendMsg per stream, so sends are serialized.
type attachedStream struct {
	mu     sync.Mutex
	stream grpc.ServerStream
}

func (a *attachedStream) send(msg string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream.SendMsg(wrapperspb.String(msg))
}

// GRPCServer exposes the session command channel. Inbound stream messages
// are handed to the CommandHandler; Notify fans a notification out to
// every stream attached to the document.
type GRPCServer struct {
	address string
	handler CommandHandler
	logger  logging.Logger

	mu      sync.Mutex
	streams map[string]map[*attachedStream]struct{}
}

func NewGRPCServer(address string, l logging.Logger, handler CommandHandler) *GRPCServer {
	return &GRPCServer{
		address: address,
		handler: handler,
		logger:  l.With("module", "session_channel"),
		streams: make(map[string]map[*attachedStream]struct{}),
	}
}

// Run serves until ctx is canceled, then stops gracefully.
func (s *GRPCServer) Run(ctx context.Context) error {

	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := grpc.NewServer(grpc.ChainStreamInterceptor(s.loggingInterceptor))
	srv.RegisterService(&sessionChannelServiceDesc, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping session channel...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting session channel", "address", s.address)

	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}

func (s *GRPCServer) loggingInterceptor(srv any, ss grpc.ServerStream,
	info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	s.logger.Info(ss.Context(), "Stream opened", "method", info.FullMethod)
	err := handler(srv, ss)
	if err != nil && !errors.Is(err, io.EOF) {
		s.logger.Warn(ss.Context(), "Stream closed", "method", info.FullMethod, "error", err.Error())
	} else {
		s.logger.Info(ss.Context(), "Stream closed", "method", info.FullMethod)
	}
	return err
}

func docKeyFromMetadata(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.InvalidArgument, "missing metadata")
	}
	values := md.Get(common.DocKeyHeaderName)
	if len(values) == 0 || values[0] == "" {
		return "", status.Error(codes.InvalidArgument, "missing "+common.DocKeyHeaderName)
	}
	return values[0], nil
}

func (s *GRPCServer) attach(stream grpc.ServerStream) error {
	ctx := stream.Context()

	docKey, err := docKeyFromMetadata(ctx)
	if err != nil {
		return err
	}

	a := &attachedStream{stream: stream}
	s.register(docKey, a)
	defer s.unregister(docKey, a)

	log := s.logger.With("dockey", docKey)
	log.Info(ctx, "Session attached")

	for {
		msg := &wrapperspb.StringValue{}
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if err := s.handler.HandleCommand(ctx, docKey, msg.GetValue()); err != nil {
			log.Error(ctx, "Command failed", "command", msg.GetValue(), "error", err.Error())
			return status.Error(codes.Aborted, err.Error())
		}
	}
}

func (s *GRPCServer) register(docKey string, a *attachedStream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streams[docKey] == nil {
		s.streams[docKey] = make(map[*attachedStream]struct{})
	}
	s.streams[docKey][a] = struct{}{}
}

func (s *GRPCServer) unregister(docKey string, a *attachedStream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams[docKey], a)
	if len(s.streams[docKey]) == 0 {
		delete(s.streams, docKey)
	}
}

// Notify implements the broker's Notifier: the message is fanned out to
// every session attached to docKey. Send failures are reported but do not
// stop the fan-out.
func (s *GRPCServer) Notify(ctx context.Context, docKey, message string) error {
	s.mu.Lock()
	attached := make([]*attachedStream, 0, len(s.streams[docKey]))
	for a := range s.streams[docKey] {
		attached = append(attached, a)
	}
	s.mu.Unlock()

	var firstErr error
	for _, a := range attached {
		if err := a.send(message); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("notify %q: %w", docKey, err)
		}
	}
	return firstErr
}
