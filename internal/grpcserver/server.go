// Package grpcserver implements the IngestService gRPC server.
//
// The service is described by hand with protobuf well-known types, so no
// generated package is needed:
//
//	StartRun(google.protobuf.Empty)         returns (google.protobuf.Struct)  // {"sessionId": ...}
//	GetSession(google.protobuf.StringValue) returns (google.protobuf.Struct)  // session document
//	RegisterPushToken(google.protobuf.Struct) returns (google.protobuf.Empty) // {"userId": ..., "token": ...}
//
// It only handles transport concerns: error mapping and type conversion.
package grpcserver

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"jobmate/ingest-service/internal/session"
	"jobmate/ingest-service/internal/store"
)

const ServiceName = "jobmate.ingest.v1.IngestService"

// IngestServiceServer is the server API for IngestService.
type IngestServiceServer interface {
	StartRun(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetSession(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	RegisterPushToken(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

// ServiceDesc describes IngestService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IngestServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StartRun", Handler: startRunHandler},
		{MethodName: "GetSession", Handler: getSessionHandler},
		{MethodName: "RegisterPushToken", Handler: registerPushTokenHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "jobmate/ingest/v1/ingest.proto",
}

// Register mounts srv on s.
func Register(s grpc.ServiceRegistrar, srv IngestServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func startRunHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IngestServiceServer).StartRun(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/StartRun"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(IngestServiceServer).StartRun(ctx, req.(*emptypb.Empty))
	})
}

func getSessionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IngestServiceServer).GetSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetSession"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(IngestServiceServer).GetSession(ctx, req.(*wrapperspb.StringValue))
	})
}

func registerPushTokenHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IngestServiceServer).RegisterPushToken(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/RegisterPushToken"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(IngestServiceServer).RegisterPushToken(ctx, req.(*structpb.Struct))
	})
}

// ─── Server ──────────────────────────────────────────────────────────────────

// Starter kicks off a run. Implemented by *pipeline.Runner.
type Starter interface {
	Start(ctx context.Context) (string, error)
}

// TokenRegistry stores device push tokens. Implemented by *store.Postgres.
type TokenRegistry interface {
	AddPushToken(ctx context.Context, userID, token string) error
}

// Server implements IngestServiceServer.
type Server struct {
	runs     Starter
	sessions session.Reader
	tokens   TokenRegistry
	logger   *zap.Logger
}

// NewServer constructs a gRPC Server.
func NewServer(runs Starter, sessions session.Reader, tokens TokenRegistry, logger *zap.Logger) *Server {
	return &Server{runs: runs, sessions: sessions, tokens: tokens, logger: logger.Named("grpc")}
}

// StartRun starts a scraping run and returns its session id immediately.
func (s *Server) StartRun(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	id, err := s.runs.Start(ctx)
	if err != nil {
		s.logger.Error("start run", zap.Error(err))
		return nil, toGRPCError(err)
	}
	return structpb.NewStruct(map[string]any{"sessionId": id})
}

// GetSession returns the current session document. A session that does not
// exist yet is NotFound; pollers should retry.
func (s *Server) GetSession(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "session id is required")
	}
	sess, err := s.sessions.Get(ctx, req.GetValue())
	if err != nil {
		return nil, toGRPCError(err)
	}
	return sessionToProto(sess)
}

// RegisterPushToken adds a device token to a subscriber, keeping only the
// most recent model.MaxPushTokens.
func (s *Server) RegisterPushToken(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	userID := req.GetFields()["userId"].GetStringValue()
	token := req.GetFields()["token"].GetStringValue()
	if userID == "" || token == "" {
		return nil, status.Error(codes.InvalidArgument, "userId and token are required")
	}
	if err := s.tokens.AddPushToken(ctx, userID, token); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("register push token", zap.String("userId", userID), zap.Error(err))
		}
		return nil, toGRPCError(err)
	}
	return &emptypb.Empty{}, nil
}

// toGRPCError maps domain errors to gRPC status errors.
func toGRPCError(err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, "internal server error")
}

// sessionToProto converts a session to a Struct with the same keys as its
// JSON document.
func sessionToProto(s *session.Session) (*structpb.Struct, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode session")
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, "encode session")
	}
	return structpb.NewStruct(m)
}
