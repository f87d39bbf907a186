// Package grpc exposes the ingestion service over gRPC. Messages are
// google.protobuf.Struct values so the service needs no generated stubs:
//
//	SubmitLog   {tenant_id, log_id?, text}        -> acknowledgment
//	SubmitBatch {records: [{tenant_id, ...}, ...]} -> {status, count, results}
package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"tenantlog/ingestion/normalizer"
	core "tenantlog/ingestion/service/core"
	"tenantlog/internal/messaging/producer"
)

const (
	ServiceName       = "tenantlog.ingestion.v1.LogIngestion"
	SubmitLogMethod   = "/" + ServiceName + "/SubmitLog"
	SubmitBatchMethod = "/" + ServiceName + "/SubmitBatch"
)

// LogIngestionServer is the server API for the LogIngestion service.
type LogIngestionServer interface {
	SubmitLog(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitBatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Server implements LogIngestionServer on top of core.Service.
type Server struct {
	svc    *core.Service
	logger *zap.Logger
}

// NewServer creates a new gRPC Server instance
func NewServer(s *core.Service, l *zap.Logger) *Server {
	return &Server{svc: s, logger: l}
}

// Register attaches srv to a grpc.Server.
func Register(s *grpc.Server, srv LogIngestionServer) {
	s.RegisterService(&serviceDesc, srv)
}

// NewGRPCServer builds a grpc.Server with request logging and the ingestion
// service registered.
func NewGRPCServer(srv LogIngestionServer, logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))
	s := grpc.NewServer(opts...)
	Register(s, srv)
	return s
}

// SubmitLog implements the SubmitLog method in the gRPC interface
func (s *Server) SubmitLog(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ack, err := s.svc.Submit(ctx, structuredFrom(req))
	if err != nil {
		return nil, s.toStatus(err)
	}
	return ackToStruct(ack)
}

// SubmitBatch publishes every record or none of them.
func (s *Server) SubmitBatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	list := req.GetFields()["records"].GetListValue()
	if list == nil {
		return nil, status.Error(codes.InvalidArgument, "records: must be a list")
	}

	inputs := make([]normalizer.Structured, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		rec := v.GetStructValue()
		if rec == nil {
			return nil, status.Errorf(codes.InvalidArgument, "record %d: must be an object", i)
		}
		inputs = append(inputs, structuredFrom(rec))
	}

	acks, err := s.svc.SubmitBatch(ctx, inputs)
	if err != nil {
		return nil, s.toStatus(err)
	}

	results := make([]interface{}, len(acks))
	for i, ack := range acks {
		results[i] = ackToMap(ack)
	}
	resp, err := structpb.NewStruct(map[string]interface{}{
		"status":  core.StatusAccepted,
		"count":   len(acks),
		"results": results,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return resp, nil
}

func structuredFrom(req *structpb.Struct) normalizer.Structured {
	f := req.GetFields()
	return normalizer.Structured{
		TenantID: f["tenant_id"].GetStringValue(),
		LogID:    f["log_id"].GetStringValue(),
		Text:     f["text"].GetStringValue(),
	}
}

func ackToMap(ack *core.Acknowledgment) map[string]interface{} {
	return map[string]interface{}{
		"status":     ack.Status,
		"message":    ack.Message,
		"log_id":     ack.LogID,
		"tenant_id":  ack.TenantID,
		"request_id": ack.RequestID,
	}
}

func ackToStruct(ack *core.Acknowledgment) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(ackToMap(ack))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return resp, nil
}

// toStatus maps service errors onto gRPC codes. Only validation failures
// expose their message to the caller.
func (s *Server) toStatus(err error) error {
	switch {
	case errors.Is(err, normalizer.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Error("gRPC submit timed out", zap.Error(err))
		return status.Error(codes.DeadlineExceeded, "timed out queueing message for processing")
	case errors.Is(err, producer.ErrPublish):
		s.logger.Error("gRPC submit failed", zap.Error(err))
		return status.Error(codes.Unavailable, "failed to queue message for processing")
	default:
		s.logger.Error("gRPC submit failed", zap.Error(err))
		return status.Error(codes.Internal, "failed to queue message for processing")
	}
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)))
		return resp, err
	}
}

func unaryHandler(method string, call func(LogIngestionServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LogIngestionServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			in, ok := req.(*structpb.Struct)
			if !ok {
				return nil, fmt.Errorf("unexpected request type %T", req)
			}
			return call(srv.(LogIngestionServer), ctx, in)
		}
		return interceptor(ctx, in, info, handler)
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LogIngestionServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SubmitLog",
			Handler:    unaryHandler(SubmitLogMethod, LogIngestionServer.SubmitLog),
		},
		{
			MethodName: "SubmitBatch",
			Handler:    unaryHandler(SubmitBatchMethod, LogIngestionServer.SubmitBatch),
		},
	},
	Streams: []grpc.StreamDesc{},
}

// Ensure Server implements the interface (compile-time check)
var _ LogIngestionServer = (*Server)(nil)
