package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/rl1809/rowstore/internal/core/domain"
	"github.com/rl1809/rowstore/internal/core/service"
	"github.com/rl1809/rowstore/internal/logger"
)

const rowServiceName = "rowstore.v1.RowService"

// RowServiceServer is the gRPC face of the row service. Messages are
// protobuf well-known types: rows travel as Struct values shaped like the
// HTTP JSON.
type RowServiceServer interface {
	ListRows(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	GetRow(context.Context, *wrapperspb.Int64Value) (*structpb.Struct, error)
	CreateRow(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateRow(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteRow(context.Context, *wrapperspb.Int64Value) (*structpb.Struct, error)
}

var RowServiceDesc = grpc.ServiceDesc{
	ServiceName: rowServiceName,
	HandlerType: (*RowServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListRows", Handler: unaryHandler("ListRows", newEmpty, RowServiceServer.ListRows)},
		{MethodName: "GetRow", Handler: unaryHandler("GetRow", newInt64Value, RowServiceServer.GetRow)},
		{MethodName: "CreateRow", Handler: unaryHandler("CreateRow", newStruct, RowServiceServer.CreateRow)},
		{MethodName: "UpdateRow", Handler: unaryHandler("UpdateRow", newStruct, RowServiceServer.UpdateRow)},
		{MethodName: "DeleteRow", Handler: unaryHandler("DeleteRow", newInt64Value, RowServiceServer.DeleteRow)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rowstore/v1/rows.proto",
}

func RegisterRowServiceServer(s grpc.ServiceRegistrar, srv RowServiceServer) {
	s.RegisterService(&RowServiceDesc, srv)
}

func fullMethodName(method string) string {
	return "/" + rowServiceName + "/" + method
}

func newEmpty() *emptypb.Empty { return &emptypb.Empty{} }

func newInt64Value() *wrapperspb.Int64Value { return &wrapperspb.Int64Value{} }

func newStruct() *structpb.Struct { return &structpb.Struct{} }

func unaryHandler[Req, Resp any](method string, newReq func() Req, call func(RowServiceServer, context.Context, Req) (Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := fullMethodName(method)
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := newReq()
		if err := dec(req); err != nil {
			return nil, err
		}
		server := srv.(RowServiceServer)
		if interceptor == nil {
			return call(server, ctx, req)
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(Req))
		}
		return interceptor(ctx, req, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, handler)
	}
}

type GRPCHandler struct {
	rowService *service.RowService
}

func NewGRPCHandler(rowService *service.RowService) *GRPCHandler {
	return &GRPCHandler{rowService: rowService}
}

func (h *GRPCHandler) ListRows(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	rows := h.rowService.List(ctx)
	values := make([]*structpb.Value, 0, len(rows))
	for _, row := range rows {
		values = append(values, structpb.NewStructValue(rowStruct(row)))
	}
	return &structpb.ListValue{Values: values}, nil
}

func (h *GRPCHandler) GetRow(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {
	id, err := rowIDFromInt64(req.GetValue())
	if err != nil {
		return nil, grpcError(err)
	}

	row, err := h.rowService.Get(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return rowStruct(row), nil
}

func (h *GRPCHandler) CreateRow(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in, err := rowInputFromStruct(req)
	if err != nil {
		return nil, grpcError(err)
	}

	row, err := h.rowService.Create(ctx, in)
	if err != nil {
		return nil, grpcError(err)
	}
	return rowStruct(row), nil
}

// UpdateRow expects the target id in the "id" field; the remaining fields
// form the patch.
func (h *GRPCHandler) UpdateRow(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	idValue, ok := fields["id"]
	if !ok {
		return nil, grpcError(fmt.Errorf("%w: id is required", service.ErrInvalidInput))
	}
	number, ok := idValue.GetKind().(*structpb.Value_NumberValue)
	if !ok || number.NumberValue != math.Trunc(number.NumberValue) {
		return nil, grpcError(fmt.Errorf("%w: id must be an integer", service.ErrInvalidInput))
	}
	if number.NumberValue < math.MinInt64 || number.NumberValue >= math.MaxInt64 {
		return nil, grpcError(service.ErrNotFound)
	}
	id, err := rowIDFromInt64(int64(number.NumberValue))
	if err != nil {
		return nil, grpcError(err)
	}

	patchFields := make(map[string]*structpb.Value, len(fields))
	for name, value := range fields {
		if name != "id" {
			patchFields[name] = value
		}
	}
	patch, err := rowInputFromStruct(&structpb.Struct{Fields: patchFields})
	if err != nil {
		if !h.rowService.Exists(ctx, id) {
			err = service.ErrNotFound
		}
		return nil, grpcError(err)
	}

	row, err := h.rowService.Update(ctx, id, &patch)
	if err != nil {
		return nil, grpcError(err)
	}
	return rowStruct(row), nil
}

func (h *GRPCHandler) DeleteRow(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {
	id, err := rowIDFromInt64(req.GetValue())
	if err != nil {
		return nil, grpcError(err)
	}

	row, err := h.rowService.Delete(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"deleted": structpb.NewStructValue(rowStruct(row)),
	}}, nil
}

// UnaryLoggingInterceptor logs each call with its method, code and latency.
func UnaryLoggingInterceptor(logg *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if logg == nil {
			return handler(ctx, req)
		}
		ctx = logg.WithFields(ctx, map[string]any{
			"grpc_method": info.FullMethod,
			"request_id":  uuid.NewString(),
		})
		start := time.Now()

		resp, err := handler(ctx, req)

		code := status.Code(err)
		ctx = logg.WithFields(ctx, map[string]any{
			"code":        code.String(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if code == codes.Internal || code == codes.Unknown {
			logg.Error(ctx, "grpc.failed", err)
		} else {
			logg.Info(ctx, "grpc.complete")
		}
		return resp, err
	}
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func rowIDFromInt64(v int64) (int, error) {
	id := int(v)
	if int64(id) != v {
		return 0, service.ErrNotFound
	}
	return id, nil
}

func rowStruct(row domain.Row) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":       structpb.NewNumberValue(float64(row.ID)),
		"name":     structpb.NewStringValue(row.Name),
		"quantity": structpb.NewNumberValue(float64(row.Quantity)),
	}}
}

// rowInputFromStruct goes through JSON so gRPC input follows the same
// coercion rules as HTTP bodies.
func rowInputFromStruct(s *structpb.Struct) (domain.RowInput, error) {
	var in domain.RowInput
	if s == nil {
		return in, nil
	}
	payload, err := s.MarshalJSON()
	if err != nil {
		return in, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
	}
	if err := json.Unmarshal(payload, &in); err != nil {
		return in, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
	}
	return in, nil
}

func rowFromStruct(s *structpb.Struct) (domain.Row, error) {
	var row domain.Row
	payload, err := s.MarshalJSON()
	if err != nil {
		return row, err
	}
	if err := json.Unmarshal(payload, &row); err != nil {
		return row, err
	}
	return row, nil
}
