package handler

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/rl1809/rowstore/internal/core/domain"
)

// RowClient calls RowService over an existing connection and decodes the
// Struct replies into domain rows.
type RowClient struct {
	cc grpc.ClientConnInterface
}

func NewRowClient(cc grpc.ClientConnInterface) *RowClient {
	return &RowClient{cc: cc}
}

func (c *RowClient) ListRows(ctx context.Context) ([]domain.Row, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, fullMethodName("ListRows"), &emptypb.Empty{}, out); err != nil {
		return nil, err
	}

	rows := make([]domain.Row, 0, len(out.GetValues()))
	for _, value := range out.GetValues() {
		row, err := rowFromStruct(value.GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *RowClient) GetRow(ctx context.Context, id int) (domain.Row, error) {
	return c.invokeRow(ctx, "GetRow", wrapperspb.Int64(int64(id)))
}

func (c *RowClient) CreateRow(ctx context.Context, name string, quantity int) (domain.Row, error) {
	req, err := structpb.NewStruct(map[string]any{
		"name":     name,
		"quantity": quantity,
	})
	if err != nil {
		return domain.Row{}, err
	}
	return c.invokeRow(ctx, "CreateRow", req)
}

// UpdateRow sends only the given fields; values follow the same coercion
// rules as the HTTP API.
func (c *RowClient) UpdateRow(ctx context.Context, id int, fields map[string]any) (domain.Row, error) {
	payload := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["id"] = id

	req, err := structpb.NewStruct(payload)
	if err != nil {
		return domain.Row{}, err
	}
	return c.invokeRow(ctx, "UpdateRow", req)
}

func (c *RowClient) DeleteRow(ctx context.Context, id int) (domain.Row, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethodName("DeleteRow"), wrapperspb.Int64(int64(id)), out); err != nil {
		return domain.Row{}, err
	}
	return rowFromStruct(out.GetFields()["deleted"].GetStructValue())
}

func (c *RowClient) invokeRow(ctx context.Context, method string, req any) (domain.Row, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethodName(method), req, out); err != nil {
		return domain.Row{}, err
	}
	return rowFromStruct(out)
}
