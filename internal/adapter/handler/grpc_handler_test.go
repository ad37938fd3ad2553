package handler

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/rowstore/internal/core/domain"
	"github.com/rl1809/rowstore/internal/core/service"
	"github.com/rl1809/rowstore/internal/logger"
)

func newTestGRPC(t *testing.T) (*RowClient, *service.RowService) {
	t.Helper()

	svc := service.NewRowService(0, nil)
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.UnaryInterceptor(UnaryLoggingInterceptor(logger.Nop())))
	RegisterRowServiceServer(server, NewGRPCHandler(svc))
	go server.Serve(lis)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		server.Stop()
	})
	return NewRowClient(conn), svc
}

func TestGRPC_ListAndGet(t *testing.T) {
	client, _ := newTestGRPC(t)
	ctx := context.Background()

	rows, err := client.ListRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Row{
		{ID: 1, Name: "Apples", Quantity: 10},
		{ID: 2, Name: "Oranges", Quantity: 5},
	}, rows)

	row, err := client.GetRow(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Row{ID: 1, Name: "Apples", Quantity: 10}, row)

	_, err = client.GetRow(ctx, 99)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPC_CreateUpdateDelete(t *testing.T) {
	client, svc := newTestGRPC(t)
	ctx := context.Background()

	created, err := client.CreateRow(ctx, "Pears", 7)
	require.NoError(t, err)
	assert.Equal(t, domain.Row{ID: 3, Name: "Pears", Quantity: 7}, created)

	updated, err := client.UpdateRow(ctx, created.ID, map[string]any{"quantity": "11"})
	require.NoError(t, err)
	assert.Equal(t, domain.Row{ID: 3, Name: "Pears", Quantity: 11}, updated)

	deleted, err := client.DeleteRow(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, deleted)

	_, err = svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestGRPC_UpdateWithoutKnownFieldsIsNoop(t *testing.T) {
	client, _ := newTestGRPC(t)

	row, err := client.UpdateRow(context.Background(), 1, map[string]any{"color": "red"})
	require.NoError(t, err)
	assert.Equal(t, domain.Row{ID: 1, Name: "Apples", Quantity: 10}, row)

	row, err = client.UpdateRow(context.Background(), 1, map[string]any{"name": " "})
	require.NoError(t, err)
	assert.Equal(t, domain.Row{ID: 1, Name: " ", Quantity: 10}, row)
}

func TestGRPC_ErrorCodes(t *testing.T) {
	client, _ := newTestGRPC(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		code codes.Code
	}{
		{"create without quantity", func() error {
			_, err := client.invokeRow(ctx, "CreateRow", mustStruct(t, map[string]any{"name": "Pears"}))
			return err
		}, codes.InvalidArgument},
		{"create blank name", func() error {
			_, err := client.CreateRow(ctx, " ", 1)
			return err
		}, codes.InvalidArgument},
		{"update unknown id", func() error {
			_, err := client.UpdateRow(ctx, 99, map[string]any{"name": "x"})
			return err
		}, codes.NotFound},
		{"update unknown id with bad name", func() error {
			_, err := client.UpdateRow(ctx, 99, map[string]any{"name": 5})
			return err
		}, codes.NotFound},
		{"update without fields", func() error {
			_, err := client.UpdateRow(ctx, 1, nil)
			return err
		}, codes.InvalidArgument},
		{"update without id", func() error {
			_, err := client.invokeRow(ctx, "UpdateRow", mustStruct(t, map[string]any{"name": "x"}))
			return err
		}, codes.InvalidArgument},
		{"update fractional id", func() error {
			_, err := client.invokeRow(ctx, "UpdateRow", mustStruct(t, map[string]any{"id": 1.5, "name": "x"}))
			return err
		}, codes.InvalidArgument},
		{"delete unknown id", func() error {
			_, err := client.DeleteRow(ctx, 99)
			return err
		}, codes.NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, status.Code(tt.call()))
		})
	}
}

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return s
}
