package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"tenantlog/config"
	"tenantlog/ingestion/normalizer"
	core "tenantlog/ingestion/service/core"
	"tenantlog/internal/messaging/memory"
	"tenantlog/internal/messaging/producer"
	"tenantlog/internal/models"
)

type downProducer struct{}

func (downProducer) Publish(context.Context, *models.IngestRecord) (producer.MessageHandle, error) {
	return producer.MessageHandle{}, &producer.PublishError{Backend: "test", Err: errors.New("connection refused")}
}

func (downProducer) PublishBatch(context.Context, []*models.IngestRecord) ([]producer.MessageHandle, error) {
	return nil, &producer.PublishError{Backend: "test", Err: errors.New("connection refused")}
}

func (downProducer) Close() error { return nil }

func dial(t *testing.T, p producer.Producer) *grpc.ClientConn {
	t.Helper()

	svc := core.NewService(normalizer.New(), p, time.Second, zap.NewNop())
	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(NewServer(svc, zap.NewNop()), zap.NewNop())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestSubmitLogAccepted(t *testing.T) {
	b := memory.NewBroker(config.MemoryQueueConfig{}, zap.NewNop())
	defer b.Close()
	conn := dial(t, b)

	resp := new(structpb.Struct)
	err := conn.Invoke(context.Background(), SubmitLogMethod,
		mustStruct(t, map[string]interface{}{"tenant_id": "acme", "log_id": "123", "text": "ssn 123-45-6789"}), resp)
	require.NoError(t, err)

	f := resp.GetFields()
	assert.Equal(t, "accepted", f["status"].GetStringValue())
	assert.Equal(t, "123", f["log_id"].GetStringValue())
	assert.Equal(t, "acme", f["tenant_id"].GetStringValue())
	assert.NotEmpty(t, f["request_id"].GetStringValue())

	ready, _ := b.Depth()
	assert.Equal(t, 1, ready)
}

func TestSubmitLogInvalidArgument(t *testing.T) {
	b := memory.NewBroker(config.MemoryQueueConfig{}, zap.NewNop())
	defer b.Close()
	conn := dial(t, b)

	err := conn.Invoke(context.Background(), SubmitLogMethod,
		mustStruct(t, map[string]interface{}{"tenant_id": "acme"}), new(structpb.Struct))
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	ready, _ := b.Depth()
	assert.Zero(t, ready)
}

func TestSubmitLogBrokerDown(t *testing.T) {
	conn := dial(t, downProducer{})

	err := conn.Invoke(context.Background(), SubmitLogMethod,
		mustStruct(t, map[string]interface{}{"tenant_id": "acme", "text": "hello"}), new(structpb.Struct))
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestSubmitBatch(t *testing.T) {
	b := memory.NewBroker(config.MemoryQueueConfig{}, zap.NewNop())
	defer b.Close()
	conn := dial(t, b)

	req := mustStruct(t, map[string]interface{}{
		"records": []interface{}{
			map[string]interface{}{"tenant_id": "acme", "text": "one"},
			map[string]interface{}{"tenant_id": "beta", "log_id": "7", "text": "two"},
		},
	})
	resp := new(structpb.Struct)
	require.NoError(t, conn.Invoke(context.Background(), SubmitBatchMethod, req, resp))
	assert.Equal(t, float64(2), resp.GetFields()["count"].GetNumberValue())
	assert.Len(t, resp.GetFields()["results"].GetListValue().GetValues(), 2)

	err := conn.Invoke(context.Background(), SubmitBatchMethod,
		mustStruct(t, map[string]interface{}{"records": "nope"}), new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	ready, _ := b.Depth()
	assert.Equal(t, 2, ready)
}
