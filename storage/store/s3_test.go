package store

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tenantlog/config"
	"tenantlog/internal/models"
)

// fakeS3 keeps objects in a map; HeadBucket/CreateBucket go through testify.
type fakeS3 struct {
	mock.Mock
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = body
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := aws.ToString(in.Prefix)
	out := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	called := f.Called(aws.ToString(in.Bucket))
	return &s3.HeadBucketOutput{}, called.Error(0)
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	called := f.Called(aws.ToString(in.Bucket))
	return &s3.CreateBucketOutput{}, called.Error(0)
}

func TestS3ObjectKeyLayout(t *testing.T) {
	assert.Equal(t, "tenant:acme/log:123.json", ObjectKey("acme", "123"))
}

func TestS3UpsertOverwritesSingleObject(t *testing.T) {
	fake := newFakeS3()
	s := newS3Store(fake, "logs", zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "acme", "123", processed("first")))
	require.NoError(t, s.Upsert(ctx, "acme", "123", processed("second")))

	assert.Equal(t, 2, fake.puts)
	require.Len(t, fake.objects, 1)

	var stored models.ProcessedLog
	require.NoError(t, json.Unmarshal(fake.objects["tenant:acme/log:123.json"], &stored))
	assert.Equal(t, "second", stored.RedactedText)
	assert.Equal(t, "acme", stored.TenantID)
}

func TestS3GetAndListStayInsideTenant(t *testing.T) {
	fake := newFakeS3()
	s := newS3Store(fake, "logs", zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "acme_corp", "dup", processed("acme")))

	_, err := s.Get(ctx, "beta_inc", "dup")
	assert.ErrorIs(t, err, ErrNotFound)

	docs, err := s.List(ctx, "beta_inc", 10)
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, err = s.List(ctx, "acme_corp", 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "acme", docs[0].RedactedText)
}

func TestS3EnsureBucketCreatesMissingBucket(t *testing.T) {
	fake := newFakeS3()
	fake.On("HeadBucket", "logs").Return(&types.NotFound{}).Once()
	fake.On("CreateBucket", "logs").Return(nil).Once()

	s := newS3Store(fake, "logs", zap.NewNop())
	require.NoError(t, s.ensureBucket(context.Background()))
	fake.AssertExpectations(t)
}

func TestS3EnsureBucketAcceptsExistingBucket(t *testing.T) {
	fake := newFakeS3()
	fake.On("HeadBucket", "logs").Return(&types.NotFound{}).Once()
	fake.On("CreateBucket", "logs").Return(&types.BucketAlreadyOwnedByYou{}).Once()

	s := newS3Store(fake, "logs", zap.NewNop())
	require.NoError(t, s.ensureBucket(context.Background()))
}

func TestS3UpsertDoesNotRetry(t *testing.T) {
	var puts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		if r.Method == http.MethodPut {
			puts.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK) // HeadBucket
	}))
	defer srv.Close()

	s, err := NewS3Store(context.Background(), config.S3Config{
		Endpoint:     srv.URL,
		Region:       "us-east-1",
		Bucket:       "tenantlog-test",
		AccessKey:    "test",
		SecretKey:    "test",
		UsePathStyle: true,
	}, zap.NewNop())
	require.NoError(t, err)

	err = s.Upsert(context.Background(), "acme", "123", processed("hello"))
	require.Error(t, err)
	assert.Equal(t, int32(1), puts.Load())
}
