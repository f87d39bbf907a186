package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"tenantlog/config"
	"tenantlog/internal/models"
)

// s3API is the subset of *s3.Client the store uses.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3Store keeps each processed log as one JSON object at
// tenant:{tenant_id}/log:{log_id}.json. PutObject replaces the whole object.
type S3Store struct {
	client s3API
	bucket string
	logger *zap.Logger
}

// ObjectKey returns the object key of a processed log.
func ObjectKey(tenantID, logID string) string {
	return models.NamespaceKey(tenantID, logID) + ".json"
}

// NewS3Store builds an S3-compatible client and makes sure the bucket exists.
func NewS3Store(ctx context.Context, cfg config.S3Config, logger *zap.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 store configuration incomplete: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg := aws.Config{Region: region}
	if cfg.AccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		awsCfg.Credentials = aws.NewCredentialsCache(creds)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
		// A failed write goes back to the queue; the worker nacks and the
		// broker redelivers.
		o.Retryer = aws.NopRetryer{}
	})

	s := newS3Store(client, cfg.Bucket, logger)
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket %s: %w", cfg.Bucket, err)
	}
	logger.Info("s3 store ready", zap.String("bucket", cfg.Bucket), zap.String("endpoint", cfg.Endpoint))
	return s, nil
}

func newS3Store(client s3API, bucket string, logger *zap.Logger) *S3Store {
	return &S3Store{client: client, bucket: bucket, logger: logger}
}

// ensureBucket creates the bucket if HeadBucket fails.
func (s *S3Store) ensureBucket(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err == nil {
		return nil
	}
	_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
				return nil
			}
		}
		return err
	}
	return nil
}

// Upsert writes the object.
func (s *S3Store) Upsert(ctx context.Context, tenantID, logID string, doc *models.ProcessedLog) error {
	if err := prepare(tenantID, logID, doc); err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode processed log: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(ObjectKey(tenantID, logID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", ObjectKey(tenantID, logID), err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound"
}

func (s *S3Store) getObject(ctx context.Context, key string) (*models.ProcessedLog, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", key, err)
	}
	var doc models.ProcessedLog
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("s3 decode %s: %w", key, err)
	}
	return &doc, nil
}

// Get reads one object.
func (s *S3Store) Get(ctx context.Context, tenantID, logID string) (*models.ProcessedLog, error) {
	if err := models.ValidateKey(tenantID, logID); err != nil {
		return nil, err
	}
	return s.getObject(ctx, ObjectKey(tenantID, logID))
}

// List lists under the tenant prefix and reads each object.
func (s *S3Store) List(ctx context.Context, tenantID string, limit int) ([]*models.ProcessedLog, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}

	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(models.TenantPrefix(tenantID)),
		MaxKeys: aws.Int32(int32(listLimit(limit))),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 list: %w", err)
	}

	docs := make([]*models.ProcessedLog, 0, len(out.Contents))
	for _, obj := range out.Contents {
		doc, err := s.getObject(ctx, aws.ToString(obj.Key))
		if errors.Is(err, ErrNotFound) {
			continue // removed between list and get
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Ping checks the bucket is reachable.
func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (s *S3Store) Close() error {
	return nil
}

var _ Store = (*S3Store)(nil)
