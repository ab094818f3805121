package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	s3config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/gradepilot/backend/internal/errdefs"
	"github.com/gradepilot/backend/pkg/config"
	"github.com/gradepilot/backend/pkg/logger"
)

// Bucket names, one per document purpose.
type Buckets struct {
	QuestionPapers  string
	GradingRubrics  string
	AnswerSheets    string
	AdditionalFiles string
}

type Client struct {
	s3      *s3.Client
	buckets Buckets
	timeout time.Duration
}

func New(ctx context.Context, cfg config.StorageConfig) (*Client, error) {
	awsCfg, err := s3config.LoadDefaultConfig(ctx,
		s3config.WithRegion(cfg.Region),
		s3config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	logger.Info("Object store client initialized", zap.String("endpoint", cfg.Endpoint))

	return &Client{
		s3: s3Client,
		buckets: Buckets{
			QuestionPapers:  cfg.QuestionPaperBucket,
			GradingRubrics:  cfg.GradingRubricBucket,
			AnswerSheets:    cfg.AnswerSheetBucket,
			AdditionalFiles: cfg.AdditionalFileBucket,
		},
		timeout: timeout,
	}, nil
}

func (c *Client) Buckets() Buckets {
	return c.buckets
}

// EnsureBuckets creates the four purpose-named buckets. An already-existing
// bucket is not an error.
func (c *Client) EnsureBuckets(ctx context.Context) error {
	names := []string{
		c.buckets.QuestionPapers,
		c.buckets.GradingRubrics,
		c.buckets.AnswerSheets,
		c.buckets.AdditionalFiles,
	}

	for _, name := range names {
		_, err := c.s3.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)})
		if err != nil {
			var respErr *awshttp.ResponseError
			if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 409 {
				logger.Debug("Bucket already exists", zap.String("bucket", name))
				continue
			}
			return fmt.Errorf("failed to create bucket %s: %w", name, err)
		}
		logger.Info("Bucket created", zap.String("bucket", name))
	}

	return nil
}

func (c *Client) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	_, err := c.s3.PutObject(ctx, input)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("upload %s/%s: %w", bucket, key, errdefs.ErrTimeout)
		}
		return fmt.Errorf("failed to upload %s/%s: %w", bucket, key, err)
	}

	logger.Debug("Object uploaded",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int("bytes", len(data)),
	)
	return nil
}

// Download reads the full object. A missing or empty blob maps to
// ErrDownloadFailed; the caller names the document category.
func (c *Client) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("download %s/%s: %w", bucket, key, errdefs.ErrTimeout)
		}
		return nil, fmt.Errorf("object %s/%s: %w", bucket, key, errdefs.ErrDownloadFailed)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("object %s/%s: %w", bucket, key, errdefs.ErrDownloadFailed)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("object %s/%s is empty: %w", bucket, key, errdefs.ErrDownloadFailed)
	}

	return data, nil
}
