// Package objstore reads source documents from and writes page images to
// the S3-compatible object store.
package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/caseworks/casedex/internal/domain"
)

// api is the slice of the S3 client this package uses.
type api interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds object store settings plus the backoff policy applied to
// every store call.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string
	PageKey  string // path segment for page images under the document id

	RetryInitial    time.Duration
	RetryMax        time.Duration
	RetryMaxElapsed time.Duration

	Logger *zap.Logger
}

// Store is the page image materializer and document fetcher.
type Store struct {
	client api
	cfg    Config
	logger *zap.Logger
}

// New builds a Store from the ambient AWS credential chain.
func New(ctx context.Context, cfg Config) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
			o.UsePathStyle = true
		}
	})

	return NewWithClient(client, cfg), nil
}

// NewWithClient wires an existing S3 client, which is how tests stub the
// store.
func NewWithClient(client api, cfg Config) *Store {
	if cfg.PageKey == "" {
		cfg.PageKey = "pages"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Store{client: client, cfg: cfg, logger: cfg.Logger}
}

// FetchDocument downloads the object at storageURI.
func (s *Store) FetchDocument(ctx context.Context, storageURI string) ([]byte, error) {
	bucket, key, err := ParseURI(storageURI)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = s.retry(ctx, func() error {
		out, getErr := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: &bucket,
			Key:    &key,
		})
		if getErr != nil {
			return fmt.Errorf("get %s: %v: %w", storageURI, getErr, domain.ErrTransientIO)
		}
		defer out.Body.Close()

		data, getErr = io.ReadAll(out.Body)
		if getErr != nil {
			return fmt.Errorf("read %s: %v: %w", storageURI, getErr, domain.ErrTransientIO)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return data, nil
}

// PutPageImage stores one rendered page as PNG under
// <source_doc_id>/<page key>/<n>.png and returns the object's s3 URI.
func (s *Store) PutPageImage(ctx context.Context, sourceDocID string, pageNumber int, image []byte) (string, error) {
	key := path.Join(sourceDocID, s.cfg.PageKey, strconv.Itoa(pageNumber)+".png")
	contentType := "image/png"

	err := s.retry(ctx, func() error {
		_, putErr := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      &s.cfg.Bucket,
			Key:         &key,
			Body:        bytes.NewReader(image),
			ContentType: &contentType,
		})
		if putErr != nil {
			return fmt.Errorf("put %s: %v: %w", key, putErr, domain.ErrTransientIO)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	uri := "s3://" + s.cfg.Bucket + "/" + key
	s.logger.Debug("page image stored", zap.String("uri", uri))
	return uri, nil
}

// retry runs op under the configured exponential backoff, giving up early
// on errors the taxonomy marks non-retryable.
func (s *Store) retry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	if s.cfg.RetryInitial > 0 {
		policy.InitialInterval = s.cfg.RetryInitial
	}
	if s.cfg.RetryMax > 0 {
		policy.MaxInterval = s.cfg.RetryMax
	}
	if s.cfg.RetryMaxElapsed > 0 {
		policy.MaxElapsedTime = s.cfg.RetryMaxElapsed
	}

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, ctx))
}

// ParseURI splits an s3://bucket/key URI.
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("storage uri %q is not s3://", uri)
	}

	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("storage uri %q missing bucket or key", uri)
	}

	return bucket, key, nil
}
