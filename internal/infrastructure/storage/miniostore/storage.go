package miniostore

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/phennig/dms-pipeline/internal/infrastructure/resilience"
)

type Storage struct {
	client   *minio.Client
	executor *resilience.Executor
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool

	ResilienceExecutor *resilience.Executor
}

func New(opts Options) (*Storage, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	return &Storage{
		client:   client,
		executor: opts.ResilienceExecutor,
	}, nil
}

// Save uploads the object, creating the bucket first if it does not exist.
// The put must be durable before the caller publishes any event referencing
// the key.
func (s *Storage) Save(ctx context.Context, bucket, key string, data io.Reader, size int64, contentType string) error {
	call := func(callCtx context.Context) error {
		if err := s.ensureBucket(callCtx, bucket); err != nil {
			return err
		}
		_, err := s.client.PutObject(callCtx, bucket, key, data, size, minio.PutObjectOptions{
			ContentType: contentType,
		})
		if err != nil {
			return fmt.Errorf("put object %s/%s: %w", bucket, key, err)
		}
		return nil
	}

	// A retried put would re-read a consumed body, so the executor only
	// guards the put when the source is seekable.
	if s.executor != nil {
		if seeker, ok := data.(io.Seeker); ok {
			return s.executor.Execute(ctx, "storage.put", func(callCtx context.Context) error {
				if _, err := seeker.Seek(0, io.SeekStart); err != nil {
					return fmt.Errorf("rewind upload body: %w", err)
				}
				return call(callCtx)
			}, classifyMinioError)
		}
	}
	return call(ctx)
}

func (s *Storage) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	var reader io.ReadCloser
	call := func(callCtx context.Context) error {
		// GetObject defers errors to the first read; Stat surfaces a
		// missing object immediately so a poison message fails fast.
		if _, err := s.client.StatObject(callCtx, bucket, key, minio.StatObjectOptions{}); err != nil {
			return fmt.Errorf("stat object %s/%s: %w", bucket, key, err)
		}
		obj, err := s.client.GetObject(callCtx, bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return fmt.Errorf("get object %s/%s: %w", bucket, key, err)
		}
		reader = obj
		return nil
	}

	var err error
	if s.executor != nil {
		err = s.executor.Execute(ctx, "storage.get", call, classifyMinioError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}
	return reader, nil
}

func (s *Storage) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		// Competing uploaders race on creation; losing the race is fine.
		if minio.ToErrorResponse(err).Code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}
