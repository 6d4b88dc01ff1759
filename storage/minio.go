package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/lukewaehner/KijayKolder-LinksHub/config"
	"github.com/lukewaehner/KijayKolder-LinksHub/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore keeps blobs in MinIO (or any S3 compatible service).
type MinioStore struct {
	client *minio.Client
	region string
}

// NewMinioStore 创建 MinIO 客户端
func NewMinioStore(cfg *config.Config) (*MinioStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	logger.Info("minio client created",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.Bool("ssl", cfg.MinioUseSSL))
	return &MinioStore{client: client, region: cfg.MinioRegion}, nil
}

// EnsureBuckets creates any bucket that does not exist yet.
func (s *MinioStore) EnsureBuckets(ctx context.Context, buckets ...string) error {
	for _, bucket := range buckets {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if exists {
			continue
		}
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		logger.Info("bucket created", logger.String("bucket", bucket))
	}
	return nil
}

// Put refuses to overwrite an existing object.
func (s *MinioStore) Put(ctx context.Context, bucket, name string, data []byte, contentType string) error {
	_, err := s.client.StatObject(ctx, bucket, name, minio.StatObjectOptions{})
	if err == nil {
		return &UploadError{Bucket: bucket, Name: name, Err: ErrObjectExists}
	}
	if !isNoSuchKey(err) {
		return &UploadError{Bucket: bucket, Name: name, Err: err}
	}

	_, err = s.client.PutObject(ctx, bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return &UploadError{Bucket: bucket, Name: name, Err: err}
	}
	return nil
}

func (s *MinioStore) Get(ctx context.Context, bucket, name string) (io.ReadCloser, ObjectInfo, error) {
	obj, err := s.client.GetObject(ctx, bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	// GetObject is lazy; Stat surfaces a missing key.
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		if isNoSuchKey(err) {
			return nil, ObjectInfo{}, ErrObjectNotFound
		}
		return nil, ObjectInfo{}, err
	}
	return obj, ObjectInfo{
		Bucket:       bucket,
		Key:          stat.Key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		LastModified: stat.LastModified,
	}, nil
}

func (s *MinioStore) Remove(ctx context.Context, bucket, name string) error {
	err := s.client.RemoveObject(ctx, bucket, name, minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("remove %s/%s: %w", bucket, name, err)
	}
	return nil
}

func (s *MinioStore) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", bucket, obj.Err)
		}
		out = append(out, ObjectInfo{
			Bucket:       bucket,
			Key:          obj.Key,
			Size:         obj.Size,
			ContentType:  obj.ContentType,
			LastModified: obj.LastModified,
		})
	}
	return out, nil
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || strings.Contains(err.Error(), "NoSuchKey")
}
