package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const ctxTimeout = 10 * time.Second

// S3Store keeps the envelope in S3-compatible object storage (MinIO). The
// usual deployment is a database synced between machines through object
// storage; the envelope follows it as a sibling object.
//
// Object layout:
//
//	bucket/
//	└── [keyPrefix/]mydb.challenge
//
// Object stores replace objects atomically on PUT, which gives SaveEnvelope
// the no-partial-write guarantee for free.
type S3Store struct {
	client     *minio.Client
	bucketName string
	objectName string
}

// S3Config contains the settings required to reach the object store.
type S3Config struct {
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Bucket          string `json:"bucket"`
	KeyPrefix       string `json:"key_prefix"`
	UseSSL          bool   `json:"use_ssl"`
	Region          string `json:"region"`

	// DatabaseName is the object name of the protected database; the
	// envelope object name is derived from it the same way the filesystem
	// store derives its sibling path.
	DatabaseName string `json:"database_name"`
}

// NewS3Store connects to the object store and ensures the bucket exists.
func NewS3Store(config S3Config) (*S3Store, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("s3 storage requires a bucket name")
	}
	if config.DatabaseName == "" {
		return nil, fmt.Errorf("s3 storage requires a database name")
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	base := strings.TrimSuffix(config.DatabaseName, filepath.Ext(config.DatabaseName))
	objectName := base + EnvelopeExtension
	if config.KeyPrefix != "" {
		objectName = path.Join(config.KeyPrefix, objectName)
	}

	store := &S3Store{
		client:     client,
		bucketName: config.Bucket,
		objectName: objectName,
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	if err = store.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return store, nil
}

// NewS3StoreFromConfig builds an S3Store from a generic StoreConfig.
func NewS3StoreFromConfig(config StoreConfig) (*S3Store, error) {
	if config.Type != StoreTypeS3 {
		return nil, fmt.Errorf("invalid store type for S3: %s", config.Type)
	}

	configBytes, err := json.Marshal(config.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	var s3Config S3Config
	if err = json.Unmarshal(configBytes, &s3Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal S3 config: %w", err)
	}

	return NewS3Store(s3Config)
}

// ObjectName returns the object key this store reads and writes.
func (s3s *S3Store) ObjectName() string {
	return s3s.objectName
}

// SaveEnvelope replaces the envelope object.
func (s3s *S3Store) SaveEnvelope(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	_, err := s3s.client.PutObject(ctx, s3s.bucketName, s3s.objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/x-yaml"})
	if err != nil {
		return fmt.Errorf("failed to save envelope: %w", err)
	}
	return nil
}

// LoadEnvelope fetches the envelope object, or ErrEnvelopeNotFound.
func (s3s *S3Store) LoadEnvelope() ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	obj, err := s3s.client.GetObject(ctx, s3s.bucketName, s3s.objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to load envelope: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrEnvelopeNotFound
		}
		return nil, fmt.Errorf("failed to read envelope: %w", err)
	}
	return data, nil
}

// EnvelopeExists stats the envelope object.
func (s3s *S3Store) EnvelopeExists() (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	_, err := s3s.client.StatObject(ctx, s3s.bucketName, s3s.objectName, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat envelope: %w", err)
	}
	return true, nil
}

// DeleteEnvelope removes the envelope object; absence is not an error.
func (s3s *S3Store) DeleteEnvelope() error {
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	err := s3s.client.RemoveObject(ctx, s3s.bucketName, s3s.objectName, minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return fmt.Errorf("failed to delete envelope: %w", err)
	}
	return nil
}

// Close is a no-op; the MinIO client holds no persistent connections that
// need explicit teardown.
func (s3s *S3Store) Close() error {
	return nil
}

func (s3s *S3Store) ensureBucket(ctx context.Context) error {
	exists, err := s3s.client.BucketExists(ctx, s3s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err = s3s.client.MakeBucket(ctx, s3s.bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}
