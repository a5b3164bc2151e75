package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/router-for-me/authflow/sdk/authflow"
)

const objectPrefix = "authflow/fingerprints"

// maxObjectSize caps how much of a stored object is read back.
const maxObjectSize = 64 << 10

// ObjectConfig describes an S3 compatible bucket.
type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// NewObjectClient connects to the object storage endpoint and creates the bucket when missing.
func NewObjectClient(ctx context.Context, cfg ObjectConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err = client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return client, nil
}

// ObjectStore keeps the fingerprint of one scope as an object in a bucket.
type ObjectStore struct {
	client *minio.Client
	bucket string
	object string
}

// NewObjectStore returns the slot for scope in bucket.
func NewObjectStore(client *minio.Client, bucket, scope string) *ObjectStore {
	if scope == "" {
		scope = authflow.DefaultStorageKey
	}
	return &ObjectStore{
		client: client,
		bucket: bucket,
		object: path.Join(objectPrefix, scope+".json"),
	}
}

// Get implements authflow.FingerprintStore.
func (s *ObjectStore) Get(ctx context.Context) (*authflow.Fingerprint, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.object, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrap(err)
	}
	defer func() {
		_ = obj.Close()
	}()
	payload, err := io.ReadAll(io.LimitReader(obj, maxObjectSize))
	if err != nil {
		return nil, s.wrap(err)
	}
	return authflow.DecodeFingerprint(payload)
}

// Set implements authflow.FingerprintStore.
func (s *ObjectStore) Set(ctx context.Context, fingerprint *authflow.Fingerprint) error {
	payload, err := authflow.EncodeFingerprint(fingerprint)
	if err != nil {
		return fmt.Errorf("object store: %w", err)
	}
	_, err = s.client.PutObject(ctx, s.bucket, s.object, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("object store %s/%s: %w", s.bucket, s.object, err)
	}
	return nil
}

// Clear implements authflow.FingerprintClearer. Removing a missing object succeeds.
func (s *ObjectStore) Clear(ctx context.Context) error {
	if err := s.client.RemoveObject(ctx, s.bucket, s.object, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("object store %s/%s: %w", s.bucket, s.object, err)
	}
	return nil
}

func (s *ObjectStore) wrap(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("object store %s/%s: %w", s.bucket, s.object, authflow.ErrFingerprintNotFound)
	}
	return fmt.Errorf("object store %s/%s: %w", s.bucket, s.object, err)
}
