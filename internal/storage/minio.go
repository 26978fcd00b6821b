package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/sentinel/internal/config"
)

// EvidenceStore holds detection payloads (frames, clips) in MinIO.
// Events reference objects by key; the SHA-256 of the object is what
// gets anchored to the ledger.
type EvidenceStore struct {
	client *minio.Client
	bucket string
}

func NewEvidenceStore(cfg config.MinIOConfig) (*EvidenceStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &EvidenceStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *EvidenceStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// PutEvidence uploads payload bytes under the given key and returns the
// hex-encoded SHA-256 of the payload.
func (s *EvidenceStore) PutEvidence(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	sum := sha256.Sum256(data)
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put evidence %s: %w", key, err)
	}
	return hex.EncodeToString(sum[:]), nil
}

// GetEvidence retrieves payload bytes by key.
func (s *EvidenceStore) GetEvidence(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get evidence %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read evidence %s: %w", key, err)
	}
	return data, nil
}

// HashEvidence recomputes the SHA-256 of a stored object, for integrity
// verification against the anchored payload hash.
func (s *EvidenceStore) HashEvidence(ctx context.Context, key string) (string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("get evidence %s: %w", key, err)
	}
	defer obj.Close()

	h := sha256.New()
	if _, err := io.Copy(h, obj); err != nil {
		return "", fmt.Errorf("hash evidence %s: %w", key, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Ping checks MinIO connectivity.
func (s *EvidenceStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
