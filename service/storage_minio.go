package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/amramadan/legartis-coding-challenge/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioBackend is the backend name recorded on contracts stored in MinIO.
const MinioBackend = "minio"

// MinioStorage stores blobs as objects in a MinIO bucket.
type MinioStorage struct {
	client *minio.Client
	bucket string
}

func NewMinioStorage(cfg *config.MinioConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioStorage{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinioStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// hashingReader counts and hashes everything read through it, so an upload
// of unknown length can be streamed to the bucket in a single pass.
type hashingReader struct {
	r    io.Reader
	h    hash.Hash
	size int64
}

func (hr *hashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		hr.h.Write(p[:n])
		hr.size += int64(n)
	}
	return n, err
}

// Save streams the upload into the bucket under a fresh opaque key. The
// sniffed prefix is replayed ahead of the remaining stream so size and hash
// cover the exact stored bytes.
func (s *MinioStorage) Save(ctx context.Context, r io.Reader, originalFilename string, prefix []byte) (*StoredObject, error) {
	key := newObjectKey(originalFilename)

	hr := &hashingReader{
		r: io.MultiReader(bytes.NewReader(prefix), r),
		h: sha256.New(),
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, hr, -1, minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload blob: %w", err)
	}

	return &StoredObject{
		Backend:   MinioBackend,
		Key:       key,
		SizeBytes: hr.size,
		SHA256Hex: hex.EncodeToString(hr.h.Sum(nil)),
	}, nil
}

// Open opens a previously stored object for reading.
func (s *MinioStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s: %w", key, err)
	}
	return obj, nil
}
