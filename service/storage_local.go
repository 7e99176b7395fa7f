package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalBackend is the backend name recorded on contracts stored on disk.
const LocalBackend = "local"

// LocalStorage stores blobs as files under a base directory.
type LocalStorage struct {
	baseDir string
}

func NewLocalStorage(dir string) (*LocalStorage, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &LocalStorage{baseDir: abs}, nil
}

// Save streams the upload to a new file, hashing and counting as it writes.
// A partially written file is not cleaned up on error.
func (s *LocalStorage) Save(ctx context.Context, r io.Reader, originalFilename string, prefix []byte) (*StoredObject, error) {
	key := newObjectKey(originalFilename)

	out, err := os.Create(filepath.Join(s.baseDir, key))
	if err != nil {
		return nil, fmt.Errorf("failed to create blob file: %w", err)
	}
	defer out.Close()

	h := sha256.New()
	var size int64

	if len(prefix) > 0 {
		if _, err := out.Write(prefix); err != nil {
			return nil, fmt.Errorf("failed to write blob: %w", err)
		}
		h.Write(prefix)
		size += int64(len(prefix))
	}

	buf := make([]byte, saveChunkSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return nil, fmt.Errorf("failed to write blob: %w", werr)
			}
			h.Write(buf[:n])
			size += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, fmt.Errorf("failed to read upload stream: %w", rerr)
		}
	}

	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush blob: %w", err)
	}

	return &StoredObject{
		Backend:   LocalBackend,
		Key:       key,
		SizeBytes: size,
		SHA256Hex: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// Open opens a previously stored blob for reading.
func (s *LocalStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.baseDir, key))
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s: %w", key, err)
	}
	return f, nil
}
