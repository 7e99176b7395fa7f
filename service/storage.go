package service

import (
	"context"
	"encoding/hex"
	"io"
	"path/filepath"

	"github.com/google/uuid"
)

// StoredObject describes a blob persisted by a storage backend.
type StoredObject struct {
	Backend   string
	Key       string
	SizeBytes int64
	SHA256Hex string
}

// BlobStorage persists uploaded contract bytes under generated opaque keys
// and allows re-reading them later. Implementations stream the input in
// bounded chunks and compute size and sha256 as they write; the whole file
// never has to fit in memory. If the caller already consumed a prefix of the
// stream (the upload sniff does), it is passed in and counted toward size
// and hash without being re-read from the source.
type BlobStorage interface {
	Save(ctx context.Context, r io.Reader, originalFilename string, prefix []byte) (*StoredObject, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

const (
	saveChunkSize = 1 << 20 // 1 MiB
	maxKeyExtLen  = 10
)

// newObjectKey generates an opaque storage key. The key is never derived
// from the filename (path traversal, collisions); at most the extension is
// kept for operator convenience, truncated if abnormally long.
func newObjectKey(originalFilename string) string {
	ext := filepath.Ext(originalFilename)
	if len(ext) > maxKeyExtLen {
		ext = ext[:maxKeyExtLen]
	}
	u := uuid.New()
	return hex.EncodeToString(u[:]) + ext
}
