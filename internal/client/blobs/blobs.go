// Package blobs stores outbox photos by content address.
//
// A blob key is the hex BLAKE2b-256 digest of its bytes, so storing the same
// photo twice yields the same key and a single copy. Keys are the only thing
// an outbox row keeps; the bytes are loaded again at submit time.
package blobs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
)

// Store is a content-addressable blob store.
type Store interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, string, error)
	Delete(ctx context.Context, key string) error
}

// Key returns the content address of data.
func Key(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func validateKey(key string) error {
	if len(key) != 2*blake2b.Size256 {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if _, err := hex.DecodeString(key); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
