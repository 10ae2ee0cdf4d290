package blobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/storykeeper/internal/filex"
)

// FSStore keeps blobs as files under a directory, fanned out by the first two
// hex characters of the key. The content type lives in a ".type" sidecar.
type FSStore struct {
	dir string
}

func NewFSStore(dir string) (*FSStore, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare blob dir: %w", err)
	}
	return &FSStore{dir: abs}, nil
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.dir, key[:2], key)
}

func (s *FSStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	key := Key(data)
	p := s.path(key)

	if _, err := filex.EnsureDir(filepath.Dir(p)); err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err == nil {
		return key, nil
	}
	if err := filex.WriteFileAtomic(p+".type", []byte(contentType), 0o640); err != nil {
		return "", fmt.Errorf("failed to store blob type: %w", err)
	}
	if err := filex.WriteFileAtomic(p, data, 0o640); err != nil {
		return "", fmt.Errorf("failed to store blob: %w", err)
	}
	return key, nil
}

func (s *FSStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	if err := validateKey(key); err != nil {
		return nil, "", err
	}
	p := s.path(key)
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	contentType, err := os.ReadFile(p + ".type")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("failed to read blob type %s: %w", key, err)
	}
	return data, string(contentType), nil
}

// Delete removes a blob; a missing blob is not an error.
func (s *FSStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	p := s.path(key)
	for _, name := range []string{p, p + ".type"} {
		if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete blob %s: %w", key, err)
		}
	}
	return nil
}
