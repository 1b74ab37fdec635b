package blob

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"assist_server/core/port/out"
	"assist_server/pkg/apperr"
)

// LocalStore keeps blobs as files under a root directory.
type LocalStore struct {
	root string
}

var _ out.BlobStore = (*LocalStore)(nil)

func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, apperr.StorageError("resolve blob dir", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, apperr.StorageError("create blob dir", err)
	}
	return &LocalStore{root: abs}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	p := filepath.Join(s.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", apperr.InvalidInput("key", key).WithError(ErrInvalidKey)
	}
	return p, nil
}

// Put writes through a temp file so readers never observe partial content.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, _ string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return apperr.StorageError("create blob dir", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return apperr.StorageError("create temp blob", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperr.StorageError("write blob", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return apperr.StorageError("sync blob", err)
	}
	if err := tmp.Close(); err != nil {
		return apperr.StorageError("close blob", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return apperr.StorageError("rename blob", err)
	}
	return nil
}

func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, apperr.StorageError("read blob", err)
	}
	return data, nil
}

func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, apperr.StorageError("stat blob", err)
	}
}

// Delete is idempotent.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperr.StorageError("delete blob", err)
	}
	return nil
}
