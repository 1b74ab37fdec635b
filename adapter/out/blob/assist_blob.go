// Package blob stores raw uploaded document bytes.
package blob

import (
	"errors"
	"path"
	"strings"

	"assist_server/pkg/apperr"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
)

func notFound(key string) error {
	return apperr.NotFound("blob").WithDetail("key", key).WithError(ErrNotFound)
}

// validateKey accepts slash-separated relative keys without dot segments.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return apperr.InvalidInput("key", key).WithError(ErrInvalidKey)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return apperr.InvalidInput("key", key).WithError(ErrInvalidKey)
		}
	}
	return nil
}

func withPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return path.Join(strings.Trim(prefix, "/"), key)
}
