// Package storage holds helpers shared by the object storage backends.
package storage

import (
	"fmt"
	"path"
	"strings"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

// CleanKey normalizes an object key to a slash separated relative path and
// rejects keys that would escape the storage root.
func CleanKey(key string) (string, error) {
	key = strings.ReplaceAll(strings.TrimSpace(key), `\`, "/")
	if key == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "storage key", fmt.Errorf("empty key"))
	}
	if strings.HasPrefix(key, "/") {
		return "", domain.WrapError(domain.ErrInvalidInput, "storage key", fmt.Errorf("absolute key %q", key))
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", domain.WrapError(domain.ErrInvalidInput, "storage key", fmt.Errorf("key %q escapes storage root", key))
	}
	return cleaned, nil
}
