// Package catalog loads the document type catalog and keeps the active copy.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
)

//go:embed default.yaml
var defaultYAML []byte

type catalogFile struct {
	DocumentTypes []domain.DocumentType `yaml:"document_types"`
}

func Parse(data []byte) (*domain.Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse catalog", err)
	}
	return domain.NewCatalog(file.DocumentTypes)
}

func LoadFile(path string) (*domain.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return Parse(data)
}

// Load returns the catalog at path, or the built-in one when path is empty.
func Load(path string) (*domain.Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

func Default() *domain.Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

// Registry hands out the active catalog. Reloads replace the whole table.
type Registry struct {
	current atomic.Pointer[domain.Catalog]
}

func NewRegistry(c *domain.Catalog) *Registry {
	r := &Registry{}
	r.current.Store(c)
	return r
}

func (r *Registry) Current() *domain.Catalog {
	return r.current.Load()
}

func (r *Registry) Swap(c *domain.Catalog) {
	if c == nil {
		return
	}
	r.current.Store(c)
}

// Reload parses path and swaps it in; the old catalog stays active on error.
func (r *Registry) Reload(path string) error {
	c, err := Load(path)
	if err != nil {
		return err
	}
	r.Swap(c)
	return nil
}
