package domain

import (
	"errors"
	"fmt"
	"strings"
)

// DocumentType is one immutable catalog entry.
type DocumentType struct {
	ID       string    `yaml:"id" json:"id"`
	Name     string    `yaml:"name" json:"name"`
	Category string    `yaml:"category" json:"category"`
	Keywords []string  `yaml:"keywords" json:"keywords"`
	Fields   []string  `yaml:"fields" json:"fields"`
	RiskTier RiskLevel `yaml:"risk_tier" json:"risk_tier"`
}

// NormalizedName is matched against lowercase filenames.
func (t DocumentType) NormalizedName() string {
	name := t.Name
	if name == "" {
		name = t.ID
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// Catalog is an ordered, read-only set of document types. Order decides ties.
type Catalog struct {
	types []DocumentType
	byID  map[string]int
}

func NewCatalog(types []DocumentType) (*Catalog, error) {
	if len(types) == 0 {
		return nil, WrapError(ErrInvalidInput, "build catalog", errors.New("catalog has no document types"))
	}
	c := &Catalog{
		types: make([]DocumentType, 0, len(types)),
		byID:  make(map[string]int, len(types)),
	}
	for _, t := range types {
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" || t.ID == UnknownDocumentType {
			return nil, WrapError(ErrInvalidInput, "build catalog", fmt.Errorf("invalid document type id %q", t.ID))
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, WrapError(ErrInvalidInput, "build catalog", fmt.Errorf("duplicate document type %q", t.ID))
		}
		if !t.RiskTier.Valid() {
			return nil, WrapError(ErrInvalidInput, "build catalog", fmt.Errorf("document type %q has invalid risk tier %q", t.ID, t.RiskTier))
		}
		t.Keywords = lowerAll(t.Keywords)
		t.Fields = lowerAll(t.Fields)
		c.byID[t.ID] = len(c.types)
		c.types = append(c.types, t)
	}
	return c, nil
}

func (c *Catalog) Types() []DocumentType {
	out := make([]DocumentType, len(c.types))
	copy(out, c.types)
	return out
}

func (c *Catalog) Lookup(id string) (DocumentType, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return DocumentType{}, false
	}
	return c.types[idx], true
}

func (c *Catalog) Len() int { return len(c.types) }

func lowerAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
