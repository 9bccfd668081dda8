// Package catalog holds the closed set of achievement categories and validates
// per-category field maps.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/compose-network/issuer/x/credential"
)

// Kind distinguishes built-in categories from operator-supplied custom ones.
type Kind string

const (
	KindBuiltin Kind = "builtin"
	KindCustom  Kind = "custom"
)

const (
	maxFieldValueLen = 1024
	maxFields        = 32
)

// Field declares one key an achievement in the category may carry.
type Field struct {
	Name     string `json:"name"     mapstructure:"name"     yaml:"name"`
	Required bool   `json:"required" mapstructure:"required" yaml:"required"`
}

// Category is a named field-list schema.
type Category struct {
	ID     string  `json:"id"     mapstructure:"id"     yaml:"id"`
	Name   string  `json:"name"   mapstructure:"name"   yaml:"name"`
	Kind   Kind    `json:"kind"   mapstructure:"kind"   yaml:"kind"`
	Fields []Field `json:"fields" mapstructure:"fields" yaml:"fields"`
}

// Catalog resolves category ids. Implementations must be safe for concurrent reads.
type Catalog interface {
	Lookup(id string) (Category, bool)
	List() []Category
}

// Static is an immutable catalog built once at startup.
type Static struct {
	byID map[string]Category
	ids  []string
}

var _ Catalog = (*Static)(nil)

// Builtin returns the default category set.
func Builtin() []Category {
	return []Category{
		{ID: "sports", Name: "Sports", Kind: KindBuiltin, Fields: []Field{
			{Name: "event", Required: true},
			{Name: "date", Required: true},
			{Name: "distance"},
			{Name: "result"},
			{Name: "location"},
		}},
		{ID: "education", Name: "Education", Kind: KindBuiltin, Fields: []Field{
			{Name: "institution", Required: true},
			{Name: "program", Required: true},
			{Name: "graduation_date"},
			{Name: "grade"},
		}},
		{ID: "professional", Name: "Professional", Kind: KindBuiltin, Fields: []Field{
			{Name: "organization", Required: true},
			{Name: "role", Required: true},
			{Name: "certification_id"},
			{Name: "valid_until"},
		}},
		{ID: "arts", Name: "Arts", Kind: KindBuiltin, Fields: []Field{
			{Name: "work_title", Required: true},
			{Name: "medium"},
			{Name: "venue"},
			{Name: "date"},
		}},
		{ID: "community", Name: "Community", Kind: KindBuiltin, Fields: []Field{
			{Name: "organization", Required: true},
			{Name: "hours"},
			{Name: "period"},
		}},
	}
}

// New builds a catalog from the built-in set plus custom categories.
// Custom categories must carry an explicit field list and may not shadow a built-in id.
func New(custom ...Category) (*Static, error) {
	s := &Static{byID: make(map[string]Category)}
	for _, c := range Builtin() {
		s.add(c)
	}
	for _, c := range custom {
		c.ID = NormalizeID(c.ID)
		c.Kind = KindCustom
		if err := validateCategory(c); err != nil {
			return nil, err
		}
		if _, exists := s.byID[c.ID]; exists {
			return nil, fmt.Errorf("category %q already defined", c.ID)
		}
		s.add(c)
	}
	sort.Strings(s.ids)
	return s, nil
}

// MustNew is New for static inputs in tests and defaults.
func MustNew(custom ...Category) *Static {
	s, err := New(custom...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Static) add(c Category) {
	if c.Name == "" {
		c.Name = c.ID
	}
	c.Fields = append([]Field(nil), c.Fields...)
	s.byID[c.ID] = c
	s.ids = append(s.ids, c.ID)
}

func (s *Static) Lookup(id string) (Category, bool) {
	c, ok := s.byID[NormalizeID(id)]
	if !ok {
		return Category{}, false
	}
	c.Fields = append([]Field(nil), c.Fields...)
	return c, true
}

func (s *Static) List() []Category {
	out := make([]Category, 0, len(s.ids))
	for _, id := range s.ids {
		c, _ := s.Lookup(id)
		out = append(out, c)
	}
	return out
}

// NormalizeID lowercases and trims a category id.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// ValidateFields checks fields against the category's declared list: unknown keys
// and missing required keys are validation errors.
func (c Category) ValidateFields(fields map[string]string) error {
	if len(fields) > maxFields {
		return credential.Validation("too many fields: %d (max %d)", len(fields), maxFields)
	}
	declared := make(map[string]Field, len(c.Fields))
	for _, f := range c.Fields {
		declared[f.Name] = f
	}
	for k, v := range fields {
		if _, ok := declared[k]; !ok {
			return credential.Validation("field %q is not declared by category %q", k, c.ID).
				WithContext("field", k)
		}
		if len(v) > maxFieldValueLen {
			return credential.Validation("field %q exceeds %d bytes", k, maxFieldValueLen).
				WithContext("field", k)
		}
	}
	for _, f := range c.Fields {
		if !f.Required {
			continue
		}
		if strings.TrimSpace(fields[f.Name]) == "" {
			return credential.Validation("field %q is required by category %q", f.Name, c.ID).
				WithContext("field", f.Name)
		}
	}
	return nil
}

func validateCategory(c Category) error {
	if c.ID == "" {
		return fmt.Errorf("category id is required")
	}
	if len(c.Fields) == 0 {
		return fmt.Errorf("custom category %q must declare its field list", c.ID)
	}
	seen := make(map[string]struct{}, len(c.Fields))
	for _, f := range c.Fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("category %q has a field with empty name", c.ID)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("category %q declares field %q twice", c.ID, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
