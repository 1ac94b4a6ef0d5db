// Package tokens holds the closed catalogue of placeholder tokens that contract
// template bodies may reference.
package tokens

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_tokens.yaml
var defaultCatalogue []byte

var tokenNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)

// ErrInvalidCatalogue indicates a token catalogue file could not be used.
var ErrInvalidCatalogue = errors.New("invalid token catalogue")

// TokenDescriptor describes one placeholder token.
type TokenDescriptor struct {
	Name        string `yaml:"name" json:"name"`
	Label       string `yaml:"label" json:"label"`
	Group       string `yaml:"group" json:"group"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

type catalogueFile struct {
	Tokens []TokenDescriptor `yaml:"tokens"`
}

// Registry is a read-only token catalogue. The zero value is empty.
type Registry struct {
	ordered []TokenDescriptor
	byName  map[string]int
}

// Default returns the registry built from the embedded catalogue.
func Default() *Registry {
	reg, err := Parse(defaultCatalogue)
	if err != nil {
		panic(fmt.Sprintf("tokens: embedded catalogue: %v", err))
	}
	return reg
}

// LoadFile reads a YAML catalogue from disk.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token catalogue: %w", err)
	}
	return Parse(raw)
}

// Parse builds a registry from YAML of the form `tokens: [{name, label, group}]`.
func Parse(raw []byte) (*Registry, error) {
	var file catalogueFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalogue, err)
	}
	return New(file.Tokens)
}

// New builds a registry from descriptors, keeping their order.
func New(descriptors []TokenDescriptor) (*Registry, error) {
	reg := &Registry{
		ordered: make([]TokenDescriptor, 0, len(descriptors)),
		byName:  make(map[string]int, len(descriptors)),
	}
	for i, d := range descriptors {
		d.Name = strings.TrimSpace(d.Name)
		if !tokenNameRe.MatchString(d.Name) {
			return nil, fmt.Errorf("%w: token %d has invalid name %q", ErrInvalidCatalogue, i, d.Name)
		}
		if _, dup := reg.byName[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate token %q", ErrInvalidCatalogue, d.Name)
		}
		if d.Label == "" {
			d.Label = d.Name
		}
		reg.byName[d.Name] = len(reg.ordered)
		reg.ordered = append(reg.ordered, d)
	}
	return reg, nil
}

// IsValidToken reports whether name is in the catalogue.
func (r *Registry) IsValidToken(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byName[name]
	return ok
}

// Lookup returns the descriptor for name.
func (r *Registry) Lookup(name string) (TokenDescriptor, bool) {
	if r == nil {
		return TokenDescriptor{}, false
	}
	idx, ok := r.byName[name]
	if !ok {
		return TokenDescriptor{}, false
	}
	return r.ordered[idx], true
}

// ListTokens returns the catalogue in declaration order.
func (r *Registry) ListTokens() []TokenDescriptor {
	if r == nil {
		return []TokenDescriptor{}
	}
	out := make([]TokenDescriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Groups returns the distinct group names in first-seen order.
func (r *Registry) Groups() []string {
	if r == nil {
		return nil
	}
	seen := map[string]struct{}{}
	var groups []string
	for _, d := range r.ordered {
		if _, ok := seen[d.Group]; ok {
			continue
		}
		seen[d.Group] = struct{}{}
		groups = append(groups, d.Group)
	}
	return groups
}
