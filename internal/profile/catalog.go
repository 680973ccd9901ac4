package profile

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog/classic.yaml
var defaultCatalog []byte

// ClassicLanguage is one enrollment of a catalog profile
type ClassicLanguage struct {
	Code       string `yaml:"code" validate:"required"`
	Name       string `yaml:"name"`
	Level      string `yaml:"level" validate:"omitempty,cefr"`
	Specialty  string `yaml:"specialty"`
	DailyWords int    `yaml:"daily_words" validate:"gte=0,lte=500"`
}

// ClassicConfig is a statically defined profile
type ClassicConfig struct {
	Key                string            `yaml:"key" validate:"required"`
	DisplayName        string            `yaml:"display_name" validate:"required"`
	AvatarEmoji        string            `yaml:"avatar_emoji"`
	NativeLanguage     string            `yaml:"native_language" validate:"required"`
	InterfaceLanguages []string          `yaml:"interface_languages"`
	Settings           map[string]any    `yaml:"settings"`
	Languages          []ClassicLanguage `yaml:"languages" validate:"dive"`
}

// Catalog is the ordered set of classic profiles
type Catalog struct {
	Profiles []ClassicConfig `yaml:"profiles"`

	byKey map[string]int
}

// LoadCatalog parses and validates a catalog document
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c.byKey = make(map[string]int, len(c.Profiles))
	for i := range c.Profiles {
		p := &c.Profiles[i]
		p.Key = strings.TrimSpace(p.Key)
		if err := validate.Struct(p); err != nil {
			return nil, fmt.Errorf("catalog profile %d (%q): %w", i, p.Key, newValidationError(err))
		}
		if _, dup := c.byKey[p.Key]; dup {
			return nil, fmt.Errorf("catalog profile %q defined twice", p.Key)
		}
		if len(p.InterfaceLanguages) == 0 {
			p.InterfaceLanguages = []string{p.NativeLanguage}
		}
		for j := range p.Languages {
			p.Languages[j].Code = strings.ToLower(p.Languages[j].Code)
			p.Languages[j].Level = strings.ToLower(p.Languages[j].Level)
		}
		c.byKey[p.Key] = i
	}
	return &c, nil
}

// LoadCatalogFile reads a catalog from disk
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// DefaultCatalog returns the catalog compiled into the binary
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(bytes.NewReader(defaultCatalog))
}

// Lookup finds a classic profile by key
func (c *Catalog) Lookup(key string) (ClassicConfig, bool) {
	if c == nil {
		return ClassicConfig{}, false
	}
	i, ok := c.byKey[key]
	if !ok {
		return ClassicConfig{}, false
	}
	return c.Profiles[i], true
}

// Keys returns the catalog keys in document order
func (c *Catalog) Keys() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, len(c.Profiles))
	for i, p := range c.Profiles {
		keys[i] = p.Key
	}
	return keys
}
