// Package catalog holds the print templates and prompt themes the design
// pipeline builds store products from.
package catalog

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultCatalog []byte

type Catalog struct {
	SizeCodes  map[string]string `yaml:"size_codes"`
	ColorCodes map[string]string `yaml:"color_codes"`
	Templates  []ProductTemplate `yaml:"templates" validate:"required,min=1,dive"`
	Themes     []Theme           `yaml:"themes" validate:"dive"`
}

type ProductTemplate struct {
	ID            string         `yaml:"id" validate:"required"`
	Name          string         `yaml:"name" validate:"required"`
	Category      string         `yaml:"category"`
	BaseUID       string         `yaml:"base_uid" validate:"required"`
	DefaultSizes  []string       `yaml:"default_sizes"`
	DefaultColors []string       `yaml:"default_colors"`
	FixedVariants []FixedVariant `yaml:"fixed_variants" validate:"dive"`
}

type FixedVariant struct {
	Size       string `yaml:"size" validate:"required"`
	ProductUID string `yaml:"product_uid" validate:"required"`
}

type Theme struct {
	ID      string   `yaml:"id" validate:"required"`
	Prompts []string `yaml:"prompts" validate:"required,min=1,dive,required"`
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(content []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(content, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &catalog, nil
}

func (p *Parser) ParseFromString(content string) (*Catalog, error) {
	return p.Parse([]byte(content))
}

// Load parses and validates content.
func Load(content []byte) (*Catalog, error) {
	catalog, err := NewParser().Parse(content)
	if err != nil {
		return nil, err
	}
	if err := NewValidator().Validate(catalog); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return catalog, nil
}

var loadDefault = sync.OnceValues(func() (*Catalog, error) {
	return Load(defaultCatalog)
})

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return loadDefault()
}
