package catalog

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Variant is one purchasable combination of a template.
type Variant struct {
	ProductUID string `json:"product_uid"`
	Title      string `json:"title"`
	Size       string `json:"size"`
	Color      string `json:"color,omitempty"`
}

func (c *Catalog) Template(id string) (*ProductTemplate, bool) {
	for i := range c.Templates {
		if c.Templates[i].ID == id {
			return &c.Templates[i], true
		}
	}
	return nil, false
}

func (c *Catalog) Theme(id string) (*Theme, bool) {
	for i := range c.Themes {
		if c.Themes[i].ID == id {
			return &c.Themes[i], true
		}
	}
	return nil, false
}

// Variants expands a template into vendor variants titled after name. Fixed
// variants ignore sizes and colors; otherwise empty selections fall back to
// the template defaults and every color is paired with every size.
func (c *Catalog) Variants(templateID, name string, sizes, colors []string) ([]Variant, error) {
	template, ok := c.Template(templateID)
	if !ok {
		return nil, fmt.Errorf("unknown product template %q", templateID)
	}

	if len(template.FixedVariants) > 0 {
		variants := make([]Variant, 0, len(template.FixedVariants))
		for _, fixed := range template.FixedVariants {
			variants = append(variants, Variant{
				ProductUID: fixed.ProductUID,
				Title:      fmt.Sprintf("%s - %s", name, fixed.Size),
				Size:       fixed.Size,
			})
		}
		return variants, nil
	}

	if len(sizes) == 0 {
		sizes = template.DefaultSizes
	}
	if len(colors) == 0 {
		colors = template.DefaultColors
	}

	variants := make([]Variant, 0, len(sizes)*len(colors))
	for _, color := range colors {
		for _, size := range sizes {
			variants = append(variants, Variant{
				ProductUID: fmt.Sprintf("%s_gsi_%s_gco_%s_gpr_4-4", template.BaseUID, c.sizeCode(size), c.colorCode(color)),
				Title:      fmt.Sprintf("%s - %s - %s", name, capitalize(color), size),
				Size:       size,
				Color:      color,
			})
		}
	}
	return variants, nil
}

func (c *Catalog) sizeCode(size string) string {
	if code, ok := c.SizeCodes[size]; ok {
		return code
	}
	return strings.ToLower(size)
}

func (c *Catalog) colorCode(color string) string {
	if code, ok := c.ColorCodes[color]; ok {
		return code
	}
	return color
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
