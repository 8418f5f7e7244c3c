package catalog

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

type Validator struct {
	structs *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{structs: validator.New()}
}

func (v *Validator) Validate(catalog *Catalog) error {
	if err := v.structs.Struct(catalog); err != nil {
		return err
	}

	ids := make(map[string]bool)
	for i := range catalog.Templates {
		template := &catalog.Templates[i]
		if err := v.validateTemplate(template); err != nil {
			return fmt.Errorf("template %q validation failed: %w", template.ID, err)
		}
		if ids[template.ID] {
			return fmt.Errorf("duplicate template id: %s", template.ID)
		}
		ids[template.ID] = true
	}

	themes := make(map[string]bool)
	for _, theme := range catalog.Themes {
		if themes[theme.ID] {
			return fmt.Errorf("duplicate theme id: %s", theme.ID)
		}
		themes[theme.ID] = true
	}

	return nil
}

func (v *Validator) validateTemplate(template *ProductTemplate) error {
	if len(template.FixedVariants) > 0 {
		if len(template.DefaultSizes) > 0 || len(template.DefaultColors) > 0 {
			return fmt.Errorf("fixed variants cannot be combined with sizes or colors")
		}
		return nil
	}

	if len(template.DefaultSizes) == 0 {
		return fmt.Errorf("default sizes are required without fixed variants")
	}
	if len(template.DefaultColors) == 0 {
		return fmt.Errorf("default colors are required without fixed variants")
	}
	return nil
}
