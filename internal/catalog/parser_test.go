package catalog

import (
	"testing"
)

func TestParser_Parse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{
			name: "valid catalog",
			yaml: `
size_codes:
  S: s
templates:
  - id: tshirt
    name: Camiseta
    base_uid: apparel_tshirt
    default_sizes: [S]
    default_colors: [white]
themes:
  - id: nature
    prompts: ["forest trees minimalist design"]
`,
			wantErr: false,
		},
		{
			name:    "invalid yaml",
			yaml:    "invalid: yaml: content:",
			wantErr: true,
		},
	}

	parser := NewParser()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog, err := parser.ParseFromString(tt.yaml)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if catalog == nil {
				t.Error("expected catalog but got nil")
				return
			}

			if len(catalog.Templates) != 1 || catalog.Templates[0].Name != "Camiseta" {
				t.Errorf("unexpected templates: %+v", catalog.Templates)
			}

			if len(catalog.Themes) != 1 {
				t.Errorf("expected 1 theme, got %d", len(catalog.Themes))
			}
		})
	}
}

func TestDefaultCatalog(t *testing.T) {
	t.Parallel()

	catalog, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	for _, id := range []string{"tshirt", "hoodie", "mug", "poster"} {
		if _, ok := catalog.Template(id); !ok {
			t.Errorf("missing template %q", id)
		}
	}
	for _, id := range []string{"marvel", "anime", "gaming", "streetwear", "nature", "humor"} {
		theme, ok := catalog.Theme(id)
		if !ok {
			t.Errorf("missing theme %q", id)
			continue
		}
		if len(theme.Prompts) != 8 {
			t.Errorf("theme %q has %d prompts, want 8", id, len(theme.Prompts))
		}
	}
}
