package design

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sifrokapp/sifrok/internal/catalog"
	"github.com/sifrokapp/sifrok/internal/gelato"
)

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	url     string
	failOn  string
}

func (f *fakeGenerator) GenerateImage(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.failOn != "" && strings.Contains(prompt, f.failOn) {
		return "", &ProviderError{Provider: "openrouter", StatusCode: http.StatusInternalServerError}
	}
	return f.url, nil
}

type fakeHost struct {
	err error
}

func (f *fakeHost) Upload(_ context.Context, source string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if IsPermanent(source) {
		return source, nil
	}
	return "https://i.imgur.com/hosted.png", nil
}

type fakeStore struct {
	mu       sync.Mutex
	requests []gelato.StoreProductRequest
	// rejectPriced answers 400 for requests that carry a retail price.
	rejectPriced bool
	failTitle    string
}

func (f *fakeStore) CreateStoreProduct(_ context.Context, req gelato.StoreProductRequest) (*gelato.StoreProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.rejectPriced && req.RetailPrice != nil {
		return nil, &gelato.APIError{StatusCode: http.StatusBadRequest, Method: http.MethodPost, Path: "/products"}
	}
	if f.failTitle != "" && strings.Contains(req.Title, f.failTitle) {
		return nil, &gelato.APIError{StatusCode: http.StatusUnprocessableEntity, Method: http.MethodPost, Path: "/products"}
	}
	return &gelato.StoreProduct{ID: "sp_" + req.Title, Title: req.Title}, nil
}

func newTestPipeline(t *testing.T, gen *fakeGenerator, host *fakeHost, store *fakeStore) *Pipeline {
	t.Helper()

	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default() error = %v", err)
	}
	policy := gelato.StoreProductPolicy(3)
	policy.InitialInterval = time.Millisecond
	policy.MaxInterval = time.Millisecond

	p := NewPipeline(PipelineConfig{
		Generator: gen,
		Host:      host,
		Store:     store,
		Catalog:   cat,
		Policy:    &policy,
	})
	p.now = func() time.Time { return time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC) }
	return p
}

func TestRunCreatesProductPerType(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{url: "data:image/png;base64,QUJD"}
	store := &fakeStore{}
	p := newTestPipeline(t, gen, &fakeHost{}, store)

	result, err := p.Run(context.Background(), RunRequest{
		Prompt:        "geometric fox",
		ProductTypes:  []string{"tshirt", "mug", "sticker"},
		Sizes:         []string{"M", "L"},
		Colors:        []string{"black"},
		BaseCostCents: 1000,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.ImageURL != "https://i.imgur.com/hosted.png" {
		t.Fatalf("ImageURL = %q", result.ImageURL)
	}
	if len(result.Products) != 2 {
		t.Fatalf("expected 2 products, got %+v", result.Products)
	}
	if result.Products[0].Type != "tshirt" || result.Products[0].VariantCount != 2 {
		t.Fatalf("unexpected tshirt product %+v", result.Products[0])
	}
	if len(result.Errors) != 1 || !strings.HasPrefix(result.Errors[0], "sticker") {
		t.Fatalf("expected one sticker error, got %v", result.Errors)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	first := store.requests[0]
	if first.Title != "Diseño IA - 09/03/2026 - Camiseta" {
		t.Fatalf("title = %q", first.Title)
	}
	if !strings.Contains(first.Description, `"geometric fox"`) {
		t.Fatalf("description = %q", first.Description)
	}
	if first.RetailPrice == nil || first.RetailPrice.Amount != 12.95 || first.RetailPrice.Currency != "EUR" {
		t.Fatalf("retail price = %+v", first.RetailPrice)
	}
	for _, variant := range first.Variants {
		if len(variant.Files) != 1 || variant.Files[0].URL != result.ImageURL {
			t.Fatalf("variant files = %+v", variant.Files)
		}
	}
}

func TestRunRetriesWithoutRetailPrice(t *testing.T) {
	t.Parallel()

	store := &fakeStore{rejectPriced: true}
	p := newTestPipeline(t, &fakeGenerator{url: "https://cdn.example.com/fox.png"}, &fakeHost{}, store)

	result, err := p.Run(context.Background(), RunRequest{Prompt: "fox", Name: "Fox", PriceCents: 2499})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Products) != 1 || len(result.Errors) != 0 {
		t.Fatalf("unexpected result %+v", result)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.requests) != 2 {
		t.Fatalf("expected 2 store calls, got %d", len(store.requests))
	}
	if store.requests[1].RetailPrice != nil {
		t.Fatalf("second attempt should not carry a retail price")
	}
}

func TestRunFailures(t *testing.T) {
	t.Parallel()

	t.Run("empty prompt", func(t *testing.T) {
		t.Parallel()

		p := newTestPipeline(t, &fakeGenerator{}, &fakeHost{}, &fakeStore{})
		if _, err := p.Run(context.Background(), RunRequest{Prompt: " "}); !errors.Is(err, ErrEmptyPrompt) {
			t.Fatalf("expected ErrEmptyPrompt, got %v", err)
		}
	})

	t.Run("data url that cannot be hosted", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{}
		host := &fakeHost{err: &ProviderError{Provider: "imgur", StatusCode: http.StatusServiceUnavailable}}
		p := newTestPipeline(t, &fakeGenerator{url: "data:image/png;base64,QUJD"}, host, store)

		if _, err := p.Run(context.Background(), RunRequest{Prompt: "fox"}); err == nil {
			t.Fatalf("expected hosting error")
		}
		if len(store.requests) != 0 {
			t.Fatalf("store must not be called without a hosted image")
		}
	})

	t.Run("http url falls back when hosting fails", func(t *testing.T) {
		t.Parallel()

		host := &fakeHost{err: errors.New("imgur down")}
		p := newTestPipeline(t, &fakeGenerator{url: "https://replicate.delivery/fox.png"}, host, &fakeStore{})

		result, err := p.Run(context.Background(), RunRequest{Prompt: "fox"})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if result.ImageURL != "https://replicate.delivery/fox.png" {
			t.Fatalf("ImageURL = %q", result.ImageURL)
		}
	})

	t.Run("invalid base cost", func(t *testing.T) {
		t.Parallel()

		p := newTestPipeline(t, &fakeGenerator{url: "https://cdn.example.com/fox.png"}, &fakeHost{}, &fakeStore{})
		if _, err := p.Run(context.Background(), RunRequest{Prompt: "fox", BaseCostCents: -5}); err == nil {
			t.Fatalf("expected invalid base cost error")
		}
	})
}

func TestBatchFromTheme(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{url: "https://cdn.example.com/design.png"}
	store := &fakeStore{}
	p := newTestPipeline(t, gen, &fakeHost{}, store)

	result, err := p.Batch(context.Background(), BatchRequest{Theme: "nature", Count: 2})
	if err != nil {
		t.Fatalf("Batch() error = %v", err)
	}
	if result.TotalRequested != 2 || result.TotalCreated != 2 {
		t.Fatalf("unexpected totals %+v", result)
	}

	gen.mu.Lock()
	for _, prompt := range gen.prompts {
		if !strings.HasSuffix(prompt, batchPromptSuffix) {
			t.Errorf("prompt %q missing merchandise suffix", prompt)
		}
	}
	gen.mu.Unlock()

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.requests[0].Title != "Colección Nature #1" || store.requests[1].Title != "Colección Nature #2" {
		t.Fatalf("unexpected titles %q, %q", store.requests[0].Title, store.requests[1].Title)
	}
	if !strings.Contains(store.requests[0].Description, `"Colección Nature"`) {
		t.Fatalf("description = %q", store.requests[0].Description)
	}
	for _, variant := range store.requests[0].Variants {
		if !strings.Contains(variant.ProductUID, "gco_white") {
			t.Fatalf("batch variants should be white, got %q", variant.ProductUID)
		}
	}
}

func TestBatchCollectsItemErrors(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{url: "https://cdn.example.com/design.png", failOn: "dragon"}
	store := &fakeStore{failTitle: "#3"}
	p := newTestPipeline(t, gen, &fakeHost{}, store)

	result, err := p.Batch(context.Background(), BatchRequest{
		Prompts:        []string{"fox", "dragon", "owl"},
		CollectionName: "Bosque",
		ProductType:    "hoodie",
	})
	if err != nil {
		t.Fatalf("Batch() error = %v", err)
	}
	if result.TotalRequested != 3 || result.TotalCreated != 1 {
		t.Fatalf("unexpected totals %+v", result)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %v", result.Errors)
	}
	if result.Results[0].Index != 1 || result.Results[0].ProductID != "sp_Bosque #1" {
		t.Fatalf("unexpected item %+v", result.Results[0])
	}
}

func TestBatchValidation(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, &fakeGenerator{}, &fakeHost{}, &fakeStore{})

	if _, err := p.Batch(context.Background(), BatchRequest{Theme: "unknown"}); !errors.Is(err, ErrNoPrompts) {
		t.Fatalf("expected ErrNoPrompts, got %v", err)
	}
	if _, err := p.Batch(context.Background(), BatchRequest{Prompts: []string{"fox"}, ProductType: "sticker"}); err == nil {
		t.Fatalf("expected unknown product type error")
	}
}

func TestBatchStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, &fakeGenerator{url: "https://cdn.example.com/a.png"}, &fakeHost{}, &fakeStore{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Batch(ctx, BatchRequest{Prompts: []string{"fox"}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
