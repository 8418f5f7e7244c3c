package design

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"golang.org/x/time/rate"

	"github.com/sifrokapp/sifrok/internal/catalog"
	"github.com/sifrokapp/sifrok/internal/gelato"
	"github.com/sifrokapp/sifrok/internal/logging"
	"github.com/sifrokapp/sifrok/internal/observability"
	"github.com/sifrokapp/sifrok/internal/pricing"
	"github.com/sifrokapp/sifrok/internal/retry"
)

const (
	batchPromptSuffix = ", high quality, detailed, professional design for merchandise"
	defaultBatchCount = 4
	storeProductTries = 3
)

type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

type ImageHost interface {
	Upload(ctx context.Context, source string) (string, error)
}

type StoreProductCreator interface {
	CreateStoreProduct(ctx context.Context, req gelato.StoreProductRequest) (*gelato.StoreProduct, error)
}

type PipelineConfig struct {
	Generator ImageGenerator
	Host      ImageHost
	Store     StoreProductCreator
	Catalog   *catalog.Catalog
	// BatchInterval is the minimum gap between batch generations.
	BatchInterval time.Duration
	Policy        *retry.Policy[gelato.StoreProductRequest]
	Logger        *slog.Logger
}

type Pipeline struct {
	generator ImageGenerator
	host      ImageHost
	store     StoreProductCreator
	catalog   *catalog.Catalog
	limiter   *rate.Limiter
	policy    retry.Policy[gelato.StoreProductRequest]
	logger    *slog.Logger
	now       func() time.Time
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	limit := rate.Inf
	if cfg.BatchInterval > 0 {
		limit = rate.Every(cfg.BatchInterval)
	}
	policy := gelato.StoreProductPolicy(storeProductTries)
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	p := &Pipeline{
		generator: cfg.Generator,
		host:      cfg.Host,
		store:     cfg.Store,
		catalog:   cfg.Catalog,
		limiter:   rate.NewLimiter(limit, 1),
		policy:    policy,
		logger:    logger.With("component", "design_pipeline"),
		now:       time.Now,
	}
	p.policy.OnRetry = func(rule string, attempt uint, err error) {
		p.logger.Warn("retrying store product creation", "rule", rule, "attempt", attempt, "error", err)
	}
	return p
}

type RunRequest struct {
	Prompt       string   `json:"prompt"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	ProductTypes []string `json:"product_types"`
	Sizes        []string `json:"sizes"`
	Colors       []string `json:"colors"`
	// PriceCents sets the retail price. When zero and BaseCostCents is set,
	// the derived sale price is used instead.
	PriceCents    int64 `json:"price_cents"`
	BaseCostCents int64 `json:"base_cost_cents"`
}

type CreatedProduct struct {
	Type         string `json:"type"`
	Name         string `json:"name"`
	ProductID    string `json:"product_id"`
	VariantCount int    `json:"variant_count"`
}

type RunResult struct {
	ImageURL string           `json:"image_url"`
	Products []CreatedProduct `json:"products"`
	Errors   []string         `json:"errors,omitempty"`
}

// Run generates one design, hosts it and creates a store product per
// requested template. Template failures are collected; generation and
// hosting failures abort.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	span := sentry.StartSpan(
		ctx,
		"design.pipeline.run",
		sentry.WithOpName("design.pipeline"),
		sentry.WithDescription("Pipeline.Run"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	recordFailed := observability.FailureCounter(meter, "design.pipeline.failed")
	logger := logging.FromContext(ctx, p.logger)

	if strings.TrimSpace(req.Prompt) == "" {
		recordFailed("empty_prompt")
		return nil, ErrEmptyPrompt
	}
	if len(req.ProductTypes) == 0 {
		req.ProductTypes = []string{"tshirt"}
	}

	imageURL, err := p.generate(ctx, req.Prompt)
	if err != nil {
		recordFailed("generation_failed")
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Diseño IA - " + p.now().Format("02/01/2006")
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = fmt.Sprintf("Diseño único generado con inteligencia artificial. Prompt: %q", req.Prompt)
	}

	price, err := retailPrice(req.PriceCents, req.BaseCostCents)
	if err != nil {
		recordFailed("invalid_price")
		return nil, err
	}

	result := &RunResult{ImageURL: imageURL, Products: []CreatedProduct{}}
	for _, productType := range req.ProductTypes {
		template, ok := p.catalog.Template(productType)
		if !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: unknown product type", productType))
			continue
		}

		variants, err := p.catalog.Variants(productType, name, req.Sizes, req.Colors)
		if err != nil || len(variants) == 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: no variants", productType))
			continue
		}

		created, err := p.createProduct(ctx, gelato.StoreProductRequest{
			Title:       fmt.Sprintf("%s - %s", name, template.Name),
			Description: description,
			Variants:    storeVariants(variants, imageURL),
			IsAvailable: true,
			PreviewURL:  imageURL,
			RetailPrice: price,
		})
		if err != nil {
			logProviderError(logger, "failed to create store product", err, "product_type", productType)
			recordFailed("store_product_failed")
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", productType, err))
			continue
		}

		result.Products = append(result.Products, CreatedProduct{
			Type:         productType,
			Name:         template.Name,
			ProductID:    created.ID,
			VariantCount: len(variants),
		})
	}

	meter.Count("design.pipeline.products_created", int64(len(result.Products)))
	span.Status = sentry.SpanStatusOK
	return result, nil
}

type BatchRequest struct {
	Theme          string   `json:"theme"`
	Prompts        []string `json:"custom_prompts"`
	Count          int      `json:"count"`
	ProductType    string   `json:"product_type"`
	CollectionName string   `json:"collection_name"`
}

type BatchItem struct {
	Index     int    `json:"index"`
	Prompt    string `json:"prompt"`
	ImageURL  string `json:"image_url"`
	ProductID string `json:"product_id"`
}

type BatchResult struct {
	TotalRequested int         `json:"total_requested"`
	TotalCreated   int         `json:"total_created"`
	Results        []BatchItem `json:"results"`
	Errors         []string    `json:"errors,omitempty"`
}

// Batch generates one product per prompt, pacing generations through the
// shared limiter. Per-item failures are collected; only an invalid request or
// a cancelled context stop the batch.
func (p *Pipeline) Batch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	span := sentry.StartSpan(
		ctx,
		"design.pipeline.batch",
		sentry.WithOpName("design.pipeline"),
		sentry.WithDescription("Pipeline.Batch"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	recordFailed := observability.FailureCounter(meter, "design.batch.failed")
	logger := logging.FromContext(ctx, p.logger)

	prompts, err := p.batchPrompts(req)
	if err != nil {
		recordFailed("no_prompts")
		return nil, err
	}
	productType := req.ProductType
	if productType == "" {
		productType = "tshirt"
	}
	if _, ok := p.catalog.Template(productType); !ok {
		recordFailed("unknown_product_type")
		return nil, fmt.Errorf("%w %q", ErrUnknownProductType, productType)
	}

	baseName := strings.TrimSpace(req.CollectionName)
	if baseName == "" {
		baseName = "Diseño IA"
		if req.Theme != "" {
			baseName = "Colección " + capitalize(req.Theme)
		}
	}

	result := &BatchResult{TotalRequested: len(prompts), Results: []BatchItem{}}
	for i, prompt := range prompts {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("batch interrupted: %w", err)
		}

		index := i + 1
		item, err := p.batchItem(ctx, index, prompt, productType, baseName)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("batch interrupted: %w", err)
			}
			logProviderError(logger, "batch design failed", err, "index", index)
			recordFailed("item_failed")
			result.Errors = append(result.Errors, fmt.Sprintf("design %d: %s", index, err))
			continue
		}
		result.Results = append(result.Results, *item)
	}

	result.TotalCreated = len(result.Results)
	meter.Count("design.batch.created", int64(result.TotalCreated))
	logger.Info("batch generation finished", "requested", result.TotalRequested, "created", result.TotalCreated)
	span.Status = sentry.SpanStatusOK
	return result, nil
}

func (p *Pipeline) batchPrompts(req BatchRequest) ([]string, error) {
	count := req.Count
	if count <= 0 {
		count = defaultBatchCount
	}

	var prompts []string
	if len(req.Prompts) > 0 {
		prompts = req.Prompts
	} else if theme, ok := p.catalog.Theme(req.Theme); ok && req.Theme != "" {
		prompts = theme.Prompts
	} else {
		return nil, ErrNoPrompts
	}

	if len(prompts) > count {
		prompts = prompts[:count]
	}
	return prompts, nil
}

func (p *Pipeline) batchItem(ctx context.Context, index int, prompt, productType, baseName string) (*BatchItem, error) {
	imageURL, err := p.generate(ctx, prompt+batchPromptSuffix)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%s #%d", baseName, index)
	variants, err := p.catalog.Variants(productType, name, nil, []string{"white"})
	if err != nil {
		return nil, err
	}

	created, err := p.createProduct(ctx, gelato.StoreProductRequest{
		Title:       name,
		Description: fmt.Sprintf("Diseño único generado con IA. Parte de la colección %q.", baseName),
		Variants:    storeVariants(variants, imageURL),
		IsAvailable: true,
		PreviewURL:  imageURL,
	})
	if err != nil {
		return nil, err
	}

	return &BatchItem{Index: index, Prompt: prompt, ImageURL: imageURL, ProductID: created.ID}, nil
}

// generate produces an image and re-hosts it. A failed upload of an http
// image falls back to the original URL; a data URL cannot be used by the
// vendor, so its upload failure is returned.
func (p *Pipeline) generate(ctx context.Context, prompt string) (string, error) {
	source, err := p.generator.GenerateImage(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate image: %w", err)
	}

	hosted, err := p.host.Upload(ctx, source)
	if err == nil {
		return hosted, nil
	}
	if strings.HasPrefix(source, "http") {
		logging.FromContext(ctx, p.logger).Warn("image upload failed, keeping generated url", "error", err)
		return source, nil
	}
	return "", fmt.Errorf("failed to host image: %w", err)
}

func (p *Pipeline) createProduct(ctx context.Context, req gelato.StoreProductRequest) (*gelato.StoreProduct, error) {
	return retry.Do(ctx, p.policy, req, p.store.CreateStoreProduct)
}

func retailPrice(priceCents, baseCostCents int64) (*gelato.Money, error) {
	switch {
	case priceCents > 0:
		return gelato.EuroCents(priceCents), nil
	case priceCents < 0:
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidPrice)
	case baseCostCents != 0:
		sale, err := pricing.SalePrice(baseCostCents)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPrice, err)
		}
		return gelato.EuroCents(sale), nil
	default:
		return nil, nil
	}
}

func storeVariants(variants []catalog.Variant, imageURL string) []gelato.StoreVariant {
	out := make([]gelato.StoreVariant, 0, len(variants))
	for _, v := range variants {
		out = append(out, gelato.StoreVariant{
			ProductUID: v.ProductUID,
			Title:      v.Title,
			Files:      []gelato.File{{Type: "default", URL: imageURL}},
		})
	}
	return out
}

func logProviderError(logger *slog.Logger, msg string, err error, args ...any) {
	var providerErr *ProviderError
	var apiErr *gelato.APIError
	switch {
	case errors.As(err, &providerErr):
		args = append(args, "provider", providerErr.Provider, "status", providerErr.StatusCode, "body", providerErr.Body)
	case errors.As(err, &apiErr):
		args = append(args, "provider", "gelato", "status", apiErr.StatusCode, "body", apiErr.Body)
	}
	logger.Error(msg, append(args, "error", err)...)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

