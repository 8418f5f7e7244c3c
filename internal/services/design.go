package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sifrokapp/sifrok/internal/catalog"
	"github.com/sifrokapp/sifrok/internal/design"
	"github.com/sifrokapp/sifrok/internal/logging"
)

type designPipeline interface {
	Run(ctx context.Context, req design.RunRequest) (*design.RunResult, error)
	Batch(ctx context.Context, req design.BatchRequest) (*design.BatchResult, error)
}

type promptEnhancer interface {
	EnhancePrompt(ctx context.Context, prompt, instructions string) (string, error)
}

// DesignService fronts the design pipeline. A nil pipeline means the
// feature is disabled and every generating call returns
// ErrServiceUnavailable; catalog lookups and print checks still work.
type DesignService struct {
	pipeline   designPipeline
	enhancer   promptEnhancer
	catalog    *catalog.Catalog
	httpClient *http.Client
	logger     *slog.Logger
}

func NewDesignService(pipeline designPipeline, enhancer promptEnhancer, productCatalog *catalog.Catalog, httpClient *http.Client, logger *slog.Logger) *DesignService {
	return &DesignService{
		pipeline:   pipeline,
		enhancer:   enhancer,
		catalog:    productCatalog,
		httpClient: httpClient,
		logger:     componentLogger(logger, "design_service"),
	}
}

func (s *DesignService) Enabled() bool {
	return s.pipeline != nil
}

func (s *DesignService) Generate(ctx context.Context, req design.RunRequest) (*design.RunResult, error) {
	if s.pipeline == nil {
		return nil, ErrServiceUnavailable
	}
	result, err := s.pipeline.Run(ctx, req)
	if err != nil {
		return nil, designError(err)
	}
	logging.FromContext(ctx, s.logger).Info("design generated", "products", len(result.Products), "errors", len(result.Errors))
	return result, nil
}

func (s *DesignService) GenerateBatch(ctx context.Context, req design.BatchRequest) (*design.BatchResult, error) {
	if s.pipeline == nil {
		return nil, ErrServiceUnavailable
	}
	if req.Count < 0 || req.Count > maxBatchCount {
		return nil, UserError{Message: "count must be between 1 and 10"}
	}
	result, err := s.pipeline.Batch(ctx, req)
	if err != nil {
		return nil, designError(err)
	}
	return result, nil
}

func (s *DesignService) EnhancePrompt(ctx context.Context, prompt, instructions string) (string, error) {
	if s.enhancer == nil {
		return "", ErrServiceUnavailable
	}
	enhanced, err := s.enhancer.EnhancePrompt(ctx, prompt, instructions)
	if err != nil {
		return "", designError(err)
	}
	return enhanced, nil
}

func (s *DesignService) ValidateImage(ctx context.Context, imageURL string) (design.PrintCheck, error) {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return design.PrintCheck{}, UserError{Message: "image_url is required"}
	}
	return design.ValidatePrintImage(ctx, s.httpClient, imageURL), nil
}

func (s *DesignService) Templates() []catalog.ProductTemplate {
	if s.catalog == nil {
		return []catalog.ProductTemplate{}
	}
	return s.catalog.Templates
}

func (s *DesignService) Themes() []catalog.Theme {
	if s.catalog == nil {
		return []catalog.Theme{}
	}
	return s.catalog.Themes
}

const maxBatchCount = 10

// designError surfaces request mistakes as UserError and leaves provider
// failures for the handler to log.
func designError(err error) error {
	switch {
	case errors.Is(err, design.ErrEmptyPrompt), errors.Is(err, design.ErrNoPrompts):
		return UserError{Message: err.Error()}
	case errors.Is(err, design.ErrInvalidPrice), errors.Is(err, design.ErrUnknownProductType):
		return UserError{Message: err.Error()}
	default:
		return err
	}
}
