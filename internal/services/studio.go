package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sifrokapp/sifrok/internal/cache"
	"github.com/sifrokapp/sifrok/internal/design"
	"github.com/sifrokapp/sifrok/internal/logging"
)

const (
	defaultIdeaCount = 5
	maxIdeaCount     = 10
	modelCatalogKey  = "design:models"
	modelCatalogTTL  = time.Hour
)

// IdeaWriter generates design ideas and lists text and image models.
type IdeaWriter interface {
	GenerateIdeas(ctx context.Context, req design.IdeaRequest) ([]design.Idea, string, error)
	ListModels(ctx context.Context) (*design.ModelCatalog, error)
}

// ImageEditor runs image-to-image models on existing designs.
type ImageEditor interface {
	RemoveBackground(ctx context.Context, imageURL string) (string, error)
	EditImage(ctx context.Context, req design.EditRequest) (string, error)
}

// IdeasResult carries the ideas and the model that wrote them.
type IdeasResult struct {
	Ideas []design.Idea `json:"ideas"`
	Model string        `json:"model"`
}

// StudioService backs the design studio tools. A nil writer or editor turns
// off the calls that need it with ErrServiceUnavailable.
type StudioService struct {
	writer IdeaWriter
	editor ImageEditor
	cache  cache.Provider
	logger *slog.Logger
}

func NewStudioService(writer IdeaWriter, editor ImageEditor, provider cache.Provider, logger *slog.Logger) *StudioService {
	return &StudioService{
		writer: writer,
		editor: editor,
		cache:  provider,
		logger: componentLogger(logger, "studio_service"),
	}
}

func (s *StudioService) GenerateIdeas(ctx context.Context, req design.IdeaRequest) (*IdeasResult, error) {
	if s.writer == nil {
		return nil, ErrServiceUnavailable
	}
	if req.Count == 0 {
		req.Count = defaultIdeaCount
	}
	if req.Count < 1 || req.Count > maxIdeaCount {
		return nil, UserError{Message: "count must be between 1 and 10"}
	}

	ideas, model, err := s.writer.GenerateIdeas(ctx, req)
	if err != nil {
		return nil, studioError(err)
	}
	logging.FromContext(ctx, s.logger).Info("design ideas generated", "theme", req.Theme, "model", model, "ideas", len(ideas))
	return &IdeasResult{Ideas: ideas, Model: model}, nil
}

// Models returns the router's model catalog, cached for an hour.
func (s *StudioService) Models(ctx context.Context) (*design.ModelCatalog, error) {
	if s.writer == nil {
		return nil, ErrServiceUnavailable
	}
	logger := logging.FromContext(ctx, s.logger)

	if s.cache != nil {
		cached, err := cache.GetJSON[*design.ModelCatalog](ctx, s.cache, modelCatalogKey)
		if err == nil && cached != nil {
			return cached, nil
		}
		if err != nil && !errors.Is(err, cache.ErrNotFound) {
			logger.Warn("failed to read cached model catalog", "error", err)
		}
	}

	models, err := s.writer.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, modelCatalogKey, models, modelCatalogTTL); err != nil {
			logger.Warn("failed to cache model catalog", "error", err)
		}
	}
	return models, nil
}

func (s *StudioService) EditModels() []design.EditModel {
	return design.EditModels()
}

func (s *StudioService) RemoveBackground(ctx context.Context, imageURL string) (string, error) {
	if s.editor == nil {
		return "", ErrServiceUnavailable
	}
	url, err := s.editor.RemoveBackground(ctx, imageURL)
	if err != nil {
		return "", studioError(err)
	}
	return url, nil
}

func (s *StudioService) EditDesign(ctx context.Context, req design.EditRequest) (string, error) {
	if s.editor == nil {
		return "", ErrServiceUnavailable
	}
	url, err := s.editor.EditImage(ctx, req)
	if err != nil {
		return "", studioError(err)
	}
	logging.FromContext(ctx, s.logger).Info("design edited", "area", req.Area, "model", req.Model)
	return url, nil
}

func studioError(err error) error {
	switch {
	case errors.Is(err, design.ErrEmptyTheme), errors.Is(err, design.ErrEmptyEdit),
		errors.Is(err, design.ErrUnknownModel), errors.Is(err, design.ErrInvalidImage):
		return UserError{Message: err.Error()}
	default:
		return err
	}
}
