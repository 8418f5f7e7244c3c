package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/sifrokapp/sifrok/internal/db"
	"github.com/sifrokapp/sifrok/internal/logging"
	"github.com/sifrokapp/sifrok/internal/models"
	"github.com/sifrokapp/sifrok/internal/pricing"
)

type mappingStore interface {
	List(ctx context.Context) ([]*models.ProductMapping, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ProductMapping, error)
	ByLocalIDs(ctx context.Context, localIDs []string) (map[string]*models.ProductMapping, error)
	Create(ctx context.Context, mapping *models.ProductMapping) error
	Update(ctx context.Context, mapping *models.ProductMapping) error
	UpdateBasePrice(ctx context.Context, id uuid.UUID, baseCents int64) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type productPricer interface {
	ProductPrice(ctx context.Context, productUID string) (int64, error)
}

type MappingService struct {
	store  mappingStore
	pricer productPricer
	logger *slog.Logger
}

func NewMappingService(store mappingStore, pricer productPricer, logger *slog.Logger) *MappingService {
	return &MappingService{store: store, pricer: pricer, logger: componentLogger(logger, "mapping_service")}
}

type MappingInput struct {
	LocalProductID   string `json:"local_product_id" validate:"required"`
	GelatoProductUID string `json:"gelato_product_uid" validate:"required"`
	ProductName      string `json:"product_name" validate:"required"`
	BasePriceCents   int64  `json:"base_price_cents" validate:"gt=0"`
	SalePriceCents   int64  `json:"sale_price_cents" validate:"gte=0"`
	Category         string `json:"category"`
	Placements       string `json:"placements"`
}

// MappingPatch updates only the fields that are set.
type MappingPatch struct {
	LocalProductID   *string `json:"local_product_id" validate:"omitempty,min=1"`
	GelatoProductUID *string `json:"gelato_product_uid" validate:"omitempty,min=1"`
	ProductName      *string `json:"product_name" validate:"omitempty,min=1"`
	BasePriceCents   *int64  `json:"base_price_cents" validate:"omitempty,gt=0"`
	SalePriceCents   *int64  `json:"sale_price_cents" validate:"omitempty,gt=0"`
	Category         *string `json:"category"`
	Placements       *string `json:"placements"`
}

func (s *MappingService) List(ctx context.Context) ([]*models.ProductMapping, error) {
	mappings, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list product mappings: %w", err)
	}
	if mappings == nil {
		mappings = []*models.ProductMapping{}
	}
	return mappings, nil
}

func (s *MappingService) Get(ctx context.Context, id uuid.UUID) (*models.ProductMapping, error) {
	mapping, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, mappingError(err)
	}
	return mapping, nil
}

func (s *MappingService) GetByLocalID(ctx context.Context, localProductID string) (*models.ProductMapping, error) {
	found, err := s.store.ByLocalIDs(ctx, []string{localProductID})
	if err != nil {
		return nil, fmt.Errorf("failed to get product mapping: %w", err)
	}
	mapping, ok := found[localProductID]
	if !ok {
		return nil, ErrMappingNotFound
	}
	return mapping, nil
}

// Create stores a new mapping. A zero sale price defaults to the price
// derived from the base cost.
func (s *MappingService) Create(ctx context.Context, input MappingInput) (*models.ProductMapping, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	mapping := &models.ProductMapping{
		LocalProductID:   strings.TrimSpace(input.LocalProductID),
		GelatoProductUID: strings.TrimSpace(input.GelatoProductUID),
		ProductName:      strings.TrimSpace(input.ProductName),
		BasePriceCents:   input.BasePriceCents,
		SalePriceCents:   input.SalePriceCents,
		Category:         input.Category,
		Placements:       input.Placements,
	}
	if mapping.SalePriceCents == 0 {
		sale, err := pricing.SalePrice(mapping.BasePriceCents)
		if err != nil {
			return nil, UserError{Message: err.Error()}
		}
		mapping.SalePriceCents = sale
	}

	if err := s.store.Create(ctx, mapping); err != nil {
		return nil, mappingError(err)
	}

	logging.FromContext(ctx, s.logger).Info("product mapping created", "mapping_id", mapping.ID, "local_product_id", mapping.LocalProductID)
	return mapping, nil
}

func (s *MappingService) Update(ctx context.Context, id uuid.UUID, patch MappingPatch) (*models.ProductMapping, error) {
	if err := validateInput(patch); err != nil {
		return nil, err
	}

	mapping, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, mappingError(err)
	}
	if patch.LocalProductID != nil {
		mapping.LocalProductID = strings.TrimSpace(*patch.LocalProductID)
	}
	if patch.GelatoProductUID != nil {
		mapping.GelatoProductUID = strings.TrimSpace(*patch.GelatoProductUID)
	}
	if patch.ProductName != nil {
		mapping.ProductName = strings.TrimSpace(*patch.ProductName)
	}
	if patch.BasePriceCents != nil {
		mapping.BasePriceCents = *patch.BasePriceCents
	}
	if patch.SalePriceCents != nil {
		mapping.SalePriceCents = *patch.SalePriceCents
	}
	if patch.Category != nil {
		mapping.Category = *patch.Category
	}
	if patch.Placements != nil {
		mapping.Placements = *patch.Placements
	}

	if err := s.store.Update(ctx, mapping); err != nil {
		return nil, mappingError(err)
	}
	return mapping, nil
}

func (s *MappingService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return mappingError(err)
	}
	logging.FromContext(ctx, s.logger).Info("product mapping deleted", "mapping_id", id)
	return nil
}

type PriceSyncResult struct {
	Updated int      `json:"updated"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// SyncPrices refreshes every mapping's base cost from the vendor's price for
// a single unit. Failures are counted per mapping and do not stop the sync.
func (s *MappingService) SyncPrices(ctx context.Context) (*PriceSyncResult, error) {
	logger := logging.FromContext(ctx, s.logger)

	mappings, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list product mappings: %w", err)
	}

	result := &PriceSyncResult{}
	for _, mapping := range mappings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		price, err := s.pricer.ProductPrice(ctx, mapping.GelatoProductUID)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", mapping.LocalProductID, err))
			logVendorError(logger, "failed to fetch product price", err, "mapping_id", mapping.ID)
			continue
		}
		if price == mapping.BasePriceCents {
			continue
		}
		if err := s.store.UpdateBasePrice(ctx, mapping.ID, price); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: failed to store price", mapping.LocalProductID))
			logger.Error("failed to store product price", "mapping_id", mapping.ID, "error", err)
			continue
		}
		result.Updated++
	}

	logger.Info("product prices synced", "updated", result.Updated, "failed", result.Failed)
	return result, nil
}

func mappingError(err error) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return ErrMappingNotFound
	case errors.Is(err, db.ErrConflict):
		return ErrMappingConflict
	default:
		return fmt.Errorf("failed to store product mapping: %w", err)
	}
}
