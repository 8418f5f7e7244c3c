package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sifrokapp/sifrok/internal/db"
	"github.com/sifrokapp/sifrok/internal/export"
	"github.com/sifrokapp/sifrok/internal/logging"
	"github.com/sifrokapp/sifrok/internal/models"
)

type exportReader interface {
	Users(ctx context.Context, from, to *time.Time) ([]*models.User, error)
	Reviews(ctx context.Context, from, to *time.Time) ([]*models.Review, error)
}

type ExportService struct {
	orders  orderLister
	reports exportReader
	now     func() time.Time
	logger  *slog.Logger
}

func NewExportService(orders orderLister, reports exportReader, logger *slog.Logger) *ExportService {
	return &ExportService{orders: orders, reports: reports, now: time.Now, logger: componentLogger(logger, "export_service")}
}

type ExportInput struct {
	Type   string
	Format string
	From   *time.Time
	To     *time.Time
}

func (s *ExportService) Export(ctx context.Context, input ExportInput) (*export.File, error) {
	kind, err := export.ParseType(input.Type)
	if err != nil {
		return nil, UserError{Message: "type must be orders, users or reviews"}
	}
	format, err := export.ParseFormat(input.Format)
	if err != nil {
		return nil, UserError{Message: "format must be csv or json"}
	}
	if input.From != nil && input.To != nil && input.To.Before(*input.From) {
		return nil, UserError{Message: "endDate must not be before startDate"}
	}

	now := s.now()
	var file *export.File
	switch kind {
	case export.TypeOrders:
		orders, listErr := s.orders.List(ctx, db.OrderFilter{From: input.From, To: input.To})
		if listErr != nil {
			return nil, fmt.Errorf("failed to load orders: %w", listErr)
		}
		file, err = export.Orders(orders, format, now)
	case export.TypeUsers:
		users, listErr := s.reports.Users(ctx, input.From, input.To)
		if listErr != nil {
			return nil, fmt.Errorf("failed to load users: %w", listErr)
		}
		file, err = export.Users(users, format, now)
	case export.TypeReviews:
		reviews, listErr := s.reports.Reviews(ctx, input.From, input.To)
		if listErr != nil {
			return nil, fmt.Errorf("failed to load reviews: %w", listErr)
		}
		file, err = export.Reviews(reviews, format, now)
	default:
		err = errors.New("unsupported export type")
	}
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx, s.logger).Info("data exported", "type", kind, "format", format, "bytes", len(file.Data))
	return file, nil
}
