package services

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sifrokapp/sifrok/internal/db"
	"github.com/sifrokapp/sifrok/internal/logging"
)

type UserError struct {
	Message string
}

func (e UserError) Error() string {
	return e.Message
}

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrInvalidStatusTransition = db.ErrInvalidStatusTransition
	ErrOrderAlreadySubmitted   = errors.New("order already submitted to fulfillment")
	ErrNoMappedItems           = errors.New("no order items are mapped to fulfillment products")
	ErrMappingNotFound         = errors.New("product mapping not found")
	ErrMappingConflict         = errors.New("product mapping already exists")
	ErrPromotionNotFound       = errors.New("promotion not found")
	ErrPromotionExhausted      = errors.New("promotion usage limit reached")
	ErrServiceUnavailable      = errors.New("service unavailable")
)

var inputValidator = validator.New()

// validateInput runs struct tags and reports the first failing field as a
// UserError.
func validateInput(input any) error {
	err := inputValidator.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		field := fieldErrs[0]
		return UserError{Message: fmt.Sprintf("%s is invalid (%s)", lowerFirst(field.Field()), field.Tag())}
	}
	return fmt.Errorf("failed to validate input: %w", err)
}

// orderError maps a missing order row to ErrOrderNotFound.
func orderError(err error) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return ErrOrderNotFound
	default:
		return err
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func componentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = logging.Discard()
	}
	return logger.With("component", component)
}
