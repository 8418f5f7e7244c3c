// Package design turns prompts into print-ready store products: image
// generation, permanent hosting, print checks and store product creation.
package design

import (
	"errors"
	"fmt"
)

var (
	ErrNoImage      = errors.New("provider response contained no image")
	ErrNoPrompts    = errors.New("a known theme or custom prompts are required")
	ErrEmptyPrompt  = errors.New("prompt is required")
	ErrInvalidImage = errors.New("invalid image source")
	ErrInvalidPrice = errors.New("invalid retail price")

	ErrUnknownProductType = errors.New("unknown product type")

	ErrEmptyTheme     = errors.New("theme is required")
	ErrNoIdeas        = errors.New("provider response contained no design ideas")
	ErrEmptyEdit      = errors.New("image_url and instructions are required")
	ErrUnknownModel   = errors.New("unknown image model")
	ErrPredictionFail = errors.New("prediction did not succeed")
)

// ProviderError is a non-2xx response from an AI or hosting provider. Body
// stays in server logs; Error only names the provider and status.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Provider, e.StatusCode)
}
