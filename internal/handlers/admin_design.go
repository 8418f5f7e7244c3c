package handlers

import (
	"net/http"
	"time"

	"github.com/sifrokapp/sifrok/internal/design"
)

func (h *Handlers) GenerateDesign(w http.ResponseWriter, r *http.Request) {
	var req design.RunRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.respondError(w, r, "invalid design request", err)
		return
	}

	result, err := h.designs.Generate(r.Context(), req)
	if err != nil {
		h.respondError(w, r, "failed to generate design", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, result)
}

func (h *Handlers) GenerateDesignBatch(w http.ResponseWriter, r *http.Request) {
	var req design.BatchRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.respondError(w, r, "invalid batch request", err)
		return
	}

	result, err := h.designs.GenerateBatch(r.Context(), req)
	if err != nil {
		h.respondError(w, r, "failed to generate design batch", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, result)
}

type enhanceRequest struct {
	Prompt       string `json:"prompt"`
	Instructions string `json:"instructions"`
}

func (h *Handlers) EnhancePrompt(w http.ResponseWriter, r *http.Request) {
	var req enhanceRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.respondError(w, r, "invalid enhance request", err)
		return
	}

	prompt, err := h.designs.EnhancePrompt(r.Context(), req.Prompt, req.Instructions)
	if err != nil {
		h.respondError(w, r, "failed to enhance prompt", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"prompt": prompt})
}

type validateImageRequest struct {
	ImageURL string `json:"image_url"`
}

func (h *Handlers) ValidateDesignImage(w http.ResponseWriter, r *http.Request) {
	var req validateImageRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.respondError(w, r, "invalid validation request", err)
		return
	}

	check, err := h.designs.ValidateImage(r.Context(), req.ImageURL)
	if err != nil {
		h.respondError(w, r, "failed to validate image", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, check)
}

func (h *Handlers) DesignTemplates(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"templates": h.designs.Templates(),
		"themes":    h.designs.Themes(),
		"enabled":   h.designs.Enabled(),
	})
}

func (h *Handlers) GenerateIdeas(w http.ResponseWriter, r *http.Request) {
	var req design.IdeaRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.respondError(w, r, "invalid ideas request", err)
		return
	}

	result, err := h.studio.GenerateIdeas(r.Context(), req)
	if err != nil {
		h.respondError(w, r, "failed to generate ideas", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, result)
}

// DesignModels lists router models for idea and image generation along with
// the models the edit endpoint accepts.
func (h *Handlers) DesignModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.studio.Models(r.Context())
	if err != nil {
		h.respondError(w, r, "failed to list models", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"text_models":  models.TextModels,
		"image_models": models.ImageModels,
		"edit_models":  h.studio.EditModels(),
		"total_models": models.TotalModels,
		"last_updated": models.FetchedAt,
	})
}

type imageResult struct {
	ImageURL string `json:"image_url"`
}

func (h *Handlers) RemoveBackground(w http.ResponseWriter, r *http.Request) {
	var req validateImageRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.respondError(w, r, "invalid background removal request", err)
		return
	}

	url, err := h.studio.RemoveBackground(r.Context(), req.ImageURL)
	if err != nil {
		h.respondError(w, r, "failed to remove background", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, imageResult{ImageURL: url})
}

func (h *Handlers) EditDesign(w http.ResponseWriter, r *http.Request) {
	var req design.EditRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.respondError(w, r, "invalid edit request", err)
		return
	}

	url, err := h.studio.EditDesign(r.Context(), req)
	if err != nil {
		h.respondError(w, r, "failed to edit design", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, imageResult{ImageURL: url})
}

// ExtendWriteDeadline lifts the server write timeout for design generation,
// which waits on the image provider and on batch pacing.
func (h *Handlers) ExtendWriteDeadline(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				h.loggerFromContext(r.Context()).Warn("failed to extend write deadline", "error", err)
			}
			next.ServeHTTP(w, r)
		})
	}
}
