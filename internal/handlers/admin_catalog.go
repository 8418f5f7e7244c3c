package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/sifrokapp/sifrok/internal/models"
	"github.com/sifrokapp/sifrok/internal/pricing"
	"github.com/sifrokapp/sifrok/internal/services"
)

func (h *Handlers) ListMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.mappings.List(r.Context())
	if err != nil {
		h.respondError(w, r, "failed to list product mappings", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string][]*models.ProductMapping{"mappings": mappings})
}

func (h *Handlers) GetMapping(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, r, "invalid mapping id", err)
		return
	}

	mapping, err := h.mappings.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "failed to get product mapping", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, mapping)
}

func (h *Handlers) GetMappingByLocalID(w http.ResponseWriter, r *http.Request) {
	localID := strings.TrimSpace(mux.Vars(r)["localID"])
	mapping, err := h.mappings.GetByLocalID(r.Context(), localID)
	if err != nil {
		h.respondError(w, r, "failed to get product mapping", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, mapping)
}

func (h *Handlers) CreateMapping(w http.ResponseWriter, r *http.Request) {
	var input services.MappingInput
	if err := decodeJSON(w, r, &input, false); err != nil {
		h.respondError(w, r, "invalid mapping request", err)
		return
	}

	mapping, err := h.mappings.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, r, "failed to create product mapping", err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, mapping)
}

func (h *Handlers) UpdateMapping(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, r, "invalid mapping id", err)
		return
	}
	var patch services.MappingPatch
	if err := decodeJSON(w, r, &patch, false); err != nil {
		h.respondError(w, r, "invalid mapping request", err)
		return
	}

	mapping, err := h.mappings.Update(r.Context(), id, patch)
	if err != nil {
		h.respondError(w, r, "failed to update product mapping", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, mapping)
}

func (h *Handlers) DeleteMapping(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, r, "invalid mapping id", err)
		return
	}

	if err := h.mappings.Delete(r.Context(), id); err != nil {
		h.respondError(w, r, "failed to delete product mapping", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) SyncMappingPrices(w http.ResponseWriter, r *http.Request) {
	result, err := h.mappings.SyncPrices(r.Context())
	if err != nil {
		h.respondError(w, r, "failed to sync mapping prices", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, result)
}

func (h *Handlers) ListPromotions(w http.ResponseWriter, r *http.Request) {
	promotions, err := h.promotions.List(r.Context())
	if err != nil {
		h.respondError(w, r, "failed to list promotions", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string][]*models.Promotion{"promotions": promotions})
}

func (h *Handlers) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	var input services.PromotionInput
	if err := decodeJSON(w, r, &input, false); err != nil {
		h.respondError(w, r, "invalid promotion request", err)
		return
	}

	promotion, err := h.promotions.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, r, "failed to create promotion", err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, promotion)
}

func (h *Handlers) UpdatePromotion(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, r, "invalid promotion id", err)
		return
	}
	var input services.PromotionInput
	if err := decodeJSON(w, r, &input, false); err != nil {
		h.respondError(w, r, "invalid promotion request", err)
		return
	}

	promotion, err := h.promotions.Update(r.Context(), id, input)
	if err != nil {
		h.respondError(w, r, "failed to update promotion", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, promotion)
}

func (h *Handlers) DeletePromotion(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, r, "invalid promotion id", err)
		return
	}

	if err := h.promotions.Delete(r.Context(), id); err != nil {
		h.respondError(w, r, "failed to delete promotion", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) RedeemPromotion(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, r, "invalid promotion id", err)
		return
	}

	result, err := h.promotions.Redeem(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "failed to redeem promotion", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, result)
}

type quoteRequest struct {
	SubtotalCents int64  `json:"subtotal_cents"`
	Category      string `json:"category"`
	ProductID     string `json:"product_id"`
}

func (h *Handlers) QuotePromotion(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, r, "invalid promotion id", err)
		return
	}
	var req quoteRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.respondError(w, r, "invalid quote request", err)
		return
	}

	quote, err := h.promotions.Quote(r.Context(), id, pricing.PromotionTarget{
		SubtotalCents: req.SubtotalCents,
		Category:      req.Category,
		ProductID:     req.ProductID,
	})
	if err != nil {
		h.respondError(w, r, "failed to quote promotion", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, quote)
}

type pricePreview struct {
	BaseCents int64 `json:"base_cost_cents"`
	pricing.DisplayPrices
}

// PricingPreview derives the storefront prices for ?base=<cents>.
func (h *Handlers) PricingPreview(w http.ResponseWriter, r *http.Request) {
	base, ok, err := queryInt64(r, "base")
	if err == nil && !ok {
		err = services.UserError{Message: "base is required"}
	}
	if err != nil {
		h.respondError(w, r, "invalid pricing preview query", err)
		return
	}

	prices, err := pricing.DeriveDisplayPrices(base)
	if err != nil {
		h.respondError(w, r, "invalid base cost", services.UserError{Message: err.Error()})
		return
	}
	h.writeJSON(w, r, http.StatusOK, pricePreview{BaseCents: base, DisplayPrices: prices})
}
