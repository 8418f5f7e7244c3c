package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/sifrokapp/sifrok/internal/models"
	"github.com/sifrokapp/sifrok/internal/services"
)

const maxWebhookLogLimit = 200

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		h.respondError(w, r, "failed to load stats", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, stats)
}

func (h *Handlers) ProfitabilityStats(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "month"
	}

	stats, err := h.profit.GetProfitabilityStats(r.Context(), period)
	if err != nil {
		h.respondError(w, r, "failed to load profitability stats", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, stats)
}

// Export streams an orders, users or reviews file as an attachment.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	input := services.ExportInput{
		Type:   query.Get("type"),
		Format: query.Get("format"),
	}
	if input.Format == "" {
		input.Format = "csv"
	}
	var err error
	if input.From, err = queryTime(r, "startDate", false); err != nil {
		h.respondError(w, r, "invalid export query", err)
		return
	}
	if input.To, err = queryTime(r, "endDate", true); err != nil {
		h.respondError(w, r, "invalid export query", err)
		return
	}

	file, err := h.exports.Export(r.Context(), input)
	if err != nil {
		h.respondError(w, r, "failed to export data", err)
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(file.Data); err != nil {
		h.loggerFromContext(r.Context()).Error("failed to write export", "error", err)
	}
}

func (h *Handlers) WebhookLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err == nil && (limit <= 0 || limit > maxWebhookLogLimit) {
		err = services.UserError{Message: fmt.Sprintf("limit must be between 1 and %d", maxWebhookLogLimit)}
	}
	if err != nil {
		h.respondError(w, r, "invalid webhook log query", err)
		return
	}

	logs, err := h.webhookLogs.ListRecent(r.Context(), r.URL.Query().Get("source"), limit)
	if err != nil {
		h.respondError(w, r, "failed to list webhook logs", err)
		return
	}
	if logs == nil {
		logs = []*models.WebhookLog{}
	}
	h.writeJSON(w, r, http.StatusOK, map[string][]*models.WebhookLog{"logs": logs})
}
