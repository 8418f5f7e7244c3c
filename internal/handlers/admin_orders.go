package handlers

import (
	"net/http"

	"github.com/sifrokapp/sifrok/internal/models"
	"github.com/sifrokapp/sifrok/internal/services"
)

type ordersResponse struct {
	Orders []*models.Order `json:"orders"`
	Count  int             `json:"count"`
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	input, err := listOrdersInput(r)
	if err != nil {
		h.respondError(w, r, "invalid order list query", err)
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), input)
	if err != nil {
		h.respondError(w, r, "failed to list orders", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, ordersResponse{Orders: orders, Count: len(orders)})
}

func listOrdersInput(r *http.Request) (services.ListOrdersInput, error) {
	var (
		input services.ListOrdersInput
		err   error
	)
	input.Statuses = queryList(r, "status")
	input.Search = r.URL.Query().Get("search")
	if input.From, err = queryTime(r, "startDate", false); err != nil {
		return input, err
	}
	if input.To, err = queryTime(r, "endDate", true); err != nil {
		return input, err
	}
	if input.Limit, err = queryInt(r, "limit", 0); err != nil {
		return input, err
	}
	if input.Offset, err = queryInt(r, "offset", 0); err != nil {
		return input, err
	}
	return input, nil
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, r, "invalid order id", err)
		return
	}

	order, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		h.respondError(w, r, "failed to get order", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, order)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, r, "invalid order id", err)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.respondError(w, r, "invalid status request", err)
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), orderID, req.Status)
	if err != nil {
		h.respondError(w, r, "failed to update order status", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, order)
}

func (h *Handlers) CalculateOrderProfit(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, r, "invalid order id", err)
		return
	}

	profit, err := h.profit.CalculateOrderProfit(r.Context(), orderID)
	if err != nil {
		h.respondError(w, r, "failed to calculate order profit", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, profit)
}

type refundRequest struct {
	AmountCents *int64 `json:"amount_cents"`
}

// RefundOrder answers rejected refunds with the result body so the caller
// sees both the message and the reason code.
func (h *Handlers) RefundOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, r, "invalid order id", err)
		return
	}
	var req refundRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		h.respondError(w, r, "invalid refund request", err)
		return
	}

	result, err := h.refunds.ProcessRefund(r.Context(), orderID, req.AmountCents)
	if err != nil {
		h.respondError(w, r, "failed to process refund", err)
		return
	}

	status := http.StatusOK
	switch {
	case result.Success:
	case result.Reason == services.RefundReasonOrderNotFound:
		status = http.StatusNotFound
	case result.Reason == services.RefundReasonProcessorFailed:
		status = http.StatusInternalServerError
	default:
		status = http.StatusBadRequest
	}
	h.writeJSON(w, r, status, result)
}

func (h *Handlers) PaymentDetails(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, r, "invalid order id", err)
		return
	}

	details, err := h.refunds.GetPaymentDetails(r.Context(), orderID)
	if err != nil {
		h.respondError(w, r, "failed to get payment details", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, details)
}

func (h *Handlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, r, "invalid order id", err)
		return
	}

	verified, err := h.refunds.VerifyPayment(r.Context(), orderID)
	if err != nil {
		h.respondError(w, r, "failed to verify payment", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]bool{"verified": verified})
}

func (h *Handlers) SubmitFulfillment(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, r, "invalid order id", err)
		return
	}

	result, err := h.fulfillment.SubmitOrder(r.Context(), orderID)
	if err != nil {
		h.respondError(w, r, "failed to submit order to fulfillment", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, result)
}

func (h *Handlers) SyncFulfillment(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, r, "invalid order id", err)
		return
	}

	order, err := h.fulfillment.SyncStatus(r.Context(), orderID)
	if err != nil {
		h.respondError(w, r, "failed to sync fulfillment status", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, order)
}

func (h *Handlers) CancelFulfillment(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, r, "invalid order id", err)
		return
	}

	order, err := h.fulfillment.CancelOrder(r.Context(), orderID)
	if err != nil {
		h.respondError(w, r, "failed to cancel fulfillment order", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, order)
}
