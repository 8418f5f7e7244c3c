package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/sifrokapp/sifrok/internal/design"
	"github.com/sifrokapp/sifrok/internal/models"
	"github.com/sifrokapp/sifrok/internal/pricing"
	"github.com/sifrokapp/sifrok/internal/services"
	"github.com/sifrokapp/sifrok/internal/stripe"
)

func testOrder(status models.OrderStatus) *models.Order {
	return &models.Order{
		ID:              uuid.New(),
		StripeSessionID: "cs_" + uuid.NewString()[:8],
		TotalCents:      4200,
		Currency:        "eur",
		Status:          status,
		CreatedAt:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func withVars(req *http.Request, vars map[string]string) *http.Request {
	return mux.SetURLVars(req, vars)
}

func TestStatusForError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{name: "user error", err: services.UserError{Message: "name is required"}, wantStatus: http.StatusBadRequest, wantMessage: "name is required"},
		{name: "wrapped not found", err: fmt.Errorf("lookup: %w", services.ErrOrderNotFound), wantStatus: http.StatusNotFound, wantMessage: "lookup: order not found"},
		{name: "promotion not found", err: services.ErrPromotionNotFound, wantStatus: http.StatusNotFound, wantMessage: "promotion not found"},
		{name: "invalid transition", err: services.ErrInvalidStatusTransition, wantStatus: http.StatusConflict},
		{name: "already submitted", err: services.ErrOrderAlreadySubmitted, wantStatus: http.StatusConflict},
		{name: "mapping conflict", err: services.ErrMappingConflict, wantStatus: http.StatusConflict},
		{name: "promotion exhausted", err: services.ErrPromotionExhausted, wantStatus: http.StatusConflict},
		{name: "no mapped items", err: services.ErrNoMappedItems, wantStatus: http.StatusUnprocessableEntity},
		{name: "unavailable", err: services.ErrServiceUnavailable, wantStatus: http.StatusServiceUnavailable},
		{name: "internal detail hidden", err: errors.New("pq: password authentication failed"), wantStatus: http.StatusInternalServerError, wantMessage: "internal server error"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			status, message := statusForError(tt.err)
			if status != tt.wantStatus {
				t.Fatalf("unexpected status: got=%d want=%d", status, tt.wantStatus)
			}
			if tt.wantMessage != "" && message != tt.wantMessage {
				t.Fatalf("unexpected message: got=%q want=%q", message, tt.wantMessage)
			}
		})
	}
}

func TestGetOrder(t *testing.T) {
	t.Parallel()

	order := testOrder(models.StatusPaid)
	env := newTestEnv(t, order)

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{name: "found", id: order.ID.String(), wantStatus: http.StatusOK},
		{name: "unknown", id: uuid.NewString(), wantStatus: http.StatusNotFound},
		{name: "malformed", id: "not-a-uuid", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := withVars(httptest.NewRequest(http.MethodGet, "/api/admin/orders/"+tt.id, nil), map[string]string{"id": tt.id})
			rec := httptest.NewRecorder()
			env.handlers.GetOrder(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("unexpected status: got=%d want=%d body=%s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				got := decodeBody[models.Order](t, rec)
				if got.ID != order.ID || got.TotalCents != 4200 {
					t.Fatalf("unexpected order: %+v", got)
				}
			}
		})
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		from       models.OrderStatus
		body       string
		wantStatus int
	}{
		{name: "paid to processing", from: models.StatusPaid, body: `{"status":"processing"}`, wantStatus: http.StatusOK},
		{name: "shipped back to paid", from: models.StatusShipped, body: `{"status":"PAID"}`, wantStatus: http.StatusConflict},
		{name: "unknown status", from: models.StatusPaid, body: `{"status":"LOST"}`, wantStatus: http.StatusBadRequest},
		{name: "unknown field", from: models.StatusPaid, body: `{"state":"PAID"}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			order := testOrder(tt.from)
			env := newTestEnv(t, order)

			req := httptest.NewRequest(http.MethodPatch, "/api/admin/orders/"+order.ID.String()+"/status", strings.NewReader(tt.body))
			req = withVars(req, map[string]string{"id": order.ID.String()})
			rec := httptest.NewRecorder()
			env.handlers.UpdateOrderStatus(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("unexpected status: got=%d want=%d body=%s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestListOrders_ParsesFilters(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testOrder(models.StatusPaid), testOrder(models.StatusShipped))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/orders?status=paid,shipped&startDate=2026-03-01&endDate=2026-03-31&search=ana&limit=10", nil)
	rec := httptest.NewRecorder()
	env.handlers.ListOrders(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[ordersResponse](t, rec)
	if resp.Count != 2 || len(resp.Orders) != 2 {
		t.Fatalf("unexpected orders response: %+v", resp)
	}

	filter := env.orders.filter()
	if len(filter.Statuses) != 2 || filter.Statuses[0] != models.StatusPaid || filter.Statuses[1] != models.StatusShipped {
		t.Fatalf("unexpected statuses: %v", filter.Statuses)
	}
	if filter.Search != "ana" || filter.Limit != 10 {
		t.Fatalf("unexpected search/limit: %+v", filter)
	}
	wantTo := time.Date(2026, 3, 31, 23, 59, 59, 999999999, time.UTC)
	if filter.To == nil || !filter.To.Equal(wantTo) {
		t.Fatalf("expected end date to cover the whole day, got %v", filter.To)
	}
}

func TestListOrders_RejectsBadQuery(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	for _, query := range []string{"startDate=yesterday", "limit=ten", "status=LOST", "startDate=2026-03-10&endDate=2026-03-01"} {
		rec := httptest.NewRecorder()
		env.handlers.ListOrders(rec, httptest.NewRequest(http.MethodGet, "/api/admin/orders?"+query, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: unexpected status: got=%d want=%d", query, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestPricingPreview(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	want, err := pricing.DeriveDisplayPrices(1500)
	if err != nil {
		t.Fatalf("unexpected derive error: %v", err)
	}

	rec := httptest.NewRecorder()
	env.handlers.PricingPreview(rec, httptest.NewRequest(http.MethodGet, "/api/admin/pricing/preview?base=1500", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d body=%s", rec.Code, rec.Body.String())
	}
	got := decodeBody[pricePreview](t, rec)
	if got.BaseCents != 1500 || got.DisplayPrices != want {
		t.Fatalf("unexpected preview: got=%+v want=%+v", got, want)
	}

	for _, query := range []string{"", "?base=0", "?base=abc"} {
		rec := httptest.NewRecorder()
		env.handlers.PricingPreview(rec, httptest.NewRequest(http.MethodGet, "/api/admin/pricing/preview"+query, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%q: unexpected status: got=%d want=%d", query, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestExport_SendsAttachment(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testOrder(models.StatusPaid))

	rec := httptest.NewRecorder()
	env.handlers.Export(rec, httptest.NewRequest(http.MethodGet, "/api/admin/export?type=orders&format=csv", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/csv") {
		t.Fatalf("unexpected content type %q", got)
	}
	disposition := rec.Header().Get("Content-Disposition")
	if !strings.HasPrefix(disposition, `attachment; filename="orders_`) || !strings.HasSuffix(disposition, `.csv"`) {
		t.Fatalf("unexpected content disposition %q", disposition)
	}
	if lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n"); len(lines) != 2 {
		t.Fatalf("expected header and one row, got %d lines", len(lines))
	}

	rec = httptest.NewRecorder()
	env.handlers.Export(rec, httptest.NewRequest(http.MethodGet, "/api/admin/export?type=products", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status for unknown type: got=%d", rec.Code)
	}
}

func TestDesignEndpoints_DisabledPipeline(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.handlers.GenerateDesign(rec, httptest.NewRequest(http.MethodPost, "/api/admin/design/generate", strings.NewReader(`{"prompt":"a fox"}`)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected generate status: got=%d want=%d", rec.Code, http.StatusServiceUnavailable)
	}

	rec = httptest.NewRecorder()
	env.handlers.DesignTemplates(rec, httptest.NewRequest(http.MethodGet, "/api/admin/design/templates", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected templates status: got=%d", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if enabled, _ := body["enabled"].(bool); enabled {
		t.Fatalf("expected pipeline to be reported disabled")
	}
}

func TestWebhookLogs(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	for _, source := range []string{models.WebhookSourceStripe, models.WebhookSourceGelato, models.WebhookSourceStripe} {
		if err := env.logs.Create(t.Context(), &models.WebhookLog{Source: source, EventType: "test"}); err != nil {
			t.Fatalf("failed to seed webhook log: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	env.handlers.WebhookLogs(rec, httptest.NewRequest(http.MethodGet, "/api/admin/webhook-logs?source=stripe&limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d", rec.Code)
	}
	if logs := decodeBody[map[string][]models.WebhookLog](t, rec)["logs"]; len(logs) != 2 {
		t.Fatalf("expected two stripe logs, got %d", len(logs))
	}

	rec = httptest.NewRecorder()
	env.handlers.WebhookLogs(rec, httptest.NewRequest(http.MethodGet, "/api/admin/webhook-logs?limit=1000", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status for oversized limit: got=%d", rec.Code)
	}
}

type fakeRefundGateway struct {
	err error
}

func (f fakeRefundGateway) Refund(_ context.Context, paymentIntentID string, _ *int64) (*stripe.Refund, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.Refund{ID: "re_" + paymentIntentID, AmountCents: 4200}, nil
}

func (fakeRefundGateway) PaymentIntent(context.Context, string) (*stripe.PaymentIntent, error) {
	return nil, errors.New("no such payment intent")
}

func TestRefundOrder_StatusFollowsReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     models.OrderStatus
		unknown    bool
		refundErr  error
		wantStatus int
		wantReason string
	}{
		{name: "refunded", status: models.StatusPaid, wantStatus: http.StatusOK},
		{name: "unknown order", status: models.StatusPaid, unknown: true, wantStatus: http.StatusNotFound, wantReason: services.RefundReasonOrderNotFound},
		{name: "already cancelled", status: models.StatusCancelled, wantStatus: http.StatusBadRequest, wantReason: services.RefundReasonAlreadyCancelled},
		{name: "processor down", status: models.StatusDelivered, refundErr: errors.New("card network unavailable"), wantStatus: http.StatusInternalServerError, wantReason: services.RefundReasonProcessorFailed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			order := testOrder(tt.status)
			order.StripePaymentID = "pi_admin_1"
			env := newTestEnv(t, order)
			env.handlers.refunds = services.NewRefundService(env.orders, fakeRefundGateway{err: tt.refundErr}, env.logs, nil, env.handlers.logger)

			id := order.ID.String()
			if tt.unknown {
				id = uuid.NewString()
			}
			req := httptest.NewRequest(http.MethodPost, "/api/admin/orders/"+id+"/refund", strings.NewReader(`{}`))
			req = withVars(req, map[string]string{"id": id})
			rec := httptest.NewRecorder()
			env.handlers.RefundOrder(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("unexpected status: got=%d want=%d body=%s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			got := decodeBody[services.RefundResult](t, rec)
			if got.Reason != tt.wantReason || got.Success != (tt.wantReason == "") {
				t.Fatalf("result = %+v, want reason %q", got, tt.wantReason)
			}
		})
	}
}

type fakeStudioEditor struct{}

func (fakeStudioEditor) RemoveBackground(_ context.Context, imageURL string) (string, error) {
	return imageURL + "?cut", nil
}

func (fakeStudioEditor) EditImage(_ context.Context, req design.EditRequest) (string, error) {
	if req.Model != "" && req.Model != design.DefaultEditModel {
		return "", design.ErrUnknownModel
	}
	return req.ImageURL + "?edited", nil
}

func TestStudioEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.handlers.GenerateIdeas(rec, httptest.NewRequest(http.MethodPost, "/api/admin/design/ideas", strings.NewReader(`{"theme":"forest"}`)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected ideas status without a router key: got=%d", rec.Code)
	}

	env.handlers.studio = services.NewStudioService(nil, fakeStudioEditor{}, nil, env.handlers.logger)

	tests := []struct {
		name       string
		handler    http.HandlerFunc
		body       string
		wantStatus int
		wantURL    string
	}{
		{name: "remove background", handler: env.handlers.RemoveBackground, body: `{"image_url":"https://i.imgur.com/fox.png"}`, wantStatus: http.StatusOK, wantURL: "https://i.imgur.com/fox.png?cut"},
		{name: "edit design", handler: env.handlers.EditDesign, body: `{"image_url":"https://i.imgur.com/fox.png","instructions":"add a hat","area":"head"}`, wantStatus: http.StatusOK, wantURL: "https://i.imgur.com/fox.png?edited"},
		{name: "unknown model", handler: env.handlers.EditDesign, body: `{"image_url":"https://i.imgur.com/fox.png","instructions":"hat","model":"dall-e"}`, wantStatus: http.StatusBadRequest},
		{name: "unknown field", handler: env.handlers.EditDesign, body: `{"image":"https://i.imgur.com/fox.png"}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(http.MethodPost, "/api/admin/design", strings.NewReader(tt.body)))
			if rec.Code != tt.wantStatus {
				t.Fatalf("unexpected status: got=%d want=%d body=%s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantURL != "" {
				if got := decodeBody[map[string]string](t, rec)["image_url"]; got != tt.wantURL {
					t.Fatalf("image_url = %q, want %q", got, tt.wantURL)
				}
			}
		})
	}
}
