package db

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/sifrokapp/sifrok/internal/models"
)

const (
	upsertCheckoutSQL = "ON CONFLICT (stripe_session_id) DO UPDATE SET updated_at = NOW() RETURNING id, total_cents, status, (xmax = 0)"
	repayExistingSQL  = "WHERE id = $1 AND status = ANY($5)"
	getOrderSQL       = "FROM orders WHERE id = $1"
	getItemsSQL       = "FROM order_items WHERE order_id = ANY($1)"
)

func tenthFee(totalCents int64) int64 {
	return totalCents / 10
}

func upsertedRow(id uuid.UUID, totalCents int64, status models.OrderStatus, inserted bool) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "total_cents", "status", "inserted"}).AddRow(id, totalCents, string(status), inserted)
}

func TestOrderStoreUpsertCheckout_InsertsItemsForNewOrder(t *testing.T) {
	t.Parallel()

	mock := newMockConn(t)
	store := NewOrderStore(mock)
	order := testOrder(models.StatusPaid)
	items := []models.OrderItem{
		{ProductID: "prod_1", ProductName: "Camiseta", VariantID: "v1", VariantName: "M", Quantity: 2, PriceCents: 1995, Image: "https://i.imgur.com/a.png"},
		{ProductID: "prod_2", ProductName: "Taza", Quantity: 1, PriceCents: 600},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(sqlFragment(upsertCheckoutSQL)).
		WithArgs(order.ID, "user_1", "cs_test_1", "pi_test_1", int64(4590), "eur", "PAID", int64(459),
			"Ana Lopez", "ana@example.com", "", "", "", "ES").
		WillReturnRows(upsertedRow(order.ID, 4590, models.StatusPaid, true))
	for _, item := range items {
		mock.ExpectExec(sqlFragment("INSERT INTO order_items")).
			WithArgs(pgxmock.AnyArg(), order.ID, item.ProductID, item.ProductName, item.VariantID, item.VariantName, item.Quantity, item.PriceCents, item.Image).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()
	mock.ExpectQuery(sqlFragment(getOrderSQL)).WithArgs(order.ID).WillReturnRows(orderRows(order))
	mock.ExpectQuery(sqlFragment(getItemsSQL)).WithArgs([]uuid.UUID{order.ID}).WillReturnRows(itemRows(
		models.OrderItem{ID: uuid.New(), OrderID: order.ID, ProductID: "prod_1", ProductName: "Camiseta", Quantity: 2, PriceCents: 1995},
		models.OrderItem{ID: uuid.New(), OrderID: order.ID, ProductID: "prod_2", ProductName: "Taza", Quantity: 1, PriceCents: 600},
	))

	result, err := store.UpsertCheckout(context.Background(), order, items, tenthFee)
	if err != nil {
		t.Fatalf("UpsertCheckout() error = %v", err)
	}
	if !result.Created || !result.Paid {
		t.Fatalf("result = %+v, want created and paid", result)
	}
	if result.Order.ID != order.ID || len(result.Order.Items) != 2 {
		t.Fatalf("stored order = %+v", result.Order)
	}
	expectationsMet(t, mock)
}

func TestOrderStoreUpsertCheckout_ExistingSessionSkipsItems(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		existing models.OrderStatus
		affected int64
		wantPaid bool
	}{
		{name: "pending order is paid", existing: models.StatusPending, affected: 1, wantPaid: true},
		{name: "shipped order is left alone", existing: models.StatusShipped, affected: 0, wantPaid: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := newMockConn(t)
			store := NewOrderStore(mock)
			existing := testOrder(tt.existing)
			existing.TotalCents = 4200
			redelivered := testOrder(models.StatusPaid)
			redelivered.StripePaymentID = "pi_redelivered"
			items := []models.OrderItem{{ProductID: "prod_1", ProductName: "Camiseta", Quantity: 1, PriceCents: 4200}}

			mock.ExpectBegin()
			mock.ExpectQuery(sqlFragment(upsertCheckoutSQL)).
				WillReturnRows(upsertedRow(existing.ID, 4200, tt.existing, false))
			mock.ExpectExec(sqlFragment(repayExistingSQL)).
				WithArgs(existing.ID, "PAID", "pi_redelivered", int64(420), []string{"PENDING", "FAILED", "PAID"}).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))
			mock.ExpectCommit()
			mock.ExpectQuery(sqlFragment(getOrderSQL)).WithArgs(existing.ID).WillReturnRows(orderRows(existing))
			mock.ExpectQuery(sqlFragment(getItemsSQL)).WithArgs([]uuid.UUID{existing.ID}).WillReturnRows(itemRows())

			result, err := store.UpsertCheckout(context.Background(), redelivered, items, tenthFee)
			if err != nil {
				t.Fatalf("UpsertCheckout() error = %v", err)
			}
			if result.Created || result.Paid != tt.wantPaid {
				t.Fatalf("result = %+v, want created=false paid=%v", result, tt.wantPaid)
			}
			if result.Order.ID != existing.ID {
				t.Fatalf("order id = %s, want existing %s", result.Order.ID, existing.ID)
			}
			expectationsMet(t, mock)
		})
	}
}

func boolPtr(v bool) *bool {
	return &v
}

func TestOrderStoreTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		to          models.OrderStatus
		wantSources []string
		affected    int64
		exists      *bool
		wantErr     error
	}{
		{
			name:        "refund cancels delivered orders too",
			to:          models.StatusCancelled,
			wantSources: []string{"PENDING", "PAID", "PROCESSING", "SHIPPED", "DELIVERED"},
			affected:    1,
		},
		{
			name:        "guard rejects current status",
			to:          models.StatusShipped,
			wantSources: []string{"PAID", "PROCESSING"},
			exists:      boolPtr(true),
			wantErr:     ErrInvalidStatusTransition,
		},
		{
			name:        "missing order",
			to:          models.StatusPaid,
			wantSources: []string{"PENDING", "FAILED"},
			exists:      boolPtr(false),
			wantErr:     ErrNotFound,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := newMockConn(t)
			store := NewOrderStore(mock)
			orderID := uuid.New()

			mock.ExpectExec(sqlFragment("UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1 AND status = ANY($3)")).
				WithArgs(orderID, string(tt.to), tt.wantSources).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))
			if tt.exists != nil {
				mock.ExpectQuery(sqlFragment("SELECT EXISTS")).WithArgs(orderID).WillReturnRows(existsRow(*tt.exists))
			}

			err := store.Transition(context.Background(), orderID, tt.to)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Transition() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Transition() error = %v, want %v", err, tt.wantErr)
			}
			expectationsMet(t, mock)
		})
	}
}

func TestOrderStoreAttachFulfillment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		affected int64
		execErr  error
		exists   *bool
		wantErr  error
	}{
		{name: "first submission stores the vendor id", affected: 1},
		{name: "second submission conflicts", exists: boolPtr(true), wantErr: ErrConflict},
		{name: "vendor id linked to another order", execErr: &pgconn.PgError{Code: pgerrcode.UniqueViolation}, wantErr: ErrConflict},
		{name: "missing order", exists: boolPtr(false), wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := newMockConn(t)
			store := NewOrderStore(mock)
			orderID := uuid.New()

			exec := mock.ExpectExec(sqlFragment("WHERE id = $1 AND gelato_order_id IS NULL")).
				WithArgs(orderID, "gel_1", "created", "PAID", "PROCESSING")
			if tt.execErr != nil {
				exec.WillReturnError(tt.execErr)
			} else {
				exec.WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))
			}
			if tt.exists != nil {
				mock.ExpectQuery(sqlFragment("SELECT EXISTS")).WithArgs(orderID).WillReturnRows(existsRow(*tt.exists))
			}

			err := store.AttachFulfillment(context.Background(), orderID, "gel_1", "created")
			if tt.wantErr == nil && err != nil {
				t.Fatalf("AttachFulfillment() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("AttachFulfillment() error = %v, want %v", err, tt.wantErr)
			}
			expectationsMet(t, mock)
		})
	}
}
