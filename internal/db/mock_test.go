package db

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/sifrokapp/sifrok/internal/models"
)

var fixedTime = time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

func newMockConn(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func expectationsMet(t *testing.T, mock pgxmock.PgxPoolIface) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet database expectations: %v", err)
	}
}

// sqlFragment matches statement text regardless of the surrounding query.
func sqlFragment(fragment string) string {
	return regexp.QuoteMeta(fragment)
}

func columnNames(list string) []string {
	return strings.Fields(strings.ReplaceAll(list, ",", " "))
}

func orderRows(orders ...*models.Order) *pgxmock.Rows {
	rows := pgxmock.NewRows(columnNames(orderColumns))
	for _, o := range orders {
		rows.AddRow(
			o.ID, o.UserID, o.StripeSessionID, pgtype.Text{String: o.StripePaymentID, Valid: o.StripePaymentID != ""},
			o.TotalCents, o.Currency, string(o.Status),
			pgtype.Int8{}, pgtype.Int8{}, pgtype.Int8{},
			o.ShippingName, o.ShippingEmail, o.ShippingAddress, o.ShippingCity, o.ShippingZipCode, o.ShippingCountry,
			pgtype.Text{String: o.GelatoOrderID, Valid: o.GelatoOrderID != ""}, o.GelatoStatus, "", "", "", pgtype.Timestamptz{},
			fixedTime, fixedTime,
		)
	}
	return rows
}

func itemRows(items ...models.OrderItem) *pgxmock.Rows {
	rows := pgxmock.NewRows(columnNames(orderItemColumns))
	for _, item := range items {
		rows.AddRow(item.ID, item.OrderID, item.ProductID, item.ProductName, item.VariantID, item.VariantName, item.Quantity, item.PriceCents, item.Image)
	}
	return rows
}

func existsRow(exists bool) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"exists"}).AddRow(exists)
}

func testOrder(status models.OrderStatus) *models.Order {
	return &models.Order{
		ID:              uuid.New(),
		UserID:          "user_1",
		StripeSessionID: "cs_test_1",
		StripePaymentID: "pi_test_1",
		TotalCents:      4590,
		Currency:        "eur",
		Status:          status,
		ShippingName:    "Ana Lopez",
		ShippingEmail:   "ana@example.com",
		ShippingCountry: "ES",
	}
}
