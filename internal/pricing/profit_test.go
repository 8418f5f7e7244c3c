package pricing

import (
	"testing"

	"github.com/google/uuid"

	"github.com/sifrokapp/sifrok/internal/models"
)

func TestStripeFee(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		total int64
		want  int64
	}{
		{name: "zero total", total: 0, want: 0},
		{name: "hundred euros", total: 10000, want: 320},
		{name: "rounds half up", total: 1234, want: 66},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := StripeFee(tt.total); got != tt.want {
				t.Fatalf("StripeFee(%d) = %d, want %d", tt.total, got, tt.want)
			}
		})
	}
}

func TestComputeOrderProfit(t *testing.T) {
	t.Parallel()

	known := uuid.New()
	unknown := uuid.New()
	items := []models.OrderItem{
		{ID: known, ProductID: "prod_shirt", Quantity: 2},
		{ID: unknown, ProductID: "prod_unmapped", Quantity: 1},
	}

	got := ComputeOrderProfit(10000, items, map[string]int64{"prod_shirt": 1500})

	if got.ProductionCents != 3000 {
		t.Fatalf("ProductionCents = %d, want 3000", got.ProductionCents)
	}
	if got.FeeCents != 320 {
		t.Fatalf("FeeCents = %d, want 320", got.FeeCents)
	}
	if got.NetCents != 6680 {
		t.Fatalf("NetCents = %d, want 6680", got.NetCents)
	}
	if got.Margin != 66.8 {
		t.Fatalf("Margin = %v, want 66.8", got.Margin)
	}
	if !got.Partial() || len(got.SkippedItems) != 1 || got.SkippedItems[0] != unknown.String() {
		t.Fatalf("SkippedItems = %v, want [%s]", got.SkippedItems, unknown)
	}
}

func TestMarginZeroTotal(t *testing.T) {
	t.Parallel()

	if got := Margin(-500, 0); got != 0 {
		t.Fatalf("Margin() = %v, want 0", got)
	}
}
