package db

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
)

type promotionRow struct {
	id          uuid.UUID
	maxUses     int32
	currentUses int
}

func promotionRows(promos ...promotionRow) *pgxmock.Rows {
	rows := pgxmock.NewRows(columnNames(promotionColumns))
	for _, p := range promos {
		rows.AddRow(
			p.id, "Rebajas", pgtype.Text{String: "VERANO", Valid: true}, "PERCENTAGE", int64(1500), true,
			pgtype.Timestamptz{}, pgtype.Timestamptz{}, pgtype.Int8{},
			pgtype.Int4{Int32: p.maxUses, Valid: p.maxUses > 0}, p.currentUses, "ALL", "", "",
			fixedTime, fixedTime,
		)
	}
	return rows
}

func TestPromotionStoreIncrementUses(t *testing.T) {
	t.Parallel()

	const (
		cappedSQL    = "WHERE id = $1 AND (max_uses IS NULL OR current_uses < max_uses) RETURNING"
		uncappedSQL  = "WHERE id = $1 RETURNING"
		getPromoSQL  = "FROM promotions WHERE id = $1"
		wantNoResult = -1
	)

	tests := []struct {
		name       string
		enforceCap bool
		updateSQL  string
		updated    *promotionRow
		stored     *promotionRow
		wantUses   int
		wantErr    error
	}{
		{
			name:       "hard cap with uses left",
			enforceCap: true,
			updateSQL:  cappedSQL,
			updated:    &promotionRow{maxUses: 5, currentUses: 4},
			wantUses:   4,
		},
		{
			name:       "hard cap exhausted",
			enforceCap: true,
			updateSQL:  cappedSQL,
			stored:     &promotionRow{maxUses: 5, currentUses: 5},
			wantUses:   wantNoResult,
			wantErr:    ErrUsageLimitReached,
		},
		{
			name:       "hard cap on missing promotion",
			enforceCap: true,
			updateSQL:  cappedSQL,
			wantUses:   wantNoResult,
			wantErr:    ErrNotFound,
		},
		{
			name:      "advisory increments past the cap",
			updateSQL: uncappedSQL,
			updated:   &promotionRow{maxUses: 5, currentUses: 6},
			wantUses:  6,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := newMockConn(t)
			store := NewPromotionStore(mock)
			id := uuid.New()

			updated := promotionRows()
			if tt.updated != nil {
				row := *tt.updated
				row.id = id
				updated = promotionRows(row)
			}
			mock.ExpectQuery(sqlFragment(tt.updateSQL)).WithArgs(id).WillReturnRows(updated)
			if tt.updated == nil {
				stored := promotionRows()
				if tt.stored != nil {
					row := *tt.stored
					row.id = id
					stored = promotionRows(row)
				}
				mock.ExpectQuery(sqlFragment(getPromoSQL)).WithArgs(id).WillReturnRows(stored)
			}

			promo, err := store.IncrementUses(context.Background(), id, tt.enforceCap)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("IncrementUses() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("IncrementUses() error = %v", err)
			}
			if tt.wantUses != wantNoResult && (promo == nil || promo.CurrentUses != tt.wantUses || promo.ID != id) {
				t.Fatalf("promotion = %+v, want %d uses", promo, tt.wantUses)
			}
			expectationsMet(t, mock)
		})
	}
}
