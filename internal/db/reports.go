package db

import (
	"context"
	"fmt"
	"time"

	"github.com/sifrokapp/sifrok/internal/models"
)

// ReportStore serves the dashboard aggregates and the user/review exports.
type ReportStore struct {
	pool Conn
}

func NewReportStore(pool Conn) *ReportStore {
	return &ReportStore{pool: pool}
}

type OrderTotals struct {
	Count        int   `json:"count"`
	RevenueCents int64 `json:"revenue_cents"`
}

// RevenueTotals sums revenue-counted orders created in [from, to). Nil bounds are open.
func (s *ReportStore) RevenueTotals(ctx context.Context, from, to *time.Time) (OrderTotals, error) {
	var totals OrderTotals
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_cents), 0)::bigint
		FROM orders
		WHERE status = ANY($1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
	`, statusStrings(models.RevenueStatuses), from, to).Scan(&totals.Count, &totals.RevenueCents)
	if err != nil {
		return OrderTotals{}, fmt.Errorf("failed to sum revenue: %w", err)
	}
	return totals, nil
}

func (s *ReportStore) CountOrdersWithStatus(ctx context.Context, status models.OrderStatus) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE status = $1`, string(status)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return count, nil
}

// CountUsers counts accounts created at or after since. A nil since counts all.
func (s *ReportStore) CountUsers(ctx context.Context, since *time.Time) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE ($1::timestamptz IS NULL OR created_at >= $1)`, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func (s *ReportStore) CountReviews(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reviews`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count reviews: %w", err)
	}
	return count, nil
}

type TopProduct struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"name"`
	Quantity    int    `json:"quantity"`
	Orders      int    `json:"orders"`
}

func (s *ReportStore) TopProducts(ctx context.Context, since time.Time, limit int) ([]TopProduct, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT i.product_id, i.product_name, SUM(i.quantity)::int, COUNT(*)::int
		FROM order_items i
		JOIN orders o ON o.id = i.order_id
		WHERE o.status = ANY($1) AND o.created_at >= $2
		GROUP BY i.product_id, i.product_name
		ORDER BY SUM(i.quantity) DESC, i.product_name
		LIMIT $3
	`, statusStrings(models.RevenueStatuses), since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top products: %w", err)
	}
	defer rows.Close()

	var products []TopProduct
	for rows.Next() {
		var p TopProduct
		if err := rows.Scan(&p.ProductID, &p.ProductName, &p.Quantity, &p.Orders); err != nil {
			return nil, fmt.Errorf("failed to scan top product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Users returns accounts created in the optional range with their order and review counts.
func (s *ReportStore) Users(ctx context.Context, from, to *time.Time) ([]*models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.name, u.email, u.role, u.created_at,
		       (SELECT COUNT(*) FROM orders o WHERE o.user_id = u.id)::int,
		       (SELECT COUNT(*) FROM reviews r WHERE r.user_id = u.id)::int
		FROM users u
		WHERE ($1::timestamptz IS NULL OR u.created_at >= $1)
		  AND ($2::timestamptz IS NULL OR u.created_at <= $2)
		ORDER BY u.created_at DESC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt, &u.OrderCount, &u.ReviewCount); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (s *ReportStore) Reviews(ctx context.Context, from, to *time.Time) ([]*models.Review, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.product_name, u.name, u.email, r.rating, r.title, r.comment, r.is_verified, r.created_at
		FROM reviews r
		JOIN users u ON u.id = r.user_id
		WHERE ($1::timestamptz IS NULL OR r.created_at >= $1)
		  AND ($2::timestamptz IS NULL OR r.created_at <= $2)
		ORDER BY r.created_at DESC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*models.Review
	for rows.Next() {
		var r models.Review
		if err := rows.Scan(&r.ID, &r.ProductName, &r.UserName, &r.UserEmail, &r.Rating, &r.Title, &r.Comment, &r.IsVerified, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, &r)
	}
	return reviews, rows.Err()
}
