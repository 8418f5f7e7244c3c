package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sifrokapp/sifrok/internal/models"
)

const orderColumns = `id, user_id, stripe_session_id, stripe_payment_id, total_cents, currency, status,
	production_cost_cents, stripe_fee_cents, net_profit_cents,
	shipping_name, shipping_email, shipping_address, shipping_city, shipping_zip_code, shipping_country,
	gelato_order_id, gelato_status, gelato_tracking_url, tracking_number, carrier, shipped_at,
	created_at, updated_at`

const orderItemColumns = `id, order_id, product_id, product_name, variant_id, variant_name, quantity, price_cents, image`

type OrderStore struct {
	pool Conn
}

func NewOrderStore(pool Conn) *OrderStore {
	return &OrderStore{pool: pool}
}

// CheckoutUpsert is the outcome of recording a completed checkout.
type CheckoutUpsert struct {
	Order   *models.Order
	Created bool
	// Paid is false when an existing order was left alone because its status
	// was already past PAID.
	Paid bool
}

// UpsertCheckout inserts the order for a checkout session or, when the session
// is already known, moves the existing order to PAID and refreshes its fee.
// The unique session constraint makes concurrent deliveries converge on one row.
func (s *OrderStore) UpsertCheckout(ctx context.Context, order *models.Order, items []models.OrderItem, feeFor func(totalCents int64) int64) (*CheckoutUpsert, error) {
	if order == nil || order.StripeSessionID == "" {
		return nil, fmt.Errorf("checkout order requires a session id")
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin checkout transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var (
		orderID    uuid.UUID
		totalCents int64
		status     string
		inserted   bool
	)
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (
			id, user_id, stripe_session_id, stripe_payment_id, total_cents, currency, status, stripe_fee_cents,
			shipping_name, shipping_email, shipping_address, shipping_city, shipping_zip_code, shipping_country
		) VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (stripe_session_id) DO UPDATE SET updated_at = NOW()
		RETURNING id, total_cents, status, (xmax = 0)
	`,
		order.ID, order.UserID, order.StripeSessionID, order.StripePaymentID, order.TotalCents, order.Currency,
		string(models.StatusPaid), feeFor(order.TotalCents),
		order.ShippingName, order.ShippingEmail, order.ShippingAddress, order.ShippingCity, order.ShippingZipCode, order.ShippingCountry,
	).Scan(&orderID, &totalCents, &status, &inserted)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert checkout order: %w", err)
	}

	result := &CheckoutUpsert{Created: inserted, Paid: true}
	if inserted {
		if err := insertItems(ctx, tx, orderID, items); err != nil {
			return nil, err
		}
	} else {
		sources := append(models.SourcesFor(models.StatusPaid), models.StatusPaid)
		tag, err := tx.Exec(ctx, `
			UPDATE orders
			SET status = $2, stripe_payment_id = COALESCE(NULLIF($3, ''), stripe_payment_id),
			    stripe_fee_cents = $4, updated_at = NOW()
			WHERE id = $1 AND status = ANY($5)
		`, orderID, string(models.StatusPaid), order.StripePaymentID, feeFor(totalCents), statusStrings(sources))
		if err != nil {
			return nil, fmt.Errorf("failed to mark existing order paid: %w", err)
		}
		result.Paid = tag.RowsAffected() > 0
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit checkout transaction: %w", err)
	}

	stored, err := s.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	result.Order = stored
	return result, nil
}

func insertItems(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	for _, item := range items {
		id := item.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO order_items (`+orderItemColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, id, orderID, item.ProductID, item.ProductName, item.VariantID, item.VariantName, item.Quantity, item.PriceCents, item.Image)
		if err != nil {
			return fmt.Errorf("failed to insert order item %s: %w", item.ProductID, err)
		}
	}
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.getOne(ctx, "id = $1", orderID)
}

func (s *OrderStore) GetBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	return s.getOne(ctx, "stripe_session_id = $1", sessionID)
}

func (s *OrderStore) GetByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	return s.getOne(ctx, "stripe_payment_id = $1", paymentID)
}

func (s *OrderStore) getOne(ctx context.Context, where string, arg any) (*models.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where+` ORDER BY created_at LIMIT 1`, arg)
	order, err := scanOrder(row)
	if err != nil {
		return nil, notFound(err)
	}
	items, err := s.Items(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (s *OrderStore) Items(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	byOrder, err := s.itemsFor(ctx, []uuid.UUID{orderID})
	if err != nil {
		return nil, err
	}
	return byOrder[orderID], nil
}

func (s *OrderStore) itemsFor(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]models.OrderItem, error) {
	out := make(map[uuid.UUID][]models.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT `+orderItemColumns+` FROM order_items WHERE order_id = ANY($1) ORDER BY product_name, id`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.VariantID, &item.VariantName, &item.Quantity, &item.PriceCents, &item.Image); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		out[item.OrderID] = append(out[item.OrderID], item)
	}
	return out, rows.Err()
}

// OrderFilter narrows admin order listings. Zero values mean no restriction.
type OrderFilter struct {
	Statuses []models.OrderStatus
	From     *time.Time
	To       *time.Time
	Search   string
	Limit    int
	Offset   int
}

func (f OrderFilter) IsZero() bool {
	return len(f.Statuses) == 0 && f.From == nil && f.To == nil && strings.TrimSpace(f.Search) == "" && f.Offset == 0
}

func (s *OrderStore) List(ctx context.Context, filter OrderFilter) ([]*models.Order, error) {
	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status = ANY("+arg(statusStrings(filter.Statuses))+")")
	}
	if filter.From != nil {
		clauses = append(clauses, "created_at >= "+arg(*filter.From))
	}
	if filter.To != nil {
		clauses = append(clauses, "created_at <= "+arg(*filter.To))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		placeholder := arg("%" + search + "%")
		clauses = append(clauses, "(id::text ILIKE "+placeholder+" OR shipping_email ILIKE "+placeholder+" OR shipping_name ILIKE "+placeholder+")")
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	return s.queryOrders(ctx, query, args...)
}

// ListRevenueSince returns revenue-counted orders created at or after since, without items.
func (s *OrderStore) ListRevenueSince(ctx context.Context, since time.Time) ([]*models.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = ANY($1) AND created_at >= $2
		ORDER BY created_at DESC
	`, statusStrings(models.RevenueStatuses), since)
	if err != nil {
		return nil, fmt.Errorf("failed to query revenue orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (s *OrderStore) queryOrders(ctx context.Context, query string, args ...any) ([]*models.Order, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var (
		orders []*models.Order
		ids    []uuid.UUID
	)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	items, err := s.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, order := range orders {
		order.Items = items[order.ID]
	}
	return orders, nil
}

// Transition moves an order to status when the state machine allows it from
// the current status. It returns ErrInvalidStatusTransition otherwise.
func (s *OrderStore) Transition(ctx context.Context, orderID uuid.UUID, to models.OrderStatus) error {
	sources := models.SourcesFor(to)
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`, orderID, string(to), statusStrings(sources))
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOr(ctx, orderID, fmt.Errorf("%w: cannot move to %s", ErrInvalidStatusTransition, to))
	}
	return nil
}

func (s *OrderStore) UpdateProfit(ctx context.Context, orderID uuid.UUID, productionCents, feeCents, netCents int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET production_cost_cents = $2, stripe_fee_cents = $3, net_profit_cents = $4, updated_at = NOW()
		WHERE id = $1
	`, orderID, productionCents, feeCents, netCents)
	if err != nil {
		return fmt.Errorf("failed to update order profit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachFulfillment stores the vendor order id once. A PAID order moves to
// PROCESSING. ErrConflict means another submission already stored an id.
func (s *OrderStore) AttachFulfillment(ctx context.Context, orderID uuid.UUID, vendorOrderID, vendorStatus string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET gelato_order_id = $2, gelato_status = $3,
		    status = CASE WHEN status = $4 THEN $5 ELSE status END,
		    updated_at = NOW()
		WHERE id = $1 AND gelato_order_id IS NULL
	`, orderID, vendorOrderID, vendorStatus, string(models.StatusPaid), string(models.StatusProcessing))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: vendor order %s already linked", ErrConflict, vendorOrderID)
		}
		return fmt.Errorf("failed to attach fulfillment order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOr(ctx, orderID, fmt.Errorf("%w: order already has a vendor order", ErrConflict))
	}
	return nil
}

type TrackingUpdate struct {
	VendorStatus   string
	TrackingURL    string
	TrackingNumber string
	Carrier        string
	ShippedAt      *time.Time
}

// UpdateTracking copies vendor fulfillment details. Empty values keep what is stored.
func (s *OrderStore) UpdateTracking(ctx context.Context, orderID uuid.UUID, update TrackingUpdate) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET gelato_status = COALESCE(NULLIF($2, ''), gelato_status),
		    gelato_tracking_url = COALESCE(NULLIF($3, ''), gelato_tracking_url),
		    tracking_number = COALESCE(NULLIF($4, ''), tracking_number),
		    carrier = COALESCE(NULLIF($5, ''), carrier),
		    shipped_at = COALESCE($6, shipped_at),
		    updated_at = NOW()
		WHERE id = $1
	`, orderID, update.VendorStatus, update.TrackingURL, update.TrackingNumber, update.Carrier, update.ShippedAt)
	if err != nil {
		return fmt.Errorf("failed to update tracking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *OrderStore) missingOr(ctx context.Context, orderID uuid.UUID, err error) error {
	var exists bool
	if scanErr := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); scanErr != nil {
		return fmt.Errorf("failed to check order: %w", scanErr)
	}
	if !exists {
		return ErrNotFound
	}
	return err
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		order                models.Order
		status               string
		paymentID, gelatoID  pgtype.Text
		production, fee, net pgtype.Int8
		shippedAt            pgtype.Timestamptz
	)
	err := row.Scan(
		&order.ID, &order.UserID, &order.StripeSessionID, &paymentID, &order.TotalCents, &order.Currency, &status,
		&production, &fee, &net,
		&order.ShippingName, &order.ShippingEmail, &order.ShippingAddress, &order.ShippingCity, &order.ShippingZipCode, &order.ShippingCountry,
		&gelatoID, &order.GelatoStatus, &order.GelatoTrackingURL, &order.TrackingNumber, &order.Carrier, &shippedAt,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.Status = models.OrderStatus(status)
	order.StripePaymentID = paymentID.String
	order.GelatoOrderID = gelatoID.String
	order.ProductionCostCents = int8Ptr(production)
	order.StripeFeeCents = int8Ptr(fee)
	order.NetProfitCents = int8Ptr(net)
	if shippedAt.Valid {
		t := shippedAt.Time
		order.ShippedAt = &t
	}
	return &order, nil
}

func int8Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
