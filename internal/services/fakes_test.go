package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sifrokapp/sifrok/internal/cache"
	"github.com/sifrokapp/sifrok/internal/db"
	"github.com/sifrokapp/sifrok/internal/gelato"
	"github.com/sifrokapp/sifrok/internal/models"
	"github.com/sifrokapp/sifrok/internal/stripe"
)

// memoryOrders mimics db.OrderStore, including the transition guard and the
// single vendor order id per order.
type memoryOrders struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*models.Order
	lists  int
}

func newMemoryOrders(orders ...*models.Order) *memoryOrders {
	store := &memoryOrders{orders: make(map[uuid.UUID]*models.Order)}
	for _, order := range orders {
		if order.ID == uuid.Nil {
			order.ID = uuid.New()
		}
		store.orders[order.ID] = order
	}
	return store
}

func cloneOrder(order *models.Order) *models.Order {
	clone := *order
	clone.Items = append([]models.OrderItem(nil), order.Items...)
	return &clone
}

func (m *memoryOrders) UpsertCheckout(_ context.Context, order *models.Order, items []models.OrderItem, feeFor func(int64) int64) (*db.CheckoutUpsert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.orders {
		if existing.StripeSessionID != order.StripeSessionID {
			continue
		}
		result := &db.CheckoutUpsert{}
		if existing.Status == models.StatusPaid || models.CanTransition(existing.Status, models.StatusPaid) {
			existing.Status = models.StatusPaid
			if order.StripePaymentID != "" {
				existing.StripePaymentID = order.StripePaymentID
			}
			fee := feeFor(existing.TotalCents)
			existing.StripeFeeCents = &fee
			result.Paid = true
		}
		result.Order = cloneOrder(existing)
		return result, nil
	}

	stored := cloneOrder(order)
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.Status = models.StatusPaid
	fee := feeFor(stored.TotalCents)
	stored.StripeFeeCents = &fee
	stored.CreatedAt = time.Now()
	stored.Items = nil
	for _, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.OrderID = stored.ID
		stored.Items = append(stored.Items, item)
	}
	m.orders[stored.ID] = stored
	return &db.CheckoutUpsert{Order: cloneOrder(stored), Created: true, Paid: true}, nil
}

func (m *memoryOrders) find(match func(*models.Order) bool) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range m.orders {
		if match(order) {
			return cloneOrder(order), nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memoryOrders) GetByID(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	return m.find(func(o *models.Order) bool { return o.ID == orderID })
}

func (m *memoryOrders) GetBySessionID(_ context.Context, sessionID string) (*models.Order, error) {
	return m.find(func(o *models.Order) bool { return o.StripeSessionID == sessionID })
}

func (m *memoryOrders) GetByPaymentID(_ context.Context, paymentID string) (*models.Order, error) {
	return m.find(func(o *models.Order) bool { return o.StripePaymentID != "" && o.StripePaymentID == paymentID })
}

func (m *memoryOrders) List(_ context.Context, filter db.OrderFilter) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++

	var out []*models.Order
	for _, order := range m.orders {
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, order.Status) {
			continue
		}
		if filter.From != nil && order.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && order.CreatedAt.After(*filter.To) {
			continue
		}
		if search := strings.ToLower(filter.Search); search != "" &&
			!strings.Contains(strings.ToLower(order.ShippingEmail), search) &&
			!strings.Contains(strings.ToLower(order.ShippingName), search) {
			continue
		}
		out = append(out, cloneOrder(order))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memoryOrders) listCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lists
}

func (m *memoryOrders) ListRevenueSince(_ context.Context, since time.Time) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Order
	for _, order := range m.orders {
		if order.Status.CountsAsRevenue() && !order.CreatedAt.Before(since) {
			out = append(out, cloneOrder(order))
		}
	}
	return out, nil
}

func (m *memoryOrders) Transition(_ context.Context, orderID uuid.UUID, to models.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return db.ErrNotFound
	}
	if !models.CanTransition(order.Status, to) {
		return db.ErrInvalidStatusTransition
	}
	order.Status = to
	return nil
}

func (m *memoryOrders) UpdateProfit(_ context.Context, orderID uuid.UUID, productionCents, feeCents, netCents int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return db.ErrNotFound
	}
	order.ProductionCostCents = &productionCents
	order.StripeFeeCents = &feeCents
	order.NetProfitCents = &netCents
	return nil
}

func (m *memoryOrders) AttachFulfillment(_ context.Context, orderID uuid.UUID, vendorOrderID, vendorStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return db.ErrNotFound
	}
	if order.GelatoOrderID != "" {
		return db.ErrConflict
	}
	order.GelatoOrderID = vendorOrderID
	order.GelatoStatus = vendorStatus
	if order.Status == models.StatusPaid {
		order.Status = models.StatusProcessing
	}
	return nil
}

func (m *memoryOrders) UpdateTracking(_ context.Context, orderID uuid.UUID, update db.TrackingUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return db.ErrNotFound
	}
	if update.VendorStatus != "" {
		order.GelatoStatus = update.VendorStatus
	}
	if update.TrackingURL != "" {
		order.GelatoTrackingURL = update.TrackingURL
	}
	if update.TrackingNumber != "" {
		order.TrackingNumber = update.TrackingNumber
	}
	if update.Carrier != "" {
		order.Carrier = update.Carrier
	}
	if update.ShippedAt != nil {
		order.ShippedAt = update.ShippedAt
	}
	return nil
}

func (m *memoryOrders) snapshot(orderID uuid.UUID) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneOrder(m.orders[orderID])
}

func (m *memoryOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func containsStatus(statuses []models.OrderStatus, status models.OrderStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

type memoryMappings struct {
	mu       sync.Mutex
	mappings map[uuid.UUID]*models.ProductMapping
}

func newMemoryMappings(mappings ...*models.ProductMapping) *memoryMappings {
	store := &memoryMappings{mappings: make(map[uuid.UUID]*models.ProductMapping)}
	for _, mapping := range mappings {
		if mapping.ID == uuid.Nil {
			mapping.ID = uuid.New()
		}
		store.mappings[mapping.ID] = mapping
	}
	return store
}

func (m *memoryMappings) List(context.Context) ([]*models.ProductMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ProductMapping
	for _, mapping := range m.mappings {
		clone := *mapping
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductName < out[j].ProductName })
	return out, nil
}

func (m *memoryMappings) GetByID(_ context.Context, id uuid.UUID) (*models.ProductMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mapping, ok := m.mappings[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	clone := *mapping
	return &clone, nil
}

func (m *memoryMappings) ByLocalIDs(_ context.Context, localIDs []string) (map[string]*models.ProductMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*models.ProductMapping)
	for _, mapping := range m.mappings {
		for _, id := range localIDs {
			if mapping.LocalProductID == id {
				clone := *mapping
				out[id] = &clone
			}
		}
	}
	return out, nil
}

func (m *memoryMappings) Create(_ context.Context, mapping *models.ProductMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.mappings {
		if existing.LocalProductID == mapping.LocalProductID {
			return db.ErrConflict
		}
	}
	if mapping.ID == uuid.Nil {
		mapping.ID = uuid.New()
	}
	clone := *mapping
	m.mappings[mapping.ID] = &clone
	return nil
}

func (m *memoryMappings) Update(_ context.Context, mapping *models.ProductMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mappings[mapping.ID]; !ok {
		return db.ErrNotFound
	}
	clone := *mapping
	m.mappings[mapping.ID] = &clone
	return nil
}

func (m *memoryMappings) UpdateBasePrice(_ context.Context, id uuid.UUID, baseCents int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mapping, ok := m.mappings[id]
	if !ok {
		return db.ErrNotFound
	}
	mapping.BasePriceCents = baseCents
	return nil
}

func (m *memoryMappings) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mappings[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.mappings, id)
	return nil
}

type memoryPromotions struct {
	mu         sync.Mutex
	promotions map[uuid.UUID]*models.Promotion
}

func newMemoryPromotions(promotions ...*models.Promotion) *memoryPromotions {
	store := &memoryPromotions{promotions: make(map[uuid.UUID]*models.Promotion)}
	for _, promotion := range promotions {
		if promotion.ID == uuid.Nil {
			promotion.ID = uuid.New()
		}
		store.promotions[promotion.ID] = promotion
	}
	return store
}

func (m *memoryPromotions) List(context.Context) ([]*models.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Promotion
	for _, promotion := range m.promotions {
		clone := *promotion
		out = append(out, &clone)
	}
	return out, nil
}

func (m *memoryPromotions) GetByID(_ context.Context, id uuid.UUID) (*models.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	promotion, ok := m.promotions[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	clone := *promotion
	return &clone, nil
}

func (m *memoryPromotions) Create(_ context.Context, p *models.Promotion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.promotions {
		if p.Code != "" && existing.Code == p.Code {
			return db.ErrConflict
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	clone := *p
	m.promotions[p.ID] = &clone
	return nil
}

func (m *memoryPromotions) Update(_ context.Context, p *models.Promotion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.promotions[p.ID]; !ok {
		return db.ErrNotFound
	}
	clone := *p
	m.promotions[p.ID] = &clone
	return nil
}

func (m *memoryPromotions) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.promotions[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.promotions, id)
	return nil
}

func (m *memoryPromotions) IncrementUses(_ context.Context, id uuid.UUID, enforceCap bool) (*models.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	promotion, ok := m.promotions[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	if enforceCap && promotion.Exhausted() {
		return nil, db.ErrUsageLimitReached
	}
	promotion.CurrentUses++
	clone := *promotion
	return &clone, nil
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []*models.WebhookLog
}

func (m *memoryAudit) Create(_ context.Context, entry *models.WebhookLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryAudit) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.entries))
	for _, entry := range m.entries {
		types = append(types, entry.EventType)
	}
	return types
}

type fakeVendor struct {
	mu        sync.Mutex
	createErr error
	cancelErr error
	order     *gelato.Order
	requests  []gelato.OrderRequest
	cancelled []string
}

func (f *fakeVendor) CreateOrder(_ context.Context, req gelato.OrderRequest) (*gelato.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &gelato.Order{ID: "gel_" + req.OrderReferenceID[:8], OrderReferenceID: req.OrderReferenceID, Status: "created"}, nil
}

func (f *fakeVendor) GetOrder(_ context.Context, id string) (*gelato.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.order == nil {
		return nil, &gelato.APIError{StatusCode: 404, Body: "not found"}
	}
	order := *f.order
	order.ID = id
	return &order, nil
}

func (f *fakeVendor) CancelOrder(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeVendor) submitted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakePayments struct {
	mu        sync.Mutex
	refundErr error
	intent    *stripe.PaymentIntent
	refunds   []*int64
}

func (f *fakePayments) Refund(_ context.Context, paymentIntentID string, amountCents *int64) (*stripe.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds = append(f.refunds, amountCents)
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	amount := int64(4200)
	if amountCents != nil {
		amount = *amountCents
	}
	return &stripe.Refund{ID: "re_" + paymentIntentID, AmountCents: amount}, nil
}

func (f *fakePayments) PaymentIntent(_ context.Context, id string) (*stripe.PaymentIntent, error) {
	if f.intent == nil {
		return nil, errors.New("no such payment intent")
	}
	intent := *f.intent
	intent.ID = id
	return &intent, nil
}

func (f *fakePayments) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.refunds)
}

type fakeSubmitter struct {
	mu    sync.Mutex
	err   error
	calls []uuid.UUID
}

func (f *fakeSubmitter) SubmitOrder(_ context.Context, orderID uuid.UUID) (*SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, orderID)
	if f.err != nil {
		return nil, f.err
	}
	return &SubmitResult{VendorOrderID: "gel_1"}, nil
}

func newTestCache(t testing.TB) (*OrderCache, cache.Provider) {
	t.Helper()
	provider, err := cache.NewMemoryProvider()
	if err != nil {
		t.Fatalf("NewMemoryProvider() error = %v", err)
	}
	return NewOrderCache(provider, nil), provider
}

func paidOrder(items ...models.OrderItem) *models.Order {
	order := &models.Order{
		ID:              uuid.New(),
		StripeSessionID: "cs_" + uuid.NewString()[:8],
		StripePaymentID: "pi_" + uuid.NewString()[:8],
		TotalCents:      4200,
		Currency:        "eur",
		Status:          models.StatusPaid,
		ShippingName:    "Ana María López",
		ShippingEmail:   "ana@example.com",
		ShippingAddress: "Calle Mayor 1",
		ShippingCity:    "Madrid",
		ShippingZipCode: "28013",
		ShippingCountry: "ES",
		CreatedAt:       time.Now(),
	}
	for _, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.OrderID = order.ID
		order.Items = append(order.Items, item)
	}
	return order
}
