package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sifrokapp/sifrok/internal/models"
)

const mappingColumns = `id, local_product_id, gelato_product_uid, product_name, base_price_cents, sale_price_cents,
	category, placements, created_at, updated_at`

type ProductMappingStore struct {
	pool Conn
}

func NewProductMappingStore(pool Conn) *ProductMappingStore {
	return &ProductMappingStore{pool: pool}
}

func (s *ProductMappingStore) List(ctx context.Context) ([]*models.ProductMapping, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+mappingColumns+` FROM product_mappings ORDER BY product_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query product mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*models.ProductMapping
	for rows.Next() {
		mapping, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product mapping: %w", err)
		}
		mappings = append(mappings, mapping)
	}
	return mappings, rows.Err()
}

func (s *ProductMappingStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ProductMapping, error) {
	mapping, err := scanMapping(s.pool.QueryRow(ctx, `SELECT `+mappingColumns+` FROM product_mappings WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return mapping, nil
}

// ByLocalIDs resolves mappings for the given storefront product ids. Ids
// without a mapping are absent from the result.
func (s *ProductMappingStore) ByLocalIDs(ctx context.Context, localIDs []string) (map[string]*models.ProductMapping, error) {
	out := make(map[string]*models.ProductMapping, len(localIDs))
	if len(localIDs) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT `+mappingColumns+` FROM product_mappings WHERE local_product_id = ANY($1)`, localIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query product mappings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		mapping, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product mapping: %w", err)
		}
		out[mapping.LocalProductID] = mapping
	}
	return out, rows.Err()
}

func (s *ProductMappingStore) Create(ctx context.Context, mapping *models.ProductMapping) error {
	if mapping.ID == uuid.Nil {
		mapping.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO product_mappings (id, local_product_id, gelato_product_uid, product_name, base_price_cents, sale_price_cents, category, placements)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, mapping.ID, mapping.LocalProductID, mapping.GelatoProductUID, mapping.ProductName, mapping.BasePriceCents,
		mapping.SalePriceCents, mapping.Category, mapping.Placements,
	).Scan(&mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: mapping for product %s", ErrConflict, mapping.LocalProductID)
		}
		return fmt.Errorf("failed to create product mapping: %w", err)
	}
	return nil
}

func (s *ProductMappingStore) Update(ctx context.Context, mapping *models.ProductMapping) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE product_mappings
		SET local_product_id = $2, gelato_product_uid = $3, product_name = $4, base_price_cents = $5,
		    sale_price_cents = $6, category = $7, placements = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, mapping.ID, mapping.LocalProductID, mapping.GelatoProductUID, mapping.ProductName, mapping.BasePriceCents,
		mapping.SalePriceCents, mapping.Category, mapping.Placements,
	).Scan(&mapping.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: mapping for product %s", ErrConflict, mapping.LocalProductID)
		}
		return notFound(err)
	}
	return nil
}

func (s *ProductMappingStore) UpdateBasePrice(ctx context.Context, id uuid.UUID, baseCents int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE product_mappings SET base_price_cents = $2, updated_at = NOW() WHERE id = $1`, id, baseCents)
	if err != nil {
		return fmt.Errorf("failed to update base price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ProductMappingStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM product_mappings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product mapping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMapping(row pgx.Row) (*models.ProductMapping, error) {
	var m models.ProductMapping
	err := row.Scan(&m.ID, &m.LocalProductID, &m.GelatoProductUID, &m.ProductName, &m.BasePriceCents, &m.SalePriceCents,
		&m.Category, &m.Placements, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
