package models

import (
	"time"

	"github.com/google/uuid"
)

// ProductMapping links a storefront product to the fulfillment vendor's product.
type ProductMapping struct {
	ID               uuid.UUID `json:"id"`
	LocalProductID   string    `json:"local_product_id"`
	GelatoProductUID string    `json:"gelato_product_uid"`
	ProductName      string    `json:"product_name"`
	BasePriceCents   int64     `json:"base_price_cents"`
	SalePriceCents   int64     `json:"sale_price_cents"`
	Category         string    `json:"category,omitempty"`
	Placements       string    `json:"placements,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
