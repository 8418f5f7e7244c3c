package models

import "time"

// User is a storefront account. Accounts are owned by the storefront and
// only read here.
type User struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	OrderCount  int       `json:"order_count"`
	ReviewCount int       `json:"review_count"`
}

type Review struct {
	ID          string    `json:"id"`
	ProductName string    `json:"product_name"`
	UserName    string    `json:"user_name"`
	UserEmail   string    `json:"user_email"`
	Rating      int       `json:"rating"`
	Title       string    `json:"title"`
	Comment     string    `json:"comment"`
	IsVerified  bool      `json:"is_verified"`
	CreatedAt   time.Time `json:"created_at"`
}
