package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          uint            `gorm:"primaryKey;autoIncrement"   json:"id"`
	Name        string          `gorm:"not null"                   json:"name"`
	Category    string          `gorm:"index;not null"             json:"category"`
	Description string          `gorm:"not null"                   json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(8,2);not null" json:"price"`
	Stock       uint            `gorm:"not null;default:0"         json:"stock"`
	CreatedAt   time.Time       `json:"created_at"`
}

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"unique;not null"          json:"username"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	Role         string `gorm:"not null"                 json:"role"`
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"          json:"id"`
	Token     string `gorm:"unique;not null"     json:"token"`
	UserID    uint   `gorm:"index;not null"      json:"user_id"`
	Role      string `gorm:"not null"            json:"role"`
	ExpiresAt int64  `gorm:"not null"            json:"expires_at"`
	Revoked   bool   `gorm:"default:false"       json:"revoked"`
}

type CartItem struct {
	ID        uint `gorm:"primaryKey"                  json:"id"`
	UserID    uint `gorm:"index;not null"              json:"user_id"`
	ProductID uint `gorm:"not null"                    json:"product_id"`
	Quantity  uint `gorm:"default:1;check:quantity>0"  json:"quantity"`
}

// Order is mutated only through the transition handlers; Total is fixed at
// creation time and never recomputed.
type Order struct {
	ID        uint            `gorm:"primaryKey"                  json:"id"`
	UserID    uint            `gorm:"index;not null"              json:"user_id"`
	Status    OrderStatus     `gorm:"not null"                    json:"status"`
	Total     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total"`
	Fullname  string          `gorm:"not null"                    json:"fullname"`
	Phone     string          `gorm:"not null"                    json:"phone"`
	Line1     string          `gorm:"not null"                    json:"line1"`
	Line2     string          `json:"line2"`
	Postcode  string          `gorm:"not null"                    json:"postcode"`
	City      string          `gorm:"not null"                    json:"city"`
	State     string          `gorm:"not null"                    json:"state"`
	Country   string          `gorm:"not null"                    json:"country"`
	CreatedAt time.Time       `json:"created_at"`
	Items     []OrderItem     `gorm:"foreignKey:OrderID" json:"items"`
	Payment   *Payment        `gorm:"foreignKey:OrderID" json:"payment,omitempty"`
}

// OrderItem captures the unit price at order creation; the row is immutable
// afterwards even if the product price changes.
type OrderItem struct {
	ID        uint            `gorm:"primaryKey"                 json:"id"`
	OrderID   uint            `gorm:"index;not null"             json:"order_id"`
	ProductID uint            `gorm:"not null"                   json:"product_id"`
	Quantity  uint            `gorm:"default:1;check:quantity>0" json:"quantity"`
	Price     decimal.Decimal `gorm:"type:decimal(8,2);not null" json:"price"`
}

// Payment is one-to-one with Order, enforced by the unique index on OrderID.
type Payment struct {
	ID            uint            `gorm:"primaryKey"                  json:"id"`
	OrderID       uint            `gorm:"uniqueIndex;not null"        json:"order_id"`
	Method        PaymentMethod   `gorm:"not null"                    json:"method"`
	Amount        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Status        PaymentStatus   `gorm:"not null"                    json:"status"`
	TransactionID string          `json:"transaction_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

type Review struct {
	ID        uint      `gorm:"primaryKey"           json:"id"`
	UserID    uint      `gorm:"index;not null"       json:"user_id"`
	ProductID uint      `gorm:"index;not null"       json:"product_id"`
	Rating    uint      `gorm:"not null;default:5"   json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}
