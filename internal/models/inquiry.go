package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type InquiryStatus string

const (
	InquiryStatusOpen   InquiryStatus = "open"
	InquiryStatusClosed InquiryStatus = "closed"
)

// Inquiry is a requested product line from a customer, optionally sourced
// from a supplier.
type Inquiry struct {
	ID            uint64          `gorm:"primarykey" json:"id"`
	CustomerID    uint64          `gorm:"not null;index" json:"customer_id"`
	SupplierID    *uint64         `gorm:"index" json:"supplier_id"`
	Site          string          `gorm:"type:varchar(100);index" json:"site"`
	PRGroup       string          `gorm:"column:pr_group;type:varchar(100);index" json:"pr_group"`
	ProductName   string          `gorm:"type:varchar(255);not null" json:"product_name"`
	Specification string          `gorm:"type:text" json:"specification"`
	Quantity      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	Unit          string          `gorm:"type:varchar(20)" json:"unit"`
	TargetPrice   decimal.Decimal `gorm:"type:decimal(18,4)" json:"target_price"`
	Remark        string          `gorm:"type:text" json:"remark"`
	Status        InquiryStatus   `gorm:"type:varchar(20);not null;default:'open'" json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`

	// Relations
	Customer Customer  `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Supplier *Supplier `gorm:"foreignKey:SupplierID" json:"supplier,omitempty"`
}

// LineTotal is Quantity x TargetPrice.
func (i Inquiry) LineTotal() decimal.Decimal {
	return i.Quantity.Mul(i.TargetPrice)
}
