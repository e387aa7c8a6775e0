package models

import (
	"time"

	"gorm.io/gorm"
)

// Supplier receives inquiries.
type Supplier struct {
	ID            uint64         `gorm:"primarykey" json:"id"`
	Name          string         `gorm:"type:varchar(255);not null" json:"name"`
	ContactPerson string         `gorm:"type:varchar(255)" json:"contact_person"`
	Email         string         `gorm:"type:varchar(255)" json:"email"`
	CCEmail       string         `gorm:"type:varchar(255)" json:"cc_email"`
	Phone         string         `gorm:"type:varchar(30)" json:"phone"`
	WhatsApp      string         `gorm:"type:varchar(30)" json:"whatsapp"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// Contact returns the supplier's stored channel addresses.
func (s Supplier) Contact() Contact {
	return Contact{
		Name:   s.Name,
		Emails: nonEmpty(s.Email, s.CCEmail),
		Phones: nonEmpty(s.WhatsApp, s.Phone),
	}
}
