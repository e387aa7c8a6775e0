package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Customer receives offers.
type Customer struct {
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

// Contact returns the customer's stored channel addresses.
func (c Customer) Contact() Contact {
	return Contact{
		Name:   c.Name,
		Emails: nonEmpty(c.Email, c.CCEmail),
		Phones: nonEmpty(c.WhatsApp, c.Phone),
	}
}

// Contact is the recipient view used by the communication workflow.
type Contact struct {
	Name   string   `json:"name"`
	Emails []string `json:"emails"`
	Phones []string `json:"phones"`
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
