package dto

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/yukikurage/trade-erp-api/internal/models"
)

// InquiryDTO is a line item as shown in the item step and on records
type InquiryDTO struct {
	ID            uint64               `json:"id"`
	CustomerID    uint64               `json:"customer_id"`
	SupplierID    *uint64              `json:"supplier_id,omitempty"`
	Site          string               `json:"site,omitempty"`
	PRGroup       string               `json:"pr_group,omitempty"`
	ProductName   string               `json:"product_name"`
	Specification string               `json:"specification,omitempty"`
	Quantity      decimal.Decimal      `json:"quantity"`
	Unit          string               `json:"unit,omitempty"`
	TargetPrice   decimal.Decimal      `json:"target_price"`
	Remark        string               `json:"remark,omitempty"`
	Status        models.InquiryStatus `json:"status"`
}

// ResendDTO is one entry of a record's resend history
type ResendDTO struct {
	ActorID      uint64    `json:"actor_id"`
	ResentAt     time.Time `json:"resent_at"`
	EmailSent    bool      `json:"email_sent"`
	WhatsAppSent bool      `json:"whatsapp_sent"`
}

// CommunicationDTO represents a stored communication record
type CommunicationDTO struct {
	ID              uint64                   `json:"id"`
	Kind            models.CommunicationKind `json:"kind"`
	RecipientID     uint64                   `json:"recipient_id"`
	ItemIDs         []uint64                 `json:"item_ids"`
	Items           []InquiryDTO             `json:"items,omitempty"`
	EmailSent       bool                     `json:"email_sent"`
	WhatsAppSent    bool                     `json:"whatsapp_sent"`
	EmailAddresses  []string                 `json:"email_addresses"`
	WhatsAppNumbers []string                 `json:"whatsapp_numbers"`
	Reference       string                   `json:"reference"`
	Subject         string                   `json:"subject"`
	Remark          string                   `json:"remark,omitempty"`
	Message         string                   `json:"message,omitempty"`
	DocumentURLs    []string                 `json:"document_urls"`
	DispatchState   models.DispatchState     `json:"dispatch_state"`
	SentByID        uint64                   `json:"sent_by_id"`
	SentAt          time.Time                `json:"sent_at"`
	LastResendAt    *time.Time               `json:"last_resend_at"`
	Resends         []ResendDTO              `json:"resends"`
}

func ToInquiryDTO(inq models.Inquiry) InquiryDTO {
	return InquiryDTO{
		ID:            inq.ID,
		CustomerID:    inq.CustomerID,
		SupplierID:    inq.SupplierID,
		Site:          inq.Site,
		PRGroup:       inq.PRGroup,
		ProductName:   inq.ProductName,
		Specification: inq.Specification,
		Quantity:      inq.Quantity,
		Unit:          inq.Unit,
		TargetPrice:   inq.TargetPrice,
		Remark:        inq.Remark,
		Status:        inq.Status,
	}
}

func ToInquiryDTOs(inquiries []models.Inquiry) []InquiryDTO {
	out := make([]InquiryDTO, len(inquiries))
	for i, inq := range inquiries {
		out[i] = ToInquiryDTO(inq)
	}
	return out
}

// ToCommunicationDTO converts a record; items are included when preloaded
func ToCommunicationDTO(c models.Communication) CommunicationDTO {
	out := CommunicationDTO{
		ID:              c.ID,
		Kind:            c.Kind,
		RecipientID:     c.RecipientID,
		ItemIDs:         c.ItemIDs(),
		EmailSent:       c.EmailSent,
		WhatsAppSent:    c.WhatsAppSent,
		EmailAddresses:  nonNil(c.EmailAddresses),
		WhatsAppNumbers: nonNil(c.WhatsAppNumbers),
		Reference:       c.Reference,
		Subject:         c.Subject,
		Remark:          c.Remark,
		Message:         c.Message,
		DocumentURLs:    nonNil(c.DocumentURLs),
		DispatchState:   c.DispatchState,
		SentByID:        c.SentByID,
		SentAt:          c.CreatedAt,
		LastResendAt:    c.LastResendAt,
		Resends:         make([]ResendDTO, len(c.Resends)),
	}
	for _, it := range c.Items {
		if it.Inquiry.ID != 0 {
			out.Items = append(out.Items, ToInquiryDTO(it.Inquiry))
		}
	}
	for i, r := range c.Resends {
		out.Resends[i] = ResendDTO{
			ActorID:      r.ActorID,
			ResentAt:     r.ResentAt,
			EmailSent:    r.EmailSent,
			WhatsAppSent: r.WhatsAppSent,
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
