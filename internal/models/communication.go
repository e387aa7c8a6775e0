package models

import "time"

type CommunicationKind string

const (
	KindSupplierInquiry CommunicationKind = "supplier_inquiry"
	KindCustomerOffer   CommunicationKind = "customer_offer"
)

// Valid reports whether k is a known kind.
func (k CommunicationKind) Valid() bool {
	return k == KindSupplierInquiry || k == KindCustomerOffer
}

type DispatchState string

const (
	DispatchSending   DispatchState = "sending"
	DispatchCompleted DispatchState = "completed"
)

// Communication is one outbound bundle sent to a single supplier or customer.
// Its item set never changes after creation.
type Communication struct {
	ID              uint64            `gorm:"primarykey" json:"id"`
	Kind            CommunicationKind `gorm:"type:varchar(30);not null;index:idx_communications_recipient,priority:1" json:"kind"`
	RecipientID     uint64            `gorm:"not null;index:idx_communications_recipient,priority:2" json:"recipient_id"`
	EmailSent       bool              `gorm:"not null;default:false" json:"email_sent"`
	WhatsAppSent    bool              `gorm:"column:whatsapp_sent;not null;default:false" json:"whatsapp_sent"`
	EmailAddresses  []string          `gorm:"serializer:json;type:text" json:"email_addresses"`
	WhatsAppNumbers []string          `gorm:"column:whatsapp_numbers;serializer:json;type:text" json:"whatsapp_numbers"`
	Reference       string            `gorm:"type:varchar(32)" json:"reference"`
	Remark          string            `gorm:"type:text" json:"remark"`
	Subject         string            `gorm:"type:text" json:"subject"`
	Body            string            `gorm:"type:text" json:"-"`
	Message         string            `gorm:"type:text" json:"message"`
	DocumentURLs    []string          `gorm:"serializer:json;type:text" json:"document_urls"`
	Documents       []StoredDocument  `gorm:"serializer:json;type:text" json:"documents"`
	DispatchState   DispatchState     `gorm:"type:varchar(20);not null" json:"dispatch_state"`
	SentByID        uint64            `gorm:"not null" json:"sent_by_id"`
	LastResendAt    *time.Time        `json:"last_resend_at"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`

	// Relations
	SentBy  User                  `gorm:"foreignKey:SentByID" json:"sent_by,omitempty"`
	Items   []CommunicationItem   `gorm:"foreignKey:CommunicationID" json:"items,omitempty"`
	Resends []CommunicationResend `gorm:"foreignKey:CommunicationID" json:"resends,omitempty"`
}

// ItemIDs returns the referenced inquiry ids in position order.
func (c Communication) ItemIDs() []uint64 {
	ids := make([]uint64, len(c.Items))
	for i, it := range c.Items {
		ids[i] = it.InquiryID
	}
	return ids
}

// StoredDocument is one file of a sent bundle as kept in the blob store.
type StoredDocument struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Blob        string `json:"blob"`
	URL         string `json:"url"`
}

// CommunicationItem links a communication to one inquiry.
type CommunicationItem struct {
	CommunicationID uint64 `gorm:"primarykey" json:"communication_id"`
	InquiryID       uint64 `gorm:"primarykey" json:"inquiry_id"`
	Position        int    `gorm:"not null" json:"position"`

	// Relations
	Inquiry Inquiry `gorm:"foreignKey:InquiryID" json:"inquiry,omitempty"`
}

// CommunicationResend is an append-only record of one resend attempt.
type CommunicationResend struct {
	ID              uint64    `gorm:"primarykey" json:"id"`
	CommunicationID uint64    `gorm:"not null;index" json:"communication_id"`
	ActorID         uint64    `gorm:"not null" json:"actor_id"`
	ResentAt        time.Time `gorm:"not null" json:"resent_at"`
	EmailSent       bool      `gorm:"not null" json:"email_sent"`
	WhatsAppSent    bool      `gorm:"column:whatsapp_sent;not null" json:"whatsapp_sent"`
}
