package repository

import (
	"context"
	"fmt"

	"github.com/yukikurage/trade-erp-api/internal/database"
	"github.com/yukikurage/trade-erp-api/internal/models"
	"github.com/yukikurage/trade-erp-api/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCommunicationRepository is a GORM implementation of CommunicationRepository
type GormCommunicationRepository struct {
	db *gorm.DB
}

// NewCommunicationRepository creates a new CommunicationRepository
func NewCommunicationRepository(db *gorm.DB) CommunicationRepository {
	return &GormCommunicationRepository{db: db}
}

// FindContact loads the supplier or customer addressed by kind
func (r *GormCommunicationRepository) FindContact(ctx context.Context, kind models.CommunicationKind, recipientID uint64) (*models.Contact, error) {
	db := r.db.WithContext(ctx)
	switch kind {
	case models.KindSupplierInquiry:
		var s models.Supplier
		if err := db.First(&s, recipientID).Error; err != nil {
			return nil, err
		}
		contact := s.Contact()
		return &contact, nil
	case models.KindCustomerOffer:
		var c models.Customer
		if err := db.First(&c, recipientID).Error; err != nil {
			return nil, err
		}
		contact := c.Contact()
		return &contact, nil
	}
	return nil, fmt.Errorf("unknown communication kind %q", kind)
}

// EligibleInquiries returns the open line items a recipient may receive
func (r *GormCommunicationRepository) EligibleInquiries(ctx context.Context, filter EligibleFilter) ([]models.Inquiry, error) {
	query := r.db.WithContext(ctx).Model(&models.Inquiry{}).
		Where("status = ?", models.InquiryStatusOpen)

	switch filter.Kind {
	case models.KindSupplierInquiry:
		query = query.Where("supplier_id = ?", filter.RecipientID)
	case models.KindCustomerOffer:
		query = query.Where("customer_id = ?", filter.RecipientID)
		if filter.Site != "" {
			query = query.Where("site = ?", filter.Site)
		}
		if filter.PRGroup != "" {
			query = query.Where("pr_group = ?", filter.PRGroup)
		}
	default:
		return nil, fmt.Errorf("unknown communication kind %q", filter.Kind)
	}

	inquiries := []models.Inquiry{}
	if err := query.Order("id ASC").Find(&inquiries).Error; err != nil {
		return nil, err
	}
	return inquiries, nil
}

// Create stores a record together with its item set
func (r *GormCommunicationRepository) Create(ctx context.Context, record *models.Communication) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(record).Error; err != nil {
			return err
		}
		if len(record.Items) == 0 {
			return nil
		}
		for i := range record.Items {
			record.Items[i].CommunicationID = record.ID
			record.Items[i].Position = i + 1
		}
		return tx.Omit(clause.Associations).Create(&record.Items).Error
	})
}

// CompleteDispatch writes the outcome of the first dispatch
func (r *GormCommunicationRepository) CompleteDispatch(ctx context.Context, id uint64, emailSent, whatsappSent bool) error {
	res := r.db.WithContext(ctx).Model(&models.Communication{ID: id}).
		Select("EmailSent", "WhatsAppSent", "DispatchState", "UpdatedAt").
		Updates(&models.Communication{
			EmailSent:     emailSent,
			WhatsAppSent:  whatsappSent,
			DispatchState: models.DispatchCompleted,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordResend updates flags and addresses and appends one history entry
func (r *GormCommunicationRepository) RecordResend(ctx context.Context, resend *models.CommunicationResend, emails, phones []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resentAt := resend.ResentAt
		res := tx.Model(&models.Communication{ID: resend.CommunicationID}).
			Select("EmailSent", "WhatsAppSent", "LastResendAt", "EmailAddresses", "WhatsAppNumbers", "UpdatedAt").
			Updates(&models.Communication{
				EmailSent:       resend.EmailSent,
				WhatsAppSent:    resend.WhatsAppSent,
				LastResendAt:    &resentAt,
				EmailAddresses:  emails,
				WhatsAppNumbers: phones,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		return tx.Create(resend).Error
	})
}

// FindByID loads a record with items and resend history. Items keep their
// inquiry even after it was deleted.
func (r *GormCommunicationRepository) FindByID(ctx context.Context, id uint64) (*models.Communication, error) {
	var record models.Communication
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Items.Inquiry", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("Resends", func(db *gorm.DB) *gorm.DB { return db.Order("resent_at ASC, id ASC") }).
		First(&record, id).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// List retrieves records with filtering and pagination
func (r *GormCommunicationRepository) List(ctx context.Context, filter CommunicationFilter) ([]models.Communication, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Communication{})

	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.RecipientID != nil {
		query = query.Where("recipient_id = ?", *filter.RecipientID)
	}
	if filter.SentAfter != nil {
		query = query.Where("created_at >= ?", *filter.SentAfter)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	listQuery := query.Order("created_at DESC, id DESC")
	if filter.Page > 0 && filter.PageSize > 0 {
		listQuery = listQuery.Scopes(database.Paginate(utils.NewPaginationParams(filter.Page, filter.PageSize)))
	}

	records := []models.Communication{}
	if err := listQuery.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Find(&records).Error; err != nil {
		return nil, 0, err
	}

	return records, total, nil
}
