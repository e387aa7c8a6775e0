package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/yukikurage/trade-erp-api/internal/models"
	"gorm.io/gorm"
)

// GormUserRepository stores operators
type GormUserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &GormUserRepository{db: db}
}

// Register inserts the operator, their desk and the owner membership in one
// transaction. The returned error names the step that failed.
func (r *GormUserRepository) Register(ctx context.Context, operator *models.User, desk *models.Team, joinedAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(operator).Error; err != nil {
			return fmt.Errorf("insert operator: %w", err)
		}
		if err := tx.Create(desk).Error; err != nil {
			return fmt.Errorf("insert desk: %w", err)
		}
		owner := &models.TeamMember{
			TeamID:   desk.ID,
			UserID:   operator.ID,
			Role:     models.RoleOwner,
			JoinedAt: joinedAt,
		}
		if err := tx.Create(owner).Error; err != nil {
			return fmt.Errorf("insert desk owner: %w", err)
		}
		return nil
	})
}

func (r *GormUserRepository) FindByID(ctx context.Context, id uint64) (*models.User, error) {
	var operator models.User
	if err := r.db.WithContext(ctx).First(&operator, id).Error; err != nil {
		return nil, err
	}
	return &operator, nil
}

// FindByUsername matches the stored name exactly
func (r *GormUserRepository) FindByUsername(ctx context.Context, name string) (*models.User, error) {
	var operator models.User
	if err := r.db.WithContext(ctx).Where("username = ?", name).First(&operator).Error; err != nil {
		return nil, err
	}
	return &operator, nil
}
