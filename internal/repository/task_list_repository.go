package repository

import (
	"context"
	"time"

	"github.com/yukikurage/trade-erp-api/internal/constants"
	"github.com/yukikurage/trade-erp-api/internal/models"
	"github.com/yukikurage/trade-erp-api/internal/ordering"
	"gorm.io/gorm"
)

var taskListsTable = orderedTable{
	newRow:    func() models.Ordered { return &models.TaskList{} },
	container: "team_id",
}

// GormTaskListRepository is a GORM implementation of TaskListRepository
type GormTaskListRepository struct {
	db *gorm.DB
}

// NewTaskListRepository creates a new TaskListRepository
func NewTaskListRepository(db *gorm.DB) TaskListRepository {
	return &GormTaskListRepository{db: db}
}

// Create appends a list to the end of the team board
func (r *GormTaskListRepository) Create(ctx context.Context, list *models.TaskList) error {
	return inTx(ctx, r.db, func(tx *gorm.DB) error {
		var team models.Team
		if err := tx.Select("id").First(&team, list.TeamID).Error; err != nil {
			return err
		}

		order, err := taskListsTable.nextOrder(tx, list.TeamID)
		if err != nil {
			return err
		}
		list.Order = order

		return tx.Create(list).Error
	})
}

func (r *GormTaskListRepository) FindByID(ctx context.Context, id uint64) (*models.TaskList, error) {
	var list models.TaskList
	if err := r.db.WithContext(ctx).First(&list, id).Error; err != nil {
		return nil, err
	}
	return &list, nil
}

func (r *GormTaskListRepository) ListByTeam(ctx context.Context, teamID uint64) ([]models.TaskList, error) {
	lists := []models.TaskList{}
	err := r.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("sort_order ASC").
		Find(&lists).Error
	return lists, err
}

func (r *GormTaskListRepository) Update(ctx context.Context, list *models.TaskList) error {
	return r.db.WithContext(ctx).Model(list).Update("title", list.Title).Error
}

func (r *GormTaskListRepository) Move(ctx context.Context, id uint64, target int) (ordering.Plan, error) {
	var plan ordering.Plan
	err := inTx(ctx, r.db, func(tx *gorm.DB) error {
		var err error
		plan, err = taskListsTable.move(tx, id, target, nil)
		return err
	})
	return plan, err
}

// Delete soft deletes a list with its tasks and compacts the team board
func (r *GormTaskListRepository) Delete(ctx context.Context, id uint64) (*models.TaskList, error) {
	var deleted *models.TaskList
	err := inTx(ctx, r.db, func(tx *gorm.DB) error {
		row, err := taskListsTable.remove(tx, id)
		if err != nil {
			return err
		}
		deleted = row.(*models.TaskList)

		return tx.Model(&models.Task{}).Where("task_list_id = ?", id).UpdateColumns(map[string]interface{}{
			"deleted_at": time.Now(),
			"sort_order": constants.DeletedOrder,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}
