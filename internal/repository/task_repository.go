package repository

import (
	"context"

	"github.com/yukikurage/trade-erp-api/internal/models"
	"github.com/yukikurage/trade-erp-api/internal/ordering"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tasksTable = orderedTable{
	newRow:    func() models.Ordered { return &models.Task{} },
	container: "task_list_id",
}

// GormTaskRepository is a GORM implementation of TaskRepository
type GormTaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new TaskRepository
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &GormTaskRepository{db: db}
}

// Create appends a task to the end of its list
func (r *GormTaskRepository) Create(ctx context.Context, task *models.Task) error {
	return inTx(ctx, r.db, func(tx *gorm.DB) error {
		var list models.TaskList
		if err := tx.Select("id").First(&list, task.TaskListID).Error; err != nil {
			return err
		}

		order, err := tasksTable.nextOrder(tx, task.TaskListID)
		if err != nil {
			return err
		}
		task.Order = order

		return tx.Create(task).Error
	})
}

// FindByID finds a task by ID with optional preloading
func (r *GormTaskRepository) FindByID(ctx context.Context, id uint64, preload ...string) (*models.Task, error) {
	var task models.Task
	query := r.db.WithContext(ctx)

	// Apply preloading if specified
	for _, p := range preload {
		query = query.Preload(p)
	}

	if err := query.First(&task, id).Error; err != nil {
		return nil, err
	}

	return &task, nil
}

// ListByTaskList returns the live tasks of a list in order
func (r *GormTaskRepository) ListByTaskList(ctx context.Context, taskListID uint64) ([]models.Task, error) {
	tasks := []models.Task{}
	err := r.db.WithContext(ctx).
		Where("task_list_id = ?", taskListID).
		Order("sort_order ASC").
		Preload("Assignments.User").
		Find(&tasks).Error
	return tasks, err
}

// Update saves the task payload
func (r *GormTaskRepository) Update(ctx context.Context, task *models.Task) error {
	return r.db.WithContext(ctx).Model(task).
		Select("Title", "Description", "StartDate", "DueDate").
		Updates(task).Error
}

// Move places a task at target inside toListID
func (r *GormTaskRepository) Move(ctx context.Context, id uint64, target int, toListID *uint64) (ordering.Plan, error) {
	var plan ordering.Plan
	err := inTx(ctx, r.db, func(tx *gorm.DB) error {
		if toListID != nil {
			var list models.TaskList
			if err := tx.Select("id").First(&list, *toListID).Error; err != nil {
				return err
			}
		}
		var err error
		plan, err = tasksTable.move(tx, id, target, toListID)
		return err
	})
	return plan, err
}

// Delete soft deletes a task and compacts its list
func (r *GormTaskRepository) Delete(ctx context.Context, id uint64) (*models.Task, error) {
	var deleted *models.Task
	err := inTx(ctx, r.db, func(tx *gorm.DB) error {
		row, err := tasksTable.remove(tx, id)
		if err != nil {
			return err
		}
		deleted = row.(*models.Task)

		return tx.Where("task_id = ?", id).Delete(&models.TaskAssignment{}).Error
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// AssignUsers assigns multiple users to a task
func (r *GormTaskRepository) AssignUsers(ctx context.Context, taskID uint64, userIDs []uint64) error {
	assignments := make([]models.TaskAssignment, len(userIDs))

	for i, userID := range userIDs {
		assignments[i] = models.TaskAssignment{
			TaskID: taskID,
			UserID: userID,
		}
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "task_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"deleted_at": gorm.Expr("NULL")}),
		}).
		Create(&assignments).Error
}

// UnassignUsers removes user assignments from a task
func (r *GormTaskRepository) UnassignUsers(ctx context.Context, taskID uint64, userIDs []uint64) error {
	return r.db.WithContext(ctx).
		Where("task_id = ? AND user_id IN ?", taskID, userIDs).
		Delete(&models.TaskAssignment{}).Error
}

// CountTeamMembers counts how many of the given user IDs belong to the team
func (r *GormTaskRepository) CountTeamMembers(ctx context.Context, teamID uint64, userIDs []uint64) (int64, error) {
	var count int64

	err := r.db.WithContext(ctx).Model(&models.User{}).
		Joins("JOIN team_members ON users.id = team_members.user_id").
		Where("team_members.team_id = ? AND users.id IN ?", teamID, userIDs).
		Count(&count).Error

	return count, err
}
