package models

import (
	"time"

	"gorm.io/gorm"
)

// Task is a card inside a task list. Its Order is dense within the list.
type Task struct {
	ID          uint64         `gorm:"primarykey" json:"id"`
	TaskListID  uint64         `gorm:"not null;index:idx_tasks_list_order,priority:1" json:"task_list_id"`
	Order       int            `gorm:"column:sort_order;not null;index:idx_tasks_list_order,priority:2" json:"order"`
	Title       string         `gorm:"not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	StartDate   *time.Time     `json:"start_date"`
	DueDate     *time.Time     `json:"due_date"`
	CreatorID   uint64         `gorm:"not null" json:"creator_id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Creator     User             `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	TaskList    TaskList         `gorm:"foreignKey:TaskListID" json:"task_list,omitempty"`
	Assignments []TaskAssignment `gorm:"foreignKey:TaskID" json:"assignments,omitempty"`
}
