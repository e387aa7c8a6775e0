package models

import (
	"time"

	"gorm.io/gorm"
)

// TaskAssignment links a task to one assignee. Assignees must be members of
// the team owning the task's list.
type TaskAssignment struct {
	TaskID     uint64         `gorm:"primarykey" json:"task_id"`
	UserID     uint64         `gorm:"primarykey" json:"user_id"`
	AssignedAt time.Time      `gorm:"autoCreateTime" json:"assigned_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Task Task `gorm:"foreignKey:TaskID" json:"-"`
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
