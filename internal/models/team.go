package models

import (
	"time"

	"gorm.io/gorm"
)

// Team owns a board: an ordered set of task lists.
type Team struct {
	ID         uint64         `gorm:"primarykey" json:"id"`
	Name       string         `gorm:"type:varchar(255);not null" json:"name"`
	InviteCode string         `gorm:"type:varchar(50);uniqueIndex;not null" json:"invite_code"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Members   []TeamMember `gorm:"foreignKey:TeamID" json:"members,omitempty"`
	TaskLists []TaskList   `gorm:"foreignKey:TeamID" json:"task_lists,omitempty"`
}
