package models

import (
	"time"

	"gorm.io/gorm"
)

// TaskList is a column on a team board. Its Order is dense within the team.
type TaskList struct {
	ID        uint64         `gorm:"primarykey" json:"id"`
	TeamID    uint64         `gorm:"not null;index:idx_task_lists_team_order,priority:1" json:"team_id"`
	Title     string         `gorm:"type:varchar(255);not null" json:"title"`
	Order     int            `gorm:"column:sort_order;not null;index:idx_task_lists_team_order,priority:2" json:"order"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Team  Team   `gorm:"foreignKey:TeamID" json:"team,omitempty"`
	Tasks []Task `gorm:"foreignKey:TaskListID" json:"tasks,omitempty"`
}
