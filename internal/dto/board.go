package dto

import (
	"time"

	"github.com/yukikurage/trade-erp-api/internal/models"
	"github.com/yukikurage/trade-erp-api/internal/ordering"
)

// TaskListDTO is one column of a team board
type TaskListDTO struct {
	ID        uint64    `json:"id"`
	TeamID    uint64    `json:"team_id"`
	Title     string    `json:"title"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskDTO represents a task card in API responses and live updates
type TaskDTO struct {
	ID          uint64     `json:"id"`
	TaskListID  uint64     `json:"task_list_id"`
	Order       int        `json:"order"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartDate   *time.Time `json:"start_date"`
	DueDate     *time.Time `json:"due_date"`
	CreatorID   uint64     `json:"creator_id"`
	Creator     *UserDTO   `json:"creator,omitempty"`
	Assignees   []UserDTO  `json:"assignees"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskListSnapshot is the full ordered content of a list
type TaskListSnapshot struct {
	TaskListID uint64    `json:"task_list_id"`
	Tasks      []TaskDTO `json:"tasks"`
}

// BoardSnapshot is the full ordered set of a team's lists
type BoardSnapshot struct {
	TeamID    uint64        `json:"team_id"`
	TaskLists []TaskListDTO `json:"task_lists"`
}

// MoveResultDTO reports where an item landed
type MoveResultDTO struct {
	ID          uint64 `json:"id"`
	ContainerID uint64 `json:"container_id"`
	Order       int    `json:"order"`
	Moved       bool   `json:"moved"`
}

func ToTaskListDTO(list models.TaskList) TaskListDTO {
	return TaskListDTO{
		ID:        list.ID,
		TeamID:    list.TeamID,
		Title:     list.Title,
		Order:     list.Order,
		CreatedAt: list.CreatedAt,
		UpdatedAt: list.UpdatedAt,
	}
}

// ToTaskDTO converts a task, including creator and assignees when preloaded
func ToTaskDTO(task models.Task) TaskDTO {
	out := TaskDTO{
		ID:          task.ID,
		TaskListID:  task.TaskListID,
		Order:       task.Order,
		Title:       task.Title,
		Description: task.Description,
		StartDate:   task.StartDate,
		DueDate:     task.DueDate,
		CreatorID:   task.CreatorID,
		Assignees:   make([]UserDTO, 0, len(task.Assignments)),
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}

	if task.Creator.ID != 0 {
		creator := ToUserDTO(task.Creator)
		out.Creator = &creator
	}
	for _, a := range task.Assignments {
		if a.User.ID != 0 {
			out.Assignees = append(out.Assignees, ToUserDTO(a.User))
		} else {
			out.Assignees = append(out.Assignees, UserDTO{ID: a.UserID})
		}
	}
	return out
}

func ToTaskListSnapshot(listID uint64, tasks []models.Task) TaskListSnapshot {
	items := make([]TaskDTO, len(tasks))
	for i, t := range tasks {
		items[i] = ToTaskDTO(t)
	}
	return TaskListSnapshot{TaskListID: listID, Tasks: items}
}

func ToBoardSnapshot(teamID uint64, lists []models.TaskList) BoardSnapshot {
	items := make([]TaskListDTO, len(lists))
	for i, l := range lists {
		items[i] = ToTaskListDTO(l)
	}
	return BoardSnapshot{TeamID: teamID, TaskLists: items}
}

// ToMoveResultDTO reports the final position of a moved item
func ToMoveResultDTO(plan ordering.Plan) MoveResultDTO {
	return MoveResultDTO{
		ID:          plan.ItemID,
		ContainerID: plan.ToContainer,
		Order:       plan.ToOrder,
		Moved:       !plan.NoOp,
	}
}
