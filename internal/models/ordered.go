package models

// Ordered is implemented by rows that live at a dense 1-based position
// inside a parent container.
type Ordered interface {
	GetID() uint64
	GetOrder() int
	GetContainerID() uint64
}

func (t *Task) GetID() uint64          { return t.ID }
func (t *Task) GetOrder() int          { return t.Order }
func (t *Task) GetContainerID() uint64 { return t.TaskListID }

func (l *TaskList) GetID() uint64          { return l.ID }
func (l *TaskList) GetOrder() int          { return l.Order }
func (l *TaskList) GetContainerID() uint64 { return l.TeamID }
