package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/yukikurage/trade-erp-api/internal/constants"
	"github.com/yukikurage/trade-erp-api/internal/dto"
	"github.com/yukikurage/trade-erp-api/internal/models"
	"github.com/yukikurage/trade-erp-api/internal/ordering"
	"github.com/yukikurage/trade-erp-api/internal/realtime"
	"github.com/yukikurage/trade-erp-api/internal/repository"
)

var (
	ErrTaskNotFound         = errors.New("task not found")
	ErrTaskListNotFound     = errors.New("task list not found")
	ErrTitleRequired        = errors.New("title is required")
	ErrNoUserIDsProvided    = errors.New("at least one user ID is required")
	ErrInvalidTaskAssignee  = errors.New("one or more users do not exist or are not members of the team")
	ErrInvalidDateRange     = errors.New("start date must not be after due date")
	ErrTaskListTeamMismatch = errors.New("task lists belong to different teams")

	// ErrConflict is returned once a reorder kept losing to concurrent writers.
	ErrConflict = repository.ErrConflict
)

// BoardService owns the team board: ordered task lists and the ordered
// tasks inside them. Every change to an order is followed by a snapshot of
// the affected containers on the live channel.
type BoardService struct {
	taskRepo    repository.TaskRepository
	listRepo    repository.TaskListRepository
	teamRepo    repository.TeamRepository
	publisher   realtime.Publisher
	maxAttempts int
	backoff     time.Duration
}

func NewBoardService(
	taskRepo repository.TaskRepository,
	listRepo repository.TaskListRepository,
	teamRepo repository.TeamRepository,
	publisher realtime.Publisher,
	maxAttempts int,
) *BoardService {
	if maxAttempts < 1 {
		maxAttempts = constants.DefaultMaxMoveAttempts
	}
	if publisher == nil {
		publisher = realtime.Discard{}
	}
	return &BoardService{
		taskRepo:    taskRepo,
		listRepo:    listRepo,
		teamRepo:    teamRepo,
		publisher:   publisher,
		maxAttempts: maxAttempts,
		backoff:     constants.MoveRetryBackoff,
	}
}

// CreateTaskInput represents input for creating a task
type CreateTaskInput struct {
	TaskListID  uint64
	Title       string
	Description string
	StartDate   *time.Time
	DueDate     *time.Time
	CreatorID   uint64
}

// UpdateTaskInput represents a partial task update
type UpdateTaskInput struct {
	Title          *string
	Description    *string
	StartDate      *time.Time
	DueDate        *time.Time
	ClearStartDate bool
	ClearDueDate   bool
}

// MoveTaskInput places a task at Target (1-based) in ToListID, or in its
// current list when ToListID is nil.
type MoveTaskInput struct {
	TaskID   uint64
	Target   int
	ToListID *uint64
}

// AssignUsersInput represents input for assigning users to a task
type AssignUsersInput struct {
	TaskID  uint64
	UserIDs []uint64
}

// AuthorizeTeam checks that actorID belongs to teamID.
func (s *BoardService) AuthorizeTeam(ctx context.Context, actorID, teamID uint64) error {
	if _, err := s.teamRepo.FindMember(ctx, teamID, actorID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTeamNotFound
		}
		return fmt.Errorf("failed to verify membership: %w", err)
	}
	return nil
}

// AuthorizeTaskList loads a list the actor may access. Lists of other teams
// are reported as not found.
func (s *BoardService) AuthorizeTaskList(ctx context.Context, actorID, listID uint64) (*models.TaskList, error) {
	list, err := s.findList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if err := s.AuthorizeTeam(ctx, actorID, list.TeamID); err != nil {
		if errors.Is(err, ErrTeamNotFound) {
			return nil, ErrTaskListNotFound
		}
		return nil, err
	}
	return list, nil
}

// AuthorizeTask loads a task the actor may access, with its list.
func (s *BoardService) AuthorizeTask(ctx context.Context, actorID, taskID uint64) (*models.Task, error) {
	task, err := s.findTask(ctx, taskID, "TaskList")
	if err != nil {
		return nil, err
	}
	if err := s.AuthorizeTeam(ctx, actorID, task.TaskList.TeamID); err != nil {
		if errors.Is(err, ErrTeamNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

// ListTaskLists returns a team's lists in board order
func (s *BoardService) ListTaskLists(ctx context.Context, teamID uint64) ([]models.TaskList, error) {
	lists, err := s.listRepo.ListByTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task lists: %w", err)
	}
	return lists, nil
}

// CreateTaskList appends a list to the end of the board
func (s *BoardService) CreateTaskList(ctx context.Context, teamID uint64, title string) (*models.TaskList, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	list := &models.TaskList{TeamID: teamID, Title: title}
	err := s.withConflictRetry(ctx, "create task list", func() error {
		list.ID = 0
		return s.listRepo.Create(ctx, list)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to create task list: %w", err)
	}

	s.publishBoard(ctx, teamID)
	return list, nil
}

func (s *BoardService) RenameTaskList(ctx context.Context, listID uint64, title string) (*models.TaskList, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	list, err := s.findList(ctx, listID)
	if err != nil {
		return nil, err
	}
	list.Title = title
	if err := s.listRepo.Update(ctx, list); err != nil {
		return nil, fmt.Errorf("failed to rename task list: %w", err)
	}

	s.publishBoard(ctx, list.TeamID)
	return list, nil
}

// MoveTaskList reorders a list within its team board
func (s *BoardService) MoveTaskList(ctx context.Context, listID uint64, target int) (ordering.Plan, error) {
	var plan ordering.Plan
	err := s.withConflictRetry(ctx, "move task list", func() error {
		var err error
		plan, err = s.listRepo.Move(ctx, listID, target)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ordering.Plan{}, ErrTaskListNotFound
		}
		return ordering.Plan{}, fmt.Errorf("failed to move task list: %w", err)
	}

	if !plan.NoOp {
		s.publishBoard(ctx, plan.FromContainer)
	}
	return plan, nil
}

// DeleteTaskList removes a list with its tasks and closes the gap it leaves
func (s *BoardService) DeleteTaskList(ctx context.Context, listID uint64) error {
	var deleted *models.TaskList
	err := s.withConflictRetry(ctx, "delete task list", func() error {
		var err error
		deleted, err = s.listRepo.Delete(ctx, listID)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTaskListNotFound
		}
		return fmt.Errorf("failed to delete task list: %w", err)
	}

	s.publishBoard(ctx, deleted.TeamID)
	s.publishTasks(ctx, deleted.ID)
	return nil
}

// ListTasks returns the tasks of a list in order
func (s *BoardService) ListTasks(ctx context.Context, listID uint64) ([]models.Task, error) {
	tasks, err := s.taskRepo.ListByTaskList(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// GetTask returns a task with creator and assignees
func (s *BoardService) GetTask(ctx context.Context, taskID uint64) (*models.Task, error) {
	return s.findTask(ctx, taskID, "Creator", "Assignments.User")
}

// CreateTask appends a task to a list and assigns its creator
func (s *BoardService) CreateTask(ctx context.Context, input CreateTaskInput) (*models.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if input.StartDate != nil && input.DueDate != nil && input.StartDate.After(*input.DueDate) {
		return nil, ErrInvalidDateRange
	}

	task := &models.Task{
		TaskListID:  input.TaskListID,
		Title:       title,
		Description: input.Description,
		StartDate:   input.StartDate,
		DueDate:     input.DueDate,
		CreatorID:   input.CreatorID,
	}
	err := s.withConflictRetry(ctx, "create task", func() error {
		task.ID = 0
		return s.taskRepo.Create(ctx, task)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTaskListNotFound
		}
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	if err := s.taskRepo.AssignUsers(ctx, task.ID, []uint64{input.CreatorID}); err != nil {
		return nil, fmt.Errorf("failed to assign creator to task: %w", err)
	}

	s.publishTasks(ctx, task.TaskListID)
	return s.GetTask(ctx, task.ID)
}

// UpdateTask changes the payload of a task. Its position is untouched.
func (s *BoardService) UpdateTask(ctx context.Context, taskID uint64, input UpdateTaskInput) (*models.Task, error) {
	task, err := s.findTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, ErrTitleRequired
		}
		task.Title = title
	}
	if input.Description != nil {
		task.Description = *input.Description
	}
	if input.ClearStartDate {
		task.StartDate = nil
	} else if input.StartDate != nil {
		task.StartDate = input.StartDate
	}
	if input.ClearDueDate {
		task.DueDate = nil
	} else if input.DueDate != nil {
		task.DueDate = input.DueDate
	}
	if task.StartDate != nil && task.DueDate != nil && task.StartDate.After(*task.DueDate) {
		return nil, ErrInvalidDateRange
	}

	if err := s.taskRepo.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	s.publishTasks(ctx, task.TaskListID)
	return s.GetTask(ctx, task.ID)
}

// MoveTask reorders a task within its list or moves it to another list of
// the same team.
func (s *BoardService) MoveTask(ctx context.Context, input MoveTaskInput) (ordering.Plan, error) {
	task, err := s.findTask(ctx, input.TaskID, "TaskList")
	if err != nil {
		return ordering.Plan{}, err
	}

	toListID := input.ToListID
	if toListID != nil && *toListID == task.TaskListID {
		toListID = nil
	}
	if toListID != nil {
		dest, err := s.findList(ctx, *toListID)
		if err != nil {
			return ordering.Plan{}, err
		}
		if dest.TeamID != task.TaskList.TeamID {
			return ordering.Plan{}, ErrTaskListTeamMismatch
		}
	}

	var plan ordering.Plan
	err = s.withConflictRetry(ctx, "move task", func() error {
		var err error
		plan, err = s.taskRepo.Move(ctx, input.TaskID, input.Target, toListID)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ordering.Plan{}, ErrTaskNotFound
		}
		return ordering.Plan{}, fmt.Errorf("failed to move task: %w", err)
	}

	if !plan.NoOp {
		for _, listID := range plan.Containers() {
			s.publishTasks(ctx, listID)
		}
	}
	return plan, nil
}

// DeleteTask removes a task and closes the gap it leaves
func (s *BoardService) DeleteTask(ctx context.Context, taskID uint64) error {
	var deleted *models.Task
	err := s.withConflictRetry(ctx, "delete task", func() error {
		var err error
		deleted, err = s.taskRepo.Delete(ctx, taskID)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("failed to delete task: %w", err)
	}

	s.publishTasks(ctx, deleted.TaskListID)
	return nil
}

// AssignUsers assigns team members to a task
func (s *BoardService) AssignUsers(ctx context.Context, input AssignUsersInput) error {
	if len(input.UserIDs) == 0 {
		return ErrNoUserIDsProvided
	}

	task, err := s.findTask(ctx, input.TaskID, "TaskList")
	if err != nil {
		return err
	}

	userIDs := uniqueUint64(input.UserIDs)
	count, err := s.taskRepo.CountTeamMembers(ctx, task.TaskList.TeamID, userIDs)
	if err != nil {
		return fmt.Errorf("failed to verify users: %w", err)
	}
	if int(count) != len(userIDs) {
		return ErrInvalidTaskAssignee
	}

	if err := s.taskRepo.AssignUsers(ctx, task.ID, userIDs); err != nil {
		return fmt.Errorf("failed to assign users: %w", err)
	}

	s.publishTasks(ctx, task.TaskListID)
	return nil
}

// UnassignUsers removes user assignments from a task
func (s *BoardService) UnassignUsers(ctx context.Context, taskID uint64, userIDs []uint64) error {
	if len(userIDs) == 0 {
		return ErrNoUserIDsProvided
	}

	task, err := s.findTask(ctx, taskID)
	if err != nil {
		return err
	}

	if err := s.taskRepo.UnassignUsers(ctx, taskID, uniqueUint64(userIDs)); err != nil {
		return fmt.Errorf("failed to unassign users: %w", err)
	}

	s.publishTasks(ctx, task.TaskListID)
	return nil
}

// withConflictRetry runs op until it stops failing with a conflict, up to
// maxAttempts times with a linear backoff.
func (s *BoardService) withConflictRetry(ctx context.Context, what string, op func() error) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = op()
		if !errors.Is(err, repository.ErrConflict) {
			return err
		}
		if attempt == s.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * s.backoff):
		}
	}
	log.Printf("board: %s gave up after %d attempts: %v", what, s.maxAttempts, err)
	return err
}

// publishTasks pushes the full ordered content of a list. Failures are
// logged; the committed change stands.
func (s *BoardService) publishTasks(ctx context.Context, listID uint64) {
	tasks, err := s.taskRepo.ListByTaskList(context.WithoutCancel(ctx), listID)
	if err != nil {
		log.Printf("board: reload of task list %d for live update failed: %v", listID, err)
		return
	}
	s.publisher.Publish(realtime.TaskListTopic(listID), constants.EventTasksUpdated, dto.ToTaskListSnapshot(listID, tasks))
}

func (s *BoardService) publishBoard(ctx context.Context, teamID uint64) {
	lists, err := s.listRepo.ListByTeam(context.WithoutCancel(ctx), teamID)
	if err != nil {
		log.Printf("board: reload of team %d board for live update failed: %v", teamID, err)
		return
	}
	s.publisher.Publish(realtime.TeamTopic(teamID), constants.EventTaskListsUpdated, dto.ToBoardSnapshot(teamID, lists))
}

func (s *BoardService) findTask(ctx context.Context, taskID uint64, preload ...string) (*models.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID, preload...)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return task, nil
}

func (s *BoardService) findList(ctx context.Context, listID uint64) (*models.TaskList, error) {
	list, err := s.listRepo.FindByID(ctx, listID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTaskListNotFound
		}
		return nil, fmt.Errorf("failed to find task list: %w", err)
	}
	return list, nil
}

func uniqueUint64(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
