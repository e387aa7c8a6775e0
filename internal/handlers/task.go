package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/trade-erp-api/internal/dto"
	apierrors "github.com/yukikurage/trade-erp-api/internal/errors"
	"github.com/yukikurage/trade-erp-api/internal/middleware"
	"github.com/yukikurage/trade-erp-api/internal/services"
)

type TaskHandler struct {
	board *services.BoardService
}

func NewTaskHandler(board *services.BoardService) *TaskHandler {
	return &TaskHandler{board: board}
}

// ListTasks returns the tasks of a list in order.
// The list is authorized by RequireTaskListAccess.
func (h *TaskHandler) ListTasks(c *gin.Context) {
	list, ok := middleware.TaskListFromContext(c)
	if !ok {
		apierrors.InternalError(c, "Task list not found in context")
		return
	}

	tasks, err := h.board.ListTasks(c.Request.Context(), list.ID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskListSnapshot(list.ID, tasks))
}

// CreateTask appends a new task to a list
func (h *TaskHandler) CreateTask(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	list, ok := middleware.TaskListFromContext(c)
	if !ok {
		apierrors.InternalError(c, "Task list not found in context")
		return
	}

	type CreateTaskRequest struct {
		Title       string     `json:"title" binding:"required"`
		Description string     `json:"description"`
		StartDate   *time.Time `json:"start_date"`
		DueDate     *time.Time `json:"due_date"`
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	task, err := h.board.CreateTask(c.Request.Context(), services.CreateTaskInput{
		TaskListID:  list.ID,
		Title:       req.Title,
		Description: req.Description,
		StartDate:   req.StartDate,
		DueDate:     req.DueDate,
		CreatorID:   userID,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToTaskDTO(*task))
}

// GetTask returns a specific task with creator and assignees
func (h *TaskHandler) GetTask(c *gin.Context) {
	task, ok := middleware.TaskFromContext(c)
	if !ok {
		apierrors.InternalError(c, "Task not found in context")
		return
	}

	full, err := h.board.GetTask(c.Request.Context(), task.ID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDTO(*full))
}

// UpdateTask updates the fields present in the body. A null date clears it.
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	task, ok := middleware.TaskFromContext(c)
	if !ok {
		apierrors.InternalError(c, "Task not found in context")
		return
	}

	// Raw fields tell a missing key apart from an explicit null
	var rawReq map[string]json.RawMessage
	if err := c.ShouldBindJSON(&rawReq); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	var input services.UpdateTaskInput
	if raw, ok := rawReq["title"]; ok {
		var title string
		if err := json.Unmarshal(raw, &title); err != nil {
			apierrors.BadRequest(c, "title must be a string")
			return
		}
		input.Title = &title
	}
	if raw, ok := rawReq["description"]; ok {
		var description string
		if err := json.Unmarshal(raw, &description); err != nil {
			apierrors.BadRequest(c, "description must be a string")
			return
		}
		input.Description = &description
	}
	if raw, ok := rawReq["start_date"]; ok {
		date, clear, err := parseOptionalDate(raw)
		if err != nil {
			apierrors.BadRequest(c, "start_date must be an RFC 3339 timestamp or null")
			return
		}
		input.StartDate, input.ClearStartDate = date, clear
	}
	if raw, ok := rawReq["due_date"]; ok {
		date, clear, err := parseOptionalDate(raw)
		if err != nil {
			apierrors.BadRequest(c, "due_date must be an RFC 3339 timestamp or null")
			return
		}
		input.DueDate, input.ClearDueDate = date, clear
	}

	updated, err := h.board.UpdateTask(c.Request.Context(), task.ID, input)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDTO(*updated))
}

func parseOptionalDate(raw json.RawMessage) (date *time.Time, clear bool, err error) {
	if string(raw) == "null" {
		return nil, true, nil
	}
	var t time.Time
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, false, err
	}
	return &t, false, nil
}

// MoveTask places a task at a 1-based position of its list or of another
// list of the same team. Out of range positions are clamped.
func (h *TaskHandler) MoveTask(c *gin.Context) {
	task, ok := middleware.TaskFromContext(c)
	if !ok {
		apierrors.InternalError(c, "Task not found in context")
		return
	}

	type MoveTaskRequest struct {
		Order      int     `json:"order" binding:"required"`
		TaskListID *uint64 `json:"task_list_id"`
	}

	var req MoveTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	plan, err := h.board.MoveTask(c.Request.Context(), services.MoveTaskInput{
		TaskID:   task.ID,
		Target:   req.Order,
		ToListID: req.TaskListID,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToMoveResultDTO(plan))
}

// DeleteTask deletes a task and closes the gap in its list
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	task, ok := middleware.TaskFromContext(c)
	if !ok {
		apierrors.InternalError(c, "Task not found in context")
		return
	}

	if err := h.board.DeleteTask(c.Request.Context(), task.ID); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task deleted successfully",
	})
}

type assignUsersRequest struct {
	UserIDs []uint64 `json:"user_ids" binding:"required"`
}

// AssignTask assigns team members to a task
func (h *TaskHandler) AssignTask(c *gin.Context) {
	task, ok := middleware.TaskFromContext(c)
	if !ok {
		apierrors.InternalError(c, "Task not found in context")
		return
	}

	var req assignUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	if err := h.board.AssignUsers(c.Request.Context(), services.AssignUsersInput{
		TaskID:  task.ID,
		UserIDs: req.UserIDs,
	}); err != nil {
		respondServiceError(c, err)
		return
	}

	h.respondAssignees(c, task.ID, "Users assigned successfully")
}

// UnassignTask removes user assignments from a task
func (h *TaskHandler) UnassignTask(c *gin.Context) {
	task, ok := middleware.TaskFromContext(c)
	if !ok {
		apierrors.InternalError(c, "Task not found in context")
		return
	}

	var req assignUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	if err := h.board.UnassignUsers(c.Request.Context(), task.ID, req.UserIDs); err != nil {
		respondServiceError(c, err)
		return
	}

	h.respondAssignees(c, task.ID, "Users unassigned successfully")
}

func (h *TaskHandler) respondAssignees(c *gin.Context, taskID uint64, message string) {
	task, err := h.board.GetTask(c.Request.Context(), taskID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   message,
		"assignees": dto.ToTaskDTO(*task).Assignees,
	})
}
