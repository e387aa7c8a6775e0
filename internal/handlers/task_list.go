package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/trade-erp-api/internal/dto"
	apierrors "github.com/yukikurage/trade-erp-api/internal/errors"
	"github.com/yukikurage/trade-erp-api/internal/middleware"
	"github.com/yukikurage/trade-erp-api/internal/services"
)

// TaskListHandler serves the columns of a team board.
type TaskListHandler struct {
	board *services.BoardService
}

func NewTaskListHandler(board *services.BoardService) *TaskListHandler {
	return &TaskListHandler{board: board}
}

// ListTaskLists returns the team's lists in board order.
// The team is authorized by RequireTeamAccess.
func (h *TaskListHandler) ListTaskLists(c *gin.Context) {
	team, ok := middleware.TeamFromContext(c)
	if !ok {
		apierrors.InternalError(c, "Team not found in context")
		return
	}

	lists, err := h.board.ListTaskLists(c.Request.Context(), team.ID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToBoardSnapshot(team.ID, lists))
}

// CreateTaskList appends a list to the team board
func (h *TaskListHandler) CreateTaskList(c *gin.Context) {
	team, ok := middleware.TeamFromContext(c)
	if !ok {
		apierrors.InternalError(c, "Team not found in context")
		return
	}

	type CreateTaskListRequest struct {
		Title string `json:"title" binding:"required"`
	}

	var req CreateTaskListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	list, err := h.board.CreateTaskList(c.Request.Context(), team.ID, req.Title)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToTaskListDTO(*list))
}

// RenameTaskList changes the title of a list
func (h *TaskListHandler) RenameTaskList(c *gin.Context) {
	list, ok := middleware.TaskListFromContext(c)
	if !ok {
		apierrors.InternalError(c, "Task list not found in context")
		return
	}

	type RenameTaskListRequest struct {
		Title string `json:"title" binding:"required"`
	}

	var req RenameTaskListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	updated, err := h.board.RenameTaskList(c.Request.Context(), list.ID, req.Title)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskListDTO(*updated))
}

// MoveTaskList places a list at a 1-based position of its board.
// Out of range positions are clamped.
func (h *TaskListHandler) MoveTaskList(c *gin.Context) {
	list, ok := middleware.TaskListFromContext(c)
	if !ok {
		apierrors.InternalError(c, "Task list not found in context")
		return
	}

	type MoveTaskListRequest struct {
		Order int `json:"order" binding:"required"`
	}

	var req MoveTaskListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	plan, err := h.board.MoveTaskList(c.Request.Context(), list.ID, req.Order)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToMoveResultDTO(plan))
}

// DeleteTaskList deletes a list with its tasks
func (h *TaskListHandler) DeleteTaskList(c *gin.Context) {
	list, ok := middleware.TaskListFromContext(c)
	if !ok {
		apierrors.InternalError(c, "Task list not found in context")
		return
	}

	if err := h.board.DeleteTaskList(c.Request.Context(), list.ID); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task list deleted successfully",
	})
}
