package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/trade-erp-api/internal/constants"
	apierrors "github.com/yukikurage/trade-erp-api/internal/errors"
	"github.com/yukikurage/trade-erp-api/internal/models"
	"github.com/yukikurage/trade-erp-api/internal/services"
)

// RequireTaskListAccess checks if the user is a member of the team owning the
// task list in :id
func RequireTaskListAccess(board *services.BoardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		listID, ok := ParseIDParam(c, "id")
		if !ok {
			apierrors.BadRequest(c, "Invalid task list ID")
			return
		}

		userID, exists := GetUserID(c)
		if !exists {
			apierrors.Unauthorized(c, "")
			return
		}

		list, err := board.AuthorizeTaskList(c.Request.Context(), userID, listID)
		if err != nil {
			if errors.Is(err, services.ErrTaskListNotFound) {
				apierrors.NotFound(c, "Task list not found")
				return
			}
			apierrors.InternalError(c, "Failed to load task list")
			return
		}

		c.Set(constants.ContextKeyTaskList, *list)
		c.Next()
	}
}

// RequireTaskAccess checks if the user has access to a task.
// User must be a member of the team owning the task's list.
func RequireTaskAccess(board *services.BoardService) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID, ok := ParseIDParam(c, "id")
		if !ok {
			apierrors.BadRequest(c, "Invalid task ID")
			return
		}

		userID, exists := GetUserID(c)
		if !exists {
			apierrors.Unauthorized(c, "")
			return
		}

		task, err := board.AuthorizeTask(c.Request.Context(), userID, taskID)
		if err != nil {
			if errors.Is(err, services.ErrTaskNotFound) {
				apierrors.NotFound(c, "Task not found")
				return
			}
			apierrors.InternalError(c, "Failed to load task")
			return
		}

		c.Set(constants.ContextKeyTask, *task)
		c.Next()
	}
}

// TaskListFromContext returns the list loaded by RequireTaskListAccess
func TaskListFromContext(c *gin.Context) (models.TaskList, bool) {
	v, exists := c.Get(constants.ContextKeyTaskList)
	if !exists {
		return models.TaskList{}, false
	}
	list, ok := v.(models.TaskList)
	return list, ok
}

// TaskFromContext returns the task loaded by RequireTaskAccess
func TaskFromContext(c *gin.Context) (models.Task, bool) {
	v, exists := c.Get(constants.ContextKeyTask)
	if !exists {
		return models.Task{}, false
	}
	task, ok := v.(models.Task)
	return task, ok
}
