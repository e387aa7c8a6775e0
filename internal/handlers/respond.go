package handlers

import (
	"errors"
	"log"

	"github.com/gin-gonic/gin"
	apierrors "github.com/yukikurage/trade-erp-api/internal/errors"
	"github.com/yukikurage/trade-erp-api/internal/middleware"
	"github.com/yukikurage/trade-erp-api/internal/services"
	"github.com/yukikurage/trade-erp-api/internal/workflow"
)

// respondServiceError maps board and communication errors onto API errors.
func respondServiceError(c *gin.Context, err error) {
	var verr *workflow.ValidationError
	switch {
	case errors.As(err, &verr):
		apierrors.ValidationFailed(c, verr.Error(), verr)
	case errors.Is(err, services.ErrTeamNotFound),
		errors.Is(err, services.ErrTaskNotFound),
		errors.Is(err, services.ErrTaskListNotFound),
		errors.Is(err, services.ErrRecipientNotFound),
		errors.Is(err, services.ErrCommunicationNotFound):
		apierrors.NotFound(c, err.Error())
	case errors.Is(err, services.ErrTitleRequired),
		errors.Is(err, services.ErrNoUserIDsProvided),
		errors.Is(err, services.ErrInvalidTaskAssignee),
		errors.Is(err, services.ErrInvalidDateRange),
		errors.Is(err, services.ErrTaskListTeamMismatch):
		apierrors.ValidationFailed(c, err.Error(), nil)
	case errors.Is(err, services.ErrConflict):
		apierrors.Conflict(c, "The order changed concurrently, please retry")
	case errors.Is(err, services.ErrStorageUnavailable):
		apierrors.ServiceUnavailable(c, "Document storage is unavailable")
	default:
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		apierrors.InternalError(c, "")
	}
}

// currentUser reads the authenticated user id or writes a 401.
func currentUser(c *gin.Context) (uint64, bool) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return 0, false
	}
	return userID, true
}
