package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/trade-erp-api/internal/dto"
	apierrors "github.com/yukikurage/trade-erp-api/internal/errors"
	"github.com/yukikurage/trade-erp-api/internal/middleware"
	"github.com/yukikurage/trade-erp-api/internal/services"
)

type TeamHandler struct {
	teamService *services.TeamService
}

func NewTeamHandler(teamService *services.TeamService) *TeamHandler {
	return &TeamHandler{teamService: teamService}
}

// CreateTeam creates a new team owned by the caller
func (h *TeamHandler) CreateTeam(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	type CreateTeamRequest struct {
		Name string `json:"name" binding:"required"`
	}

	var req CreateTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	team, err := h.teamService.CreateTeam(c.Request.Context(), services.CreateTeamInput{
		Name:    req.Name,
		OwnerID: userID,
	})
	if err != nil {
		respondTeamError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToTeamDTO(*team, true))
}

// ListTeams returns all teams the user is a member of
func (h *TeamHandler) ListTeams(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	memberships, err := h.teamService.ListTeamsForUser(c.Request.Context(), userID)
	if err != nil {
		respondTeamError(c, err)
		return
	}

	teams := make([]dto.TeamWithRoleDTO, len(memberships))
	for i, m := range memberships {
		teams[i] = dto.ToTeamWithRoleDTO(m)
	}

	c.JSON(http.StatusOK, gin.H{
		"teams": teams,
	})
}

// GetTeam returns team details with members.
// The team is already authorized by RequireTeamAccess.
func (h *TeamHandler) GetTeam(c *gin.Context) {
	team, ok := middleware.TeamFromContext(c)
	if !ok {
		apierrors.InternalError(c, "Team not found in context")
		return
	}
	member, _ := middleware.TeamMemberFromContext(c)

	_, members, err := h.teamService.GetTeamWithMembers(c.Request.Context(), team.ID)
	if err != nil {
		respondTeamError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTeamDetailDTO(team, members, member.Role))
}

// UpdateTeam renames a team
func (h *TeamHandler) UpdateTeam(c *gin.Context) {
	team, ok := middleware.TeamFromContext(c)
	if !ok {
		apierrors.InternalError(c, "Team not found in context")
		return
	}

	type UpdateTeamRequest struct {
		Name string `json:"name" binding:"required"`
	}

	var req UpdateTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	updated, err := h.teamService.RenameTeam(c.Request.Context(), team.ID, req.Name)
	if err != nil {
		respondTeamError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTeamDTO(*updated, true))
}

// DeleteTeam deletes a team and its board
func (h *TeamHandler) DeleteTeam(c *gin.Context) {
	team, ok := middleware.TeamFromContext(c)
	if !ok {
		apierrors.InternalError(c, "Team not found in context")
		return
	}

	if err := h.teamService.DeleteTeam(c.Request.Context(), team.ID); err != nil {
		respondTeamError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Team deleted successfully",
	})
}

// JoinTeam allows a user to join via invite code
func (h *TeamHandler) JoinTeam(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	type JoinRequest struct {
		InviteCode string `json:"invite_code" binding:"required"`
	}

	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	team, err := h.teamService.JoinTeamByInvite(c.Request.Context(), userID, req.InviteCode)
	if err != nil {
		respondTeamError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Successfully joined team",
		"team":    dto.ToTeamDTO(*team, false),
	})
}

// RegenerateInviteCode generates a new invite code for the team
func (h *TeamHandler) RegenerateInviteCode(c *gin.Context) {
	team, ok := middleware.TeamFromContext(c)
	if !ok {
		apierrors.InternalError(c, "Team not found in context")
		return
	}

	updated, err := h.teamService.RegenerateInviteCode(c.Request.Context(), team.ID)
	if err != nil {
		respondTeamError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTeamDTO(*updated, true))
}

// RemoveMember removes a member from the team
func (h *TeamHandler) RemoveMember(c *gin.Context) {
	team, ok := middleware.TeamFromContext(c)
	if !ok {
		apierrors.InternalError(c, "Team not found in context")
		return
	}

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	targetID, ok := middleware.ParseIDParam(c, "user_id")
	if !ok {
		apierrors.BadRequest(c, "Invalid user ID")
		return
	}

	if err := h.teamService.RemoveMember(c.Request.Context(), team.ID, userID, targetID); err != nil {
		respondTeamError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Member removed successfully",
	})
}

func respondTeamError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidTeamName),
		errors.Is(err, services.ErrCannotRemoveYourself):
		apierrors.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrInvalidInviteCode),
		errors.Is(err, services.ErrTeamNotFound),
		errors.Is(err, services.ErrTeamMemberNotFound):
		apierrors.NotFound(c, err.Error())
	case errors.Is(err, services.ErrAlreadyTeamMember):
		apierrors.AlreadyExists(c, err.Error())
	case errors.Is(err, services.ErrNotTeamMember):
		apierrors.Forbidden(c, err.Error())
	default:
		respondServiceError(c, err)
	}
}
