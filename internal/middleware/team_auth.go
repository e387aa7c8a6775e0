package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/trade-erp-api/internal/constants"
	"github.com/yukikurage/trade-erp-api/internal/database"
	apierrors "github.com/yukikurage/trade-erp-api/internal/errors"
	"github.com/yukikurage/trade-erp-api/internal/models"
)

// ParseIDParam reads a numeric path parameter.
func ParseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// RequireTeamAccess checks if the user is a member of the team in :id
func RequireTeamAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		teamID, ok := ParseIDParam(c, "id")
		if !ok {
			apierrors.BadRequest(c, "Invalid team ID")
			return
		}

		userID, exists := GetUserID(c)
		if !exists {
			apierrors.Unauthorized(c, "")
			return
		}

		var team models.Team
		if err := database.GetDB().WithContext(c.Request.Context()).First(&team, teamID).Error; err != nil {
			apierrors.NotFound(c, "Team not found")
			return
		}

		// Non-members get 404 so team ids do not leak
		var member models.TeamMember
		err := database.GetDB().WithContext(c.Request.Context()).
			Where("team_id = ? AND user_id = ?", teamID, userID).
			First(&member).Error
		if err != nil {
			apierrors.NotFound(c, "Team not found")
			return
		}

		c.Set(constants.ContextKeyTeam, team)
		c.Set(constants.ContextKeyTeamMember, member)
		c.Next()
	}
}

// RequireTeamOwner must run after RequireTeamAccess
func RequireTeamOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		member, ok := TeamMemberFromContext(c)
		if !ok {
			apierrors.Forbidden(c, "Team access required")
			return
		}

		if member.Role != models.RoleOwner {
			apierrors.InsufficientPermissions(c, "Only team owners can perform this action")
			return
		}

		c.Next()
	}
}

// TeamFromContext returns the team loaded by RequireTeamAccess
func TeamFromContext(c *gin.Context) (models.Team, bool) {
	v, exists := c.Get(constants.ContextKeyTeam)
	if !exists {
		return models.Team{}, false
	}
	team, ok := v.(models.Team)
	return team, ok
}

// TeamMemberFromContext returns the caller's membership loaded by RequireTeamAccess
func TeamMemberFromContext(c *gin.Context) (models.TeamMember, bool) {
	v, exists := c.Get(constants.ContextKeyTeamMember)
	if !exists {
		return models.TeamMember{}, false
	}
	member, ok := v.(models.TeamMember)
	return member, ok
}
