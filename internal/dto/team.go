package dto

import (
	"time"

	"github.com/yukikurage/trade-erp-api/internal/models"
)

// UserDTO represents a user in API responses
type UserDTO struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
}

// TeamDTO represents a team in API responses
type TeamDTO struct {
	ID         uint64 `json:"id"`
	Name       string `json:"name"`
	InviteCode string `json:"invite_code,omitempty"`
}

// TeamWithRoleDTO is a team together with the caller's role
type TeamWithRoleDTO struct {
	TeamDTO
	Role models.TeamRole `json:"role"`
}

// TeamMemberDTO represents a member in a team
type TeamMemberDTO struct {
	User     UserDTO         `json:"user"`
	Role     models.TeamRole `json:"role"`
	JoinedAt time.Time       `json:"joined_at"`
}

// TeamDetailDTO represents a team with its members
type TeamDetailDTO struct {
	TeamDTO
	Members  []TeamMemberDTO `json:"members"`
	YourRole models.TeamRole `json:"your_role"`
}

func ToUserDTO(user models.User) UserDTO {
	return UserDTO{ID: user.ID, Username: user.Username}
}

// ToTeamDTO converts a team; the invite code is only exposed to members
func ToTeamDTO(team models.Team, includeInviteCode bool) TeamDTO {
	out := TeamDTO{ID: team.ID, Name: team.Name}
	if includeInviteCode {
		out.InviteCode = team.InviteCode
	}
	return out
}

func ToTeamWithRoleDTO(member models.TeamMember) TeamWithRoleDTO {
	return TeamWithRoleDTO{
		TeamDTO: ToTeamDTO(member.Team, false),
		Role:    member.Role,
	}
}

func ToTeamMemberDTO(member models.TeamMember) TeamMemberDTO {
	return TeamMemberDTO{
		User:     ToUserDTO(member.User),
		Role:     member.Role,
		JoinedAt: member.JoinedAt,
	}
}

// ToTeamDetailDTO converts a team with members to the detail view
func ToTeamDetailDTO(team models.Team, members []models.TeamMember, yourRole models.TeamRole) TeamDetailDTO {
	memberDTOs := make([]TeamMemberDTO, len(members))
	for i, m := range members {
		memberDTOs[i] = ToTeamMemberDTO(m)
	}
	return TeamDetailDTO{
		TeamDTO:  ToTeamDTO(team, true),
		Members:  memberDTOs,
		YourRole: yourRole,
	}
}
