package repository

import (
	"context"
	"errors"
	"time"

	"github.com/yukikurage/trade-erp-api/internal/models"
	"github.com/yukikurage/trade-erp-api/internal/ordering"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is gorm's record-not-found error, so callers may match either.
	ErrNotFound = gorm.ErrRecordNotFound

	// ErrConflict is returned when the database aborted a transaction because
	// of a concurrent write. The caller should retry with fresh state.
	ErrConflict = errors.New("concurrent modification detected")
)

// TaskRepository defines the interface for task data access
type TaskRepository interface {
	// Create appends a task to the end of its list
	Create(ctx context.Context, task *models.Task) error

	// FindByID finds a task by ID with optional preloading
	FindByID(ctx context.Context, id uint64, preload ...string) (*models.Task, error)

	// ListByTaskList returns the live tasks of a list in order
	ListByTaskList(ctx context.Context, taskListID uint64) ([]models.Task, error)

	// Update saves the task payload. Order and list are left untouched.
	Update(ctx context.Context, task *models.Task) error

	// Move places a task at target inside toListID, or its own list when nil
	Move(ctx context.Context, id uint64, target int, toListID *uint64) (ordering.Plan, error)

	// Delete soft deletes a task and compacts its list
	Delete(ctx context.Context, id uint64) (*models.Task, error)

	// AssignUsers assigns multiple users to a task
	AssignUsers(ctx context.Context, taskID uint64, userIDs []uint64) error

	// UnassignUsers removes user assignments from a task
	UnassignUsers(ctx context.Context, taskID uint64, userIDs []uint64) error

	// CountTeamMembers counts how many of the given user IDs belong to the team
	CountTeamMembers(ctx context.Context, teamID uint64, userIDs []uint64) (int64, error)
}

// TaskListRepository defines the interface for task list data access
type TaskListRepository interface {
	Create(ctx context.Context, list *models.TaskList) error
	FindByID(ctx context.Context, id uint64) (*models.TaskList, error)
	ListByTeam(ctx context.Context, teamID uint64) ([]models.TaskList, error)
	Update(ctx context.Context, list *models.TaskList) error
	Move(ctx context.Context, id uint64, target int) (ordering.Plan, error)

	// Delete soft deletes a list with its tasks and compacts the team board
	Delete(ctx context.Context, id uint64) (*models.TaskList, error)
}

// TeamRepository defines the interface for team data access
type TeamRepository interface {
	// Create creates a new team
	Create(ctx context.Context, team *models.Team) error

	// FindByID finds a team by ID
	FindByID(ctx context.Context, id uint64) (*models.Team, error)

	// FindByInviteCode finds a team by invite code
	FindByInviteCode(ctx context.Context, code string) (*models.Team, error)

	// Update updates a team
	Update(ctx context.Context, team *models.Team) error

	// Delete deletes a team and its board
	Delete(ctx context.Context, id uint64) error

	// AddMember adds a member to a team
	AddMember(ctx context.Context, member *models.TeamMember) error

	// RemoveMember removes a member from a team
	RemoveMember(ctx context.Context, teamID, userID uint64) error

	// FindMember finds a specific team member
	FindMember(ctx context.Context, teamID, userID uint64) (*models.TeamMember, error)

	// ListMembersByUserID lists all teams a user is a member of
	ListMembersByUserID(ctx context.Context, userID uint64) ([]models.TeamMember, error)

	// ListMembers lists all members of a team
	ListMembers(ctx context.Context, teamID uint64) ([]models.TeamMember, error)
}

// UserRepository stores operators
type UserRepository interface {
	// Register creates an operator with a personal desk they own
	Register(ctx context.Context, operator *models.User, desk *models.Team, joinedAt time.Time) error
	FindByID(ctx context.Context, id uint64) (*models.User, error)
	FindByUsername(ctx context.Context, name string) (*models.User, error)
}

// CommunicationRepository defines the interface for recipients, their line
// items and communication records
type CommunicationRepository interface {
	// FindContact loads the supplier or customer addressed by kind
	FindContact(ctx context.Context, kind models.CommunicationKind, recipientID uint64) (*models.Contact, error)

	// EligibleInquiries returns the open line items a recipient may receive
	EligibleInquiries(ctx context.Context, filter EligibleFilter) ([]models.Inquiry, error)

	// Create stores a record together with its item set
	Create(ctx context.Context, record *models.Communication) error

	// CompleteDispatch writes the outcome of the first dispatch
	CompleteDispatch(ctx context.Context, id uint64, emailSent, whatsappSent bool) error

	// RecordResend updates flags and addresses and appends one history entry
	RecordResend(ctx context.Context, resend *models.CommunicationResend, emails, phones []string) error

	// FindByID loads a record with items and resend history
	FindByID(ctx context.Context, id uint64) (*models.Communication, error)

	// List retrieves records with filtering and pagination
	List(ctx context.Context, filter CommunicationFilter) ([]models.Communication, int64, error)
}

// EligibleFilter selects the line items offered in the item step
type EligibleFilter struct {
	Kind        models.CommunicationKind
	RecipientID uint64
	Site        string
	PRGroup     string
}

// CommunicationFilter holds filtering options for listing records
type CommunicationFilter struct {
	Kind        models.CommunicationKind
	RecipientID *uint64
	SentAfter   *time.Time
	Page        int
	PageSize    int
}
