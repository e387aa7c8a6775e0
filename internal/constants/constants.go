package constants

import "time"

// Session and context keys
const (
	ContextKeyUserID     = "user_id"
	ContextKeyTeam       = "team"
	ContextKeyTeamMember = "team_member"
	ContextKeyTaskList   = "task_list"
	ContextKeyTask       = "task"
	SessionCookieName    = "erp_session"
)

// Auth
const (
	MinPasswordLength = 8
)

// Pagination
const (
	MinPageSize     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Ordering
const (
	// DeletedOrder is written to sort_order when an ordered row is soft-deleted.
	DeletedOrder = -1

	DefaultMaxMoveAttempts = 3
	MoveRetryBackoff       = 25 * time.Millisecond
)

// Live updates
const (
	TopicTeamPrefix     = "team:"
	TopicTaskListPrefix = "task-list:"

	EventTasksUpdated     = "tasks.updated"
	EventTaskListsUpdated = "task-lists.updated"

	SubscriberBufferSize = 8
	LiveKeepAlive        = 25 * time.Second
)

// Communication
const (
	MaxCustomAddresses = 20
	PreviewPrefix      = "previews"
	DocumentPrefix     = "communications"
)
