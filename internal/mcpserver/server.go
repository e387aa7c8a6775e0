// Package mcpserver exposes board reordering and communication records as MCP
// tools, acting on behalf of a single user.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/yukikurage/trade-erp-api/internal/models"
	"github.com/yukikurage/trade-erp-api/internal/ordering"
	"github.com/yukikurage/trade-erp-api/internal/services"
	"github.com/yukikurage/trade-erp-api/internal/workflow"
)

// Server wraps the board and communication services.
type Server struct {
	server         *gomcp.Server
	board          *services.BoardService
	communications *services.CommunicationService
	actorID        uint64
}

// NewServer creates an MCP server whose tools run as actorID. Board tools
// only reach teams the actor is a member of.
func NewServer(board *services.BoardService, communications *services.CommunicationService, actorID uint64, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		board:          board,
		communications: communications,
		actorID:        actorID,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "trade-erp", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run serves over stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type listTaskListsInput struct {
	TeamID uint64 `json:"team_id" jsonschema:"the team whose board to list"`
}

type taskListOutput struct {
	ID     uint64 `json:"id"`
	TeamID uint64 `json:"team_id"`
	Order  int    `json:"order"`
	Title  string `json:"title"`
}

type listTaskListsOutput struct {
	TeamID    uint64           `json:"team_id"`
	TaskLists []taskListOutput `json:"task_lists"`
	Count     int              `json:"count"`
}

type listTasksInput struct {
	TaskListID uint64 `json:"task_list_id" jsonschema:"the task list to read"`
}

type taskOutput struct {
	ID         uint64 `json:"id"`
	TaskListID uint64 `json:"task_list_id"`
	Order      int    `json:"order"`
	Title      string `json:"title"`
	DueDate    string `json:"due_date,omitempty"`
}

type listTasksOutput struct {
	TaskListID uint64       `json:"task_list_id"`
	Tasks      []taskOutput `json:"tasks"`
	Count      int          `json:"count"`
}

type moveTaskInput struct {
	TaskID     uint64  `json:"task_id" jsonschema:"the task to move"`
	Order      int     `json:"order" jsonschema:"1-based target position, clamped to the list size"`
	TaskListID *uint64 `json:"task_list_id,omitempty" jsonschema:"destination list of the same team, defaults to the current list"`
}

type moveTaskListInput struct {
	TaskListID uint64 `json:"task_list_id" jsonschema:"the task list to move"`
	Order      int    `json:"order" jsonschema:"1-based target position, clamped to the board size"`
}

type moveOutput struct {
	ID          uint64 `json:"id"`
	ContainerID uint64 `json:"container_id"`
	Order       int    `json:"order"`
	Moved       bool   `json:"moved"`
}

type deleteTaskInput struct {
	TaskID uint64 `json:"task_id" jsonschema:"the task to delete"`
}

type messageOutput struct {
	Message string `json:"message"`
}

type getCommunicationInput struct {
	CommunicationID uint64 `json:"communication_id" jsonschema:"the sent record to read"`
}

type communicationOutput struct {
	ID              uint64   `json:"id"`
	Kind            string   `json:"kind"`
	RecipientID     uint64   `json:"recipient_id"`
	ItemIDs         []uint64 `json:"item_ids"`
	EmailSent       bool     `json:"email_sent"`
	WhatsAppSent    bool     `json:"whatsapp_sent"`
	EmailAddresses  []string `json:"email_addresses"`
	WhatsAppNumbers []string `json:"whatsapp_numbers"`
	DocumentURLs    []string `json:"document_urls"`
	SentAt          string   `json:"sent_at"`
	LastResendAt    string   `json:"last_resend_at,omitempty"`
	Resends         int      `json:"resends"`
}

type resendInput struct {
	CommunicationID uint64   `json:"communication_id" jsonschema:"the sent record to resend"`
	Emails          []string `json:"emails,omitempty" jsonschema:"email addresses to send to, leave empty to skip email"`
	WhatsAppNumbers []string `json:"whatsapp_numbers,omitempty" jsonschema:"WhatsApp numbers to send to, leave empty to skip WhatsApp"`
}

type resendOutput struct {
	CommunicationID uint64 `json:"communication_id"`
	Email           string `json:"email"`
	WhatsApp        string `json:"whatsapp"`
	EmailError      string `json:"email_error,omitempty"`
	WhatsAppError   string `json:"whatsapp_error,omitempty"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_task_lists",
		Description: "List the task lists of a team board in display order.",
	}, s.handleListTaskLists)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tasks",
		Description: "List the tasks of a task list in display order (order 1 is first).",
	}, s.handleListTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "move_task",
		Description: "Move a task to a 1-based position, optionally into another list of the same team. Other tasks shift to keep orders dense.",
	}, s.handleMoveTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "move_task_list",
		Description: "Move a task list to a 1-based position on its team board.",
	}, s.handleMoveTaskList)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "delete_task",
		Description: "Delete a task. Tasks after it move up by one.",
	}, s.handleDeleteTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_communication",
		Description: "Get a sent supplier inquiry or customer offer with its delivery flags and document links.",
	}, s.handleGetCommunication)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "resend_communication",
		Description: "Send an existing communication again to the given addresses. The item set never changes.",
	}, s.handleResend)
}

// --- Tool handlers ---

func (s *Server) handleListTaskLists(ctx context.Context, _ *gomcp.CallToolRequest, input listTaskListsInput) (*gomcp.CallToolResult, listTaskListsOutput, error) {
	if input.TeamID == 0 {
		return errorResult("team_id is required"), listTaskListsOutput{}, nil
	}
	if err := s.board.AuthorizeTeam(ctx, s.actorID, input.TeamID); err != nil {
		return toolError("listing task lists", err), listTaskListsOutput{}, nil
	}

	lists, err := s.board.ListTaskLists(ctx, input.TeamID)
	if err != nil {
		return toolError("listing task lists", err), listTaskListsOutput{}, nil
	}

	out := listTaskListsOutput{
		TeamID:    input.TeamID,
		TaskLists: make([]taskListOutput, len(lists)),
		Count:     len(lists),
	}
	for i, l := range lists {
		out.TaskLists[i] = taskListOutput{ID: l.ID, TeamID: l.TeamID, Order: l.Order, Title: l.Title}
	}
	return nil, out, nil
}

func (s *Server) handleListTasks(ctx context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	if input.TaskListID == 0 {
		return errorResult("task_list_id is required"), listTasksOutput{}, nil
	}
	if _, err := s.board.AuthorizeTaskList(ctx, s.actorID, input.TaskListID); err != nil {
		return toolError("listing tasks", err), listTasksOutput{}, nil
	}

	tasks, err := s.board.ListTasks(ctx, input.TaskListID)
	if err != nil {
		return toolError("listing tasks", err), listTasksOutput{}, nil
	}

	out := listTasksOutput{
		TaskListID: input.TaskListID,
		Tasks:      make([]taskOutput, len(tasks)),
		Count:      len(tasks),
	}
	for i, t := range tasks {
		out.Tasks[i] = taskToOutput(t)
	}
	return nil, out, nil
}

func (s *Server) handleMoveTask(ctx context.Context, _ *gomcp.CallToolRequest, input moveTaskInput) (*gomcp.CallToolResult, moveOutput, error) {
	if input.TaskID == 0 {
		return errorResult("task_id is required"), moveOutput{}, nil
	}
	if _, err := s.board.AuthorizeTask(ctx, s.actorID, input.TaskID); err != nil {
		return toolError("moving task", err), moveOutput{}, nil
	}
	if input.TaskListID != nil {
		if _, err := s.board.AuthorizeTaskList(ctx, s.actorID, *input.TaskListID); err != nil {
			return toolError("moving task", err), moveOutput{}, nil
		}
	}

	plan, err := s.board.MoveTask(ctx, services.MoveTaskInput{
		TaskID:   input.TaskID,
		Target:   input.Order,
		ToListID: input.TaskListID,
	})
	if err != nil {
		return toolError("moving task", err), moveOutput{}, nil
	}
	return nil, planToOutput(plan), nil
}

func (s *Server) handleMoveTaskList(ctx context.Context, _ *gomcp.CallToolRequest, input moveTaskListInput) (*gomcp.CallToolResult, moveOutput, error) {
	if input.TaskListID == 0 {
		return errorResult("task_list_id is required"), moveOutput{}, nil
	}
	if _, err := s.board.AuthorizeTaskList(ctx, s.actorID, input.TaskListID); err != nil {
		return toolError("moving task list", err), moveOutput{}, nil
	}

	plan, err := s.board.MoveTaskList(ctx, input.TaskListID, input.Order)
	if err != nil {
		return toolError("moving task list", err), moveOutput{}, nil
	}
	return nil, planToOutput(plan), nil
}

func (s *Server) handleDeleteTask(ctx context.Context, _ *gomcp.CallToolRequest, input deleteTaskInput) (*gomcp.CallToolResult, messageOutput, error) {
	if input.TaskID == 0 {
		return errorResult("task_id is required"), messageOutput{}, nil
	}
	if _, err := s.board.AuthorizeTask(ctx, s.actorID, input.TaskID); err != nil {
		return toolError("deleting task", err), messageOutput{}, nil
	}

	if err := s.board.DeleteTask(ctx, input.TaskID); err != nil {
		return toolError("deleting task", err), messageOutput{}, nil
	}
	return nil, messageOutput{Message: fmt.Sprintf("task %d deleted", input.TaskID)}, nil
}

func (s *Server) handleGetCommunication(ctx context.Context, _ *gomcp.CallToolRequest, input getCommunicationInput) (*gomcp.CallToolResult, communicationOutput, error) {
	if input.CommunicationID == 0 {
		return errorResult("communication_id is required"), communicationOutput{}, nil
	}

	record, err := s.communications.Get(ctx, input.CommunicationID)
	if err != nil {
		return toolError("getting communication", err), communicationOutput{}, nil
	}
	return nil, communicationToOutput(*record), nil
}

func (s *Server) handleResend(ctx context.Context, _ *gomcp.CallToolRequest, input resendInput) (*gomcp.CallToolResult, resendOutput, error) {
	if input.CommunicationID == 0 {
		return errorResult("communication_id is required"), resendOutput{}, nil
	}
	if len(input.Emails) == 0 && len(input.WhatsAppNumbers) == 0 {
		return errorResult("at least one email address or WhatsApp number is required"), resendOutput{}, nil
	}

	res, err := s.communications.Resend(ctx, s.actorID, input.CommunicationID, services.ResendInput{
		Email:    workflow.ChannelConfig{Enabled: len(input.Emails) > 0, Custom: input.Emails},
		WhatsApp: workflow.ChannelConfig{Enabled: len(input.WhatsAppNumbers) > 0, Custom: input.WhatsAppNumbers},
	})
	if err != nil {
		return toolError("resending communication", err), resendOutput{}, nil
	}

	return nil, resendOutput{
		CommunicationID: res.RecordID,
		Email:           string(res.Email),
		WhatsApp:        string(res.WhatsApp),
		EmailError:      res.EmailError,
		WhatsAppError:   res.WhatsAppError,
	}, nil
}

// --- Helpers ---

func taskToOutput(t models.Task) taskOutput {
	out := taskOutput{ID: t.ID, TaskListID: t.TaskListID, Order: t.Order, Title: t.Title}
	if t.DueDate != nil {
		out.DueDate = t.DueDate.Format(time.RFC3339)
	}
	return out
}

func planToOutput(plan ordering.Plan) moveOutput {
	return moveOutput{ID: plan.ItemID, ContainerID: plan.ToContainer, Order: plan.ToOrder, Moved: !plan.NoOp}
}

func communicationToOutput(c models.Communication) communicationOutput {
	out := communicationOutput{
		ID:              c.ID,
		Kind:            string(c.Kind),
		RecipientID:     c.RecipientID,
		ItemIDs:         c.ItemIDs(),
		EmailSent:       c.EmailSent,
		WhatsAppSent:    c.WhatsAppSent,
		EmailAddresses:  nonNil(c.EmailAddresses),
		WhatsAppNumbers: nonNil(c.WhatsAppNumbers),
		DocumentURLs:    nonNil(c.DocumentURLs),
		SentAt:          c.CreatedAt.Format(time.RFC3339),
		Resends:         len(c.Resends),
	}
	if c.LastResendAt != nil {
		out.LastResendAt = c.LastResendAt.Format(time.RFC3339)
	}
	return out
}

// toolError turns a service error into a tool-level error result.
func toolError(action string, err error) *gomcp.CallToolResult {
	var verr *workflow.ValidationError
	switch {
	case errors.As(err, &verr):
		return errorResult(fmt.Sprintf("%s: invalid %s: %s", action, verr.Field, verr.Reason))
	case errors.Is(err, services.ErrConflict):
		return errorResult(fmt.Sprintf("%s: the order changed concurrently, retry", action))
	}
	return errorResult(fmt.Sprintf("%s: %s", action, err))
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
