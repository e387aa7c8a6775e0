package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/yukikurage/trade-erp-api/internal/constants"
	"github.com/yukikurage/trade-erp-api/internal/database"
	"github.com/yukikurage/trade-erp-api/internal/dto"
	apierrors "github.com/yukikurage/trade-erp-api/internal/errors"
	"github.com/yukikurage/trade-erp-api/internal/middleware"
	"github.com/yukikurage/trade-erp-api/internal/models"
	"github.com/yukikurage/trade-erp-api/internal/realtime"
	"github.com/yukikurage/trade-erp-api/internal/repository"
	"github.com/yukikurage/trade-erp-api/internal/services"
	"gorm.io/gorm"
)

// BoardHandlerTestSuite drives the task list and task routes through their
// access middleware.
type BoardHandlerTestSuite struct {
	suite.Suite
	db     *gorm.DB
	hub    *realtime.Hub
	board  *services.BoardService
	router *gin.Engine
	owner  *models.User
	team   *models.Team
	list   *models.TaskList
	userID uint64
}

func (suite *BoardHandlerTestSuite) SetupTest() {
	var err error
	suite.db, err = database.OpenMemory()
	suite.Require().NoError(err)
	database.SetDB(suite.db)

	suite.hub = realtime.NewHub()
	suite.board = services.NewBoardService(
		repository.NewTaskRepository(suite.db),
		repository.NewTaskListRepository(suite.db),
		repository.NewTeamRepository(suite.db),
		suite.hub,
		3,
	)

	gin.SetMode(gin.TestMode)
	suite.router = gin.New()
	suite.router.Use(func(c *gin.Context) {
		c.Set(constants.ContextKeyUserID, suite.userID)
	})

	listHandler := NewTaskListHandler(suite.board)
	taskHandler := NewTaskHandler(suite.board)
	api := suite.router.Group("/api")
	teams := api.Group("/teams/:id", middleware.RequireTeamAccess())
	teams.GET("/lists", listHandler.ListTaskLists)
	teams.POST("/lists", listHandler.CreateTaskList)
	lists := api.Group("/lists/:id", middleware.RequireTaskListAccess(suite.board))
	lists.PATCH("", listHandler.RenameTaskList)
	lists.DELETE("", listHandler.DeleteTaskList)
	lists.POST("/move", listHandler.MoveTaskList)
	lists.GET("/tasks", taskHandler.ListTasks)
	lists.POST("/tasks", taskHandler.CreateTask)
	tasks := api.Group("/tasks/:id", middleware.RequireTaskAccess(suite.board))
	tasks.GET("", taskHandler.GetTask)
	tasks.PATCH("", taskHandler.UpdateTask)
	tasks.DELETE("", taskHandler.DeleteTask)
	tasks.POST("/move", taskHandler.MoveTask)
	tasks.POST("/assign", taskHandler.AssignTask)
	tasks.POST("/unassign", taskHandler.UnassignTask)

	suite.owner = suite.createTestUser("owner")
	suite.team = suite.createTestTeam("Export desk", suite.owner)
	suite.userID = suite.owner.ID

	suite.list, err = suite.board.CreateTaskList(context.Background(), suite.team.ID, "Inbox")
	suite.Require().NoError(err)
}

func (suite *BoardHandlerTestSuite) TearDownTest() {
	sqlDB, err := suite.db.DB()
	suite.Require().NoError(err)
	sqlDB.Close()
}

func (suite *BoardHandlerTestSuite) createTestUser(username string) *models.User {
	user := &models.User{Username: username, PasswordHash: "hashedpassword"}
	suite.Require().NoError(suite.db.Create(user).Error)
	return user
}

func (suite *BoardHandlerTestSuite) createTestTeam(name string, owner *models.User) *models.Team {
	team := &models.Team{Name: name, InviteCode: name + "_CODE"}
	suite.Require().NoError(suite.db.Create(team).Error)
	suite.addMember(team, owner, models.RoleOwner)
	return team
}

func (suite *BoardHandlerTestSuite) addMember(team *models.Team, user *models.User, role models.TeamRole) {
	suite.Require().NoError(suite.db.Create(&models.TeamMember{
		TeamID: team.ID, UserID: user.ID, Role: role, JoinedAt: time.Now(),
	}).Error)
}

func (suite *BoardHandlerTestSuite) createTestTask(listID uint64, title string) *models.Task {
	task, err := suite.board.CreateTask(context.Background(), services.CreateTaskInput{
		TaskListID: listID,
		Title:      title,
		CreatorID:  suite.owner.ID,
	})
	suite.Require().NoError(err)
	return task
}

func (suite *BoardHandlerTestSuite) do(method, url string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		suite.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, url, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *BoardHandlerTestSuite) titles(listID uint64) []string {
	w := suite.do(http.MethodGet, fmt.Sprintf("/api/lists/%d/tasks", listID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	var snapshot dto.TaskListSnapshot
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &snapshot))
	out := make([]string, len(snapshot.Tasks))
	for i, t := range snapshot.Tasks {
		suite.Equal(i+1, t.Order)
		out[i] = t.Title
	}
	return out
}

func (suite *BoardHandlerTestSuite) TestCreateTask_Success() {
	w := suite.do(http.MethodPost, fmt.Sprintf("/api/lists/%d/tasks", suite.list.ID), map[string]any{
		"title":       "Quote valves",
		"description": "Ask two suppliers",
	})

	suite.Require().Equal(http.StatusCreated, w.Code)
	var task dto.TaskDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &task))
	assert.Equal(suite.T(), "Quote valves", task.Title)
	assert.Equal(suite.T(), 1, task.Order)
	suite.Require().Len(task.Assignees, 1)
	assert.Equal(suite.T(), suite.owner.ID, task.Assignees[0].ID)
}

func (suite *BoardHandlerTestSuite) TestCreateTask_InvalidBody() {
	w := suite.do(http.MethodPost, fmt.Sprintf("/api/lists/%d/tasks", suite.list.ID), map[string]any{
		"description": "no title",
	})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
}

func (suite *BoardHandlerTestSuite) TestCreateTask_InvalidDateRange() {
	w := suite.do(http.MethodPost, fmt.Sprintf("/api/lists/%d/tasks", suite.list.ID), map[string]any{
		"title":      "Backwards",
		"start_date": "2024-05-10T00:00:00Z",
		"due_date":   "2024-05-01T00:00:00Z",
	})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	assert.Contains(suite.T(), w.Body.String(), apierrors.ErrCodeValidationFailed)
}

func (suite *BoardHandlerTestSuite) TestMoveTask_WithinList() {
	suite.createTestTask(suite.list.ID, "a")
	suite.createTestTask(suite.list.ID, "b")
	c := suite.createTestTask(suite.list.ID, "c")

	w := suite.do(http.MethodPost, fmt.Sprintf("/api/tasks/%d/move", c.ID), map[string]any{"order": 1})

	suite.Require().Equal(http.StatusOK, w.Code)
	var res dto.MoveResultDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(suite.T(), dto.MoveResultDTO{ID: c.ID, ContainerID: suite.list.ID, Order: 1, Moved: true}, res)
	assert.Equal(suite.T(), []string{"c", "a", "b"}, suite.titles(suite.list.ID))
}

func (suite *BoardHandlerTestSuite) TestMoveTask_ClampsTarget() {
	a := suite.createTestTask(suite.list.ID, "a")
	suite.createTestTask(suite.list.ID, "b")

	w := suite.do(http.MethodPost, fmt.Sprintf("/api/tasks/%d/move", a.ID), map[string]any{"order": 99})

	suite.Require().Equal(http.StatusOK, w.Code)
	assert.Equal(suite.T(), []string{"b", "a"}, suite.titles(suite.list.ID))
}

func (suite *BoardHandlerTestSuite) TestMoveTask_AcrossListsPublishesBoth() {
	done, err := suite.board.CreateTaskList(context.Background(), suite.team.ID, "Done")
	suite.Require().NoError(err)
	a := suite.createTestTask(suite.list.ID, "a")
	suite.createTestTask(suite.list.ID, "b")
	suite.createTestTask(done.ID, "x")

	from, cancelFrom := suite.hub.Subscribe(realtime.TaskListTopic(suite.list.ID))
	defer cancelFrom()
	to, cancelTo := suite.hub.Subscribe(realtime.TaskListTopic(done.ID))
	defer cancelTo()

	w := suite.do(http.MethodPost, fmt.Sprintf("/api/tasks/%d/move", a.ID), map[string]any{
		"order":        1,
		"task_list_id": done.ID,
	})

	suite.Require().Equal(http.StatusOK, w.Code)
	assert.Equal(suite.T(), []string{"b"}, suite.titles(suite.list.ID))
	assert.Equal(suite.T(), []string{"a", "x"}, suite.titles(done.ID))

	for _, ch := range []<-chan realtime.Event{from, to} {
		select {
		case ev := <-ch:
			assert.Equal(suite.T(), constants.EventTasksUpdated, ev.Name)
		case <-time.After(time.Second):
			suite.Fail("missing live update")
		}
	}
}

func (suite *BoardHandlerTestSuite) TestMoveTask_OtherTeamListRejected() {
	other := suite.createTestTeam("Other desk", suite.owner)
	foreign, err := suite.board.CreateTaskList(context.Background(), other.ID, "Foreign")
	suite.Require().NoError(err)
	a := suite.createTestTask(suite.list.ID, "a")

	w := suite.do(http.MethodPost, fmt.Sprintf("/api/tasks/%d/move", a.ID), map[string]any{
		"order":        1,
		"task_list_id": foreign.ID,
	})

	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	assert.Equal(suite.T(), []string{"a"}, suite.titles(suite.list.ID))
}

func (suite *BoardHandlerTestSuite) TestDeleteTask_CompactsList() {
	suite.createTestTask(suite.list.ID, "a")
	b := suite.createTestTask(suite.list.ID, "b")
	suite.createTestTask(suite.list.ID, "c")

	w := suite.do(http.MethodDelete, fmt.Sprintf("/api/tasks/%d", b.ID), nil)

	suite.Require().Equal(http.StatusOK, w.Code)
	assert.Equal(suite.T(), []string{"a", "c"}, suite.titles(suite.list.ID))

	w = suite.do(http.MethodGet, fmt.Sprintf("/api/tasks/%d", b.ID), nil)
	assert.Equal(suite.T(), http.StatusNotFound, w.Code)
}

func (suite *BoardHandlerTestSuite) TestUpdateTask_PartialFields() {
	task := suite.createTestTask(suite.list.ID, "Original")
	_, err := suite.board.UpdateTask(context.Background(), task.ID, services.UpdateTaskInput{
		DueDate: timePtr(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)),
	})
	suite.Require().NoError(err)

	w := suite.do(http.MethodPatch, fmt.Sprintf("/api/tasks/%d", task.ID), map[string]any{
		"title":    "Renamed",
		"due_date": nil,
	})

	suite.Require().Equal(http.StatusOK, w.Code)
	var updated dto.TaskDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(suite.T(), "Renamed", updated.Title)
	assert.Nil(suite.T(), updated.DueDate)
	assert.Equal(suite.T(), 1, updated.Order)
}

func (suite *BoardHandlerTestSuite) TestUpdateTask_BadDate() {
	task := suite.createTestTask(suite.list.ID, "Original")

	w := suite.do(http.MethodPatch, fmt.Sprintf("/api/tasks/%d", task.ID), map[string]any{
		"start_date": "next tuesday",
	})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
}

func (suite *BoardHandlerTestSuite) TestAssignTask() {
	member := suite.createTestUser("member")
	suite.addMember(suite.team, member, models.RoleMember)
	outsider := suite.createTestUser("outsider")
	task := suite.createTestTask(suite.list.ID, "Assign me")

	w := suite.do(http.MethodPost, fmt.Sprintf("/api/tasks/%d/assign", task.ID), map[string]any{
		"user_ids": []uint64{member.ID},
	})
	suite.Require().Equal(http.StatusOK, w.Code)
	var body struct {
		Assignees []dto.UserDTO `json:"assignees"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(suite.T(), body.Assignees, 2)

	w = suite.do(http.MethodPost, fmt.Sprintf("/api/tasks/%d/assign", task.ID), map[string]any{
		"user_ids": []uint64{outsider.ID},
	})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)

	w = suite.do(http.MethodPost, fmt.Sprintf("/api/tasks/%d/unassign", task.ID), map[string]any{
		"user_ids": []uint64{member.ID},
	})
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(suite.T(), body.Assignees, 1)
}

func (suite *BoardHandlerTestSuite) TestTaskAccess_NonMemberGetsNotFound() {
	task := suite.createTestTask(suite.list.ID, "Private")
	stranger := suite.createTestUser("stranger")
	suite.userID = stranger.ID

	assert.Equal(suite.T(), http.StatusNotFound, suite.do(http.MethodGet, fmt.Sprintf("/api/tasks/%d", task.ID), nil).Code)
	assert.Equal(suite.T(), http.StatusNotFound, suite.do(http.MethodGet, fmt.Sprintf("/api/lists/%d/tasks", suite.list.ID), nil).Code)
	assert.Equal(suite.T(), http.StatusNotFound, suite.do(http.MethodGet, fmt.Sprintf("/api/teams/%d/lists", suite.team.ID), nil).Code)
	assert.Equal(suite.T(), http.StatusBadRequest, suite.do(http.MethodGet, "/api/tasks/abc", nil).Code)
}

func (suite *BoardHandlerTestSuite) TestTaskLists_MoveRenameDelete() {
	done, err := suite.board.CreateTaskList(context.Background(), suite.team.ID, "Done")
	suite.Require().NoError(err)
	suite.createTestTask(done.ID, "finished")

	w := suite.do(http.MethodPost, fmt.Sprintf("/api/lists/%d/move", done.ID), map[string]any{"order": 1})
	suite.Require().Equal(http.StatusOK, w.Code)

	w = suite.do(http.MethodPatch, fmt.Sprintf("/api/lists/%d", done.ID), map[string]any{"title": "Shipped"})
	suite.Require().Equal(http.StatusOK, w.Code)

	w = suite.do(http.MethodGet, fmt.Sprintf("/api/teams/%d/lists", suite.team.ID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var board dto.BoardSnapshot
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &board))
	suite.Require().Len(board.TaskLists, 2)
	assert.Equal(suite.T(), "Shipped", board.TaskLists[0].Title)
	assert.Equal(suite.T(), "Inbox", board.TaskLists[1].Title)
	assert.Equal(suite.T(), 2, board.TaskLists[1].Order)

	w = suite.do(http.MethodDelete, fmt.Sprintf("/api/lists/%d", done.ID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)

	w = suite.do(http.MethodGet, fmt.Sprintf("/api/teams/%d/lists", suite.team.ID), nil)
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &board))
	suite.Require().Len(board.TaskLists, 1)
	assert.Equal(suite.T(), 1, board.TaskLists[0].Order)
}

func (suite *BoardHandlerTestSuite) TestCreateTaskList() {
	w := suite.do(http.MethodPost, fmt.Sprintf("/api/teams/%d/lists", suite.team.ID), map[string]any{"title": "Waiting"})

	suite.Require().Equal(http.StatusCreated, w.Code)
	var list dto.TaskListDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(suite.T(), 2, list.Order)
	assert.Equal(suite.T(), suite.team.ID, list.TeamID)
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestBoardHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(BoardHandlerTestSuite))
}
