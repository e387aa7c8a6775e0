package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yukikurage/trade-erp-api/internal/config"
	"github.com/yukikurage/trade-erp-api/internal/constants"
	"github.com/yukikurage/trade-erp-api/internal/database"
	"github.com/yukikurage/trade-erp-api/internal/dto"
	"github.com/yukikurage/trade-erp-api/internal/messaging"
	"github.com/yukikurage/trade-erp-api/internal/realtime"
	"github.com/yukikurage/trade-erp-api/internal/render"
	"github.com/yukikurage/trade-erp-api/internal/repository"
	"github.com/yukikurage/trade-erp-api/internal/services"
	"github.com/yukikurage/trade-erp-api/internal/storage"
)

// testServer wires the production routes on an in-memory database.
func testServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenMemory()
	require.NoError(t, err)
	database.SetDB(db)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store, err := storage.NewLocalStore(t.TempDir(), "http://localhost/files")
	require.NoError(t, err)
	renderer, err := render.New()
	require.NoError(t, err)

	a := &app{hub: realtime.NewHub(), store: store}
	a.auth = services.NewAuthService(repository.NewUserRepository(db))
	a.teams = services.NewTeamService(repository.NewTeamRepository(db))
	a.board = services.NewBoardService(
		repository.NewTaskRepository(db),
		repository.NewTaskListRepository(db),
		repository.NewTeamRepository(db),
		a.hub,
		3,
	)
	a.communications = services.NewCommunicationService(
		repository.NewCommunicationRepository(db),
		renderer,
		store,
		messaging.NewDispatcher(newGateway(&config.Config{})),
		nil,
	)

	sessionStore, err := newSessionStore(&config.Config{SessionStore: "cookie", SessionSecret: "test-secret"})
	require.NoError(t, err)

	r := gin.New()
	r.Use(sessions.Sessions(constants.SessionCookieName, sessionStore))
	registerRoutes(r, a)
	return r
}

type client struct {
	t       *testing.T
	r       *gin.Engine
	cookies []*http.Cookie
}

func (c *client) do(method, url string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(c.t, err)
	}
	req := httptest.NewRequest(method, url, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	c.r.ServeHTTP(w, req)
	if cookies := w.Result().Cookies(); len(cookies) > 0 {
		c.cookies = cookies
	}
	return w
}

func TestHealth(t *testing.T) {
	c := &client{t: t, r: testServer(t)}

	w := c.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	c := &client{t: t, r: testServer(t)}

	for _, url := range []string{"/api/teams", "/api/tasks/1", "/api/lists/1/tasks", "/api/communications", "/api/live/sse?topic=team:1"} {
		assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, url, nil).Code, url)
	}
}

func TestBoardFlow(t *testing.T) {
	c := &client{t: t, r: testServer(t)}

	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/auth/signup", map[string]any{
		"username": "trader", "password": "password123",
	}).Code)
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/auth/login", map[string]any{
		"username": "trader", "password": "password123",
	}).Code)

	w := c.do(http.MethodGet, "/api/teams", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var teams struct {
		Teams []dto.TeamWithRoleDTO `json:"teams"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &teams))
	require.Len(t, teams.Teams, 1)
	teamID := teams.Teams[0].ID

	w = c.do(http.MethodPost, fmt.Sprintf("/api/teams/%d/lists", teamID), map[string]any{"title": "Inbox"})
	require.Equal(t, http.StatusCreated, w.Code)
	var list dto.TaskListDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))

	var ids []uint64
	for _, title := range []string{"a", "b", "c"} {
		w = c.do(http.MethodPost, fmt.Sprintf("/api/lists/%d/tasks", list.ID), map[string]any{"title": title})
		require.Equal(t, http.StatusCreated, w.Code)
		var task dto.TaskDTO
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
		ids = append(ids, task.ID)
	}

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, fmt.Sprintf("/api/tasks/%d/move", ids[0]), map[string]any{"order": 3}).Code)
	require.Equal(t, http.StatusOK, c.do(http.MethodDelete, fmt.Sprintf("/api/tasks/%d", ids[1]), nil).Code)

	w = c.do(http.MethodGet, fmt.Sprintf("/api/lists/%d/tasks", list.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snapshot dto.TaskListSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	require.Len(t, snapshot.Tasks, 2)
	assert.Equal(t, "c", snapshot.Tasks[0].Title)
	assert.Equal(t, 1, snapshot.Tasks[0].Order)
	assert.Equal(t, "a", snapshot.Tasks[1].Title)
	assert.Equal(t, 2, snapshot.Tasks[1].Order)

	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodGet, "/api/live/sse?topic=board:1", nil).Code)

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/auth/logout", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/api/teams", nil).Code)
}

func TestNewSessionStore_Cookie(t *testing.T) {
	store, err := newSessionStore(&config.Config{SessionStore: "cookie", SessionSecret: "s"})
	require.NoError(t, err)
	assert.NotNil(t, store)
}
