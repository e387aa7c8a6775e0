package handlers

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yukikurage/trade-erp-api/internal/constants"
	"github.com/yukikurage/trade-erp-api/internal/dto"
	apierrors "github.com/yukikurage/trade-erp-api/internal/errors"
	"github.com/yukikurage/trade-erp-api/internal/realtime"
	"github.com/yukikurage/trade-erp-api/internal/services"
)

const liveWriteTimeout = 10 * time.Second

var liveUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin:     sameOrigin,
}

// sameOrigin accepts requests without an Origin header (non-browser clients)
// and browser requests whose origin host equals the request host exactly.
func sameOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// LiveHandler streams container snapshots of one topic to a client. The
// first message is always the current snapshot; later ones follow every
// committed change. Missed events are not replayed.
type LiveHandler struct {
	hub   *realtime.Hub
	board *services.BoardService
}

func NewLiveHandler(hub *realtime.Hub, board *services.BoardService) *LiveHandler {
	return &LiveHandler{hub: hub, board: board}
}

// subscribe authorizes the topic in ?topic=, subscribes to it and then loads
// the current snapshot, so no commit falls between the two. It writes the
// error response itself.
func (h *LiveHandler) subscribe(c *gin.Context) (realtime.Event, <-chan realtime.Event, func(), bool) {
	userID, ok := currentUser(c)
	if !ok {
		return realtime.Event{}, nil, nil, false
	}

	topic := c.Query("topic")
	prefix, id, err := realtime.ParseTopic(topic)
	if err != nil {
		apierrors.BadRequest(c, "topic must be team:<id> or task-list:<id>")
		return realtime.Event{}, nil, nil, false
	}

	ctx := c.Request.Context()
	switch prefix {
	case constants.TopicTeamPrefix:
		err = h.board.AuthorizeTeam(ctx, userID, id)
	case constants.TopicTaskListPrefix:
		_, err = h.board.AuthorizeTaskList(ctx, userID, id)
	}
	if err != nil {
		respondServiceError(c, err)
		return realtime.Event{}, nil, nil, false
	}

	events, cancel := h.hub.Subscribe(topic)

	var (
		name    string
		payload any
	)
	switch prefix {
	case constants.TopicTeamPrefix:
		lists, lerr := h.board.ListTaskLists(ctx, id)
		name, payload, err = constants.EventTaskListsUpdated, dto.ToBoardSnapshot(id, lists), lerr
	case constants.TopicTaskListPrefix:
		tasks, terr := h.board.ListTasks(ctx, id)
		name, payload, err = constants.EventTasksUpdated, dto.ToTaskListSnapshot(id, tasks), terr
	}
	if err != nil {
		cancel()
		respondServiceError(c, err)
		return realtime.Event{}, nil, nil, false
	}

	snapshot, err := realtime.NewEvent(topic, name, payload)
	if err != nil {
		cancel()
		apierrors.InternalError(c, "Failed to encode snapshot")
		return realtime.Event{}, nil, nil, false
	}
	return snapshot, events, cancel, true
}

// Stream serves a topic as Server-Sent Events
func (h *LiveHandler) Stream(c *gin.Context) {
	snapshot, events, cancel, ok := h.subscribe(c)
	if !ok {
		return
	}
	defer cancel()

	keepAlive := time.NewTicker(constants.LiveKeepAlive)
	defer keepAlive.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(snapshot.Name, snapshot)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, open := <-events:
			if !open {
				return false
			}
			c.SSEvent(ev.Name, ev)
			return true
		case <-keepAlive.C:
			c.SSEvent("keepalive", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}

// WebSocket serves a topic over a WebSocket connection. Client frames are
// ignored apart from close.
func (h *LiveHandler) WebSocket(c *gin.Context) {
	snapshot, events, cancel, ok := h.subscribe(c)
	if !ok {
		return
	}
	defer cancel()

	conn, err := liveUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		return
	}
	defer conn.Close()

	ctx, stop := context.WithCancel(c.Request.Context())
	defer stop()

	go func() {
		defer stop()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeLive(conn, snapshot); err != nil {
		return
	}

	keepAlive := time.NewTicker(constants.LiveKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := writeLive(conn, ev); err != nil {
				return
			}
		case <-keepAlive.C:
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeLive(conn *websocket.Conn, ev realtime.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	return conn.WriteJSON(ev)
}
