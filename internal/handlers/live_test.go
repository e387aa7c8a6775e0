package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/yukikurage/trade-erp-api/internal/constants"
	"github.com/yukikurage/trade-erp-api/internal/dto"
	"github.com/yukikurage/trade-erp-api/internal/realtime"
)

func (suite *BoardHandlerTestSuite) liveServer() *httptest.Server {
	live := NewLiveHandler(suite.hub, suite.board)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(constants.ContextKeyUserID, suite.userID)
	})
	r.GET("/api/live/ws", live.WebSocket)

	srv := httptest.NewServer(r)
	suite.T().Cleanup(srv.Close)
	return srv
}

func liveURL(srv *httptest.Server, topic string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/live/ws?topic=" + topic
}

func (suite *BoardHandlerTestSuite) readEvent(conn *websocket.Conn) realtime.Event {
	suite.Require().NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	var ev realtime.Event
	suite.Require().NoError(conn.ReadJSON(&ev))
	return ev
}

func (suite *BoardHandlerTestSuite) TestLiveWebSocket_SnapshotThenUpdates() {
	suite.createTestTask(suite.list.ID, "a")
	srv := suite.liveServer()
	topic := realtime.TaskListTopic(suite.list.ID)

	header := http.Header{
		"Host":   []string{"erp.example.com"},
		"Origin": []string{"https://erp.example.com"},
	}
	conn, _, err := websocket.DefaultDialer.Dial(liveURL(srv, topic), header)
	suite.Require().NoError(err)
	defer conn.Close()

	ev := suite.readEvent(conn)
	suite.Equal(constants.EventTasksUpdated, ev.Name)
	var snap dto.TaskListSnapshot
	suite.Require().NoError(json.Unmarshal(ev.Payload, &snap))
	suite.Len(snap.Tasks, 1)
	// subscribed before the snapshot was sent
	suite.Equal(1, suite.hub.Subscribers(topic))

	suite.createTestTask(suite.list.ID, "b")
	ev = suite.readEvent(conn)
	suite.Require().NoError(json.Unmarshal(ev.Payload, &snap))
	suite.Require().Len(snap.Tasks, 2)
	suite.Equal("b", snap.Tasks[1].Title)
}

func (suite *BoardHandlerTestSuite) TestLiveWebSocket_RejectsLookalikeOrigin() {
	srv := suite.liveServer()
	topic := realtime.TaskListTopic(suite.list.ID)

	header := http.Header{
		"Host":   []string{"erp.example.com"},
		"Origin": []string{"https://erp.example.com.attacker.net"},
	}
	conn, resp, err := websocket.DefaultDialer.Dial(liveURL(srv, topic), header)
	if conn != nil {
		conn.Close()
	}
	suite.Require().ErrorIs(err, websocket.ErrBadHandshake)
	suite.Require().NotNil(resp)
	suite.Equal(http.StatusForbidden, resp.StatusCode)
	suite.Eventually(func() bool { return suite.hub.Subscribers(topic) == 0 }, time.Second, 10*time.Millisecond)
}

func (suite *BoardHandlerTestSuite) TestLiveWebSocket_NonMemberNotFound() {
	srv := suite.liveServer()
	suite.userID = suite.createTestUser("outsider").ID

	_, resp, err := websocket.DefaultDialer.Dial(liveURL(srv, realtime.TaskListTopic(suite.list.ID)), nil)
	suite.Require().ErrorIs(err, websocket.ErrBadHandshake)
	suite.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestSameOrigin(t *testing.T) {
	cases := []struct {
		name   string
		origin string
		want   bool
	}{
		{"no origin header", "", true},
		{"same host", "https://erp.example.com", true},
		{"same host other case", "https://ERP.example.com", true},
		{"lookalike suffix", "https://erp.example.com.attacker.net", false},
		{"other host", "https://attacker.net", false},
		{"other port", "https://erp.example.com:8443", false},
		{"garbage", "::not a url", false},
		{"null origin", "null", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/live/ws", nil)
			r.Host = "erp.example.com"
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}
			assert.Equal(t, tc.want, sameOrigin(r))
		})
	}
}
