// Package realtime pushes container snapshots to live subscribers.
//
// Delivery is at-most-once and best-effort: publishers never block and a
// subscriber that falls behind loses events rather than slowing writers.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yukikurage/trade-erp-api/internal/constants"
)

// Publisher is the notification channel used after a container changes.
type Publisher interface {
	Publish(topic, event string, payload any)
}

// Event is one pushed message.
type Event struct {
	Topic   string          `json:"topic"`
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// TeamTopic is the channel carrying a team's ordered task lists.
func TeamTopic(teamID uint64) string {
	return constants.TopicTeamPrefix + strconv.FormatUint(teamID, 10)
}

// TaskListTopic is the channel carrying a list's ordered tasks.
func TaskListTopic(listID uint64) string {
	return constants.TopicTaskListPrefix + strconv.FormatUint(listID, 10)
}

// ErrUnknownTopic is returned for topics that are not a team or a task list.
var ErrUnknownTopic = errors.New("unknown topic")

// ParseTopic splits a topic into its prefix and container id.
func ParseTopic(topic string) (prefix string, id uint64, err error) {
	for _, p := range []string{constants.TopicTeamPrefix, constants.TopicTaskListPrefix} {
		rest, ok := strings.CutPrefix(topic, p)
		if !ok {
			continue
		}
		id, err := strconv.ParseUint(rest, 10, 64)
		if err != nil || id == 0 {
			return "", 0, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
		}
		return p, id, nil
	}
	return "", 0, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
}

// NewEvent encodes payload into an event stamped with the current time.
func NewEvent(topic, name string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Topic: topic, Name: name, Payload: raw, At: time.Now().UTC()}, nil
}

type topicSubs struct {
	subs map[chan Event]struct{}
}

// Hub fans events out to in-process subscribers.
type Hub struct {
	mu     sync.Mutex
	topics map[string]*topicSubs
}

func NewHub() *Hub {
	return &Hub{topics: map[string]*topicSubs{}}
}

// Subscribe registers a buffered channel on topic. cancel must be called
// once; it closes the channel.
func (h *Hub) Subscribe(topic string) (ch <-chan Event, cancel func()) {
	c := make(chan Event, constants.SubscriberBufferSize)
	h.mu.Lock()
	t := h.topics[topic]
	if t == nil {
		t = &topicSubs{subs: map[chan Event]struct{}{}}
		h.topics[topic] = t
	}
	t.subs[c] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return c, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(t.subs, c)
			if len(t.subs) == 0 && h.topics[topic] == t {
				delete(h.topics, topic)
			}
			h.mu.Unlock()
			close(c)
		})
	}
}

// Subscribers returns the number of live subscriptions on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t := h.topics[topic]; t != nil {
		return len(t.subs)
	}
	return 0
}

// Publish implements Publisher.
func (h *Hub) Publish(topic, event string, payload any) {
	ev, err := NewEvent(topic, event, payload)
	if err != nil {
		log.Printf("realtime: encode %s on %s: %v", event, topic, err)
		return
	}
	h.deliver(ev)
}

func (h *Hub) deliver(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := h.topics[ev.Topic]
	if t == nil {
		return
	}
	for c := range t.subs {
		select {
		case c <- ev:
		default:
		}
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(string, string, any) {}
