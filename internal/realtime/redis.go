package realtime

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"
)

const (
	channelPrefix  = "erp:"
	publishQueue   = 256
	relayReconnect = 2 * time.Second
)

// NewRedisPool returns a redigo pool for addr.
func NewRedisPool(addr string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 4 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr)
		},
	}
}

// RedisPublisher forwards events to Redis so every instance's relay sees
// them. Publish only enqueues; Run drains the queue.
type RedisPublisher struct {
	pool  *redis.Pool
	queue chan Event
}

func NewRedisPublisher(pool *redis.Pool) *RedisPublisher {
	return &RedisPublisher{pool: pool, queue: make(chan Event, publishQueue)}
}

// Publish implements Publisher. Events are dropped when the queue is full.
func (p *RedisPublisher) Publish(topic, event string, payload any) {
	ev, err := NewEvent(topic, event, payload)
	if err != nil {
		log.Printf("realtime: encode %s on %s: %v", event, topic, err)
		return
	}
	select {
	case p.queue <- ev:
	default:
		log.Printf("realtime: publish queue full, dropping %s on %s", event, topic)
	}
}

// Run sends queued events until ctx is done.
func (p *RedisPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.queue:
			if err := p.send(ev); err != nil {
				log.Printf("realtime: redis publish %s: %v", ev.Topic, err)
			}
		}
	}
}

func (p *RedisPublisher) send(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	conn := p.pool.Get()
	defer conn.Close()
	_, err = conn.Do("PUBLISH", channelPrefix+ev.Topic, data)
	return err
}

// RedisRelay feeds events published on Redis into a local Hub.
type RedisRelay struct {
	pool *redis.Pool
	hub  *Hub
}

func NewRedisRelay(pool *redis.Pool, hub *Hub) *RedisRelay {
	return &RedisRelay{pool: pool, hub: hub}
}

// Run subscribes and relays until ctx is done, reconnecting on errors.
func (r *RedisRelay) Run(ctx context.Context) {
	for {
		err := r.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Printf("realtime: redis relay stopped: %v; reconnecting", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(relayReconnect):
		}
	}
}

func (r *RedisRelay) listen(ctx context.Context) error {
	psc := redis.PubSubConn{Conn: r.pool.Get()}
	defer psc.Close()

	if err := psc.PSubscribe(channelPrefix + "*"); err != nil {
		return err
	}
	for {
		switch v := psc.ReceiveContext(ctx).(type) {
		case redis.Message:
			r.handle(v)
		case error:
			return v
		}
	}
}

func (r *RedisRelay) handle(msg redis.Message) {
	var ev Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		log.Printf("realtime: bad envelope on %s: %v", msg.Channel, err)
		return
	}
	if ev.Topic == "" {
		ev.Topic = strings.TrimPrefix(msg.Channel, channelPrefix)
	}
	r.hub.deliver(ev)
}
