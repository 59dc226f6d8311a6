package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goclaw/dayloop/pkg/eventbus"
	"github.com/goclaw/dayloop/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	defaultMaxStreamClients = 100
	defaultStreamPing       = 30 * time.Second
	defaultStreamBuffer     = 64
	streamWriteWait         = 10 * time.Second
	maxControlMessage       = 4 << 10
)

// EventStreamConfig configures the /ws/events stream.
type EventStreamConfig struct {
	// AllowedOrigins lists browser origins that may connect; "*" allows
	// any. Same-host origins are always allowed.
	AllowedOrigins []string
	MaxClients     int
	// PingInterval is how often idle clients are pinged. A client that
	// misses a pong for 1.5 intervals is dropped.
	PingInterval time.Duration
	// SendBuffer is the number of events queued per client. A client
	// that falls further behind is disconnected.
	SendBuffer int
}

// streamControl is what a client sends to change its filter, e.g.
// {"op":"subscribe","actor":"alice"} or {"op":"unsubscribe","event":"perception"}.
type streamControl struct {
	Op    string `json:"op"`
	Actor string `json:"actor,omitempty"`
	Event string `json:"event,omitempty"`
}

// eventFilter selects envelopes by actor and event type. An empty set
// matches everything on that axis.
type eventFilter struct {
	mu     sync.RWMutex
	actors map[string]struct{}
	events map[string]struct{}
}

func newEventFilter(q url.Values) *eventFilter {
	f := &eventFilter{actors: map[string]struct{}{}, events: map[string]struct{}{}}
	for _, a := range q["actor"] {
		f.apply(streamControl{Op: "subscribe", Actor: a})
	}
	for _, e := range q["event"] {
		f.apply(streamControl{Op: "subscribe", Event: e})
	}
	return f
}

func (f *eventFilter) apply(c streamControl) {
	actor, event := strings.TrimSpace(c.Actor), strings.TrimSpace(c.Event)
	f.mu.Lock()
	defer f.mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(c.Op)) {
	case "subscribe":
		if actor != "" {
			f.actors[actor] = struct{}{}
		}
		if event != "" {
			f.events[event] = struct{}{}
		}
	case "unsubscribe":
		delete(f.actors, actor)
		delete(f.events, event)
	}
}

func (f *eventFilter) match(env eventbus.Envelope) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.actors) > 0 {
		if _, ok := f.actors[env.Actor]; !ok {
			return false
		}
	}
	if len(f.events) > 0 {
		if _, ok := f.events[env.EventType]; !ok {
			return false
		}
	}
	return true
}

type streamClient struct {
	conn   *websocket.Conn
	filter *eventFilter
	out    chan []byte
	gone   chan struct{}
	once   sync.Once
}

func newStreamClient(conn *websocket.Conn, filter *eventFilter, buffer int) *streamClient {
	return &streamClient{
		conn:   conn,
		filter: filter,
		out:    make(chan []byte, buffer),
		gone:   make(chan struct{}),
	}
}

// disconnect is idempotent; the write loop sees gone and sends the close
// frame.
func (c *streamClient) disconnect() {
	c.once.Do(func() { close(c.gone) })
}

// EventStream pushes actor events to websocket clients. Each client
// chooses actors and event types with ?actor= and ?event= on connect, and
// can change them later with control messages.
type EventStream struct {
	cfg      EventStreamConfig
	log      logger.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	closed  bool
}

// NewEventStream creates the stream handler. A nil log discards output.
func NewEventStream(log logger.Logger, cfg EventStreamConfig) *EventStream {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = defaultMaxStreamClients
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultStreamPing
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultStreamBuffer
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &EventStream{
		cfg:     cfg,
		log:     log.With("component", "event_stream"),
		clients: make(map[*streamClient]struct{}),
	}
	origins := append([]string(nil), cfg.AllowedOrigins...)
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return originAllowed(r, origins) },
	}
	return s
}

// ServeHTTP upgrades the request and streams until either side closes.
func (s *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}
	if s.Count() >= s.cfg.MaxClients {
		http.Error(w, "too many event stream clients", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("event stream upgrade failed", "error", err)
		return
	}
	client := newStreamClient(conn, newEventFilter(r.URL.Query()), s.cfg.SendBuffer)
	if !s.admit(client) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "stream full"),
			time.Now().Add(streamWriteWait))
		_ = conn.Close()
		return
	}

	go s.writeLoop(client)
	s.readLoop(client)
}

func (s *EventStream) admit(c *streamClient) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.clients) >= s.cfg.MaxClients {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

func (s *EventStream) drop(c *streamClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.disconnect()
}

// readLoop applies control messages and notices when the peer goes away.
func (s *EventStream) readLoop(c *streamClient) {
	defer s.drop(c)

	wait := s.cfg.PingInterval * 3 / 2
	c.conn.SetReadLimit(maxControlMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.log.Debug("event stream client lost", "error", err)
			}
			return
		}
		var msg streamControl
		if json.Unmarshal(raw, &msg) == nil {
			c.filter.apply(msg)
		}
	}
}

func (s *EventStream) writeLoop(c *streamClient) {
	ping := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.gone:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(streamWriteWait))
			return
		case msg := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.drop(c)
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				s.drop(c)
				return
			}
		}
	}
}

// Broadcast queues env for every client whose filter matches. Clients
// with a full queue are disconnected rather than slowing the others.
func (s *EventStream) Broadcast(env eventbus.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}

	s.mu.RLock()
	targets := make([]*streamClient, 0, len(s.clients))
	for c := range s.clients {
		if c.filter.match(env) {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.out <- raw:
		default:
			s.log.Warn("event stream client too slow, disconnecting", "buffer", s.cfg.SendBuffer)
			s.drop(c)
		}
	}
	return nil
}

// Pump broadcasts bus messages until ctx ends or sub closes. Redelivered
// envelopes, which a relay can produce, are skipped.
func (s *EventStream) Pump(ctx context.Context, sub *eventbus.Subscription) {
	dedup := eventbus.NewEnvelopeConsumer(0)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			env, dup, err := dedup.Decode(msg.Payload)
			switch {
			case err != nil:
				s.log.Warn("skipping undecodable event", "subject", msg.Subject, "error", err)
			case dup:
			default:
				if err := s.Broadcast(env); err != nil {
					s.log.Warn("event broadcast failed", "event_id", env.EventID, "error", err)
				}
			}
		}
	}
}

// Count is the number of connected clients.
func (s *EventStream) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close disconnects every client and refuses new ones.
func (s *EventStream) Close() {
	s.mu.Lock()
	clients := s.clients
	s.clients = make(map[*streamClient]struct{})
	s.closed = true
	s.mu.Unlock()
	for c := range clients {
		c.disconnect()
	}
}

func originAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(strings.TrimSpace(a), origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}
