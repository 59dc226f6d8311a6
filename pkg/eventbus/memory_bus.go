// Package eventbus carries actor events from the components that produce
// them to the streams that watch them. Events travel as JSON envelopes on
// dotted subjects; an in-process MemoryBus fans them out locally and Redis
// pub/sub can relay them between processes.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const defaultSubscriptionBuffer = 32

// Message is one delivery on the bus.
type Message struct {
	Subject   string
	Payload   []byte
	Timestamp time.Time
}

// subjectPattern is a parsed subscription pattern. "*" matches exactly one
// token; a final ">" matches one or more trailing tokens.
type subjectPattern []string

func parsePattern(pattern string) (subjectPattern, error) {
	if pattern == "" {
		return nil, errors.New("eventbus: subscription pattern cannot be empty")
	}
	tokens := strings.Split(pattern, ".")
	for i, tok := range tokens {
		switch {
		case tok == "":
			return nil, fmt.Errorf("eventbus: pattern %q has an empty token", pattern)
		case tok == ">" && i != len(tokens)-1:
			return nil, fmt.Errorf("eventbus: %q: \">\" must be the last token", pattern)
		}
	}
	return tokens, nil
}

func (p subjectPattern) match(subject string) bool {
	tokens := strings.Split(subject, ".")
	for i, want := range p {
		if want == ">" {
			return len(tokens) > i
		}
		if i >= len(tokens) || (want != "*" && want != tokens[i]) {
			return false
		}
	}
	return len(tokens) == len(p)
}

// Subscription is a buffered feed of the messages matching one pattern.
type Subscription struct {
	pattern subjectPattern
	ch      chan Message
	bus     *MemoryBus
	once    sync.Once
	dropped atomic.Int64
}

func (s *Subscription) C() <-chan Message { return s.ch }

// Dropped counts messages lost because the buffer was full.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Close detaches the subscription. Messages already buffered can still be
// read; then the channel is closed.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.ch)
	})
	return nil
}

// MemoryBus delivers messages to subscribers in the same process. It never
// blocks a publisher: a subscriber that falls behind loses messages and
// sees its Dropped count grow.
type MemoryBus struct {
	// mu is held for reading during delivery so that Close cannot close a
	// channel that is being sent on.
	mu   sync.RWMutex
	subs []*Subscription
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Publish implements Transport.
func (b *MemoryBus) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if subject == "" {
		return errors.New("eventbus: subject cannot be empty")
	}
	msg := Message{Subject: subject, Payload: slices.Clone(payload), Timestamp: time.Now().UTC()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.pattern.match(subject) {
			continue
		}
		select {
		case s.ch <- msg:
		default:
			s.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe opens a subscription with room for buffer undelivered
// messages; buffer <= 0 picks a small default.
func (b *MemoryBus) Subscribe(pattern string, buffer int) (*Subscription, error) {
	p, err := parsePattern(pattern)
	if err != nil {
		return nil, err
	}
	if buffer <= 0 {
		buffer = defaultSubscriptionBuffer
	}
	s := &Subscription{pattern: p, ch: make(chan Message, buffer), bus: b}

	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return s, nil
}

// Subscribers is the number of open subscriptions.
func (b *MemoryBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *MemoryBus) remove(target *Subscription) {
	b.mu.Lock()
	b.subs = slices.DeleteFunc(b.subs, func(s *Subscription) bool { return s == target })
	b.mu.Unlock()
}
