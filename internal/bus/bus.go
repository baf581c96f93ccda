// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

// Package bus distributes account events to in-process subscribers and an
// optional remote forwarder.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cnnetwork/imperium/internal/account"
)

// DefaultBuffer is the channel capacity of each subscription.
const DefaultBuffer = 100

// Envelope wraps a published message.
type Envelope struct {
	ID        ulid.ULID
	Topic     string
	Local     bool
	Timestamp time.Time
	Message   account.Message
}

// Forwarder hands envelopes to a remote transport. Forward must not block.
type Forwarder interface {
	Forward(env Envelope)
}

// DropRecorder counts envelopes dropped because a subscriber was full.
type DropRecorder interface {
	RecordDrop(topic string)
}

// Option configures a Bus.
type Option func(*Bus)

// WithForwarder sets the remote forwarder.
func WithForwarder(f Forwarder) Option {
	return func(b *Bus) { b.forwarder = f }
}

// WithDropRecorder sets the dropped-envelope recorder.
func WithDropRecorder(r DropRecorder) Option {
	return func(b *Bus) { b.drops = r }
}

// WithLogger sets the logger used for drop warnings.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithBuffer sets the subscription channel capacity.
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// Bus implements account.Notifier.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string][]chan Envelope
	closed    bool
	buffer    int
	forwarder Forwarder
	drops     DropRecorder
	logger    *slog.Logger
}

var _ account.Notifier = (*Bus)(nil)

// New creates a Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[string][]chan Envelope),
		buffer: DefaultBuffer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe creates a channel receiving local envelopes of topic. After
// Close it returns a closed channel.
func (b *Bus) Subscribe(topic string) <-chan Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Envelope, b.buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[topic] = append(b.subs[topic], ch)
	return ch
}

// Unsubscribe removes and closes a subscription.
func (b *Bus) Unsubscribe(topic string, sub <-chan Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, ch := range subs {
		if ch == sub {
			b.subs[topic] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Publish implements account.Notifier. Local messages are delivered to the
// topic's subscribers; every message goes to the forwarder. Publish never
// blocks: a full subscriber misses the envelope.
func (b *Bus) Publish(msg account.Message, local bool) {
	env := Envelope{
		ID:        NewID(),
		Topic:     msg.Topic(),
		Local:     local,
		Timestamp: time.Now(),
		Message:   msg,
	}

	if b.forwarder != nil {
		b.forwarder.Forward(env)
	}
	if !local {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[env.Topic] {
		select {
		case ch <- env:
		default:
			b.logger.Warn("event dropped: subscriber buffer full",
				"topic", env.Topic,
				"event_id", env.ID.String(),
			)
			if b.drops != nil {
				b.drops.RecordDrop(env.Topic)
			}
		}
	}
}

// Close closes every subscription. Later publishes are only forwarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subs, topic)
	}
}
