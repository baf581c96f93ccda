// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package accounttest

import (
	"sync"

	"github.com/cnnetwork/imperium/internal/account"
)

// Published is one recorded Publish call.
type Published struct {
	Message account.Message
	Local   bool
}

// RecordingNotifier records every published message.
type RecordingNotifier struct {
	mu       sync.Mutex
	messages []Published
}

// Publish implements account.Notifier.
func (n *RecordingNotifier) Publish(msg account.Message, local bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, Published{Message: msg, Local: local})
}

// Messages returns a copy of the recorded messages.
func (n *RecordingNotifier) Messages() []Published {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Published, len(n.messages))
	copy(out, n.messages)
	return out
}

// Count returns how many messages with the given topic were published.
func (n *RecordingNotifier) Count(topic string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, p := range n.messages {
		if p.Message.Topic() == topic {
			count++
		}
	}
	return count
}
