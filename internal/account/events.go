// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package account

// Message is a domain event published after a transaction commits.
type Message interface {
	Topic() string
}

// Event topics.
const (
	TopicAchievementCompleted = "account.achievement.completed"
	TopicRankChanged          = "account.rank.changed"
)

// AchievementCompleted is published when an achievement goes from not
// completed to completed.
type AchievementCompleted struct {
	AccountID   int64       `json:"account_id"`
	Achievement Achievement `json:"achievement"`
}

// Topic implements Message.
func (AchievementCompleted) Topic() string { return TopicAchievementCompleted }

// RankChanged is published when an account's rank actually changes.
type RankChanged struct {
	AccountID int64 `json:"account_id"`
	Previous  Rank  `json:"previous"`
	Rank      Rank  `json:"rank"`
}

// Topic implements Message.
func (RankChanged) Topic() string { return TopicRankChanged }

// Notifier publishes domain events. Publish must not block on delivery; local
// asks for delivery to in-process subscribers as well as the remote transport.
type Notifier interface {
	Publish(msg Message, local bool)
}
