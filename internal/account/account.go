// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package account

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/cnnetwork/imperium/internal/hash"
)

// MaxUsernameLength is the storage limit for usernames, in characters.
const MaxUsernameLength = 32

// Rank is an ordered privilege level. The zero value is RankEveryone.
type Rank int

// Ranks, lowest first.
const (
	RankEveryone Rank = iota
	RankVerified
	RankOverseer
	RankModerator
	RankAdmin
	RankOwner
)

var rankNames = [...]string{"EVERYONE", "VERIFIED", "OVERSEER", "MODERATOR", "ADMIN", "OWNER"}

// Ranks lists every rank in ascending order.
func Ranks() []Rank {
	return []Rank{RankEveryone, RankVerified, RankOverseer, RankModerator, RankAdmin, RankOwner}
}

// Valid reports whether r is a known rank.
func (r Rank) Valid() bool {
	return r >= RankEveryone && r <= RankOwner
}

// AtLeast reports whether r is equal to or above other.
func (r Rank) AtLeast(other Rank) bool {
	return r >= other
}

func (r Rank) String() string {
	if !r.Valid() {
		return "UNKNOWN"
	}
	return rankNames[r]
}

// ParseRank parses a rank name, ignoring case.
func ParseRank(s string) (Rank, error) {
	for i, name := range rankNames {
		if strings.EqualFold(name, s) {
			return Rank(i), nil
		}
	}
	return RankEveryone, oops.Code("ACCOUNT_INVALID_RANK").With("rank", s).Errorf("unknown rank %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Rank) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, oops.Code("ACCOUNT_INVALID_RANK").With("rank", int(r)).Errorf("unknown rank %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rank) UnmarshalText(text []byte) error {
	parsed, err := ParseRank(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Achievement identifies an achievement kind. Values are stored by name.
type Achievement string

// Known achievements.
const (
	AchievementActive Achievement = "ACTIVE"
	AchievementHyper  Achievement = "HYPER"
	AchievementGamer  Achievement = "GAMER"
	AchievementDay    Achievement = "DAY"
	AchievementWeek   Achievement = "WEEK"
	AchievementMonth  Achievement = "MONTH"
)

// Achievements lists every known achievement.
func Achievements() []Achievement {
	return []Achievement{
		AchievementActive, AchievementHyper, AchievementGamer,
		AchievementDay, AchievementWeek, AchievementMonth,
	}
}

// Valid reports whether a is a known achievement.
func (a Achievement) Valid() bool {
	switch a {
	case AchievementActive, AchievementHyper, AchievementGamer,
		AchievementDay, AchievementWeek, AchievementMonth:
		return true
	}
	return false
}

// Secret reports whether the achievement is hidden until completed.
func (a Achievement) Secret() bool {
	return a == AchievementActive || a == AchievementHyper
}

// ParseAchievement parses an achievement name, ignoring case.
func ParseAchievement(s string) (Achievement, error) {
	a := Achievement(strings.ToUpper(s))
	if !a.Valid() {
		return "", oops.Code("ACCOUNT_INVALID_ACHIEVEMENT").With("achievement", s).Errorf("unknown achievement %q", s)
	}
	return a, nil
}

// EmptyData is the progression payload of an achievement nobody touched yet.
var EmptyData = json.RawMessage(`{}`)

// Progression is the state of one achievement for one account. Data is an
// opaque JSON object owned by whoever tracks the achievement.
type Progression struct {
	Data      json.RawMessage `json:"data"`
	Completed bool            `json:"completed"`
}

// ZeroProgression is returned for achievements without a stored row.
func ZeroProgression() Progression {
	return Progression{Data: bytes.Clone(EmptyData)}
}

// validateData checks that data is a JSON object.
func validateData(data json.RawMessage) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return oops.Code("ACCOUNT_INVALID_PROGRESSION").Errorf("progression data must be a JSON object")
	}
	return nil
}

// Account is a snapshot of an account row. It never carries the password.
type Account struct {
	ID       int64         `json:"id"`
	Username string        `json:"username"`
	Discord  *int64        `json:"discord,omitempty"`
	Games    int           `json:"games"`
	Playtime time.Duration `json:"playtime"`
	Creation time.Time     `json:"creation"`
	Legacy   bool          `json:"legacy"`
	Rank     Rank          `json:"rank"`
}

// NewAccount is the data needed to insert an account.
type NewAccount struct {
	Username string
	Password hash.Hash
	Games    int
	Playtime time.Duration
	Legacy   bool
	Rank     Rank
	Creation time.Time
}

// Credentials is the password of an account, read only to verify it.
type Credentials struct {
	AccountID int64
	Password  hash.Hash
}

// LegacyAccount is an account imported from the previous system, waiting to be
// migrated. Its username is only known as the SHA-256 of the lowercased name.
type LegacyAccount struct {
	ID           int64
	UsernameHash []byte
	Password     hash.Hash
	Games        int
	Playtime     time.Duration
	Rank         Rank
	Achievements []Achievement
}
