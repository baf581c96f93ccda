// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package account

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Requirement is one rule a username or password failed to satisfy.
type Requirement struct {
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// Requirements produced by the core itself rather than by a Policy.
var (
	// ReservedUsername is reported when a username is held by a legacy
	// account that has not been migrated yet.
	ReservedUsername = Requirement{Code: "reserved", Detail: "username is reserved by a legacy account"}

	// EmptyUsername is reported for the empty username.
	EmptyUsername = Requirement{Code: "empty", Detail: "username must not be empty"}

	// InvalidEncoding is reported for usernames that are not valid UTF-8 or
	// contain a NUL character, neither of which a text column accepts.
	InvalidEncoding = Requirement{Code: "invalid_encoding", Detail: "username must be valid UTF-8 without NUL characters"}
)

// UsernameTooLong is reported when a username exceeds the storage limit.
func UsernameTooLong(limit int) Requirement {
	return Requirement{Code: "too_long", Detail: "username must be at most " + strconv.Itoa(limit) + " characters"}
}

// Policy supplies the username and password rules. Implementations must be
// pure: the same input always yields the same missing requirements.
type Policy interface {
	MissingPasswordRequirements(password string) []Requirement
	MissingUsernameRequirements(username string) []Requirement
}

// PolicyFuncs adapts plain functions to a Policy. A nil function accepts
// everything.
type PolicyFuncs struct {
	Password func(password string) []Requirement
	Username func(username string) []Requirement
}

// MissingPasswordRequirements implements Policy.
func (p PolicyFuncs) MissingPasswordRequirements(password string) []Requirement {
	if p.Password == nil {
		return nil
	}
	return p.Password(password)
}

// MissingUsernameRequirements implements Policy.
func (p PolicyFuncs) MissingUsernameRequirements(username string) []Requirement {
	if p.Username == nil {
		return nil
	}
	return p.Username(username)
}

// NoPolicy accepts every username and password.
var NoPolicy Policy = PolicyFuncs{}

// storable reports whether username can be sent to the store as text.
func storable(username string) bool {
	return utf8.ValidString(username) && !strings.ContainsRune(username, 0)
}

// storageRequirements are the limits the schema enforces regardless of policy.
func storageRequirements(username string) []Requirement {
	if !storable(username) {
		return []Requirement{InvalidEncoding}
	}
	switch n := utf8.RuneCountInString(username); {
	case n == 0:
		return []Requirement{EmptyUsername}
	case n > MaxUsernameLength:
		return []Requirement{UsernameTooLong(MaxUsernameLength)}
	}
	return nil
}
