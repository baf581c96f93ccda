// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package account

import (
	"strings"
)

// ResultKind enumerates the business outcomes of a lifecycle operation.
type ResultKind int

// Result kinds.
const (
	ResultSuccess ResultKind = iota
	ResultAlreadyRegistered
	ResultNotFound
	ResultAlreadyLogged
	ResultWrongPassword
	ResultInvalidPassword
	ResultInvalidUsername
)

var resultNames = [...]string{
	"success",
	"already_registered",
	"not_found",
	"already_logged",
	"wrong_password",
	"invalid_password",
	"invalid_username",
}

func (k ResultKind) String() string {
	if k < ResultSuccess || int(k) >= len(resultNames) {
		return "unknown"
	}
	return resultNames[k]
}

// Result is the closed outcome of a lifecycle operation. Missing is only set
// for ResultInvalidPassword and ResultInvalidUsername.
type Result struct {
	Kind    ResultKind
	Missing []Requirement
}

// Results without a payload.
var (
	Success           = Result{Kind: ResultSuccess}
	AlreadyRegistered = Result{Kind: ResultAlreadyRegistered}
	NotFound          = Result{Kind: ResultNotFound}
	AlreadyLogged     = Result{Kind: ResultAlreadyLogged}
	WrongPassword     = Result{Kind: ResultWrongPassword}
)

// InvalidPassword reports the password requirements that were not met.
func InvalidPassword(missing []Requirement) Result {
	return Result{Kind: ResultInvalidPassword, Missing: missing}
}

// InvalidUsername reports the username requirements that were not met.
func InvalidUsername(missing []Requirement) Result {
	return Result{Kind: ResultInvalidUsername, Missing: missing}
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool {
	return r.Kind == ResultSuccess
}

func (r Result) String() string {
	if len(r.Missing) == 0 {
		return r.Kind.String()
	}
	codes := make([]string, len(r.Missing))
	for i, req := range r.Missing {
		codes[i] = req.Code
	}
	return r.Kind.String() + "(" + strings.Join(codes, ",") + ")"
}
