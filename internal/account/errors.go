// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package account

import "errors"

// ErrNotFound is returned by a Store when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by a Store when a write violates a uniqueness
// constraint, usually because a concurrent transaction won the race.
var ErrConflict = errors.New("conflict")
