// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

// Package account is the credential and session core of Imperium.
//
// # Domain Types
//
// Account is an immutable snapshot handed to callers; the password hash never
// leaves this package and its Store. LegacyAccount is a read-once migration
// source, Session binds an account to a fingerprint derived from a player's
// transient client Identity.
//
// # Services
//
//   - Service - registration, login, migration, password change, achievements
//     and ranks. Every operation runs in exactly one Store transaction and
//     reports business outcomes as a Result; errors are infrastructure faults.
//   - SessionManager - fingerprint derivation and the session state machine,
//     used by Service inside its transactions.
//
// Services are created with New* constructors that validate dependencies.
package account
