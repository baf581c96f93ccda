// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package account

import (
	"log/slog"
	"net/netip"
)

// Identity is what a game client presents on every connection. UUID and USID
// are both supplied by the client; Address is informational only.
type Identity struct {
	UUID    string
	USID    string
	Address netip.Addr
}

// LogValue implements slog.LogValuer. UUID and USID are never logged since
// together they reproduce the session fingerprint.
func (i Identity) LogValue() slog.Value {
	if !i.Address.IsValid() {
		return slog.StringValue("identity")
	}
	return slog.GroupValue(slog.String("address", i.Address.String()))
}
