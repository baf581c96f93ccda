// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package bus

import (
	"context"
	"log/slog"
)

// LogForwarder records every envelope at debug level. It stands in for a
// remote transport when none is configured.
type LogForwarder struct {
	Logger *slog.Logger
}

// Forward implements Forwarder.
func (f LogForwarder) Forward(env Envelope) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(context.Background(), slog.LevelDebug, "event published",
		"topic", env.Topic,
		"event_id", env.ID.String(),
		"local", env.Local,
		"message", env.Message,
	)
}
