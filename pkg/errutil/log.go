// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

// Package errutil holds helpers for oops-coded errors: structured logging and
// test assertions.
package errutil

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/oops"
)

// Code returns the oops code carried by err, or "" for plain errors. When
// several layers set a code the deepest one wins.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	switch code := any(oopsErr.Code()).(type) {
	case string:
		return code
	case nil:
		return ""
	default:
		return fmt.Sprint(code)
	}
}

// LogError logs err at error level. For oops errors the code and context map
// are emitted as separate attributes so they can be queried; extra attrs are
// appended as-is.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	fields := make([]any, 0, len(attrs)+6)
	fields = append(fields, "error", err.Error())
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := Code(err); code != "" {
			fields = append(fields, "code", code)
		}
		if octx := oopsErr.Context(); len(octx) > 0 {
			fields = append(fields, "context", octx)
		}
	}
	fields = append(fields, attrs...)
	logger.ErrorContext(ctx, msg, fields...)
}
