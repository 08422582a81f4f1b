// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

// Package errutil holds helpers shared by every package that reports
// oops errors.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level. For oops errors the code and context
// are logged as separate attributes so a failed operation and its subject
// can be found without parsing the message. attrs are appended as-is.
func LogError(logger *slog.Logger, msg string, err error, attrs ...any) {
	fields := make([]any, 0, len(attrs)+6)
	if oopsErr, ok := oops.AsOops(err); ok {
		fields = append(fields, "error", oopsErr.Error())
		if code := oopsErr.Code(); code != nil && code != "" {
			fields = append(fields, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			fields = append(fields, "context", ctx)
		}
	} else {
		fields = append(fields, "error", err)
	}
	logger.Error(msg, append(fields, attrs...)...)
}

// Safely runs fn and turns a panic into an oops error.
func Safely(fn func() error) error {
	var callErr error
	if err := oops.Recover(func() { callErr = fn() }); err != nil {
		return err
	}
	return callErr
}
