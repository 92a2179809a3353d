// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package background

import (
	"fmt"

	"github.com/go-a2a/agenttask"
)

// HandleNotFoundError is returned by Poll for a handle that was never issued
// or whose result was already collected.
type HandleNotFoundError struct {
	HandleID string
}

// Error returns the error message.
func (e *HandleNotFoundError) Error() string {
	return fmt.Sprintf("background handle not found: %s", e.HandleID)
}

// Is reports whether target is [agenttask.ErrNotFound].
func (e *HandleNotFoundError) Is(target error) bool {
	return target == agenttask.ErrNotFound
}
