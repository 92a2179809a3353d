// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-a2a/agenttask"
)

// ServerError is the JSON error body of every failed request.
type ServerError struct {
	// Code is the HTTP status code.
	Code    int                 `json:"-"`
	Kind    agenttask.ErrorKind `json:"kind"`
	Message string              `json:"message"`
	TaskID  string              `json:"taskId,omitempty"`
	Details string              `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// NewServerError creates a new ServerError.
func NewServerError(code int, kind agenttask.ErrorKind, message string, details ...string) *ServerError {
	err := &ServerError{
		Code:    code,
		Kind:    kind,
		Message: message,
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

// ValidationError represents an invalid request field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string, args ...any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf(message, args...),
	}
}

// statusClientClosedRequest is the non-standard status of a request whose client went away.
const statusClientClosedRequest = 499

// statusCodes maps error kinds to HTTP status codes.
var statusCodes = map[agenttask.ErrorKind]int{
	agenttask.ErrorKindInvalidTransition: http.StatusConflict,
	agenttask.ErrorKindAlreadyTerminal:   http.StatusConflict,
	agenttask.ErrorKindNotFound:          http.StatusNotFound,
	agenttask.ErrorKindTimeout:           http.StatusGatewayTimeout,
	agenttask.ErrorKindOverflow:          http.StatusServiceUnavailable,
	agenttask.ErrorKindGeneratorFailure:  http.StatusBadGateway,
	agenttask.ErrorKindCanceled:          http.StatusConflict,
}

// FromError converts err into a ServerError carrying its stable kind.
func FromError(err error) *ServerError {
	var serr *ServerError
	if errors.As(err, &serr) {
		return serr
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return NewServerError(http.StatusBadRequest, agenttask.ErrorKindUnknown, "invalid request", verr.Error())
	}
	if errors.Is(err, context.Canceled) {
		return NewServerError(statusClientClosedRequest, agenttask.ErrorKindUnknown, "request canceled")
	}

	kind := agenttask.ErrorKindOf(err)
	code, ok := statusCodes[kind]
	if !ok {
		code = http.StatusInternalServerError
	}
	serr = NewServerError(code, kind, err.Error())
	serr.TaskID = taskIDOf(err)
	return serr
}

func taskIDOf(err error) string {
	var (
		notFound   *agenttask.TaskNotFoundError
		terminal   *agenttask.AlreadyTerminalError
		transition *agenttask.InvalidTransitionError
		timeout    *agenttask.TimeoutError
		generator  *agenttask.GeneratorError
		canceled   *agenttask.TaskCanceledError
	)
	switch {
	case errors.As(err, &notFound):
		return notFound.TaskID
	case errors.As(err, &terminal):
		return terminal.TaskID
	case errors.As(err, &transition):
		return transition.TaskID
	case errors.As(err, &timeout):
		return timeout.TaskID
	case errors.As(err, &generator):
		return generator.TaskID
	case errors.As(err, &canceled):
		return canceled.TaskID
	}
	return ""
}
