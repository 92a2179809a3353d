// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package handler exposes a task service over HTTP.
//
// Task snapshots and errors are JSON bodies; event streams are Server-Sent
// Events whose id is the event sequence number, so a client can tell gaps and
// duplicates apart.
//
//	POST /tasks                submit and run, returns the task ID
//	GET  /tasks?contextId=     list tasks
//	POST /tasks/run?timeout=   run synchronously, returns the text
//	POST /tasks/stream         run and stream the events
//	GET  /tasks/{taskID}       get a task
//	POST /tasks/{taskID}/cancel
//	GET  /tasks/{taskID}/events
//	POST /background           start background work, returns the handle ID
//	GET  /background/{handleID}
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-json-experiment/json"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-a2a/agenttask"
	"github.com/go-a2a/agenttask/internal/telemetry"
	"github.com/go-a2a/agenttask/server/background"
	"github.com/go-a2a/agenttask/server/event"
)

// TaskService is the task service exposed by a [Handler].
type TaskService interface {
	SubmitAndRun(ctx context.Context, input, contextID string) (string, error)
	GetTask(ctx context.Context, taskID string) (*agenttask.Task, error)
	ListTasks(ctx context.Context, contextID string) ([]*agenttask.Task, error)
	CancelTask(ctx context.Context, taskID string) (*agenttask.Task, error)
	Subscribe(ctx context.Context, taskID string, opts ...event.SubscribeOption) (*event.Subscription, error)
	RunStreamingTask(ctx context.Context, input, contextID string, opts ...event.SubscribeOption) (*event.Subscription, error)
	RunSynchronousTask(ctx context.Context, input, contextID string, timeout time.Duration) (string, error)
	StartBackground(ctx context.Context, input, contextID string) (string, error)
	PollBackground(handleID string) (background.Result[string], error)
}

// SendMessageRequest is the body of the requests creating a task.
type SendMessageRequest struct {
	Input     string `json:"input"`
	ContextID string `json:"contextId,omitempty"`
}

// Validate ensures the SendMessageRequest is valid.
func (r *SendMessageRequest) Validate() error {
	if r.Input == "" {
		return NewValidationError("input", "input cannot be empty")
	}
	return nil
}

// SubmitResponse is the response of POST /tasks.
type SubmitResponse struct {
	TaskID string `json:"taskId"`
}

// RunResponse is the response of POST /tasks/run.
type RunResponse struct {
	Text string `json:"text"`
}

// ListTasksResponse is the response of GET /tasks.
type ListTasksResponse struct {
	Tasks []*agenttask.Task `json:"tasks"`
}

// BackgroundResponse is the response of POST /background.
type BackgroundResponse struct {
	HandleID string `json:"handleId"`
}

// PollResponse is the response of GET /background/{handleID}.
type PollResponse struct {
	Status background.Status `json:"status"`
	Value  string            `json:"value,omitempty"`
	Error  *ServerError      `json:"error,omitempty"`
}

// Handler serves a [TaskService] over HTTP.
type Handler struct {
	svc    TaskService
	logger *slog.Logger
	tracer trace.Tracer
	router chi.Router
}

var _ http.Handler = (*Handler)(nil)

// Option configures a [Handler].
type Option func(*Handler)

// WithLogger sets the [*slog.Logger] for the [Handler].
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithTracer sets the [trace.Tracer] for the [Handler].
func WithTracer(tracer trace.Tracer) Option {
	return func(h *Handler) {
		h.tracer = tracer
	}
}

// New creates a new Handler serving svc.
func New(svc TaskService, opts ...Option) *Handler {
	h := &Handler{
		svc:    svc,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	if h.tracer == nil {
		h.tracer = telemetry.Tracer(nil)
	}

	r := chi.NewRouter()
	r.Use(h.recoverMiddleware)
	r.Use(h.traceMiddleware)

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", h.handleSubmit)
		r.Get("/", h.handleList)
		r.Post("/run", h.handleRun)
		r.Post("/stream", h.handleStream)
		r.Route("/{taskID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Post("/cancel", h.handleCancel)
			r.Get("/events", h.handleEvents)
		})
	})
	r.Route("/background", func(r chi.Router) {
		r.Post("/", h.handleStartBackground)
		r.Get("/{handleID}", h.handlePollBackground)
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	h.router = r
	return h
}

// ServeHTTP implements [http.Handler].
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.MarshalWrite(w, v); err != nil {
		h.logger.WarnContext(r.Context(), "failed to write response", "path", r.URL.Path, "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	serr := FromError(err)
	if serr.Code >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "kind", serr.Kind, "error", err)
	} else {
		h.logger.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "kind", serr.Kind, "error", err)
	}
	h.writeJSON(w, r, serr.Code, serr)
}

func (h *Handler) decodeMessage(r *http.Request) (*SendMessageRequest, error) {
	var req SendMessageRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		return nil, NewValidationError("body", "malformed JSON: %v", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeMessage(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	taskID, err := h.svc.SubmitAndRun(r.Context(), req.Input, req.ContextID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/tasks/"+taskID)
	h.writeJSON(w, r, http.StatusAccepted, &SubmitResponse{TaskID: taskID})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.ListTasks(r.Context(), r.URL.Query().Get("contextId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []*agenttask.Task{}
	}
	h.writeJSON(w, r, http.StatusOK, &ListTasksResponse{Tasks: tasks})
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeMessage(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var timeout time.Duration
	if s := r.URL.Query().Get("timeout"); s != "" {
		timeout, err = time.ParseDuration(s)
		if err != nil || timeout < 0 {
			h.writeError(w, r, NewValidationError("timeout", "invalid duration %q", s))
			return
		}
	}

	text, err := h.svc.RunSynchronousTask(r.Context(), req.Input, req.ContextID, timeout)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, &RunResponse{Text: text})
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeMessage(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sub, err := h.svc.RunStreamingTask(r.Context(), req.Input, req.ContextID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.pipe(w, r, sub)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.GetTask(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, t)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.CancelTask(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, t)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.Subscribe(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.pipe(w, r, sub)
}

// pipe streams sub to the client and closes it.
func (h *Handler) pipe(w http.ResponseWriter, r *http.Request, sub *event.Subscription) {
	defer sub.Close()

	stream, err := NewStream(w, sub.TaskID())
	if err != nil {
		h.writeError(w, r, NewServerError(http.StatusNotAcceptable, agenttask.ErrorKindUnknown, err.Error()))
		return
	}
	if err := stream.Pipe(r.Context(), sub); err != nil {
		h.logger.DebugContext(r.Context(), "event stream ended early", "task_id", sub.TaskID(), "error", err)
	}
}

func (h *Handler) handleStartBackground(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeMessage(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	handleID, err := h.svc.StartBackground(r.Context(), req.Input, req.ContextID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/background/"+handleID)
	h.writeJSON(w, r, http.StatusAccepted, &BackgroundResponse{HandleID: handleID})
}

func (h *Handler) handlePollBackground(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.PollBackground(chi.URLParam(r, "handleID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := &PollResponse{Status: res.Status, Value: res.Value}
	if res.Err != nil {
		resp.Error = FromError(res.Err)
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}
