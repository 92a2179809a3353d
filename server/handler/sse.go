// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/go-a2a/agenttask"
	"github.com/go-a2a/agenttask/server/event"
)

// Stream represents a Server-Sent Events (SSE) connection.
type Stream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	taskID  string

	mu     sync.Mutex
	closed bool
}

// NewStream writes the SSE headers to w. It fails if w cannot be flushed.
func NewStream(w http.ResponseWriter, taskID string) (*Stream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming is not supported by the response writer")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // For Nginx proxy
	h.Set("X-Task-Id", taskID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Stream{
		w:       w,
		flusher: flusher,
		taskID:  taskID,
	}, nil
}

// TaskID returns the ID of the streamed task.
func (s *Stream) TaskID() string {
	return s.taskID
}

// Send writes ev as one SSE message whose id is the event sequence number
// and whose event name is the event kind.
func (s *Stream) Send(ev agenttask.Event) error {
	data, err := sonic.ConfigDefault.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return s.write(strconv.FormatUint(ev.Sequence, 10), string(ev.Kind()), data)
}

// SendError writes err as an SSE message named "error".
func (s *Stream) SendError(err *ServerError) error {
	data, merr := sonic.ConfigDefault.Marshal(err)
	if merr != nil {
		return fmt.Errorf("failed to marshal error: %w", merr)
	}
	return s.write("", "error", data)
}

func (s *Stream) write(id, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("stream is closed")
	}
	if id != "" {
		if _, err := fmt.Fprintf(s.w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Close marks the stream closed. Later sends fail.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
}

// Pipe forwards the events of sub to the stream until the terminal event.
// A subscription torn down early is reported to the client as an error
// message. Pipe returns when ctx is done, without an error message.
func (s *Stream) Pipe(ctx context.Context, sub *event.Subscription) error {
	defer s.Close()

	for {
		ev, err := sub.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			serr := FromError(err)
			serr.TaskID = s.taskID
			if werr := s.SendError(serr); werr != nil {
				return errors.Join(err, werr)
			}
			return err
		}

		if err := s.Send(ev); err != nil {
			return err
		}
	}
}
