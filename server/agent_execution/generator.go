// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package agent_execution

import (
	"context"

	"github.com/go-a2a/agenttask/internal/pool"
)

// ResponseGenerator computes the response of a task from its input.
//
// Generate may block for an arbitrary time and may fail. The returned error
// message is recorded verbatim on the failed task. Generators that do not
// observe ctx cannot be interrupted.
type ResponseGenerator interface {
	Generate(ctx context.Context, input string) (string, error)
}

// GeneratorFunc is an adapter to allow the use of ordinary functions as
// [ResponseGenerator]s.
type GeneratorFunc func(ctx context.Context, input string) (string, error)

var _ ResponseGenerator = GeneratorFunc(nil)

// Generate calls f(ctx, input).
func (f GeneratorFunc) Generate(ctx context.Context, input string) (string, error) {
	return f(ctx, input)
}

// StreamingGenerator is implemented by generators that produce their response
// incrementally. Every fragment passed to emit becomes one artifact of the task.
//
// A non-nil error from emit means the task no longer accepts artifacts, for
// example because it was canceled; the generator should return it.
type StreamingGenerator interface {
	ResponseGenerator

	GenerateStream(ctx context.Context, input string, emit func(fragment string) error) error
}

// StreamingGeneratorFunc is an adapter to allow the use of ordinary functions
// as [StreamingGenerator]s.
type StreamingGeneratorFunc func(ctx context.Context, input string, emit func(fragment string) error) error

var _ StreamingGenerator = StreamingGeneratorFunc(nil)

// GenerateStream calls f(ctx, input, emit).
func (f StreamingGeneratorFunc) GenerateStream(ctx context.Context, input string, emit func(fragment string) error) error {
	return f(ctx, input, emit)
}

// Generate runs f and concatenates every emitted fragment.
func (f StreamingGeneratorFunc) Generate(ctx context.Context, input string) (string, error) {
	sb := pool.String.Get()
	defer pool.String.Put(sb)

	err := f(ctx, input, func(fragment string) error {
		sb.WriteString(fragment)
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}
