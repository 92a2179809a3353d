// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package pool provides generic type pooling, and provides [*strings.Builder] pooling objects.
package pool

import (
	"strings"
	"sync"
)

// Pool is a generics wrapper around [sync.Pool] to provide strongly-typed object pooling.
type Pool[T any] struct {
	p       sync.Pool
	discard func(T) bool
}

// Reseter is implemented by pooled values that must be reset before reuse.
type Reseter interface {
	Reset()
}

// New returns a new [Pool] for T, and will use fn to construct new T's when the pool is empty.
//
// If discard is non-nil, values for which it returns true are dropped by Put
// instead of being returned to the pool.
func New[T any](fn func() T, discard func(T) bool) *Pool[T] {
	return &Pool[T]{
		p: sync.Pool{
			New: func() any {
				return fn()
			},
		},
		discard: discard,
	}
}

// Get gets a T from the pool, or creates a new one if the pool is empty.
func (p *Pool[T]) Get() T {
	return p.p.Get().(T)
}

// Put returns x into the pool.
func (p *Pool[T]) Put(x T) {
	if p.discard != nil && p.discard(x) {
		return
	}
	if xx, ok := any(x).(Reseter); ok {
		xx.Reset()
	}
	p.p.Put(x)
}

// maxBuilderCap bounds the capacity of builders kept in [String].
const maxBuilderCap = 64 << 10

// String provides the [*strings.Builder] pooling objects.
//
// Builders that grew beyond 64KiB are not retained.
var String = New(func() *strings.Builder {
	return &strings.Builder{}
}, func(b *strings.Builder) bool {
	return b.Cap() > maxBuilderCap
})
