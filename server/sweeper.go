// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/go-a2a/agenttask"
)

func (s *Service) startSweeper() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopSweep = cancel
	s.sweepDone = make(chan struct{})

	go func() {
		defer close(s.sweepDone)

		ticker := time.NewTicker(s.cfg.SweepInterval.Duration())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
					s.logger.WarnContext(ctx, "sweep failed", "error", err)
				}
			}
		}
	}()
}

// Sweep evicts the finished tasks whose last update is older than
// [Config.TaskTTL] from the store and the broadcaster. It returns the number
// of evicted tasks. Sweep is a no-op when TaskTTL is zero.
func (s *Service) Sweep(ctx context.Context) (evicted int, err error) {
	ttl := s.cfg.TaskTTL.Duration()
	if ttl <= 0 {
		return 0, nil
	}

	ctx, span := s.tracer.Start(ctx, "agenttask.service.Sweep")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	tasks, err := s.store.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-ttl)
	var errs []error
	for _, t := range tasks {
		if !t.Status.IsTerminal() || !t.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, t.ID); err != nil {
			if !errors.Is(err, agenttask.ErrNotFound) {
				errs = append(errs, err)
			}
			continue
		}
		s.broadcaster.Forget(t.ID)
		evicted++
	}

	span.SetAttributes(attribute.Int("agenttask.evicted", evicted))
	if evicted > 0 {
		s.logger.InfoContext(ctx, "evicted expired tasks", "count", evicted, "ttl", ttl)
	}
	return evicted, errors.Join(errs...)
}
