// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/go-a2a/agenttask/server/event"
)

// Duration is a [time.Duration] that decodes from YAML strings like "1s" or "1h30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var ns int64
	if err := value.Decode(&ns); err == nil {
		*d = Duration(ns)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string (e.g. \"1s\") or integer nanoseconds")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Duration returns d as a [time.Duration].
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config holds the tunables of a [Service].
type Config struct {
	// SubscriberCapacity is the number of unread events a subscription may
	// hold before it is closed with an overflow.
	SubscriberCapacity int `yaml:"subscriber_capacity"`

	// ReplayRetention bounds how long a finished task keeps its replay log for
	// subscriptions that have not read it yet. Zero waits for every subscription.
	ReplayRetention Duration `yaml:"replay_retention"`

	// TaskTTL evicts finished tasks this long after their last update. Zero
	// keeps tasks for the lifetime of the process.
	TaskTTL Duration `yaml:"task_ttl"`

	// SweepInterval is how often finished tasks are checked against TaskTTL.
	SweepInterval Duration `yaml:"sweep_interval"`

	// SyncTimeout is the default timeout of [Service.RunSynchronousTask] when
	// the caller passes zero. Zero waits until the task finishes.
	SyncTimeout Duration `yaml:"sync_timeout"`

	// BackgroundConcurrency bounds the background works running at once. Zero
	// means unbounded.
	BackgroundConcurrency int64 `yaml:"background_concurrency"`
}

// DefaultConfig returns the default configuration: unbounded task retention
// and subscriptions holding up to [event.DefaultCapacity] unread events.
func DefaultConfig() Config {
	return Config{
		SubscriberCapacity: event.DefaultCapacity,
		SweepInterval:      Duration(time.Minute),
	}
}

// Validate ensures the Config is usable.
func (c Config) Validate() error {
	var errs []error
	if c.SubscriberCapacity <= 0 {
		errs = append(errs, fmt.Errorf("subscriber_capacity must be positive, got %d", c.SubscriberCapacity))
	}
	if c.ReplayRetention < 0 {
		errs = append(errs, fmt.Errorf("replay_retention cannot be negative, got %s", c.ReplayRetention.Duration()))
	}
	if c.TaskTTL < 0 {
		errs = append(errs, fmt.Errorf("task_ttl cannot be negative, got %s", c.TaskTTL.Duration()))
	}
	if c.TaskTTL > 0 && c.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("sweep_interval must be positive when task_ttl is set, got %s", c.SweepInterval.Duration()))
	}
	if c.SyncTimeout < 0 {
		errs = append(errs, fmt.Errorf("sync_timeout cannot be negative, got %s", c.SyncTimeout.Duration()))
	}
	if c.BackgroundConcurrency < 0 {
		errs = append(errs, fmt.Errorf("background_concurrency cannot be negative, got %d", c.BackgroundConcurrency))
	}
	return errors.Join(errs...)
}

// ParseConfig decodes a YAML document over [DefaultConfig]. Unknown fields
// are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads and parses the YAML config file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}
