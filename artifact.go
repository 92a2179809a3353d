// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package agenttask

import (
	"fmt"
	"maps"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"
)

// Artifact is a fragment of produced output attached to a task during execution.
type Artifact struct {
	ArtifactID string         `json:"artifactId"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata,omitzero"`
}

// NewTextArtifact creates an Artifact holding text with a generated ID.
func NewTextArtifact(text string) *Artifact {
	return &Artifact{
		ArtifactID: uuid.NewString(),
		Text:       text,
	}
}

// WithMetadata returns a copy of a with the given metadata merged in.
func (a *Artifact) WithMetadata(metadata map[string]any) *Artifact {
	c := a.Clone()
	if c.Metadata == nil {
		c.Metadata = make(map[string]any, len(metadata))
	}
	maps.Copy(c.Metadata, metadata)
	return c
}

// Validate ensures the Artifact is valid.
//
// Metadata must be representable as a google.protobuf.Struct so the artifact
// can cross a protobuf boundary unchanged.
func (a *Artifact) Validate() error {
	if a == nil {
		return fmt.Errorf("artifact cannot be nil")
	}
	if a.ArtifactID == "" {
		return fmt.Errorf("artifact ID cannot be empty")
	}
	if len(a.Metadata) > 0 {
		if _, err := structpb.NewStruct(a.Metadata); err != nil {
			return fmt.Errorf("artifact %s: metadata is not representable: %w", a.ArtifactID, err)
		}
	}
	return nil
}

// Clone returns a deep copy of a. Metadata values are copied shallowly.
func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}
	c := *a
	if a.Metadata != nil {
		c.Metadata = maps.Clone(a.Metadata)
	}
	return &c
}
