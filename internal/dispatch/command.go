// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package dispatch accepts a structured Command and routes it to the worker
// pool, with cache integration and result marshaling into the three wire
// shapes the Network Facade understands: done, arrow, and json.
package dispatch

import "github.com/google/uuid"

// Type enumerates the closed set of command variants.
type Type string

const (
	TypeExec            Type = "exec"
	TypeArrow           Type = "arrow"
	TypeJSON            Type = "json"
	TypeInsertArrowFile Type = "insertArrowFile"
	TypeSaveProjectAs   Type = "saveProjectAs"
)

// Command is the structured request the Network Facade decodes from JSON
// and hands to the Dispatcher.
type Command struct {
	Type    Type   `json:"type"`
	SQL     string `json:"sql,omitempty"`
	QueryID string `json:"queryId,omitempty"`
	Persist bool   `json:"persist,omitempty"`

	// insertArrowFile
	FileName  string `json:"fileName,omitempty"`
	TableName string `json:"tableName,omitempty"`

	// saveProjectAs
	SourcePath string `json:"sourcePath,omitempty"`
	TargetPath string `json:"targetPath,omitempty"`
}

// NewQueryID generates a fresh query id for a command that arrived without
// one, so every dispatched command is registered and cancellable.
func NewQueryID() string {
	return uuid.NewString()
}

// Result is the outcome of a successfully dispatched command, ready for the
// Network Facade to frame into an HTTP/WS response.
type Result struct {
	Type        string // "done", "arrow", "json"
	ContentType string
	Body        []byte
	QueryID     string
}
