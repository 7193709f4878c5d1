// Package plugin discovers and runs external reminder actions. A plugin is
// a directory holding a plugin.json manifest and an executable that reads a
// JSON Request on stdin and writes a JSON Response on stdout.
package plugin

import (
	"encoding/json"
	"slices"
)

// Event names the reminder situation that triggered a plugin.
type Event string

const (
	// EventStare is sent when the screen has been fully dimmed without a blink.
	EventStare Event = "stare"
	// EventRecovered is sent when a blink lifts a fully dimmed screen.
	EventRecovered Event = "recovered"
)

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Actions      []string        `json:"actions"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Request represents a request sent to a plugin for execution.
type Request struct {
	Action string          `json:"action"`
	Event  Event           `json:"event"`
	Config json.RawMessage `json:"config,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response represents the response from a plugin execution.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Supports reports whether the manifest lists action.
func (p *Plugin) Supports(action string) bool {
	return slices.Contains(p.Manifest.Actions, action)
}
