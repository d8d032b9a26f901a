// Package plugin runs external actuator programs when the connection level
// changes.
package plugin

import (
	"encoding/json"
	"time"
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

// SupportsAction reports whether the manifest lists action. A manifest
// without actions accepts any.
func (m Manifest) SupportsAction(action string) bool {
	if len(m.Actions) == 0 {
		return true
	}
	for _, a := range m.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Event is a level change handed to the bound plugins.
type Event struct {
	Level      string
	Score      float64
	HeartRateA float64
	HeartRateB float64
	At         time.Time
}

// Request is written to the plugin's stdin as JSON.
type Request struct {
	Action     string          `json:"action"`
	Level      string          `json:"level"`
	Score      float64         `json:"score"`
	HeartRateA float64         `json:"heart_rate_a"`
	HeartRateB float64         `json:"heart_rate_b"`
	Timestamp  time.Time       `json:"timestamp"`
	Config     json.RawMessage `json:"config"`
}

// Response is read from the plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin is a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Binding runs a plugin action when the session enters a level.
type Binding struct {
	Level  string         `yaml:"level" json:"level"`
	Plugin string         `yaml:"plugin" json:"plugin"`
	Action string         `yaml:"action" json:"action"`
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}
