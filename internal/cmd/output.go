package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Palette
	primaryColor = lipgloss.Color("#A78BFA") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#F87171") // Red
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
	blueColor    = lipgloss.Color("#60A5FA") // Blue

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(mutedColor)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(mutedColor).Padding(0, 1)
)

// stateStyle colors a stage state or record status.
func stateStyle(state string) lipgloss.Style {
	switch state {
	case "completed", "approved":
		return lipgloss.NewStyle().Foreground(successColor)
	case "in_progress", "active":
		return lipgloss.NewStyle().Foreground(blueColor)
	case "stopped", "rejected":
		return lipgloss.NewStyle().Foreground(errorColor)
	case "waiting", "pending":
		return lipgloss.NewStyle().Foreground(warningColor)
	default:
		return mutedStyle
	}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseJSONObject decodes a JSON object flag. An empty string yields nil.
func parseJSONObject(flag, raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("--%s must be a JSON object: %w", flag, err)
	}
	return out, nil
}

// parseJSONValue decodes an arbitrary JSON value flag. Input that is not
// valid JSON is kept as a string.
func parseJSONValue(raw string) any {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return raw
	}
	return out
}
