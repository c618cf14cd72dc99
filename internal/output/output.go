// Package output renders migration plans and drift status for humans and for
// machines. Two formats are available: text and JSON.
package output

import (
	"fmt"
	"strings"

	"driftsync/internal/core"
)

// Format is an enum type representing the available output formats.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Formatter renders plans and status reports.
type Formatter interface {
	FormatPlan(*core.MigrationPlan) (string, error)
	FormatHistory([]core.MigrationRecord) (string, error)
}

// NewFormatter creates a Formatter by name, defaulting to text.
func NewFormatter(name string) (Formatter, error) {
	format := Format(strings.ToLower(strings.TrimSpace(name)))
	switch format {
	case "", FormatText:
		return textFormatter{}, nil
	case FormatJSON:
		return jsonFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s; use 'text' or 'json'", name)
	}
}
