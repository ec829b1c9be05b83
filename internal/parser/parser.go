// Package parser loads plan documents into the in-memory model.
//
// Two formats are supported, auto-detected by extension: YAML documents
// (.yaml/.yml) holding the metadata header and step sections directly,
// and Markdown documents (.md/.markdown) carrying the same YAML as front
// matter above a narrative body. Parsing is strict: any missing required
// field, unknown operation or validation kind, dangling or cyclic
// dependency is a *models.PlanParseError and the plan never executes.
package parser

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
)

// Format represents a supported plan document format
type Format int

const (
	FormatUnknown Format = iota
	FormatYAML
	FormatMarkdown
)

func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatMarkdown:
		return "markdown"
	default:
		return "unknown"
	}
}

// Parser parses a plan document from a reader
type Parser interface {
	Parse(r io.Reader) (*models.Plan, error)
}

// DetectFormat determines the plan format from a filename extension
func DetectFormat(filename string) Format {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return FormatYAML
	case strings.HasSuffix(lower, ".md"), strings.HasSuffix(lower, ".markdown"):
		return FormatMarkdown
	default:
		return FormatUnknown
	}
}

// NewParser creates a parser for the given format
func NewParser(format Format) (Parser, error) {
	switch format {
	case FormatYAML:
		return NewYAMLParser(), nil
	case FormatMarkdown:
		return NewMarkdownParser(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// ParseFile loads and validates a plan document from disk. The returned
// plan has passed full structural validation, including cycle detection.
func ParseFile(path string) (*models.Plan, error) {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, &models.PlanParseError{
			Reason: fmt.Sprintf("unknown file format: %s (supported: .md, .markdown, .yaml, .yml)", path),
		}
	}

	p, err := NewParser(format)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plan file: %w", err)
	}
	defer file.Close()

	plan, err := p.Parse(file)
	if err != nil {
		return nil, err
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}

	return plan, nil
}
