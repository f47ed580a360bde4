package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is an output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"

	indent = 4
)

// ParseFormat accepts "json", "yaml" or "yml", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// Encode renders payload with four-space indentation.
func Encode(format Format, payload any) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(indent)
		if err := enc.Encode(payload); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
	default:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", strings.Repeat(" ", indent))
		if err := enc.Encode(payload); err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// WriterEmitter pretty prints each payload to a writer.
type WriterEmitter struct {
	w      io.Writer
	format Format
}

// NewWriterEmitter creates a writer emitter.
func NewWriterEmitter(w io.Writer, format Format) *WriterEmitter {
	return &WriterEmitter{w: w, format: format}
}

// Emit writes the encoded payload.
func (e *WriterEmitter) Emit(_ context.Context, _ string, payload any) error {
	data, err := Encode(e.format, payload)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// Close is a no-op for writer emitter.
func (e *WriterEmitter) Close() error {
	return nil
}
