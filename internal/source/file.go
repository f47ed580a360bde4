package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// File reads records saved from an earlier query. It accepts either a JSON
// array of objects or one JSON object per line.
type File struct {
	path string
}

// NewFile creates a file source.
func NewFile(path string) *File {
	return &File{path: path}
}

// Name returns the source identifier.
func (f *File) Name() string {
	return "file"
}

// Records returns each object in the file as its own JSON document.
func (f *File) Records(_ context.Context) ([]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read records file: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("parse records file: %w", err)
		}
		records := make([]string, 0, len(items))
		for _, item := range items {
			records = append(records, string(item))
		}
		return records, nil
	}

	var records []string
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		records = append(records, string(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan records file: %w", err)
	}
	return records, nil
}
