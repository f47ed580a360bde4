package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/yairfalse/awsutils/pkg/inventory"
)

// DefaultFileName is where public IPs are saved when no name is configured.
const DefaultFileName = "all_public_ips_FORMATTED.json"

// FileEmitter writes each payload to a single file, replacing its contents.
type FileEmitter struct {
	path   string
	format Format
}

// NewFileEmitter creates a file emitter. An empty path uses DefaultFileName.
func NewFileEmitter(path string, format Format) *FileEmitter {
	if path == "" {
		path = DefaultFileName
	}
	return &FileEmitter{path: path, format: format}
}

// Path returns the output file path.
func (e *FileEmitter) Path() string {
	return e.path
}

// Emit encodes the payload and writes it atomically.
func (e *FileEmitter) Emit(_ context.Context, name string, payload any) error {
	data, err := Encode(e.format, payload)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(e.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, e.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}

	log.Info().Str("name", name).Str("path", e.path).Msg("output saved")
	return nil
}

// Close is a no-op for file emitter.
func (e *FileEmitter) Close() error {
	return nil
}

// ReadExposures loads exposures saved by an earlier run. The file may be in
// either output format; a JSON array is detected by its leading bracket.
func ReadExposures(path string) ([]inventory.Exposure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var exposures []inventory.Exposure
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &exposures)
	} else {
		err = yaml.Unmarshal(trimmed, &exposures)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return exposures, nil
}
