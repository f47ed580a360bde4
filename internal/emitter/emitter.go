// Package emitter writes command results to stdout, files and S3.
package emitter

import (
	"context"
)

// Emitter outputs a named result to a backend.
type Emitter interface {
	// Emit sends the payload to the backend. name identifies the result
	// (for example "public-ips") and is used by backends that need a key.
	Emit(ctx context.Context, name string, payload any) error

	// Close cleans up resources.
	Close() error
}

// MultiEmitter fans out to multiple emitters.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates an emitter that sends to multiple backends.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit sends to all emitters, returns first error.
func (m *MultiEmitter) Emit(ctx context.Context, name string, payload any) error {
	for _, e := range m.emitters {
		if err := e.Emit(ctx, name, payload); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all emitters.
func (m *MultiEmitter) Close() error {
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of backends.
func (m *MultiEmitter) Len() int {
	return len(m.emitters)
}
