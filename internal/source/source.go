// Package source produces AWS Config shaped inventory records for the public IP formatter.
package source

import "context"

// Source yields raw JSON inventory records.
// Keep it simple: Name + Records.
type Source interface {
	// Name returns the source identifier (e.g., "aggregator", "direct").
	Name() string

	// Records returns one JSON document per resource, in a stable order.
	Records(ctx context.Context) ([]string, error)
}
