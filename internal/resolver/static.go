package resolver

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Static answers lookups from fixed tables. Safe for concurrent use.
// Delays hold a lookup back, which is handy for ordering and timeout tests.
type Static struct {
	Answers map[string][]string
	Errors  map[string]error
	Delays  map[string]time.Duration

	calls atomic.Int64
}

// LookupA returns the configured answer for host.
func (s *Static) LookupA(ctx context.Context, host string) ([]string, error) {
	s.calls.Add(1)

	if d, ok := s.Delays[host]; ok {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := s.Errors[host]; ok {
		return nil, err
	}
	ips, ok := s.Answers[host]
	if !ok {
		return nil, fmt.Errorf("lookup %s: no such host", host)
	}
	return Normalize(append([]string(nil), ips...)), nil
}

// Calls returns how many lookups were made.
func (s *Static) Calls() int64 {
	return s.calls.Load()
}
