// Package filter narrows formatted exposures by type, account and region.
package filter

import (
	"github.com/yairfalse/awsutils/pkg/inventory"
)

// Filter controls which exposures are reported.
type Filter struct {
	excludeTypes map[string]bool
	accounts     map[string]bool
	regions      map[string]bool
}

// New creates a new Filter. Empty accounts or regions match everything.
func New(excludeTypes, accounts, regions []string) *Filter {
	return &Filter{
		excludeTypes: toSet(excludeTypes),
		accounts:     toSet(accounts),
		regions:      toSet(regions),
	}
}

func toSet(values []string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		if v != "" {
			m[v] = true
		}
	}
	return m
}

// ShouldIncludeType returns true if the given resource type is reported.
func (f *Filter) ShouldIncludeType(typ string) bool {
	return !f.excludeTypes[typ]
}

// ShouldIncludeExposure returns true if the exposure passes every filter.
func (f *Filter) ShouldIncludeExposure(e inventory.Exposure) bool {
	if !f.ShouldIncludeType(e.ResourceType) {
		return false
	}

	// Allow lists - empty means any
	if len(f.accounts) > 0 && !f.accounts[e.AccountID] {
		return false
	}
	if len(f.regions) > 0 && !f.regions[e.Region] {
		return false
	}

	return true
}

// Apply returns only exposures that pass the filter, in input order.
func (f *Filter) Apply(exposures []inventory.Exposure) []inventory.Exposure {
	if f.IsEmpty() {
		return exposures
	}

	filtered := make([]inventory.Exposure, 0, len(exposures))
	for _, e := range exposures {
		if f.ShouldIncludeExposure(e) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// IsEmpty returns true if no filters are configured.
func (f *Filter) IsEmpty() bool {
	return len(f.excludeTypes) == 0 && len(f.accounts) == 0 && len(f.regions) == 0
}
