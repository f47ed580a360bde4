package inventory

import "strings"

// DiffType represents the type of change detected.
type DiffType string

const (
	// DiffAdded indicates a newly exposed resource.
	DiffAdded DiffType = "added"
	// DiffDeleted indicates a resource that is no longer exposed.
	DiffDeleted DiffType = "deleted"
	// DiffModified indicates a resource whose exposure changed.
	DiffModified DiffType = "modified"
)

// Change represents a single field change.
// The field name is the map key in ExposureDiff.Changes.
type Change struct {
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

// ExposureDiff represents a detected change between two runs.
type ExposureDiff struct {
	Type     DiffType          `json:"type"`
	Exposure Exposure          `json:"exposure"`
	Previous *Exposure         `json:"previous,omitempty"` // nil for added exposures
	Changes  map[string]Change `json:"changes,omitempty"`  // field name → change details
}

// ExposureKey returns a unique key for identifying an exposure across runs.
func ExposureKey(e Exposure) string {
	return e.ResourceID + "|" + e.ResourceType + "|" + e.Region + "|" + e.AccountID
}

// JoinIPs renders a list of IPs for comparison and display.
func JoinIPs(ips []string) string {
	return strings.Join(ips, ",")
}
