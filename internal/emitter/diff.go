package emitter

import (
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/yairfalse/awsutils/pkg/inventory"
)

// DiffTracker tracks exposures between runs and detects changes.
type DiffTracker struct {
	mu          sync.RWMutex
	previous    map[string]inventory.Exposure
	initialized bool
}

// NewDiffTracker creates a new diff tracker.
func NewDiffTracker() *DiffTracker {
	return &DiffTracker{
		previous: make(map[string]inventory.Exposure),
	}
}

func (d *DiffTracker) hasBaseline() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.initialized
}

// ComputeDiff compares current exposures against the baseline.
// Returns nil when no baseline is set.
// Returns empty slice if no changes detected.
// Diffs are ordered by exposure key.
func (d *DiffTracker) ComputeDiff(current []inventory.Exposure) []inventory.ExposureDiff {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.initialized {
		return nil
	}

	currentMap := indexExposures(current)
	diffs := make([]inventory.ExposureDiff, 0)
	diffs = append(diffs, d.findDeletedAndModified(currentMap)...)
	diffs = append(diffs, d.findAdded(currentMap)...)

	slices.SortFunc(diffs, func(a, b inventory.ExposureDiff) int {
		return strings.Compare(inventory.ExposureKey(a.Exposure), inventory.ExposureKey(b.Exposure))
	})
	return diffs
}

// indexExposures creates a map of exposures keyed by their unique identifier.
func indexExposures(exposures []inventory.Exposure) map[string]inventory.Exposure {
	m := make(map[string]inventory.Exposure)
	for _, e := range exposures {
		m[inventory.ExposureKey(e)] = e
	}
	return m
}

// findDeletedAndModified checks previous exposures for deletions and modifications.
func (d *DiffTracker) findDeletedAndModified(currentMap map[string]inventory.Exposure) []inventory.ExposureDiff {
	var diffs []inventory.ExposureDiff
	for key, prev := range d.previous {
		prevCopy := prev
		if curr, exists := currentMap[key]; exists {
			if changes := detectChanges(prev, curr); len(changes) > 0 {
				diffs = append(diffs, inventory.ExposureDiff{
					Type:     inventory.DiffModified,
					Exposure: curr,
					Previous: &prevCopy,
					Changes:  changes,
				})
			}
		} else {
			diffs = append(diffs, inventory.ExposureDiff{
				Type:     inventory.DiffDeleted,
				Exposure: prev,
				Previous: &prevCopy,
			})
		}
	}
	return diffs
}

// findAdded checks for new exposures not in the baseline.
func (d *DiffTracker) findAdded(currentMap map[string]inventory.Exposure) []inventory.ExposureDiff {
	var diffs []inventory.ExposureDiff
	for key, curr := range currentMap {
		if _, exists := d.previous[key]; !exists {
			diffs = append(diffs, inventory.ExposureDiff{
				Type:     inventory.DiffAdded,
				Exposure: curr,
			})
		}
	}
	return diffs
}

// Update stores the exposures as the new baseline for future comparisons.
func (d *DiffTracker) Update(current []inventory.Exposure) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.previous = indexExposures(current)
	d.initialized = true
}

// detectChanges compares two exposures and returns detected field changes.
func detectChanges(prev, curr inventory.Exposure) map[string]inventory.Change {
	changes := make(map[string]inventory.Change)

	if prev.ResourceName != curr.ResourceName {
		changes["resourceName"] = inventory.Change{
			Previous: prev.ResourceName,
			Current:  curr.ResourceName,
		}
	}

	if p, c := inventory.JoinIPs(prev.PublicIPs()), inventory.JoinIPs(curr.PublicIPs()); p != c {
		changes["publicIps"] = inventory.Change{Previous: p, Current: c}
	}

	if p, c := publicAccess(prev), publicAccess(curr); p != c {
		changes["eksEndpointPublicAccess"] = inventory.Change{Previous: p, Current: c}
	}

	if p, c := publicCidrs(prev), publicCidrs(curr); p != c {
		changes["eksPublicAccessCidrs"] = inventory.Change{Previous: p, Current: c}
	}

	return changes
}

func publicAccess(e inventory.Exposure) string {
	if e.ClusterAccess == nil || e.ClusterAccess.EndpointPublicAccess == nil {
		return ""
	}
	return strconv.FormatBool(*e.ClusterAccess.EndpointPublicAccess)
}

func publicCidrs(e inventory.Exposure) string {
	if e.ClusterAccess == nil {
		return ""
	}
	return strings.Join(e.ClusterAccess.PublicAccessCidrs, ",")
}
