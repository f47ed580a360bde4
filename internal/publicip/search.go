package publicip

import (
	"slices"

	"github.com/yairfalse/awsutils/pkg/inventory"
)

// Search returns the exposures reachable on ip, in input order.
func Search(records []inventory.Exposure, ip string) []inventory.Exposure {
	var matches []inventory.Exposure
	for _, r := range records {
		if slices.Contains(r.PublicIPs(), ip) {
			matches = append(matches, r)
		}
	}
	return matches
}
