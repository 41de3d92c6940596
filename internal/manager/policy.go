package manager

import "sort"

// keepLastJITVictims returns the loaded ids to release so that only keep
// and pinned models stay resident. The result is sorted.
func keepLastJITVictims(loaded []string, pinned map[string]bool, keep string) []string {
	var out []string
	for _, id := range loaded {
		if id == keep || pinned[id] {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
