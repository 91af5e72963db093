package chaos

import (
	"sort"

	"tradecore/internal/schema"
)

// sortedSymbols fixes iteration order so a seed replays the same faults.
func sortedSymbols(positions map[string]schema.Position) []string {
	out := make([]string, 0, len(positions))
	for sym := range positions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
