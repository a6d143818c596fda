package detect

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DefaultValidContactCounts are the contact counts of the common Dixi SEEG
// electrode configurations, used when no definition files are available.
var DefaultValidContactCounts = []int{5, 8, 10, 12, 15, 18}

// LoadValidContactCounts reads electrode definition files (*.json) from a
// directory and returns the sorted set of contact counts they describe. A
// definition file is a JSON object whose contact entries are sub-objects
// with "type": "Plot"; the count of such entries is the electrode's contact
// count.
//
// A missing directory, unreadable files, or an empty result all fall back to
// DefaultValidContactCounts.
func LoadValidContactCounts(dir string) []int {
	entries, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil || len(entries) == 0 {
		return append([]int(nil), DefaultValidContactCounts...)
	}

	counts := make(map[int]bool)
	for _, path := range entries {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var def map[string]json.RawMessage
		if err := json.Unmarshal(data, &def); err != nil {
			continue
		}
		n := 0
		for _, raw := range def {
			var entry struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(raw, &entry); err != nil {
				continue
			}
			if entry.Type == "Plot" {
				n++
			}
		}
		if n > 0 {
			counts[n] = true
		}
	}

	if len(counts) == 0 {
		return append([]int(nil), DefaultValidContactCounts...)
	}
	out := make([]int, 0, len(counts))
	for n := range counts {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// formatElectrodeType renders a catalog label like "Dixi-D08-10BM".
func formatElectrodeType(contactCount int, variant string) string {
	return fmt.Sprintf("Dixi-D08-%02d%s", contactCount, variant)
}
