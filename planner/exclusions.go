package planner

import (
	"slices"
	"strings"
)

// Exclusions are the meal names a request must avoid: recent history followed by rejected names.
// Names are kept as received. Duplicates are harmless because only membership and rendering matter.
type Exclusions []string

// BuildExclusions concatenates history then rejected, dropping blank names.
func BuildExclusions(history, rejected []string) Exclusions {
	ex := make(Exclusions, 0, len(history)+len(rejected))
	for _, name := range slices.Concat(history, rejected) {
		if strings.TrimSpace(name) != "" {
			ex = append(ex, name)
		}
	}
	return ex
}

// Contains reports whether name is excluded. Comparison is case-sensitive.
func (e Exclusions) Contains(name string) bool {
	return slices.Contains(e, name)
}

// String renders the exclusions for a prompt.
func (e Exclusions) String() string {
	if len(e) == 0 {
		return "None"
	}
	return strings.Join(e, ", ")
}
