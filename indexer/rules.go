package indexer

import (
	"log"

	"github.com/bmatcuk/doublestar/v4"
)

// Rule tags projects whose directory name matches a glob pattern.
// Rule tags appear in listings alongside stored tags but are never
// written back to the tag source.
type Rule struct {
	Pattern string
	Tags    []string
}

// applyRules returns the extra tags auto-tag rules contribute for a
// directory name. Invalid patterns are reported once per scan pass and
// otherwise skipped.
func applyRules(rules []Rule, name string) []string {
	var extra []string
	for _, r := range rules {
		matched, err := doublestar.Match(r.Pattern, name)
		if err != nil {
			log.Printf("Warning: invalid rule pattern %q: %v", r.Pattern, err)
			continue
		}
		if matched {
			extra = append(extra, r.Tags...)
		}
	}
	return extra
}
