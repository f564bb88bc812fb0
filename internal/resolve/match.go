package resolve

import "strings"

// Entry is one row the portal renders for a quote's file list. Every declared
// filename produces exactly one entry; storage candidates nobody declared are
// still surfaced as extras rather than dropped.
type Entry struct {
	Filename         string
	Identity         *StorageIdentity
	PreviewAvailable bool
	Extra            bool
}

// MatchDeclared pairs declared filenames with storage candidates by
// case-insensitive exact match on the stored filename or the path's final
// segment. Each candidate is claimed at most once, in declared order.
func MatchDeclared(declared []string, candidates []*StorageIdentity) []Entry {
	claimed := make([]bool, len(candidates))
	entries := make([]Entry, 0, len(declared))

	for _, name := range declared {
		name = strings.TrimSpace(name)
		var match *StorageIdentity
		for i, candidate := range candidates {
			if claimed[i] || candidate == nil {
				continue
			}
			if strings.EqualFold(name, candidate.Filename) || strings.EqualFold(name, Basename(candidate.Path)) {
				claimed[i] = true
				match = candidate
				break
			}
		}
		entries = append(entries, Entry{
			Filename:         name,
			Identity:         match,
			PreviewAvailable: match != nil,
		})
	}

	for i, candidate := range candidates {
		if claimed[i] || candidate == nil {
			continue
		}
		entries = append(entries, Entry{
			Filename:         candidate.Filename,
			Identity:         candidate,
			PreviewAvailable: true,
			Extra:            true,
		})
	}
	return entries
}
