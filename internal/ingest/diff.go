package ingest

import (
	"fmt"

	"github.com/burrow-ai/burrow/internal/domain"
)

// DiffResult holds the three disjoint outcomes of reconciling a previously
// persisted item set against a freshly discovered one. The sets cover exactly
// the union of the de-duplicated inputs.
type DiffResult struct {
	ToAdd     []*domain.Knowledge
	ToDelete  []*domain.Knowledge
	Unchanged []*domain.Knowledge
}

// Reconcile compares previous (persisted) and discovered items by content
// identity (FileSHA) and classifies every item as to-add, to-delete, or
// unchanged. Identity collisions within one side are resolved first-occurrence
// wins; redundant previous occurrences are routed into ToDelete, redundant
// discovered occurrences are dropped. Cross-side identity equality is the sole
// discriminator: size, name, or metadata differences are not changes.
//
// Unlike a soft-fail-to-empty design, malformed input surfaces as an error so
// callers can tell "no changes" apart from "could not reconcile".
func Reconcile(previous, discovered []*domain.Knowledge) (*DiffResult, error) {
	prevKept, prevRedundant, err := dedupByIdentity(previous)
	if err != nil {
		return nil, fmt.Errorf("invalid previous item list: %w", err)
	}
	discKept, _, err := dedupByIdentity(discovered)
	if err != nil {
		return nil, fmt.Errorf("invalid discovered item list: %w", err)
	}

	remaining := make(map[string]*domain.Knowledge, len(prevKept))
	for _, item := range prevKept {
		remaining[item.FileSHA] = item
	}

	result := &DiffResult{}
	for _, item := range discKept {
		if _, ok := remaining[item.FileSHA]; ok {
			result.Unchanged = append(result.Unchanged, remaining[item.FileSHA])
			delete(remaining, item.FileSHA)
			continue
		}
		result.ToAdd = append(result.ToAdd, item)
	}

	// Unmatched previous items, in their original order, then the redundant
	// previous occurrences collected during dedup.
	for _, item := range prevKept {
		if _, ok := remaining[item.FileSHA]; ok {
			result.ToDelete = append(result.ToDelete, item)
		}
	}
	result.ToDelete = append(result.ToDelete, prevRedundant...)

	return result, nil
}

// dedupByIdentity keeps the first occurrence of each content identity and
// collects every later occurrence separately.
func dedupByIdentity(items []*domain.Knowledge) (kept, redundant []*domain.Knowledge, err error) {
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		if item == nil {
			return nil, nil, fmt.Errorf("item at index %d is nil", i)
		}
		if item.FileSHA == "" {
			return nil, nil, fmt.Errorf("item %q has no content identity", item.KnowledgeID)
		}
		if _, ok := seen[item.FileSHA]; ok {
			redundant = append(redundant, item)
			continue
		}
		seen[item.FileSHA] = struct{}{}
		kept = append(kept, item)
	}
	return kept, redundant, nil
}
