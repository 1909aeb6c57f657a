package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/statichq/gitcms/internal/entry"
)

// SearchResult is one scored hit of a cross-collection search.
type SearchResult struct {
	Entry *entry.Entry
	Score int
}

// minSearchScore is the lowest fuzzy score Search still reports; weaker
// matches are noise.
const minSearchScore = 3

// Search runs a scored fuzzy search over the named collections (all
// configured collections when empty), matching against each collection's
// search fields. Results are ordered best match first.
func (b *Backend) Search(ctx context.Context, collectionNames []string, term string) ([]SearchResult, error) {
	if len(collectionNames) == 0 {
		for _, col := range b.cfg.Collections {
			collectionNames = append(collectionNames, col.Name)
		}
	}

	var results []SearchResult
	for _, name := range collectionNames {
		col, err := b.collection(name)
		if err != nil {
			return nil, err
		}
		entries, err := b.ListAllEntries(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", name, err)
		}

		haystacks := make([]string, len(entries))
		for i, e := range entries {
			haystacks[i] = searchTarget(e, col.SearchFields())
		}
		for _, m := range fuzzy.Find(term, haystacks) {
			if m.Score <= minSearchScore {
				continue
			}
			results = append(results, SearchResult{Entry: entries[m.Index], Score: m.Score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// expandedTarget addresses one searchable value of one entry: a plain field
// or a single element of a list field (elem is -1 for plain fields).
type expandedTarget struct {
	entryIdx int
	field    string
	elem     int
	value    string
}

// Query searches one collection against an explicit field list. Entries
// with list-valued fields are expanded to one candidate per element before
// matching, the limit is applied to those candidates in score order, and
// the survivors are merged back per entry: a list field of a merged entry
// keeps only the elements that matched, ordered by match strength. Results
// are ordered best match first (limit <= 0 means unlimited).
func (b *Backend) Query(ctx context.Context, collectionName string, searchFields []string, term string, limit int) ([]SearchResult, error) {
	col, err := b.collection(collectionName)
	if err != nil {
		return nil, err
	}
	if len(searchFields) == 0 {
		searchFields = col.SearchFields()
	}

	entries, err := b.ListAllEntries(ctx, collectionName)
	if err != nil {
		return nil, err
	}

	targets := expandTargets(entries, searchFields)
	haystacks := make([]string, len(targets))
	for i, t := range targets {
		haystacks[i] = t.value
	}

	// fuzzy.Find returns matches ordered by score descending; the limit
	// caps candidates before the merge so a many-element entry cannot
	// crowd out better matches elsewhere.
	matches := fuzzy.Find(term, haystacks)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return mergeExpandedHits(entries, targets, matches), nil
}

// mergeExpandedHits folds per-element matches back into one result per
// entry. Entry order follows each entry's first (best) hit; every matched
// list field is narrowed to its matched elements in hit order.
func mergeExpandedHits(entries []*entry.Entry, targets []expandedTarget, matches []fuzzy.Match) []SearchResult {
	type mergedEntry struct {
		score int
		// elems records, per list field, the matched element indices in
		// hit order.
		elems map[string][]int
	}

	var order []int
	merged := map[int]*mergedEntry{}
	for _, m := range matches {
		t := targets[m.Index]
		me, ok := merged[t.entryIdx]
		if !ok {
			me = &mergedEntry{score: m.Score, elems: map[string][]int{}}
			merged[t.entryIdx] = me
			order = append(order, t.entryIdx)
		}
		if t.elem >= 0 && !containsInt(me.elems[t.field], t.elem) {
			me.elems[t.field] = append(me.elems[t.field], t.elem)
		}
	}

	results := make([]SearchResult, 0, len(order))
	for _, idx := range order {
		me := merged[idx]
		results = append(results, SearchResult{
			Entry: narrowListFields(entries[idx], me.elems),
			Score: me.score,
		})
	}
	return results
}

// narrowListFields copies an entry, replacing each named list field with
// only the elements at the given indices, in the given order. An entry with
// no list hits passes through unchanged.
func narrowListFields(e *entry.Entry, elems map[string][]int) *entry.Entry {
	if len(elems) == 0 {
		return e
	}

	copied := *e
	copied.Data = make(entry.Data, len(e.Data))
	for k, v := range e.Data {
		copied.Data[k] = v
	}
	for field, indices := range elems {
		switch v := e.Data[field].(type) {
		case []any:
			kept := make([]any, 0, len(indices))
			for _, i := range indices {
				if i < len(v) {
					kept = append(kept, v[i])
				}
			}
			copied.Data[field] = kept
		case []string:
			kept := make([]string, 0, len(indices))
			for _, i := range indices {
				if i < len(v) {
					kept = append(kept, v[i])
				}
			}
			copied.Data[field] = kept
		}
	}
	return &copied
}

func containsInt(s []int, n int) bool {
	for _, v := range s {
		if v == n {
			return true
		}
	}
	return false
}

func expandTargets(entries []*entry.Entry, fields []string) []expandedTarget {
	var targets []expandedTarget
	for i, e := range entries {
		for _, field := range fields {
			switch v := e.Data[field].(type) {
			case nil:
			case []any:
				for j, item := range v {
					targets = append(targets, expandedTarget{entryIdx: i, field: field, elem: j, value: stringify(item)})
				}
			case []string:
				for j, item := range v {
					targets = append(targets, expandedTarget{entryIdx: i, field: field, elem: j, value: item})
				}
			default:
				targets = append(targets, expandedTarget{entryIdx: i, field: field, elem: -1, value: stringify(v)})
			}
		}
	}
	return targets
}

func searchTarget(e *entry.Entry, fields []string) string {
	parts := make([]string, 0, len(fields)+1)
	parts = append(parts, e.Slug)
	for _, f := range fields {
		if v, ok := e.Data[f]; ok {
			parts = append(parts, stringify(v))
		}
	}
	return strings.Join(parts, " ")
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprint(v)
	}
}
