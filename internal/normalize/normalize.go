// Package normalize collapses duplicate raw events, orders them by
// sequencer and transposes the result into the parallel-array form the
// ingester binds in bulk.
package normalize

import (
	"sort"

	"github.com/orcabus/filemanager/internal/types"
)

// Normalizer turns a raw, possibly-duplicated, possibly-unordered batch of
// events into the deduplicated, sorted, transposed form the ingester
// expects.
type Normalizer struct{}

// New returns a Normalizer. It carries no state; every call operates on
// its argument alone.
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize filters, deduplicates, sorts and transposes a batch of raw
// events.
func (n *Normalizer) Normalize(raw []*types.S3Object) *types.TransposedEvents {
	filtered := filterKnownEventTypes(raw)
	deduped := dedupe(filtered)
	sortBySequencer(deduped)
	return types.Transpose(deduped)
}

func filterKnownEventTypes(raw []*types.S3Object) []*types.S3Object {
	out := make([]*types.S3Object, 0, len(raw))
	for _, e := range raw {
		if e.EventType.Valid() {
			out = append(out, e)
		}
	}
	return out
}

// dedupe collapses records sharing an IdentityKey, keeping the first
// occurrence and accumulating number_duplicate_events on the survivor.
func dedupe(events []*types.S3Object) []*types.S3Object {
	seen := make(map[types.IdentityKey]*types.S3Object, len(events))
	order := make([]types.IdentityKey, 0, len(events))
	for _, e := range events {
		key := e.IdentityKey()
		if survivor, ok := seen[key]; ok {
			survivor.NumberDuplicateEvents++
			continue
		}
		seen[key] = e
		order = append(order, key)
	}
	out := make([]*types.S3Object, 0, len(order))
	for _, key := range order {
		out = append(out, seen[key])
	}
	return out
}

// sortBySequencer orders ascending by (sequencer, event_type), with an
// absent sequencer comparing strictly less than any present one.
func sortBySequencer(events []*types.S3Object) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if less, ok := sequencerLess(a.Sequencer, b.Sequencer); ok {
			return less
		}
		return a.EventType < b.EventType
	})
}

// sequencerLess compares two optional sequencers. ok is false when they are
// equal, signaling the caller to fall through to the next sort key.
func sequencerLess(a, b *string) (less bool, ok bool) {
	switch {
	case a == nil && b == nil:
		return false, false
	case a == nil:
		return true, true
	case b == nil:
		return false, true
	case *a == *b:
		return false, false
	default:
		return *a < *b, true
	}
}
