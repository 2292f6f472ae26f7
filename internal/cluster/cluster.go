// Package cluster holds the LogCluster type: a template token sequence,
// its identifier, its observation count, and the generalization rule that
// lets a template absorb a new, slightly different observation.
package cluster

import "strings"

// UpdateKind describes what happened to a cluster as a result of an
// ingest call.
type UpdateKind int

const (
	// None means the line matched the cluster's existing template exactly
	// (no position needed to be generalized), but size was still
	// incremented.
	None UpdateKind = iota
	// Updated means at least one literal position was generalized to a
	// placeholder to absorb the observed line.
	Updated
	// Created means no existing cluster matched and a new one was made.
	Created
)

func (k UpdateKind) String() string {
	switch k {
	case None:
		return "None"
	case Updated:
		return "Updated"
	case Created:
		return "Created"
	default:
		return "Unknown"
	}
}

// LogCluster is a template plus its identifier and observation count. The
// token slice's length is immutable after creation; only individual
// positions may be generalized to placeholders.
type LogCluster struct {
	ID     int
	Tokens []string
	Size   int
}

// New creates a cluster from an observed token sequence. id must be a
// positive, previously-unused identifier assigned by the engine's
// monotonic counter.
func New(tokens []string, id int) *LogCluster {
	owned := make([]string, len(tokens))
	copy(owned, tokens)
	return &LogCluster{ID: id, Tokens: owned, Size: 1}
}

// Template renders the cluster's tokens joined by a single space.
func (c *LogCluster) Template() string {
	return strings.Join(c.Tokens, " ")
}

// Generalize absorbs a newly observed token sequence of the same length.
// Position i is kept iff observed[i] equals the current token at i, or the
// current token at i is already a placeholder (per isPlaceholder); every
// other position is replaced by a freshly minted placeholder. mint is
// invoked exactly once per position that actually changes, never per
// position merely examined. Size is incremented for every same-length
// observation, even when the resulting template is unchanged (see spec's
// open question on size bookkeeping, preserved here on purpose).
//
// Generalize returns None if observed has a different length than the
// cluster's current template; this is a defensive, non-panicking response
// to what should only ever be a caller bug (the engine must never present
// mismatched lengths since the tree is partitioned by token count).
func (c *LogCluster) Generalize(observed []string, isPlaceholder func(string) bool, mint func() string) UpdateKind {
	if len(observed) != len(c.Tokens) {
		return None
	}
	c.Size++

	changed := false
	next := make([]string, len(c.Tokens))
	for i, cur := range c.Tokens {
		switch {
		case observed[i] == cur:
			next[i] = cur
		case isPlaceholder(cur):
			next[i] = cur
		default:
			next[i] = mint()
			changed = true
		}
	}
	if !changed {
		return None
	}
	c.Tokens = next
	return Updated
}
