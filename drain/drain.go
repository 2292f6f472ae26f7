// Package drain implements the online Drain prefix-tree clustering
// engine: tokenization, tree search, similarity scoring, and template
// generalization. It is the component the Miner facade wraps with
// masking and persistence.
package drain

import (
	"math"

	"github.com/hashicorp/golang-lru/simplelru"
	"go.uber.org/zap"

	"github.com/mrlyc/drainminer/internal/cluster"
	"github.com/mrlyc/drainminer/internal/tree"
)

// Config holds every parameter the engine needs, independent of how a
// caller sourced them (the miner package translates config.Config into
// this shape).
type Config struct {
	Depth              int
	SimTh              float64
	MaxChildren        int
	MaxClusters        int
	ExtraDelimiters    []string
	ParametrizeNumeric bool
	MaskPrefix         string
	MaskSuffix         string
	MaskName           string
	// Logger receives a single Warn on the defensive mismatched-length path
	// in Generalize (§7); defaults to a no-op logger if nil.
	Logger *zap.Logger
}

// maxNodeDepth is depth-2: the first tree level is the length partition,
// consumed before any call into the tree package.
func (c *Config) maxNodeDepth() int {
	return c.Depth - 2
}

// wildcardKey is the key under which a node's wildcard child is stored in
// its Children map. It uses the PREFIX+NAME+SUFFIX syntax the masker emits,
// so IsPlaceholder classifies it as a placeholder; generalized template
// positions use the counter-suffixed tokens produced by mint instead.
func (c *Config) wildcardKey() string {
	return c.MaskPrefix + c.MaskName + c.MaskSuffix
}

// MatchStrategy selects how MatchCluster looks up a candidate.
type MatchStrategy int

const (
	// Fast descends the tree and fast-matches only the reached leaf.
	Fast MatchStrategy = iota
	// Full scans every cluster list under the length partition.
	Full
	// Fallback tries Fast, then Full if Fast found nothing.
	Fallback
)

// Drain is the online clustering engine.
type Drain struct {
	config      Config
	root        *tree.Node
	clusters    *clusterCache
	idCounter   int
	mintCounter int
}

// New constructs a Drain engine. cfg.Depth < 3 is a configuration error,
// returned rather than panicked so the Miner facade can report a clean
// exit code instead of the teacher code's panic-on-bad-depth.
func New(cfg Config) (*Drain, error) {
	if cfg.Depth < 3 {
		return nil, errDepthTooSmall(cfg.Depth)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Drain{
		config:   cfg,
		root:     tree.New(),
		clusters: newClusterCache(cfg.MaxClusters),
	}, nil
}

// Clusters returns every live cluster, in arbitrary (cache-internal)
// order; callers that need a stable order should sort by ID.
func (d *Drain) Clusters() []*cluster.LogCluster {
	return d.clusters.Values()
}

// ClusterByID returns the cluster for id, or nil if it doesn't exist (or
// has been evicted).
func (d *Drain) ClusterByID(id int) *cluster.LogCluster {
	return d.clusters.Get(id)
}

// ClusterCounter returns the monotonic counter used to assign new cluster
// IDs, for persistence snapshots (§4.8).
func (d *Drain) ClusterCounter() int { return d.idCounter }

// MintCounter returns the monotonic counter used to mint placeholder
// tokens, for persistence snapshots (§4.8).
func (d *Drain) MintCounter() int { return d.mintCounter }

// SetCounters restores the cluster-ID and placeholder-mint counters after a
// snapshot reload, so subsequently created clusters and minted placeholders
// continue the original sequence rather than restarting from zero.
func (d *Drain) SetCounters(clusterCounter, mintCounter int) {
	d.idCounter = clusterCounter
	d.mintCounter = mintCounter
}

// Restore re-inserts a previously persisted cluster verbatim (its ID,
// tokens, and observation count), rebuilding the tree path for it exactly
// as a fresh AddLogMessage would have, without touching either counter or
// consulting FastMatch. Used only while reloading a snapshot, in cluster-ID
// order, so the tree's max_children accounting replays deterministically.
func (d *Drain) Restore(id int, tokens []string, size int) {
	c := cluster.New(tokens, id)
	c.Size = size
	d.clusters.Put(c)
	d.insert(c)
}

// IsPlaceholder classifies tok as a placeholder iff it starts with
// PREFIX+NAME, per spec §3 — this covers both masked tokens and
// generalized (<NAME><k><SUFFIX>) tokens.
func (d *Drain) IsPlaceholder(tok string) bool {
	prefixName := d.config.MaskPrefix + d.config.MaskName
	return len(tok) >= len(prefixName) && tok[:len(prefixName)] == prefixName
}

// mint produces a fresh placeholder token, advancing the shared counter.
// It is only ever invoked once per position that actually changes during
// generalization.
func (d *Drain) mint() string {
	d.mintCounter++
	return d.config.MaskPrefix + d.config.MaskName + itoa(d.mintCounter) + d.config.MaskSuffix
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// Tokenize exposes the engine's tokenizer (trim, apply extra delimiters,
// split on whitespace runs) so callers (e.g. the parameter extractor) can
// tokenize consistently with what AddLogMessage does internally.
func (d *Drain) Tokenize(line string) []string {
	return tree.Tokenize(line, d.config.ExtraDelimiters)
}

// AddLogMessage is the mutating ingest path: tokenize, search the tree,
// generalize an existing cluster or create a new one. Returns the cluster
// and what happened to it.
func (d *Drain) AddLogMessage(line string) (*cluster.LogCluster, cluster.UpdateKind) {
	tokens := d.Tokenize(line)
	return d.train(tokens)
}

func (d *Drain) train(tokens []string) (*cluster.LogCluster, cluster.UpdateKind) {
	candidates := d.search(tokens)
	if match := d.fastMatch(candidates, tokens, d.config.SimTh, true); match != nil {
		if len(tokens) != len(match.Tokens) {
			// Can only happen if the length-partition invariant (§3) has
			// been violated elsewhere; Generalize itself degrades safely.
			d.config.Logger.Warn("generalize called with mismatched token length",
				zap.Int("cluster_id", match.ID), zap.Int("observed_len", len(tokens)), zap.Int("template_len", len(match.Tokens)))
		}
		kind := match.Generalize(tokens, d.IsPlaceholder, d.mint)
		d.clusters.Touch(match.ID)
		return match, kind
	}

	d.idCounter++
	c := cluster.New(tokens, d.idCounter)
	d.clusters.Put(c)
	d.insert(c)
	return c, cluster.Created
}

// MatchCluster is the read-only lookup path used for classification
// without mutating any cluster, tree node, or counter. A match requires
// similarity 1.0, per spec §4.4.
func (d *Drain) MatchCluster(line string, strategy MatchStrategy) *cluster.LogCluster {
	tokens := d.Tokenize(line)

	switch strategy {
	case Fast:
		return d.fastMatch(d.search(tokens), tokens, 1.0, true)
	case Full:
		return d.fastMatch(d.allCandidatesForLength(len(tokens)), tokens, 1.0, true)
	case Fallback:
		if m := d.fastMatch(d.search(tokens), tokens, 1.0, true); m != nil {
			return m
		}
		return d.fastMatch(d.allCandidatesForLength(len(tokens)), tokens, 1.0, true)
	default:
		return nil
	}
}

// search descends the tree for tokens' length partition and returns the
// candidate cluster IDs resolved into live clusters (stale IDs, i.e. ones
// the id-indexed cache has evicted, are silently skipped).
func (d *Drain) search(tokens []string) []*cluster.LogCluster {
	lengthNode, ok := d.root.Children[tree.LengthKey(len(tokens))]
	if !ok {
		return nil
	}
	ids := lengthNode.Search(tokens, d.config.maxNodeDepth())
	return d.resolve(ids)
}

// allCandidatesForLength scans every cluster list under the length
// partition for len(tokens), used by the Full/Fallback match strategies.
func (d *Drain) allCandidatesForLength(tokenCount int) []*cluster.LogCluster {
	lengthNode, ok := d.root.Children[tree.LengthKey(tokenCount)]
	if !ok {
		return nil
	}
	var ids []int
	lengthNode.Walk(func(id int) { ids = append(ids, id) })
	return d.resolve(ids)
}

func (d *Drain) resolve(ids []int) []*cluster.LogCluster {
	if len(ids) == 0 {
		return nil
	}
	out := make([]*cluster.LogCluster, 0, len(ids))
	for _, id := range ids {
		if c := d.clusters.GetQuietly(id); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// fastMatch picks the candidate with the highest similarity, breaking
// ties by the higher placeholder count (prefer the more general
// template). Returns nil if no candidate reaches simTh.
func (d *Drain) fastMatch(candidates []*cluster.LogCluster, tokens []string, simTh float64, includeParams bool) *cluster.LogCluster {
	var best *cluster.LogCluster
	bestSim := -1.0
	bestParamCount := -1

	for _, c := range candidates {
		sim, paramCount := d.seqDistance(c.Tokens, tokens, includeParams)
		if sim > bestSim || (sim == bestSim && paramCount > bestParamCount) {
			bestSim = sim
			bestParamCount = paramCount
			best = c
		}
	}
	if bestSim < simTh {
		return nil
	}
	return best
}

// seqDistance computes (similarity, placeholder-count) for two equal-
// length token sequences. Mismatched lengths score 0 similarity rather
// than panicking, since candidates are always drawn from the same length
// partition in practice but a defensive check costs nothing.
func (d *Drain) seqDistance(clusterTokens, observed []string, includeParams bool) (float64, int) {
	if len(clusterTokens) != len(observed) {
		return 0, 0
	}
	if len(clusterTokens) == 0 {
		return 1, 0
	}

	simTokens := 0
	paramCount := 0
	for i, tok := range clusterTokens {
		switch {
		case d.IsPlaceholder(tok):
			paramCount++
		case tok == observed[i]:
			simTokens++
		}
	}
	if includeParams {
		simTokens += paramCount
	}
	return float64(simTokens) / float64(len(clusterTokens)), paramCount
}

func (d *Drain) insert(c *cluster.LogCluster) {
	tokenCount := len(c.Tokens)
	key := tree.LengthKey(tokenCount)
	lengthNode, ok := d.root.Children[key]
	if !ok {
		lengthNode = tree.New()
		d.root.Children[key] = lengthNode
	}
	lengthNode.AddCluster(c.ID, c.Tokens, d.config.maxNodeDepth(), d.config.MaxChildren, d.config.ParametrizeNumeric, d.config.wildcardKey(),
		func(id int) bool { return d.clusters.GetQuietly(id) != nil })
}

// clusterCache wraps hashicorp/golang-lru's simplelru.LRU as an
// id-indexed table, per the teacher's ClusterCache and the design note
// (SPEC_FULL.md §9) preferring id-indexed-table storage over embedding
// cluster pointers in tree leaves.
type clusterCache struct {
	cache simplelru.LRUCache
}

func newClusterCache(maxSize int) *clusterCache {
	if maxSize <= 0 {
		maxSize = math.MaxInt
	}
	c, _ := simplelru.NewLRU(maxSize, nil)
	return &clusterCache{cache: c}
}

func (c *clusterCache) Put(cl *cluster.LogCluster) {
	c.cache.Add(cl.ID, cl)
}

// Touch re-inserts id's entry to mark it most-recently-used, without
// changing its value; used after a successful match so frequently-seen
// clusters are the last to be evicted under a finite drain_max_clusters.
func (c *clusterCache) Touch(id int) {
	if v, ok := c.cache.Get(id); ok {
		c.cache.Add(id, v)
	}
}

func (c *clusterCache) Get(id int) *cluster.LogCluster {
	return c.GetQuietly(id)
}

// GetQuietly retrieves a cluster by ID without promoting it in the LRU
// ordering, for candidate scanning where a cache miss is routine (the
// cluster may have been evicted) rather than a true access.
func (c *clusterCache) GetQuietly(id int) *cluster.LogCluster {
	v, ok := c.cache.Peek(id)
	if !ok {
		return nil
	}
	return v.(*cluster.LogCluster)
}

func (c *clusterCache) Values() []*cluster.LogCluster {
	out := make([]*cluster.LogCluster, 0, c.cache.Len())
	for _, key := range c.cache.Keys() {
		if v, ok := c.cache.Peek(key); ok {
			out = append(out, v.(*cluster.LogCluster))
		}
	}
	return out
}

func (c *clusterCache) Remove(id int) {
	c.cache.Remove(id)
}

func (c *clusterCache) Len() int {
	return c.cache.Len()
}
