// Package miner composes the Masker, the Drain engine, and a persistence
// collaborator behind a single facade, adding the snapshot-interval/dirty-
// flag policy described in the spec.
package miner

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/mrlyc/drainminer/config"
	"github.com/mrlyc/drainminer/drain"
	"github.com/mrlyc/drainminer/internal/cluster"
	"github.com/mrlyc/drainminer/internal/extract"
	"github.com/mrlyc/drainminer/internal/mask"
	"github.com/mrlyc/drainminer/persistence"
)

// MatchStrategy mirrors drain.MatchStrategy at the facade boundary so
// callers of this package never need to import drain directly.
type MatchStrategy = drain.MatchStrategy

const (
	Fast     = drain.Fast
	Full     = drain.Full
	Fallback = drain.Fallback
)

// ClusterSnapshot is the read-only view Clusters() and the report package
// consume; it carries the raw sample lines the Drain engine's own cluster
// struct deliberately omits (§4.7).
type ClusterSnapshot struct {
	ID       int
	Size     int
	Template string
	Samples  []string
}

// Binding re-exports extract.Binding so callers never import internal/extract.
type Binding = extract.Binding

// Miner is the top-level facade: mask, cluster, and (optionally) persist.
// It takes no internal lock; see NewConcurrent for a goroutine-safe wrapper.
type Miner struct {
	cfg       *config.Config
	masker    *mask.Masker
	engine    *drain.Drain
	extractor *extract.Extractor
	store     persistence.Store
	logger    *zap.Logger

	samples    map[int][]string
	sampleCap  int
	dirty      bool
	lastSave   time.Time
	snapshotAt time.Duration
}

// New builds a Miner from cfg. If cfg.StatePath is non-empty, a
// persistence.FileStore is attached and an existing snapshot is loaded
// before the first Ingest.
func New(cfg *config.Config, logger *zap.Logger) (*Miner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	masker, err := maskerFromConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "miner: building masker")
	}

	engine, err := drain.New(drain.Config{
		Depth:              cfg.DrainDepth,
		SimTh:              cfg.DrainSimTh,
		MaxChildren:        cfg.DrainMaxChildren,
		MaxClusters:        cfg.DrainMaxClusters,
		ExtraDelimiters:    cfg.DrainExtraDelimiters,
		ParametrizeNumeric: cfg.ParametrizeNumeric,
		MaskPrefix:         cfg.MaskPrefix,
		MaskSuffix:         cfg.MaskSuffix,
		MaskName:           cfg.MaskName,
		Logger:             logger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "miner: building drain engine")
	}

	vocab := extract.Vocabulary{
		Names:       masker.Names(),
		RulesFor:    masker.RulesFor,
		Prefix:      cfg.MaskPrefix,
		Suffix:      cfg.MaskSuffix,
		GenericName: cfg.MaskName,
	}
	extractor := extract.New(vocab, cfg.DrainExtraDelimiters, cfg.ExtractionCacheCap)

	m := &Miner{
		cfg:        cfg,
		masker:     masker,
		engine:     engine,
		extractor:  extractor,
		logger:     logger,
		samples:    make(map[int][]string),
		sampleCap:  cfg.SampleCapacity,
		snapshotAt: cfg.SnapshotInterval(),
	}

	if cfg.StatePath != "" {
		m.store = persistence.NewFileStore(cfg.StatePath)
		if err := m.LoadState(); err != nil {
			return nil, errors.Wrap(err, "miner: loading persisted state")
		}
	}
	return m, nil
}

func maskerFromConfig(cfg *config.Config) (*mask.Masker, error) {
	patterns := make([]struct{ Pattern, Name string }, 0, len(cfg.MaskingInstructions))
	for _, instr := range cfg.MaskingInstructions {
		patterns = append(patterns, struct{ Pattern, Name string }{Pattern: instr.Regex, Name: instr.MaskWith})
	}
	return mask.NewFromPatterns(cfg.MaskPrefix, cfg.MaskSuffix, patterns)
}

// Ingest masks line, forwards it to the Drain engine, retains a raw sample
// for reporting, and flushes a snapshot if the interval has elapsed and the
// state is dirty.
func (m *Miner) Ingest(line string) (ClusterSnapshot, cluster.UpdateKind) {
	masked := m.masker.Mask(line)
	c, kind := m.engine.AddLogMessage(masked)

	if kind != cluster.None {
		m.dirty = true
	}
	m.retainSample(c.ID, line)
	m.maybeSnapshot()

	return m.snapshot(c), kind
}

func (m *Miner) retainSample(id int, line string) {
	if m.sampleCap <= 0 {
		return
	}
	existing := m.samples[id]
	if len(existing) >= m.sampleCap {
		return
	}
	m.samples[id] = append(existing, line)
}

func (m *Miner) maybeSnapshot() {
	if m.store == nil || !m.dirty {
		return
	}
	if m.snapshotAt > 0 && time.Since(m.lastSave) < m.snapshotAt {
		return
	}
	if err := m.SaveState(); err != nil {
		// A failed snapshot must never fail ingestion (§7); state_dirty is
		// intentionally left set so the next tick retries.
		m.logger.Error("miner: periodic snapshot failed", zap.Error(err))
		return
	}
}

// Match performs a non-mutating lookup against the Drain engine.
func (m *Miner) Match(line string, strategy MatchStrategy) (ClusterSnapshot, bool) {
	masked := m.masker.Mask(line)
	c := m.engine.MatchCluster(masked, strategy)
	if c == nil {
		return ClusterSnapshot{}, false
	}
	return m.snapshot(c), true
}

// ExtractParameters recovers (value, mask_name) pairs for template's
// placeholder slots against the raw observed line. The line is not masked
// first, so each binding carries the literal value that filled its slot.
func (m *Miner) ExtractParameters(template, line string, exactMatching bool) ([]Binding, bool) {
	return m.extractor.Extract(template, line, exactMatching)
}

// Clusters returns every live cluster as a read-only, ID-sorted snapshot.
func (m *Miner) Clusters() []ClusterSnapshot {
	all := m.engine.Clusters()
	out := make([]ClusterSnapshot, len(all))
	for i, c := range all {
		out[i] = m.snapshot(c)
	}
	sortSnapshotsByID(out)
	return out
}

func sortSnapshotsByID(s []ClusterSnapshot) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1].ID > s[j].ID; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func (m *Miner) snapshot(c *cluster.LogCluster) ClusterSnapshot {
	return ClusterSnapshot{
		ID:       c.ID,
		Size:     c.Size,
		Template: c.Template(),
		Samples:  append([]string(nil), m.samples[c.ID]...),
	}
}

// state is the msgpack-serialized shape of persisted Drain state (§4.8).
// The tree is rebuilt from Clusters on Load rather than serialized
// separately, since it is fully determined by the cluster list and config.
type state struct {
	Clusters       []clusterState
	ClusterCounter int
	MintCounter    int
	Samples        map[int][]string
}

type clusterState struct {
	ID     int
	Tokens []string
	Size   int
}

// SaveState serializes the current Drain state and flushes it through the
// attached persistence.Store. A no-op (returns nil) if no store is attached.
func (m *Miner) SaveState() error {
	if m.store == nil {
		return nil
	}
	blob, err := msgpack.Marshal(m.buildState())
	if err != nil {
		return errors.Wrap(err, "miner: marshal state")
	}
	if err := m.store.Save(blob); err != nil {
		return errors.Wrap(err, "miner: save state")
	}
	m.dirty = false
	m.lastSave = time.Now()
	return nil
}

func (m *Miner) buildState() state {
	clusters := m.engine.Clusters()
	cs := make([]clusterState, len(clusters))
	for i, c := range clusters {
		cs[i] = clusterState{ID: c.ID, Tokens: c.Tokens, Size: c.Size}
	}
	// Sorted by ID so Restore replays insertion order deterministically on
	// reload, reproducing the same tree shape max_children would have
	// produced the first time around.
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && cs[j-1].ID > cs[j].ID; j-- {
			cs[j-1], cs[j] = cs[j], cs[j-1]
		}
	}
	return state{
		Clusters:       cs,
		ClusterCounter: m.engine.ClusterCounter(),
		MintCounter:    m.engine.MintCounter(),
		Samples:        m.samples,
	}
}

// LoadState reads a prior snapshot through the attached persistence.Store
// and replaces the Drain engine's state wholesale. A missing snapshot
// (fresh install) is not an error: the Miner simply starts empty.
func (m *Miner) LoadState() error {
	if m.store == nil {
		return nil
	}
	blob, err := m.store.Load()
	if err != nil {
		return errors.Wrap(err, "miner: load state")
	}
	if blob == nil {
		return nil
	}
	var s state
	if err := msgpack.Unmarshal(blob, &s); err != nil {
		return errors.Wrap(err, "miner: unmarshal state")
	}

	engine, err := drain.New(drain.Config{
		Depth:              m.cfg.DrainDepth,
		SimTh:              m.cfg.DrainSimTh,
		MaxChildren:        m.cfg.DrainMaxChildren,
		MaxClusters:        m.cfg.DrainMaxClusters,
		ExtraDelimiters:    m.cfg.DrainExtraDelimiters,
		ParametrizeNumeric: m.cfg.ParametrizeNumeric,
		MaskPrefix:         m.cfg.MaskPrefix,
		MaskSuffix:         m.cfg.MaskSuffix,
		MaskName:           m.cfg.MaskName,
		Logger:             m.logger,
	})
	if err != nil {
		return errors.Wrap(err, "miner: rebuilding engine from snapshot")
	}
	for _, cs := range s.Clusters {
		engine.Restore(cs.ID, cs.Tokens, cs.Size)
	}
	engine.SetCounters(s.ClusterCounter, s.MintCounter)

	m.engine = engine
	if s.Samples != nil {
		m.samples = s.Samples
	}
	m.dirty = false
	m.lastSave = time.Now()
	return nil
}

// NewConcurrent wraps New's Miner so Ingest, SaveState, LoadState, and
// ExtractParameters take an exclusive lock while Match and Clusters take a
// shared one, letting a single writer and many readers share one Miner
// (§5). ExtractParameters is exclusive because it updates the extractor's
// compiled-regex cache.
func NewConcurrent(cfg *config.Config, logger *zap.Logger) (*ConcurrentMiner, error) {
	m, err := New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &ConcurrentMiner{inner: m}, nil
}

// ConcurrentMiner is the mutex-guarded wrapper described in §5, for use
// when producers and readers run on separate goroutines.
type ConcurrentMiner struct {
	mu    sync.RWMutex
	inner *Miner
}

func (c *ConcurrentMiner) Ingest(line string) (ClusterSnapshot, cluster.UpdateKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Ingest(line)
}

func (c *ConcurrentMiner) Match(line string, strategy MatchStrategy) (ClusterSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inner.Match(line, strategy)
}

func (c *ConcurrentMiner) ExtractParameters(template, line string, exactMatching bool) ([]Binding, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.ExtractParameters(template, line, exactMatching)
}

func (c *ConcurrentMiner) Clusters() []ClusterSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inner.Clusters()
}

func (c *ConcurrentMiner) SaveState() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.SaveState()
}

func (c *ConcurrentMiner) LoadState() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.LoadState()
}
