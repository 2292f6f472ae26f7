package miner

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrlyc/drainminer/config"
	"github.com/mrlyc/drainminer/internal/cluster"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.MaskingInstructions = []config.MaskRule{
		{Regex: `\d+\.\d+\.\d+\.\d+`, MaskWith: "IP"},
		{Regex: `\b\d+\b`, MaskWith: "NUM"},
	}
	return cfg
}

func TestIngest_CreatesThenMatchesMaskedTemplate(t *testing.T) {
	m, err := New(testConfig(), nil)
	require.NoError(t, err)

	s1, k1 := m.Ingest("Connected to 10.0.0.1")
	require.Equal(t, cluster.Created, k1)

	// Both lines mask to "Connected to <IP>", so the second one matches the
	// template unchanged.
	s2, k2 := m.Ingest("Connected to 10.0.0.2")
	require.Equal(t, cluster.None, k2)
	require.Equal(t, s1.ID, s2.ID)
	require.Contains(t, s2.Template, "<IP>")
}

func TestIngest_RetainsSamplesUpToCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.SampleCapacity = 2
	m, err := New(cfg, nil)
	require.NoError(t, err)

	m.Ingest("ping one")
	m.Ingest("ping two")
	s, _ := m.Ingest("ping three")
	require.Len(t, s.Samples, 2)
}

func TestMatch_DoesNotMutateClusterCount(t *testing.T) {
	m, err := New(testConfig(), nil)
	require.NoError(t, err)

	m.Ingest("user bob logged in")
	before := m.Clusters()[0].Size

	_, ok := m.Match("user bob logged in", Fast)
	require.True(t, ok)

	after := m.Clusters()[0].Size
	require.Equal(t, before, after)
}

func TestExtractParameters_RecoversMaskedValue(t *testing.T) {
	m, err := New(testConfig(), nil)
	require.NoError(t, err)

	s, _ := m.Ingest("Connected to 10.0.0.1")
	_, _ = m.Ingest("Connected to 10.0.0.2")

	bindings, ok := m.ExtractParameters(s.Template, "Connected to 10.0.0.9", false)
	require.True(t, ok)
	require.Len(t, bindings, 1)
	require.Equal(t, "10.0.0.9", bindings[0].Value)
	require.Equal(t, "IP", bindings[0].Mask)
}

func TestSaveStateThenLoadState_PreservesClusters(t *testing.T) {
	cfg := testConfig()
	cfg.StatePath = filepath.Join(t.TempDir(), "state.bin")
	m, err := New(cfg, nil)
	require.NoError(t, err)

	m.Ingest("Connected to 10.0.0.1")
	m.Ingest("Connected to 10.0.0.2")
	m.Ingest("Disconnect from 10.0.0.1")
	require.NoError(t, m.SaveState())

	reloaded, err := New(cfg, nil)
	require.NoError(t, err)

	before := m.Clusters()
	after := reloaded.Clusters()
	require.Len(t, after, len(before))
	for i := range before {
		require.Equal(t, before[i].ID, after[i].ID)
		require.Equal(t, before[i].Template, after[i].Template)
		require.Equal(t, before[i].Size, after[i].Size)
	}
}

func TestLoadState_MissingSnapshotStartsEmpty(t *testing.T) {
	cfg := testConfig()
	cfg.StatePath = filepath.Join(t.TempDir(), "never-written.bin")
	m, err := New(cfg, nil)
	require.NoError(t, err)
	require.Empty(t, m.Clusters())
}

func TestNewConcurrent_IngestAndMatchAreSafe(t *testing.T) {
	cm, err := NewConcurrent(testConfig(), nil)
	require.NoError(t, err)

	cm.Ingest("user bob logged in")
	_, ok := cm.Match("user bob logged in", Fast)
	require.True(t, ok)
	require.Len(t, cm.Clusters(), 1)
}
