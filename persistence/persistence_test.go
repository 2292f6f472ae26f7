package persistence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStore_LoadMissingFileIsNilNil(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.bin"))
	data, err := s.Load()
	require.NoError(t, err)
	require.Nil(t, data)
}

func TestFileStore_SaveThenLoadRoundTrips(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nested", "state.bin"))
	payload := []byte{0x1, 0x2, 0x3, 0xff}

	require.NoError(t, s.Save(payload))

	got, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFileStore_SaveOverwritesPreviousSnapshot(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.bin"))

	require.NoError(t, s.Save([]byte("first")))
	require.NoError(t, s.Save([]byte("second")))

	got, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got)
}
