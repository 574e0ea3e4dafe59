package forager

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateFile_RoundTrip(t *testing.T) {
	f := NewStateFile(filepath.Join(t.TempDir(), "state.json"))

	want := State{
		Active:         true,
		CurrentBatch:   2,
		TotalBatches:   2,
		ItemsProcessed: 7,
		ItemsCompleted: 5,
		ItemsFailed:    2,
		StartedAt:      time.Now().UTC().Truncate(time.Second),
		LastCheckpoint: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, f.Save(want))

	got, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStateFile_LoadMissing(t *testing.T) {
	f := NewStateFile(filepath.Join(t.TempDir(), "state.json"))

	_, err := f.Load()
	require.ErrorIs(t, err, ErrNoState)
}
