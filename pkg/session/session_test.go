package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltacal/pkg/calibrate"
)

func TestStartMintsUUID(t *testing.T) {
	s, err := Start()
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Empty(t, s.Entries)
}

func TestRecordAndLastDepthMap(t *testing.T) {
	s, err := Start()
	require.NoError(t, err)

	s.RecordEndstop(calibrate.EndstopTrimResult{Converged: true, Iterations: 3, Deviation: 0.01})
	m1 := calibrate.DepthMap{OriginMM: 1.0}
	s.RecordDepthMap(m1)
	m2 := calibrate.DepthMap{OriginMM: 2.0}
	s.RecordDepthMap(m2)

	require.Len(t, s.Entries, 3)
	last, ok := s.LastDepthMap()
	require.True(t, ok)
	assert.Equal(t, 2.0, last.OriginMM)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, err := Start()
	require.NoError(t, err)
	s.RecordRadius(calibrate.DeltaRadiusResult{Converged: true, Iterations: 2, DeltaRadius: 124.5})

	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s.ID, loaded.ID)
	require.Len(t, loaded.Entries, 1)
	require.NotNil(t, loaded.Entries[0].Radius)
	assert.Equal(t, 124.5, loaded.Entries[0].Radius.DeltaRadius)
}

func TestLastDepthMapEmpty(t *testing.T) {
	s, err := Start()
	require.NoError(t, err)
	_, ok := s.LastDepthMap()
	assert.False(t, ok)
}
