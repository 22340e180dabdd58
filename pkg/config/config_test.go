package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  rebroadcast_threshold: 9
log:
  rings:
    - priority: 1
      capacity_bytes: 4096
    - priority: 2
      capacity_bytes: 8192
      persistent_counter: true
      counter_bucket: ring-2-counter
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Engine.RebroadcastThreshold)
	assert.Equal(t, 3000, cfg.Engine.RebroadcastPeriodMsec)
	assert.Equal(t, 11, cfg.Engine.MaxConcurrentMessages())
	assert.Len(t, cfg.Log.Rings, 2)
	assert.True(t, cfg.Log.Rings[1].PersistentCounter)
}

func TestLoad_RejectsNonIncreasingPriorities(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  rings:
    - priority: 2
      capacity_bytes: 4096
    - priority: 1
      capacity_bytes: 4096
`), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEngine_Validate(t *testing.T) {
	e := DefaultEngine()
	assert.NoError(t, e.Validate())

	bad := e
	bad.HushKeyMinSize = 8
	assert.Error(t, bad.Validate())
}
