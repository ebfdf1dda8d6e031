package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.InDelta(t, 1.0/60.0, cfg.Physics.FixedTimestep, 1e-12)
	assert.Equal(t, [3]float32{0, -25, 0}, cfg.Physics.Gravity)
	assert.Equal(t, 4096, cfg.Collision.MaxContacts)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[physics]
fixed_timestep = 0.01
gravity = [0.0, -9.8, 0.0]

[collision]
max_contacts = 128
prefer_gpu = false
`))
	require.NoError(t, err)
	assert.Equal(t, 0.01, cfg.Physics.FixedTimestep)
	assert.Equal(t, float32(-9.8), cfg.Physics.Gravity[1])
	assert.Equal(t, 8, cfg.Physics.MaxStepsPerFrame, "absent keys keep defaults")
	assert.Equal(t, 128, cfg.Collision.MaxContacts)
	assert.False(t, cfg.Collision.PreferGPU)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("[physics]\ngravty = [0.0, 1.0, 0.0]\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Physics.FixedTimestep = 0
	cfg.Physics.MaxStepsPerFrame = 0
	cfg.Collision.MaxContacts = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fixed_timestep")
	assert.Contains(t, err.Error(), "max_steps_per_frame")
	assert.Contains(t, err.Error(), "max_contacts")

	_, err = Parse([]byte("[collision]\nmax_chunks = 0\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	want := Default()
	want.Collision.FailedReadbackThreshold = 3
	data, err := want.Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "voxelstudio.toml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
