// Package config holds the tunables of the simulation and collision pipeline.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type Physics struct {
	FixedTimestep    float64    `toml:"fixed_timestep"`
	Gravity          [3]float32 `toml:"gravity"`
	MaxStepsPerFrame int        `toml:"max_steps_per_frame"`
	MinPenetration   float32    `toml:"min_penetration"`
	GroundProbe      float32    `toml:"ground_probe"`
	SleepVelocity    float32    `toml:"sleep_velocity"`
	SleepFrames      int        `toml:"sleep_frames"`
}

type Collision struct {
	MaxContacts             int  `toml:"max_contacts"`
	MaxChunks               int  `toml:"max_chunks"`
	MaxFragmentWords        int  `toml:"max_fragment_words"`
	FailedReadbackThreshold int  `toml:"failed_readback_threshold"`
	PreferGPU               bool `toml:"prefer_gpu"`
}

type Config struct {
	Physics   Physics   `toml:"physics"`
	Collision Collision `toml:"collision"`
}

func Default() Config {
	return Config{
		Physics: Physics{
			FixedTimestep:    1.0 / 60.0,
			Gravity:          [3]float32{0, -25, 0},
			MaxStepsPerFrame: 8,
			MinPenetration:   0.01,
			GroundProbe:      0.05,
			SleepVelocity:    0.05,
			SleepFrames:      30,
		},
		Collision: Collision{
			MaxContacts:             4096,
			MaxChunks:               64,
			MaxFragmentWords:        65536,
			FailedReadbackThreshold: 8,
			PreferGPU:               true,
		},
	}
}

// Parse reads TOML over the defaults. Keys that are absent keep their default;
// unknown keys are an error.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("unknown config keys: %s", strict.String())
		}
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads a TOML file. A missing file yields the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func (c Config) Validate() error {
	var errs []error
	if c.Physics.FixedTimestep <= 0 {
		errs = append(errs, fmt.Errorf("physics.fixed_timestep must be positive, got %v", c.Physics.FixedTimestep))
	}
	if c.Physics.MaxStepsPerFrame < 1 {
		errs = append(errs, fmt.Errorf("physics.max_steps_per_frame must be at least 1, got %d", c.Physics.MaxStepsPerFrame))
	}
	if c.Physics.GroundProbe < 0 {
		errs = append(errs, fmt.Errorf("physics.ground_probe must not be negative"))
	}
	if c.Collision.MaxContacts < 1 {
		errs = append(errs, fmt.Errorf("collision.max_contacts must be at least 1, got %d", c.Collision.MaxContacts))
	}
	if c.Collision.MaxChunks < 1 {
		errs = append(errs, fmt.Errorf("collision.max_chunks must be at least 1, got %d", c.Collision.MaxChunks))
	}
	if c.Collision.MaxFragmentWords < 1 {
		errs = append(errs, fmt.Errorf("collision.max_fragment_words must be at least 1, got %d", c.Collision.MaxFragmentWords))
	}
	if c.Collision.FailedReadbackThreshold < 1 {
		errs = append(errs, fmt.Errorf("collision.failed_readback_threshold must be at least 1, got %d", c.Collision.FailedReadbackThreshold))
	}
	return errors.Join(errs...)
}

// Marshal renders the config as TOML.
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
