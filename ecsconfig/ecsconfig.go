// Package ecsconfig holds the tuning knobs for the scheduler and rollback
// controller. It is the only package in this module that touches the
// filesystem; store, rollback and scheduler themselves stay free of I/O and
// take a *Config (or none, defaulting) through their constructors.
//
// Decoding is backed by naoina/toml, the same TOML library the teacher
// uses for its node configuration file.
package ecsconfig

import (
	"os"

	"github.com/naoina/toml"
)

// HistoryCapacity is the hard ceiling on retained rollback snapshots,
// fixed by spec.md and never configurable past it.
const HistoryCapacity = 64

// Scheduler holds tuning for wavefront dispatch.
type Scheduler struct {
	// Workers is the number of goroutines used to execute a wavefront's
	// systems concurrently. Zero means runtime.GOMAXPROCS(0).
	Workers int
	// Debug selects the debug-build error/panic behavior described in
	// spec.md §7 (invariant violations panic, cycles fail the build)
	// versus the release fallback (log and continue).
	Debug bool
}

// Rollback holds tuning for the rollback journal.
type Rollback struct {
	// HistoryDepth is the number of ticks retained for rollback. It must
	// not exceed HistoryCapacity; Default sets it to HistoryCapacity and
	// Load clamps it.
	HistoryDepth int
}

// Config is the top-level decodable configuration document.
type Config struct {
	Scheduler Scheduler
	Rollback  Rollback
}

// Default returns the out-of-the-box configuration: GOMAXPROCS workers,
// debug checks enabled, full history depth.
func Default() *Config {
	return &Config{
		Scheduler: Scheduler{Workers: 0, Debug: true},
		Rollback:  Rollback{HistoryDepth: HistoryCapacity},
	}
}

// Load reads and decodes a TOML configuration file, filling any unset
// fields from Default and clamping HistoryDepth to HistoryCapacity.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := Default()
	if err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if c.Rollback.HistoryDepth <= 0 || c.Rollback.HistoryDepth > HistoryCapacity {
		c.Rollback.HistoryDepth = HistoryCapacity
	}
}
