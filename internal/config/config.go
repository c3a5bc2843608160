// Package config holds the main context's construction options: FIFO
// default policy, epoch clock mode, and the I/O discovery poll
// interval. A plain struct with zero values filled by applyDefaults;
// YAML loading via gopkg.in/yaml.v3 is layered underneath flag/env
// precedence.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alxayo/txproto-go/internal/epoch"
	"github.com/alxayo/txproto-go/internal/errors"
	"github.com/alxayo/txproto-go/internal/fifo"
)

// Config holds the main context's construction options.
type Config struct {
	LogLevel string `yaml:"log_level"`

	// FIFO defaults applied to every component FIFO unless overridden by
	// that component's own fifo_flags option (internal/optval).
	FIFODefaultFlags       string `yaml:"fifo_default_flags"`
	FIFODefaultPullNoBlock bool   `yaml:"fifo_default_pull_no_block"`
	FIFODefaultCapacity    int    `yaml:"fifo_default_capacity"`

	// Epoch clock mode: "system" (wall clock) or "offset" (relative to
	// process start), matching epoch.Mode.
	EpochMode string `yaml:"epoch_mode"`

	// IODiscoveryInterval bounds how often an iosys backend re-polls for
	// new/removed devices when it has no native notification mechanism.
	IODiscoveryInterval time.Duration `yaml:"io_discovery_interval"`

	// StatsEnabled toggles whether the main context builds an
	// internal/stats.Registry at all.
	StatsEnabled bool `yaml:"stats_enabled"`
}

// applyDefaults fills zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.FIFODefaultCapacity == 0 {
		c.FIFODefaultCapacity = 16
	}
	if c.EpochMode == "" {
		c.EpochMode = "system"
	}
	if c.IODiscoveryInterval == 0 {
		c.IODiscoveryInterval = 2 * time.Second
	}
}

// Validate checks field values applyDefaults cannot fix on its own.
func (c Config) Validate() error {
	switch c.EpochMode {
	case "system", "offset":
	default:
		return errors.NewInvalidArgError("config.epoch_mode", nil)
	}
	if c.FIFODefaultCapacity <= 0 {
		return errors.NewInvalidArgError("config.fifo_default_capacity", nil)
	}
	return nil
}

// EpochModeValue translates EpochMode into epoch.Mode.
func (c Config) EpochModeValue() epoch.Mode {
	if c.EpochMode == "offset" {
		return epoch.Offset
	}
	return epoch.System
}

// Default returns a Config with every field at its default value.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

// Load reads a YAML config file at path, applies defaults to zero
// fields, and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.NewExternalError("config.load.read", 0, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, errors.NewInvalidArgError("config.load.unmarshal", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Override layers non-zero fields of o onto c: flags/env override a
// loaded file, the file overrides built-in defaults.
func (c Config) Override(o Config) Config {
	out := c
	if o.LogLevel != "" {
		out.LogLevel = o.LogLevel
	}
	if o.FIFODefaultFlags != "" {
		out.FIFODefaultFlags = o.FIFODefaultFlags
	}
	if o.FIFODefaultPullNoBlock {
		out.FIFODefaultPullNoBlock = o.FIFODefaultPullNoBlock
	}
	if o.FIFODefaultCapacity != 0 {
		out.FIFODefaultCapacity = o.FIFODefaultCapacity
	}
	if o.EpochMode != "" {
		out.EpochMode = o.EpochMode
	}
	if o.IODiscoveryInterval != 0 {
		out.IODiscoveryInterval = o.IODiscoveryInterval
	}
	if o.StatsEnabled {
		out.StatsEnabled = o.StatsEnabled
	}
	return out
}

// ParseFIFOPolicy parses FIFODefaultFlags the same way
// internal/optval.ParseFIFOFlags does, exposed here so
// internal/pipeline doesn't need to import internal/optval just for
// this one field.
func ParseFIFOPolicy(s string) (fifo.Flags, error) {
	if s == "" {
		return 0, nil
	}
	var flags fifo.Flags
	for _, tok := range splitComma(s) {
		switch tok {
		case "block_no_input":
			flags |= fifo.BlockNoInput
		case "block_max_output":
			flags |= fifo.BlockMaxOutput
		case "":
		default:
			return 0, errors.NewInvalidArgError("config.fifo_default_flags."+tok, nil)
		}
	}
	return flags, nil
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
