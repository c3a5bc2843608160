package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alxayo/txproto-go/internal/epoch"
	"github.com/alxayo/txproto-go/internal/fifo"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if c.LogLevel != "info" {
		t.Fatalf("LogLevel = %q", c.LogLevel)
	}
	if c.IODiscoveryInterval != 2*time.Second {
		t.Fatalf("IODiscoveryInterval = %v", c.IODiscoveryInterval)
	}
	if c.EpochModeValue() != epoch.System {
		t.Fatalf("EpochModeValue = %v, want System", c.EpochModeValue())
	}
}

func TestValidateRejectsBadEpochMode(t *testing.T) {
	c := Default()
	c.EpochMode = "bogus"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for bad epoch mode")
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "log_level: debug\nepoch_mode: offset\nfifo_default_capacity: 64\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.LogLevel != "debug" || c.EpochMode != "offset" || c.FIFODefaultCapacity != 64 {
		t.Fatalf("got %+v", c)
	}
}

func TestOverrideFlagsWinOverFile(t *testing.T) {
	base := Default()
	base.LogLevel = "info"
	override := Config{LogLevel: "warn"}

	merged := base.Override(override)
	if merged.LogLevel != "warn" {
		t.Fatalf("LogLevel = %q, want warn", merged.LogLevel)
	}
	if merged.FIFODefaultCapacity != base.FIFODefaultCapacity {
		t.Fatalf("unset override field should not clobber base")
	}
}

func TestParseFIFOPolicy(t *testing.T) {
	flags, err := ParseFIFOPolicy("block_no_input,block_max_output")
	if err != nil {
		t.Fatalf("ParseFIFOPolicy: %v", err)
	}
	if flags&fifo.BlockNoInput == 0 || flags&fifo.BlockMaxOutput == 0 {
		t.Fatalf("flags = %v, want both bits set", flags)
	}

	if _, err := ParseFIFOPolicy("nonsense"); err == nil {
		t.Fatalf("expected error for unknown token")
	}
}
