package main

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// version is injected at build time with -ldflags "-X main.version=...".
// Defaults to dev.
var version = "dev"

// cliConfig holds user-supplied flag values prior to translation into
// config.Config, so main.go can validate and map.
type cliConfig struct {
	configPath string
	logLevel   string
	epochMode  string
	metricsAddr string
	fifoPolicy  string
	fifoCapacity int

	captureDir  string
	captureKind string
	ioPoll      time.Duration

	blobAccountURL string
	blobContainer  string
	blobPrefix     string

	showVersion bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := pflag.NewFlagSet("txproto-run", pflag.ContinueOnError)

	cfg := &cliConfig{}
	fs.StringVar(&cfg.configPath, "config", "", "Path to a YAML config file (internal/config.Load)")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.epochMode, "epoch-mode", "offset", "Epoch clock mode: offset|system")
	fs.StringVar(&cfg.metricsAddr, "metrics-listen", "", "Address to serve /metrics on (empty disables the server)")
	fs.StringVar(&cfg.fifoPolicy, "fifo-default-flags", "block_no_input", "Default FIFO backpressure policy: comma-separated block_no_input,block_max_output (empty disables both)")
	fs.IntVar(&cfg.fifoCapacity, "fifo-default-capacity", 16, "Default bounded FIFO capacity")

	fs.StringVar(&cfg.captureDir, "io-capture-dir", "", "Watch this directory for capture-pipe files (empty disables filewatch)")
	fs.StringVar(&cfg.captureKind, "io-capture-kind", "video", "Capture pipe kind: video|audio")
	fs.DurationVar(&cfg.ioPoll, "io-poll", 0, "I/O discovery re-scan interval (0 uses the config default)")

	fs.StringVar(&cfg.blobAccountURL, "io-blob-account-url", "", "Azure Blob Storage account URL (empty disables the azureblob sink)")
	fs.StringVar(&cfg.blobContainer, "io-blob-container", "segments", "Azure Blob container name")
	fs.StringVar(&cfg.blobPrefix, "io-blob-prefix", "txproto/", "Azure Blob name prefix")

	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q", cfg.logLevel)
	}
	switch cfg.epochMode {
	case "offset", "system":
	default:
		return nil, fmt.Errorf("invalid epoch-mode %q", cfg.epochMode)
	}
	switch cfg.captureKind {
	case "", "video", "audio":
	default:
		return nil, fmt.Errorf("invalid io-capture-kind %q", cfg.captureKind)
	}

	return cfg, nil
}
