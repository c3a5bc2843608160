// Command txproto-run boots a MainContext, registers whichever I/O
// back-ends the flags ask for, serves Prometheus metrics, and runs
// until a shutdown signal arrives.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alxayo/txproto-go/internal/config"
	"github.com/alxayo/txproto-go/internal/iosys/azureblob"
	"github.com/alxayo/txproto-go/internal/iosys/filewatch"
	"github.com/alxayo/txproto-go/internal/logger"
	"github.com/alxayo/txproto-go"

	"github.com/alxayo/txproto-go/internal/class"
)

func main() {
	cli, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cli.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(cli.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cli.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	cfg, err := buildConfig(cli)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	mc := txproto.New(cfg)

	if cli.captureDir != "" {
		kind := class.VideoSrc
		if cli.captureKind == "audio" {
			kind = class.AudioSrc
		}
		mc.IORegisterCB(filewatch.New(cli.captureDir, kind, cfg.IODiscoveryInterval))
	}
	if cli.blobAccountURL != "" {
		mc.IORegisterCB(azureblob.New(azureblob.Config{
			AccountURL:    cli.blobAccountURL,
			ContainerName: cli.blobContainer,
			BlobPrefix:    cli.blobPrefix,
		}, nil))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mc.Init(ctx); err != nil {
		log.Error("failed to start I/O back-ends", "error", err)
		os.Exit(1)
	}
	log.Info("txproto-run started", "version", version, "epoch-mode", cli.epochMode)

	var metricsSrv *http.Server
	if cli.metricsAddr != "" && mc.Stats != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(mc.Stats.Gatherer(), promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cli.metricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server error", "error", err)
			}
		}()
		log.Info("metrics server listening", "addr", cli.metricsAddr)
	}

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		mc.Free()
		close(done)
	}()

	select {
	case <-done:
		log.Info("shutdown complete")
	case <-shutdownCtx.Done():
		log.Error("forced exit after timeout")
	}
}

func buildConfig(cli *cliConfig) (config.Config, error) {
	cfg := config.Default()
	if cli.configPath != "" {
		loaded, err := config.Load(cli.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = cfg.Override(loaded)
	}
	cfg.LogLevel = cli.logLevel
	cfg.EpochMode = cli.epochMode
	cfg.FIFODefaultFlags = cli.fifoPolicy
	cfg.FIFODefaultCapacity = cli.fifoCapacity
	if cli.ioPoll > 0 {
		cfg.IODiscoveryInterval = cli.ioPoll
	}
	cfg.StatsEnabled = cli.metricsAddr != ""
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
