// Command bitaxefw is the mining core's process entry point: it loads
// configuration, opens the settings store and ASIC serial port, dials the
// configured Stratum pool (with fallback), binds the events bus, and runs
// the four-task pipeline until it receives a shutdown signal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bardlex/bitaxefw/internal/asic"
	"github.com/bardlex/bitaxefw/internal/config"
	"github.com/bardlex/bitaxefw/internal/events"
	"github.com/bardlex/bitaxefw/internal/pipeline"
	"github.com/bardlex/bitaxefw/internal/settings"
	"github.com/bardlex/bitaxefw/internal/stratum"
	"github.com/bardlex/bitaxefw/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := log.New(cfg.ServiceName, cfg.Version, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting bitaxefw",
		"version", cfg.Version,
		"asic_serial_port", cfg.AsicSerialPort,
	)

	store, err := settings.Open(cfg.SettingsPath)
	if err != nil {
		logger.WithError(err).Error("failed to open settings store")
		os.Exit(1)
	}
	defer store.Close()

	bus, err := events.New(cfg.EventsPubAddr, logger)
	if err != nil {
		logger.WithError(err).Error("failed to bind events bus")
		os.Exit(1)
	}
	defer bus.Close()

	port, err := openSerialPort(cfg.AsicSerialPort)
	if err != nil {
		logger.WithError(err).Error("failed to open ASIC serial port")
		os.Exit(1)
	}
	defer port.Close()

	model := asic.ParseModel(store.Get(settings.KeyAsicModel))
	variant := asic.Variants[model]
	driver := asic.New(variant, port, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frequency := cfg.AsicFrequency
	if v := store.GetInt(settings.KeyAsicFrequency); v > 0 {
		frequency = float64(v)
	}

	chainLength, err := driver.Init(ctx, 0xFFFFFFFF, cfg.AsicExpected, frequency)
	if err != nil {
		logger.WithError(err).Error("ASIC chain bring-up failed")
		os.Exit(1)
	}
	logger.Info("ASIC chain ready", "chain_length", chainLength, "model", model.String(), "frequency_mhz", frequency)

	if err := driver.SetDifficultyMask(variant.DefaultDifficulty); err != nil {
		logger.WithError(err).Warn("failed to set initial ASIC difficulty mask")
	}

	primary := stratum.Endpoint{
		Addr: fmt.Sprintf("%s:%s", store.Get(settings.KeyStratumURL), store.Get(settings.KeyStratumPort)),
		User: store.Get(settings.KeyStratumUser),
		Pass: store.Get(settings.KeyStratumPass),
	}

	var fallback *stratum.Endpoint
	if url := store.Get(settings.KeyFallbackStratumURL); url != "" {
		fallback = &stratum.Endpoint{
			Addr: fmt.Sprintf("%s:%s", url, store.Get(settings.KeyFallbackStratumPort)),
			User: store.Get(settings.KeyFallbackStratumUser),
			Pass: store.Get(settings.KeyFallbackStratumPass),
		}
	}

	pool := stratum.NewFailoverClient(primary, fallback, logger, cfg.StratumReadTimeout, cfg.StratumWriteTimeout)

	orch := pipeline.New(pool, driver, store, bus, logger, pipeline.Config{
		JobFrequency:     time.Duration(cfg.AsicJobFrequencyMS) * time.Millisecond,
		NotifyQueueSize:  cfg.NotifyQueueSize,
		AsicJobQueueSize: cfg.AsicJobQueueSize,
		SubrangeSize:     cfg.SubrangeSize,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() { runErr <- orch.Run(ctx) }()

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			logger.WithError(err).Error("pipeline stopped unexpectedly")
		}
	}

	cancel()
	logger.Info("bitaxefw stopped", "best_session_difficulty", orch.BestSessionDifficulty())
}
