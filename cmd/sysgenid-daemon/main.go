// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the sysgenid project.
// Copyright 2016-present sysgenid authors.

// Command sysgenid-daemon claims the com.RFC.sysgenid bus name, wires
// the generation state machine to it, and runs until terminated.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/sysgenid/sysgenid/internal/busiface"
	"github.com/sysgenid/sysgenid/internal/config"
	"github.com/sysgenid/sysgenid/internal/counterpage"
	"github.com/sysgenid/sysgenid/internal/generation"
	"github.com/sysgenid/sysgenid/internal/logger"
	"github.com/sysgenid/sysgenid/internal/metrics"
	"github.com/sysgenid/sysgenid/internal/registry"
)

func main() {
	root := &cobra.Command{
		Use:   "sysgenid-daemon",
		Short: "Publishes a monotonic generation counter over D-Bus",
		RunE:  run,
	}
	config.BindFlags(root)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	conn, err := connectBus(cfg.Bus)
	if err != nil {
		return fmt.Errorf("connect to %s bus: %w", cfg.Bus, err)
	}

	page, err := counterpage.Open(cfg.CounterFile, 0)
	if err != nil {
		return fmt.Errorf("open counter page: %w", err)
	}

	reg := registry.New()
	bus := busiface.New(conn, log)
	gen := generation.New(page, reg, bus, log)

	if err := bus.RequestName(); err != nil {
		_ = page.Close()
		return err
	}
	if err := bus.Export(); err != nil {
		_ = bus.Close()
		_ = page.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal")
		cancel()
	}()

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = startMetricsServer(cfg.MetricsAddr, bus, log)
	}

	log.Infow("sysgenid daemon ready",
		"bus", cfg.Bus, "counter_file", page.Path(), "metrics_addr", cfg.MetricsAddr)

	runErr := bus.Run(ctx, gen)

	if metricsSrv != nil {
		_ = metricsSrv.Close()
	}
	_ = bus.Close()
	_ = page.Close()

	return runErr
}

func connectBus(mode string) (*dbus.Conn, error) {
	if mode == "system" {
		return dbus.ConnectSystemBus()
	}
	return dbus.ConnectSessionBus()
}

func startMetricsServer(addr string, bus *busiface.BusInterface, log *logger.Logger) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(bus.Snapshot))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("metrics server exited", "error", err)
		}
	}()
	return srv
}
