// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/autoterm/internal/metrics"
	"github.com/Thermoquad/autoterm/pkg/heater"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const jobTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keep the heater connected and export its state as Prometheus metrics",
	Long: `Run as a long-lived service.

The heater is kept connected, reconnecting with exponential backoff when the
link drops. Status and settings are polled on the configured schedule and all
numeric state fields are exported as Prometheus gauges together with link
counters.

When poll.temperatureFile is set, the room temperature in that file is
forwarded to the heater on poll.temperatureSchedule, so the heater can
regulate on an external sensor.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfg.Serial.Port == "" && cfg.Bridge.URL == "" {
		return fmt.Errorf("either --port or --url must be specified")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.PrintConfig(logger)

	reg := metrics.NewRegistry()
	link := metrics.NewLinkMetrics(reg)
	gauges := metrics.NewDeviceMetrics(reg)

	mgr := &deviceManager{
		observer: link,
		onConnect: func(d *heater.Device, connInfo string) func() {
			logger.Info("Heater connected", zap.String("connection", connInfo))
			if cfg.Poll.TemperatureSensor != "" {
				d.SetExternalTemperatureSensor(cfg.Poll.TemperatureSensor)
			}
			return gauges.Watch(d)
		},
		onLost: func(string) {
			link.Reconnects.Inc()
		},
	}

	// Metrics endpoint
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, metrics.Handler(reg))
	srv := &http.Server{
		Addr:              cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		logger.Info("Serving metrics", zap.String("listen", cfg.Metrics.Listen), zap.String("path", cfg.Metrics.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
			stop()
		}
	}()

	// Periodic jobs
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger.Sugar()})))
	if _, err := c.AddFunc(cfg.Poll.Schedule, func() { pollJob(ctx, mgr) }); err != nil {
		return fmt.Errorf("poll schedule: %w", err)
	}
	if cfg.Poll.TemperatureFile != "" {
		if _, err := c.AddFunc(cfg.Poll.TemperatureSchedule, func() { temperatureJob(ctx, mgr) }); err != nil {
			return fmt.Errorf("temperature schedule: %w", err)
		}
	}
	c.Start()

	mgr.run(ctx)

	<-c.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Metrics server shutdown", zap.Error(err))
	}

	select {
	case err := <-srvErr:
		return fmt.Errorf("metrics server: %w", err)
	default:
	}
	logger.Info("Stopped")
	return nil
}

func pollJob(ctx context.Context, mgr *deviceManager) {
	d := mgr.device()
	if d == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()
	if err := d.Poll(ctx); err != nil {
		logger.Warn("Poll failed", zap.Error(err))
	}
}

func temperatureJob(ctx context.Context, mgr *deviceManager) {
	d := mgr.device()
	if d == nil {
		return
	}

	celsius, err := readTemperatureFile(cfg.Poll.TemperatureFile)
	if err != nil {
		logger.Warn("Room temperature unavailable", zap.String("file", cfg.Poll.TemperatureFile), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()
	if err := d.SetTemperatureCurrent(ctx, celsius); err != nil {
		logger.Warn("Forwarding room temperature failed", zap.Int("celsius", celsius), zap.Error(err))
		return
	}
	logger.Debug("Room temperature forwarded", zap.Int("celsius", celsius))
}

// readTemperatureFile reads a temperature in °C and rounds it to a whole
// degree the heater accepts
func readTemperatureFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid temperature: %w", err)
	}
	celsius := int(math.Round(v))
	if celsius < 0 || celsius > math.MaxUint8 {
		return 0, fmt.Errorf("%w: %d °C", heater.ErrValueOutOfRange, celsius)
	}
	return celsius, nil
}

// cronLogger routes cron's own messages through zap
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
