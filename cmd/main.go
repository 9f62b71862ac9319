/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/loqalabs/loqa-loopback-go/internal/audio"
	"github.com/loqalabs/loqa-loopback-go/internal/capture"
	"github.com/loqalabs/loqa-loopback-go/internal/config"
	"github.com/loqalabs/loqa-loopback-go/internal/logging"
	"github.com/loqalabs/loqa-loopback-go/internal/meter"
	"github.com/loqalabs/loqa-loopback-go/internal/nats"
	"github.com/loqalabs/loqa-loopback-go/internal/transport"
	"github.com/loqalabs/loqa-loopback-go/internal/ui"
)

var version = "0.1.0"

// app carries the process streams and the viper instance flags bind into
type app struct {
	v       *viper.Viper
	cfgFile string
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		v:      viper.New(),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "loqa-loopback",
		Short: "System audio loopback level meter",
		Long: `Loqa Loopback captures what the default output device is playing and
prints a level meter once per second. Press Enter to stop.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMeter(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is ./loopback.yaml)")
	flags.String("backend", "auto", "audio backend: auto, wasapi, pulse, portaudio or mock")
	flags.Duration("interval", meter.DefaultReportInterval, "level report interval")
	flags.String("device", "", "PortAudio loopback input device name")
	flags.String("log-level", "warn", "log level: none, error, warn, info or debug")
	flags.String("log-format", "console", "log format: console or json")
	flags.Bool("tui", false, "show a full-screen level meter")
	flags.Bool("nats", false, "publish level frames to NATS")
	flags.String("nats-url", "nats://localhost:4222", "NATS server URL")
	flags.String("nats-subject", "loopback.levels", "NATS subject prefix")
	flags.String("meter-id", "", "meter identifier used in the NATS subject (random if empty)")

	for key, flag := range map[string]string{
		"backend":         "backend",
		"report_interval": "interval",
		"loopback_device": "device",
		"log.level":       "log-level",
		"log.format":      "log-format",
		"tui":             "tui",
		"nats.enabled":    "nats",
		"nats.url":        "nats-url",
		"nats.subject":    "nats-subject",
		"meter_id":        "meter-id",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(a.versionCmd(), a.watchCmd())
	return root
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "Loqa Loopback v%s\n", version)
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print level frames published by meters on NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWatch(cmd.Context())
		},
	}
}

func (a *app) setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, nil)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func (a *app) runMeter(ctx context.Context) error {
	cfg, logger, err := a.setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	backend, err := audio.NewBackend(cfg.Backend, audio.BackendOptions{
		AppName:        "Loqa Loopback",
		LoopbackDevice: cfg.LoopbackDevice,
		OnLog: func(msg string) {
			logger.Debug("🔈 Audio host", zap.String("message", msg))
		},
	})
	if err != nil {
		return err
	}

	opts := capture.Options{
		Backend:        backend,
		ReportInterval: cfg.ReportInterval,
		Stdin:          a.stdin,
		Stdout:         a.stdout,
		Logger:         logger,
	}

	if cfg.NATS.Enabled {
		publisher, err := nats.NewLevelPublisher(cfg.NATS.URL, cfg.NATS.Subject, cfg.MeterID, logger)
		if err != nil {
			logger.Warn("⚠️ Level telemetry disabled", zap.Error(err))
		} else {
			defer publisher.Close()
			logger.Info("📡 Publishing levels", zap.String("subject", publisher.Subject()))
			opts.Sinks = append(opts.Sinks, publisher)
		}
	}

	var tui *ui.TUI
	if cfg.TUI {
		tui = ui.NewTUI()
		tui.Start()
		opts.Sinks = append(opts.Sinks, tui)
		opts.Quit = tui.Done()
		// The TUI owns the terminal; keys replace the stdin line
		opts.Stdin = nil
		opts.Stdout = io.Discard
	}

	_, runErr := capture.NewDriver(opts).Run(ctx)

	if tui != nil {
		tui.Stop()
		if err := tui.Err(); err != nil {
			logger.Warn("⚠️ Level meter UI exited with an error", zap.Error(err))
		}
	}
	return runErr
}

func (a *app) runWatch(ctx context.Context) error {
	cfg, logger, err := a.setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	subscriber, err := nats.NewLevelSubscriber(cfg.NATS.URL, cfg.NATS.Subject, 64, logger)
	if err != nil {
		return err
	}
	defer subscriber.Close()

	if err := subscriber.Start(); err != nil {
		return err
	}
	return watchEvents(ctx, subscriber, a.stdout, logger)
}

// eventSource is the part of nats.LevelSubscriber the watch loop reads
type eventSource interface {
	Events() <-chan nats.Event
	Dropped() uint64
}

// watchEvents prints every event until ctx is done, then logs how many
// frames the subscriber dropped because printing fell behind
func watchEvents(ctx context.Context, source eventSource, w io.Writer, logger *zap.Logger) error {
	events := source.Events()
	for {
		select {
		case <-ctx.Done():
			if dropped := source.Dropped(); dropped > 0 {
				logger.Warn("⚠️  Level frames dropped while watching", zap.Uint64("dropped_frames", dropped))
			} else {
				logger.Info("👋 Stopped watching", zap.Uint64("dropped_frames", dropped))
			}
			return nil
		case event := <-events:
			printEvent(w, event, logger)
		}
	}
}

func printEvent(w io.Writer, event nats.Event, logger *zap.Logger) {
	switch event.Frame.Type {
	case transport.FrameTypeLevel:
		report, err := event.Report()
		if err != nil {
			logger.Warn("❌ Invalid level frame", zap.String("meter_id", event.MeterID), zap.Error(err))
			return
		}
		fmt.Fprintf(w, "[%s] %s\n", event.MeterID, meter.FormatLine(report))
	case transport.FrameTypeStreamStart:
		fmt.Fprintf(w, "[%s] capturing from %s\n", event.MeterID, event.Frame.Data)
	case transport.FrameTypeStreamError:
		fmt.Fprintf(w, "[%s] stream error: %s\n", event.MeterID, event.Frame.Data)
	case transport.FrameTypeStreamStop:
		fmt.Fprintf(w, "[%s] stopped\n", event.MeterID)
	}
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdin, os.Stdout, os.Stderr).rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
