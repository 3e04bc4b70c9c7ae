package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/itohio/coldmon/coldmon/version"
	"github.com/itohio/coldmon/pkg/adc"
	"github.com/itohio/coldmon/pkg/calibration"
	"github.com/itohio/coldmon/pkg/config"
	"github.com/itohio/coldmon/pkg/display"
	"github.com/itohio/coldmon/pkg/monitor"
	"github.com/itohio/coldmon/pkg/notify"
	"github.com/itohio/coldmon/pkg/reading"
	"github.com/itohio/coldmon/pkg/rms"
)

func main() {
	var (
		portFlag     = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag     = flag.Bool("mock", false, "Use mocked ADC bridge instead of serial port")
		logLevelFlag = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
		listFlag     = flag.Bool("list", false, "List serial ports and exit")
		versionFlag  = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *versionFlag {
		fmt.Printf("coldmon %s (built %s)\n", version.Version, version.BuildDate)
		return
	}

	if *listFlag {
		ports, err := adc.Ports()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p.Name)
		}
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *logLevelFlag != "" {
		cfg.Log.Level = *logLevelFlag
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *mockFlag, logger); err != nil {
		logger.Error("exiting", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, useMock bool, logger *slog.Logger) error {
	store := calibration.NewFileStore(cfg.Device.CalibrationFile, logger)
	settings, err := store.Load()
	if err != nil {
		return err
	}

	var device adc.Device
	if useMock {
		device = adc.NewMock(&cfg.Mock, &cfg.ADC, settings.VoltageCalibration, settings.BatteryCalibration)
		logger.Info("using mocked ADC bridge")
	} else {
		device = adc.New(cfg.Serial.Port, cfg.Serial.BaudRate, adc.DefaultBufferSize, cfg.Estimator.ReadTimeout, logger)
	}
	if err := device.Connect(); err != nil {
		return fmt.Errorf("failed to connect to ADC bridge: %w", err)
	}
	defer device.Close()

	shared := &reading.Shared{}
	estimator := rms.New(device, shared, rms.ParamsFromConfig(cfg), rms.Calibration{
		Voltage: settings.VoltageCalibration,
		Battery: settings.BatteryCalibration,
		Outage:  settings.VoltageOutage,
	}, logger)

	// Commands reach the monitor through the bus, and the monitor publishes
	// through the bus; mon is assigned before the bus starts.
	var mon *monitor.Monitor
	bus := notify.NewMQTT(cfg.MQTT, func(cmd notify.Command) { mon.HandleCommand(cmd) }, logger)

	mon = monitor.New(monitor.OptionsFromConfig(cfg), monitor.Deps{
		Readings:    shared,
		Environment: device,
		Store:       store,
		Calibrator:  estimator,
		Publisher:   bus,
		Display:     newDisplay(cfg.Display, logger),
	}, logger)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		estimator.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		adc.KeepConnected(ctx, device, cfg.Serial.ReconnectInterval, logger)
	}()
	go func() {
		defer wg.Done()
		if err := bus.Run(ctx); err != nil {
			logger.Error("notifier stopped", "err", err)
		}
	}()

	logger.Info("coldmon started", "version", version.Version, "device", cfg.Device.Name, "client_id", bus.ClientID())
	err = mon.Run(ctx)
	wg.Wait()
	return err
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}

	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	case "plain":
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
	}))
}

func newDisplay(cfg config.DisplayConfig, logger *slog.Logger) display.Display {
	if cfg.Mode == "term" {
		return display.NewTerm(os.Stdout, cfg.Clear)
	}
	return display.NewLog(logger)
}
