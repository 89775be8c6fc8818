package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.bug.st/serial"

	"i4.energy/across/cellgw/modem"
)

func main() {
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the modem")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("sim-pin", "", "SIM card PIN code (if required)")
	flag.String("apn", "", "Access point name for the data context")
	flag.String("mqtt-broker", "", "MQTT broker URL for telemetry (empty disables)")
	configFile := flag.String("config", "", "Path to a YAML configuration file")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configFile), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	modemConfig, err := modem.NewConfigBuilder().
		WithATTimeout(5 * time.Second).
		WithInitTimeout(30 * time.Second).
		WithSimPIN(config.SimPIN).
		WithLogger(logger.With("component", "modem")).
		WithDialer(modem.SerialDialer{
			PortName: config.SerialPort,
			Mode: &serial.Mode{
				BaudRate: config.BaudRate,
				Parity:   serial.NoParity,
				DataBits: 8,
				StopBits: serial.OneStopBit,
			},
		}).
		Build()
	if err != nil {
		logger.Error("Failed to create modem config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m, err := modem.New(ctx, modemConfig)
	if err != nil {
		logger.Error("Failed to create modem", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting cellular gateway", "serial_port", config.SerialPort)

	// The event loop owns all transport I/O; every operation below runs
	// through it.
	loopDone := make(chan error, 1)
	go func() {
		loopDone <- m.Loop(ctx)
	}()

	// Drain unsolicited events the application does not act on.
	go func() {
		for ev := range m.URC() {
			logger.Debug("Modem event", "kind", ev.Kind.String(), "line", ev.Line)
		}
	}()

	if config.APN != "" {
		if err := bringUpData(ctx, logger, m, config); err != nil {
			logger.Error("Failed to bring up data context", "error", err)
			os.Exit(1)
		}
	}

	StartTelemetry(ctx, logger.With("component", "telemetry"), m, config)

	httpServer := &http.Server{
		Addr:    config.BindAddress,
		Handler: NewServer(logger.With("component", "server"), m, config.ContextID),
	}

	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal or loop failure
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-loopDone:
		logger.Error("Modem loop terminated", "error", err)
	}
	cancel()

	logger.Info("Closing modem connection")
	if err := m.Close(); err != nil {
		logger.Error("Failed to close modem", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
		os.Exit(1)
	}
}

// bringUpData configures and activates the PDN context the gateway uses for
// packet traffic.
func bringUpData(ctx context.Context, logger *slog.Logger, m *modem.Modem, config *Config) error {
	if err := m.ConfigurePDN(ctx, config.ContextID, modem.APNConfig{
		APN:      config.APN,
		Username: config.APNUser,
		Password: config.APNPassword,
	}); err != nil {
		return err
	}

	if err := m.ActivatePDN(ctx, config.ContextID); err != nil {
		return err
	}

	contexts, err := m.PDNStatus(ctx)
	if err != nil {
		return err
	}
	for _, pc := range contexts {
		if pc.ContextID == config.ContextID && pc.Active {
			logger.Info("Data context active", "context", pc.ContextID, "addr", pc.Addr)
			return nil
		}
	}
	logger.Warn("Data context not reported active yet", "context", config.ContextID)
	return nil
}
