package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"i4.energy/across/mqttgw/esp"
	"i4.energy/across/mqttgw/mqtt"
	"i4.energy/across/mqttgw/sensor"
)

func main() {
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the WiFi module")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("wifi-ssid", "", "WiFi network to associate with")
	flag.String("wifi-pass", "", "WiFi network passphrase")
	flag.String("broker-host", "", "MQTT broker host")
	flag.Int("broker-port", 1883, "MQTT broker port")
	flag.String("client-id", "esp-gateway", "MQTT client identifier")
	flag.String("publish-topic", "stm32/sensor/data", "Topic for periodic sensor readings")
	flag.String("control-topic", "stm32/control", "Topic to subscribe to for commands")
	flag.Duration("publish-interval", 30*time.Second, "Delay between sensor publishes")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(flag.CommandLine))
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

	deviceConfig, err := esp.NewConfigBuilder().
		WithLogger(logger.With("component", "esp")).
		WithDialer(esp.SerialDialer{
			PortName: config.SerialPort,
			BaudRate: config.BaudRate,
		}).
		Build()
	if err != nil {
		logger.Error("Failed to create device config", "error", err)
		os.Exit(1)
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer startCancel()

	device, err := esp.New(startCtx, deviceConfig)
	if err != nil {
		logger.Error("Failed to initialize device", "error", err)
		os.Exit(1)
	}

	if config.WiFiSSID != "" {
		if err := device.Associate(startCtx, config.WiFiSSID, config.WiFiPass); err != nil {
			logger.Error("Failed to join WiFi network", "error", err, "ssid", config.WiFiSSID)
			os.Exit(1)
		}
		logger.Info("Joined WiFi network", "ssid", config.WiFiSSID, "ip", device.StationIP())
	}

	session, err := mqtt.NewSession(device, logger)
	if err != nil {
		logger.Error("Failed to create session", "error", err)
		os.Exit(1)
	}

	if config.BrokerHost != "" {
		broker := mqtt.Broker{
			Host:          config.BrokerHost,
			Port:          config.BrokerPort,
			AutoReconnect: true,
		}
		creds := mqtt.Credentials{ClientID: config.ClientID}
		if err := session.ConnectToBroker(startCtx, broker, creds); err != nil {
			logger.Error("Failed to connect to broker", "error", err)
			os.Exit(1)
		}
		if config.ControlTopic != "" {
			if err := session.Subscribe(startCtx, config.ControlTopic, mqtt.QoSAtLeastOnce); err != nil {
				logger.Error("Failed to subscribe to control topic", "error", err)
				os.Exit(1)
			}
		}
	}

	gateway := NewGateway(logger.With("component", "gateway"), session, sensor.NewSimulated(0), config)

	logger.Info("Starting MQTT gateway", "broker", config.BrokerHost)

	runCtx, runCancel := context.WithCancel(context.Background())
	go gateway.Run(runCtx)

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger:  logger.With("component", "server"),
			Gateway: gateway,
		},
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig)

	runCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if session.IsConnected() {
		logger.Info("Disconnecting from broker")
		if err := session.Disconnect(shutdownCtx); err != nil {
			logger.Error("Failed to disconnect from broker", "error", err)
		}
	}

	logger.Info("Closing device connection")
	if err := device.Close(); err != nil {
		logger.Error("Failed to close device", "error", err)
	}

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
		os.Exit(1)
	}
}
