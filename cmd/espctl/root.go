package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"i4.energy/across/mqttgw/esp"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL string

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "espctl",
	Short: "WiFi module diagnostic tool",
	Long: `espctl talks AT commands to an ESP WiFi module over a serial port or a
WebSocket serial bridge.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openDevice dials whichever transport the connection flags select and
// runs the module's initialization sequence.
func openDevice(ctx context.Context) (*esp.Device, error) {
	var dialer esp.Dialer
	switch {
	case wsURL != "":
		dialer = esp.WSDialer{URL: wsURL}
	case portName != "":
		dialer = esp.SerialDialer{PortName: portName, BaudRate: baudRate}
	default:
		return nil, fmt.Errorf("either --port or --url is required")
	}

	config, err := esp.NewConfigBuilder().
		WithDialer(dialer).
		WithLogger(newLogger()).
		Build()
	if err != nil {
		return nil, err
	}
	return esp.New(ctx, config)
}
