package main

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string
	// SerialPort is the path to the module's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string
	// BaudRate is the baud rate for serial communication with the module (e.g. 115200)
	BaudRate int
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string
	// WiFiSSID is the network the module should associate with
	WiFiSSID string
	// WiFiPass is the network passphrase
	WiFiPass string
	// BrokerHost is the MQTT broker hostname or address
	BrokerHost string
	// BrokerPort is the MQTT broker port (e.g. 1883)
	BrokerPort int
	// ClientID identifies this gateway towards the broker
	ClientID string
	// PublishTopic is where periodic sensor readings go
	PublishTopic string
	// ControlTopic is the topic the gateway subscribes to for commands
	ControlTopic string
	// PublishInterval is the delay between periodic sensor publishes
	PublishInterval time.Duration
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.BrokerPort = 1883
		c.ClientID = "esp-gateway"
		c.PublishTopic = "stm32/sensor/data"
		c.ControlTopic = "stm32/control"
		c.PublishInterval = 30 * time.Second
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if serial := os.Getenv("SERIAL_PORT"); serial != "" {
			c.SerialPort = serial
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if ssid := os.Getenv("WIFI_SSID"); ssid != "" {
			c.WiFiSSID = ssid
		}

		if pass := os.Getenv("WIFI_PASS"); pass != "" {
			c.WiFiPass = pass
		}

		if host := os.Getenv("BROKER_HOST"); host != "" {
			c.BrokerHost = host
		}

		if port := os.Getenv("BROKER_PORT"); port != "" {
			if p, err := strconv.Atoi(port); err == nil {
				c.BrokerPort = p
			}
		}

		if id := os.Getenv("CLIENT_ID"); id != "" {
			c.ClientID = id
		}

		if topic := os.Getenv("PUBLISH_TOPIC"); topic != "" {
			c.PublishTopic = topic
		}

		if topic := os.Getenv("CONTROL_TOPIC"); topic != "" {
			c.ControlTopic = topic
		}

		if interval := os.Getenv("PUBLISH_INTERVAL"); interval != "" {
			if d, err := time.ParseDuration(interval); err == nil {
				c.PublishInterval = d
			}
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "log-level":
				c.LogLevel = f.Value.String()
			case "wifi-ssid":
				c.WiFiSSID = f.Value.String()
			case "wifi-pass":
				c.WiFiPass = f.Value.String()
			case "broker-host":
				c.BrokerHost = f.Value.String()
			case "broker-port":
				if p, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BrokerPort = p
				}
			case "client-id":
				c.ClientID = f.Value.String()
			case "publish-topic":
				c.PublishTopic = f.Value.String()
			case "control-topic":
				c.ControlTopic = f.Value.String()
			case "publish-interval":
				if d, err := time.ParseDuration(f.Value.String()); err == nil {
					c.PublishInterval = d
				}
			}

		})
		return nil
	}

}
