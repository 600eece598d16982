package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"i4.energy/across/mqttgw/mqtt"
)

var (
	monitorSSID     string
	monitorPass     string
	monitorBroker   string
	monitorPort     int
	monitorClientID string
	monitorTopic    string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch asynchronous traffic from the module",
	Long: `Service the module's receive path and print everything asynchronous it
produces. With --broker the command additionally connects the module's
broker client and subscribes to --topic, printing pushed messages until
interrupted.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorSSID, "ssid", "", "WiFi network to join first")
	monitorCmd.Flags().StringVar(&monitorPass, "pass", "", "WiFi passphrase")
	monitorCmd.Flags().StringVar(&monitorBroker, "broker", "", "MQTT broker host to connect to")
	monitorCmd.Flags().IntVar(&monitorPort, "broker-port", 1883, "MQTT broker port")
	monitorCmd.Flags().StringVar(&monitorClientID, "client-id", "espctl", "MQTT client identifier")
	monitorCmd.Flags().StringVar(&monitorTopic, "topic", "#", "Topic to subscribe to")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	device, err := openDevice(ctx)
	if err != nil {
		return err
	}
	defer device.Close()

	device.SetOnConnected(func() { fmt.Println("[wifi] connected") })
	device.SetOnDisconnected(func() { fmt.Println("[wifi] disconnected") })
	device.SetOnData(func(linkID int, payload []byte) {
		fmt.Printf("[data] link=%d %q\n", linkID, payload)
	})

	if monitorSSID != "" {
		if err := device.Associate(ctx, monitorSSID, monitorPass); err != nil {
			return fmt.Errorf("join %s: %w", monitorSSID, err)
		}
		fmt.Printf("[wifi] joined %s, ip=%s\n", monitorSSID, device.StationIP())
	}

	var session *mqtt.Session
	if monitorBroker != "" {
		session, err = mqtt.NewSession(device, newLogger())
		if err != nil {
			return err
		}
		session.SetOnMessage(func(msg mqtt.Message) {
			fmt.Printf("[msg] %s %q\n", msg.Topic, msg.Payload)
		})
		session.SetOnDisconnected(func() { fmt.Println("[broker] disconnected") })

		broker := mqtt.Broker{Host: monitorBroker, Port: monitorPort, AutoReconnect: true}
		creds := mqtt.Credentials{ClientID: monitorClientID}
		if err := session.ConnectToBroker(ctx, broker, creds); err != nil {
			return err
		}
		fmt.Printf("[broker] connected to %s:%d\n", monitorBroker, monitorPort)

		if err := session.Subscribe(ctx, monitorTopic, mqtt.QoSAtMostOnce); err != nil {
			return fmt.Errorf("subscribe %s: %w", monitorTopic, err)
		}
		fmt.Printf("[broker] subscribed to %s\n", monitorTopic)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	fmt.Println("Monitoring, press Ctrl-C to stop")
	for {
		select {
		case <-sigChan:
			return nil
		case <-ticker.C:
			if session != nil {
				session.Pump()
			} else {
				device.Pump()
			}
		}
	}
}
