package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"i4.energy/across/mqttgw/mqtt"
)

var (
	publishSSID     string
	publishPass     string
	publishBroker   string
	publishPort     int
	publishClientID string
	publishQoS      int
	publishRetain   bool
)

var publishCmd = &cobra.Command{
	Use:   "publish <topic> <payload>",
	Short: "Publish a single message through the module's broker client",
	Args:  cobra.ExactArgs(2),
	RunE:  runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().StringVar(&publishSSID, "ssid", "", "WiFi network to join first")
	publishCmd.Flags().StringVar(&publishPass, "pass", "", "WiFi passphrase")
	publishCmd.Flags().StringVar(&publishBroker, "broker", "", "MQTT broker host (required)")
	publishCmd.Flags().IntVar(&publishPort, "broker-port", 1883, "MQTT broker port")
	publishCmd.Flags().StringVar(&publishClientID, "client-id", "espctl", "MQTT client identifier")
	publishCmd.Flags().IntVar(&publishQoS, "qos", 0, "Quality of service (0-2)")
	publishCmd.Flags().BoolVar(&publishRetain, "retain", false, "Set the retain flag")
	publishCmd.MarkFlagRequired("broker")
}

func runPublish(cmd *cobra.Command, args []string) error {
	topic, payload := args[0], args[1]

	ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
	defer cancel()

	device, err := openDevice(ctx)
	if err != nil {
		return err
	}
	defer device.Close()

	if publishSSID != "" {
		if err := device.Associate(ctx, publishSSID, publishPass); err != nil {
			return fmt.Errorf("join %s: %w", publishSSID, err)
		}
	}

	session, err := mqtt.NewSession(device, newLogger())
	if err != nil {
		return err
	}
	broker := mqtt.Broker{Host: publishBroker, Port: publishPort}
	creds := mqtt.Credentials{ClientID: publishClientID}
	if err := session.ConnectToBroker(ctx, broker, creds); err != nil {
		return err
	}
	defer session.Disconnect(context.Background())

	if err := session.PublishString(ctx, topic, payload, mqtt.QoS(publishQoS), publishRetain); err != nil {
		return err
	}
	fmt.Printf("Published %d bytes to %s\n", len(payload), topic)
	return nil
}
