package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var pingHost string

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the module answers AT commands",
	Long: `Run the basic liveness exchange against the module and print its
firmware version. With --host the module additionally pings a network
target, which requires an existing WiFi association.`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().StringVar(&pingHost, "host", "", "Network host for the module to ping")
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	device, err := openDevice(ctx)
	if err != nil {
		return err
	}
	defer device.Close()

	if err := device.Test(ctx); err != nil {
		return fmt.Errorf("module did not answer: %w", err)
	}
	fmt.Println("Module is responding")

	version, err := device.Version(ctx)
	if err != nil {
		return fmt.Errorf("version query failed: %w", err)
	}
	fmt.Printf("Firmware:\n%s\n", version)

	if pingHost != "" {
		if err := device.Ping(ctx, pingHost); err != nil {
			return fmt.Errorf("ping %s failed: %w", pingHost, err)
		}
		fmt.Printf("Ping to %s succeeded\n", pingHost)
	}
	return nil
}
