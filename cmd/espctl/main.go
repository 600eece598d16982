// espctl is a diagnostic CLI for talking to the WiFi module directly,
// without running the full gateway daemon.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
