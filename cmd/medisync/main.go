// Command medisync is the offline-first sync client for the medication
// tracker: it captures dose actions while offline, keeps them in a
// durable local queue, and replays them against the remote API when
// connectivity returns.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
