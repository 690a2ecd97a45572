// Command groomctl drives a groombook deployment from the terminal: mint dev
// tokens, run transitions, follow the relay and simulate Stripe webhooks.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
