package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	apiURL   string
	relayURL string
	token    string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "groomctl",
		Short:         "Groombook operator and developer tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.apiURL, "api", getenv("GROOMBOOK_API_URL", "http://localhost:8083"), "appointment API base url")
	cmd.PersistentFlags().StringVar(&g.relayURL, "relay", getenv("GROOMBOOK_RELAY_URL", "ws://localhost:8090/ws"), "realtime relay websocket url")
	cmd.PersistentFlags().StringVar(&g.token, "token", os.Getenv("GROOMBOOK_TOKEN"), "bearer token")

	cmd.AddCommand(
		newTokenCmd(),
		newTransitionCmd(g),
		newWatchCmd(g),
		newDashboardCmd(g),
		newStripeCmd(g),
	)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
