package main

import (
	"fmt"
	"os"

	"github.com/alfredjeanlab/gatepass/internal/client"
	"github.com/spf13/cobra"
)

var (
	httpURL    string
	jsonOutput bool

	gateClient client.GateClient
	profile    SessionProfile
)

func defaultHTTPURL() string {
	if s := os.Getenv("GATE_HTTP_URL"); s != "" {
		return s
	}
	if p, err := loadSessionProfile(); err == nil && p.URL != "" {
		return p.URL
	}
	return "http://localhost:8080"
}

var rootCmd = &cobra.Command{
	Use:           "gate <command>",
	Short:         "Gate entry documents: inward, outward, exit and cancellation",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadSessionProfile()
		if err != nil {
			return err
		}
		profile = p
		token := p.Token
		if p.URL != "" && p.URL != httpURL {
			// A session belongs to the server that issued it.
			token = ""
		}
		gateClient = client.NewHTTPClient(httpURL, token)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if gateClient != nil {
			gateClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "gate server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "session", Title: "Session:"},
		&cobra.Group{ID: "entry", Title: "Gate entries:"},
		&cobra.Group{ID: "register", Title: "Register:"},
		&cobra.Group{ID: "admin", Title: "Administration:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Session
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(screensCmd)

	// Gate entries
	rootCmd.AddCommand(draftCmd)
	rootCmd.AddCommand(changeCmd)
	rootCmd.AddCommand(reuseCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(exitCmd)

	// Register
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(printCmd)
	rootCmd.AddCommand(watchCmd)

	// Administration
	rootCmd.AddCommand(rolesCmd)
	rootCmd.AddCommand(permissionsCmd)
	rootCmd.AddCommand(materialsCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", describeError(err))
		os.Exit(1)
	}
}
