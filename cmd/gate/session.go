package main

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/alfredjeanlab/gatepass/internal/client"
	"github.com/spf13/cobra"
)

func defaultUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

var loginCmd = &cobra.Command{
	Use:     "login",
	Short:   "Start a session for a role at a plant",
	GroupID: "session",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		userName, _ := cmd.Flags().GetString("user")
		role, _ := cmd.Flags().GetString("role")
		plant, _ := cmd.Flags().GetString("plant")
		natsURL, _ := cmd.Flags().GetString("nats-url")

		resp, err := gateClient.Login(cmd.Context(), userName, role, plant)
		if err != nil {
			return err
		}

		p := profile
		p.URL = httpURL
		p.Token = resp.Token
		p.User, p.Role, p.Plant = resp.Session.User, resp.Session.Role, resp.Session.Plant
		if natsURL != "" {
			p.NATSURL = natsURL
		}
		if err := saveSessionProfile(p); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}

		if jsonOutput {
			printJSON(resp)
			return nil
		}
		fmt.Printf("Logged in as %s (%s) at plant %s\n", resp.Session.User, resp.Session.Role, resp.Session.Plant)
		if len(resp.Screens) > 0 {
			fmt.Printf("Screens: %s\n", strings.Join(resp.Screens, ", "))
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	Short:   "End the current session and discard its open draft",
	GroupID: "session",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := gateClient.Logout(cmd.Context())
		var apiErr *client.APIError
		if err != nil && !(errors.As(err, &apiErr) && apiErr.StatusCode == 401) {
			return err
		}
		if err := clearSessionToken(); err != nil {
			return fmt.Errorf("clearing session: %w", err)
		}
		fmt.Println("Logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	Short:   "Show the current session",
	GroupID: "session",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := gateClient.CurrentSession(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(sess)
			return nil
		}
		fmt.Printf("User:     %s\n", sess.User)
		fmt.Printf("Role:     %s\n", sess.Role)
		fmt.Printf("Plant:    %s\n", sess.Plant)
		fmt.Printf("Since:    %s\n", formatTime(&sess.StartedAt))
		fmt.Printf("Expires:  %s\n", formatTime(&sess.ExpiresAt))
		return nil
	},
}

var screensCmd = &cobra.Command{
	Use:     "screens",
	Short:   "List the screens the session's role may open",
	GroupID: "session",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		screens, err := gateClient.Screens(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(screens)
			return nil
		}
		for _, s := range screens {
			fmt.Println(s)
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().String("user", defaultUser(), "operator name")
	loginCmd.Flags().String("role", "", "role to act in (required)")
	loginCmd.Flags().String("plant", os.Getenv("GATE_PLANT"), "plant code (required)")
	loginCmd.Flags().String("nats-url", "", "NATS URL remembered for `gate watch --nats`")
	_ = loginCmd.MarkFlagRequired("role")
}
