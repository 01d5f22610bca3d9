package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/gatepass/internal/ui"
	"github.com/spf13/cobra"
)

var rolesCmd = &cobra.Command{
	Use:     "roles",
	Short:   "Manage roles and their permissions",
	GroupID: "admin",
}

var rolesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List roles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		roles, err := gateClient.Roles(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(roles)
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ROLE\tSOURCE\tPERMISSIONS")
		for _, r := range roles {
			source := "custom"
			if r.Builtin {
				source = ui.RenderMuted("builtin")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, source, strings.Join(r.Permissions, ", "))
		}
		w.Flush()
		return nil
	},
}

var rolesSetCmd = &cobra.Command{
	Use:   "set <name> <permission>...",
	Short: "Create or replace a custom role",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := gateClient.SetRole(cmd.Context(), args[0], args[1:])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(role)
			return nil
		}
		fmt.Printf("Role %s: %s\n", role.Name, strings.Join(role.Permissions, ", "))
		return nil
	},
}

var rolesDeleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Aliases: []string{"rm"},
	Short:   "Delete a custom role",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := gateClient.DeleteRole(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted role %q\n", args[0])
		return nil
	},
}

var permissionsCmd = &cobra.Command{
	Use:     "permissions",
	Short:   "List every permission key by screen",
	GroupID: "admin",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		perms, err := gateClient.Permissions(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(perms)
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tSCREEN\tTITLE")
		for _, p := range perms {
			fmt.Fprintf(w, "%s\t%s\t%s\n", p.Key, p.Screen, p.Title)
		}
		w.Flush()
		return nil
	},
}

var materialsCmd = &cobra.Command{
	Use:     "materials [query]",
	Short:   "Search the material master of the session's plant",
	GroupID: "admin",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := ""
		if len(args) == 1 {
			q = args[0]
		}
		limit, _ := cmd.Flags().GetInt("limit")
		mats, err := gateClient.Materials(cmd.Context(), q, limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(mats)
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tDESCRIPTION\tUNIT")
		for _, m := range mats {
			fmt.Fprintf(w, "%s\t%s\t%s\n", m.Code, m.Description, m.Unit)
		}
		w.Flush()
		return nil
	},
}

func init() {
	materialsCmd.Flags().Int("limit", 20, "maximum results")

	rolesCmd.AddCommand(rolesListCmd)
	rolesCmd.AddCommand(rolesSetCmd)
	rolesCmd.AddCommand(rolesDeleteCmd)
}
