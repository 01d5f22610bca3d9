package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alfredjeanlab/gatepass/internal/client"
	"github.com/alfredjeanlab/gatepass/internal/server"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the gate server",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		grpcAddr, _ := cmd.Flags().GetString("grpc")

		status, err := gateClient.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}
		out := map[string]string{"http": status}

		if grpcAddr != "" {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			gs, err := client.CheckGRPC(ctx, grpcAddr, server.ServiceName)
			if err != nil {
				return fmt.Errorf("checking gRPC health: %w", err)
			}
			out["grpc"] = gs
		}

		if jsonOutput {
			printJSON(out)
		} else {
			fmt.Printf("HTTP: %s\n", out["http"])
			if g, ok := out["grpc"]; ok {
				fmt.Printf("gRPC: %s\n", g)
			}
		}

		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		if g, ok := out["grpc"]; ok && g != "SERVING" {
			return fmt.Errorf("gRPC unhealthy: %s", g)
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().String("grpc", "", "also check the gRPC health service at this address")
}
