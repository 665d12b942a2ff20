package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the sidecar and list its capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.dial()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx := cmd.Context()
			health, err := client.HealthCheck(ctx)
			if err != nil {
				return err
			}
			info, err := client.GetInfo(ctx)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(map[string]any{"health": health, "info": info})
			}
			fmt.Fprintf(a.out, "status:       %s\n", health.Status)
			fmt.Fprintf(a.out, "sidecar:      %s\n", orDash(info.SidecarVersion))
			fmt.Fprintf(a.out, "protocol:     %s\n", orDash(info.ProtocolVersion))
			fmt.Fprintf(a.out, "agent:        %s\n", orDash(info.AgentVersion))
			fmt.Fprintf(a.out, "capabilities: %s\n", orDash(strings.Join(info.Capabilities, ", ")))
			return nil
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
