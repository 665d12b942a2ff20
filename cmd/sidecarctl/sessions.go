package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bazelment/agent-sidecar/protocol"
)

func newSessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Manage sidecar sessions",
	}
	cmd.AddCommand(
		newSessionsListCmd(a),
		newSessionsCreateCmd(a),
		newSessionsGetCmd(a),
		newSessionsDeleteCmd(a),
		newSessionsForkCmd(a),
		newSessionsRewindCmd(a),
	)
	return cmd
}

// printJSON writes v indented, or through the --jq filter when one is set.
func (a *app) printJSON(v any) error {
	if a.jq != "" {
		w, err := a.jsonWriter()
		if err != nil {
			return err
		}
		return w.Write(v)
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printSessions(sessions []protocol.SessionSummary) error {
	if a.jsonOut {
		return a.printJSON(sessions)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(a.out, "No sessions.")
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSTATE\tMODEL\tATTACHED\tCREATED")
	for _, s := range sessions {
		created := "-"
		if !s.CreatedAt.IsZero() {
			created = s.CreatedAt.Local().Format(time.DateTime)
		}
		model := s.Model
		if model == "" {
			model = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", s.SessionID, s.State, model, s.Attached, created)
	}
	return w.Flush()
}

func newSessionsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.dial()
			if err != nil {
				return err
			}
			defer client.Close()
			sessions, err := client.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			return a.printSessions(sessions)
		},
	}
}

func newSessionsCreateCmd(a *app) *cobra.Command {
	var cfg protocol.SessionConfig
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.Model == "" {
				cfg.Model = a.cfg.Model
			}
			if cfg.PermissionMode == "" {
				cfg.PermissionMode = a.cfg.PermissionMode
			}
			client, err := a.dial()
			if err != nil {
				return err
			}
			defer client.Close()
			s, err := client.CreateSession(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(s)
			}
			fmt.Fprintln(a.out, s.SessionID)
			return nil
		},
	}
	addSessionConfigFlags(cmd, &cfg)
	return cmd
}

func addSessionConfigFlags(cmd *cobra.Command, cfg *protocol.SessionConfig) {
	f := cmd.Flags()
	f.StringVar(&cfg.Model, "model", "", "Model for the session")
	f.StringVar(&cfg.PermissionMode, "permission-mode", "", "Agent permission mode")
	f.StringVar(&cfg.SystemPrompt, "system-prompt", "", "System prompt")
	f.StringVar(&cfg.Cwd, "cwd", "", "Working directory of the agent")
	f.Uint32Var(&cfg.MaxTurns, "max-turns", 0, "Maximum agent turns per query")
	f.BoolVar(&cfg.PartialMessages, "partial", false, "Stream partial messages")
}

func newSessionsGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get SESSION",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.dial()
			if err != nil {
				return err
			}
			defer client.Close()
			s, err := client.GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printSessions([]protocol.SessionSummary{*s})
		},
	}
}

func newSessionsDeleteCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete SESSION",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.dial()
			if err != nil {
				return err
			}
			defer client.Close()
			deleted, err := client.DeleteSession(cmd.Context(), args[0], force)
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("session %s was not deleted", args[0])
			}
			fmt.Fprintf(a.out, "deleted %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Delete even if a client is attached")
	return cmd
}

func newSessionsForkCmd(a *app) *cobra.Command {
	var cfg protocol.SessionConfig
	cmd := &cobra.Command{
		Use:   "fork SESSION",
		Short: "Fork a session into a new one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.dial()
			if err != nil {
				return err
			}
			defer client.Close()
			s, err := client.ForkSession(cmd.Context(), args[0], cfg)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(s)
			}
			fmt.Fprintln(a.out, s.SessionID)
			return nil
		},
	}
	addSessionConfigFlags(cmd, &cfg)
	return cmd
}

func newSessionsRewindCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rewind SESSION CHECKPOINT",
		Short: "Restore files to a user-message checkpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.dial()
			if err != nil {
				return err
			}
			defer client.Close()
			resp, err := client.RewindFiles(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(resp)
			}
			if !resp.Rewound {
				return fmt.Errorf("rewind failed: %s", resp.Message)
			}
			fmt.Fprintln(a.out, resp.Message)
			return nil
		},
	}
}
