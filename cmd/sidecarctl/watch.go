package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bazelment/agent-sidecar/render"
	"github.com/bazelment/agent-sidecar/sidecar"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		sessionID string
		send      []string
		turns     bool
		maxTurns  int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow everything that happens on a session",
		Long: `watch attaches to a session and renders its events until the session
closes or the command is interrupted. With --turns it prints one line per
finished turn instead of every event.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var opts []sidecar.Option
			if !turns {
				opts = append(opts, sidecar.WithEventsFromAttach())
			}
			s, err := a.attach(ctx, sessionID, opts...)
			if err != nil {
				return err
			}
			defer s.Close()

			w, err := a.jsonWriter()
			if err != nil {
				return err
			}

			// Subscribe before sending so nothing is missed.
			var seen int
			if turns {
				ch := s.Turns(ctx)
				if err := a.sendAll(cmd, s, send); err != nil {
					return err
				}
				for t := range ch {
					if a.jsonOut {
						if err := w.Write(newRunOutput(s.ID(), &sidecar.RunResult{Turn: t})); err != nil {
							return err
						}
					} else {
						state := "ended"
						if !t.Ended {
							state = "open"
						}
						fmt.Fprintf(a.out, "turn %s (%s, %d events): %s\n", t.TurnID, state, len(t.Events), t.Text())
					}
					seen++
					if maxTurns > 0 && seen >= maxTurns {
						return nil
					}
				}
				return s.Err()
			}

			events := s.Events()
			if err := a.sendAll(cmd, s, send); err != nil {
				return err
			}
			printer := render.NewPrinter(a.renderer())
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev, ok := <-events:
					if !ok {
						return s.Err()
					}
					if a.jsonOut {
						if err := w.Write(ev); err != nil {
							return err
						}
					} else {
						printer.Print(ev)
					}
					if ev.IsTurnEnd() {
						seen++
						if maxTurns > 0 && seen >= maxTurns {
							return nil
						}
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session to attach (default: create one)")
	cmd.Flags().StringArrayVar(&send, "send", nil, "Prompt to send after attaching (repeatable)")
	cmd.Flags().BoolVar(&turns, "turns", false, "Print one line per finished turn")
	cmd.Flags().IntVar(&maxTurns, "max-turns", 0, "Exit after this many turns end (0: run until closed)")
	return cmd
}

func (a *app) sendAll(cmd *cobra.Command, s *attached, prompts []string) error {
	for _, p := range prompts {
		requestID, err := s.Query(cmd.Context(), p)
		if err != nil {
			return err
		}
		a.logger.Debug("sent query", "request_id", requestID)
	}
	return nil
}
