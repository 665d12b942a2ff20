package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bazelment/agent-sidecar/render"
	"github.com/bazelment/agent-sidecar/sidecar"
)

// errTurnFailed is returned when a turn ends with an error result.
var errTurnFailed = errors.New("turn failed")

// runOutput is the JSON form of a finished query.
type runOutput struct {
	SessionID  string  `json:"session_id"`
	RequestID  string  `json:"request_id"`
	TurnID     string  `json:"turn_id"`
	Text       string  `json:"text"`
	Error      string  `json:"error,omitempty"`
	CostUSD    float64 `json:"cost_usd,omitempty"`
	DurationMs uint64  `json:"duration_ms,omitempty"`
	TurnIndex  uint32  `json:"turn_index,omitempty"`
	Ended      bool    `json:"ended"`
	Failed     bool    `json:"failed"`
}

func newRunOutput(sessionID string, res *sidecar.RunResult) runOutput {
	out := runOutput{SessionID: sessionID, Text: res.Text(), Failed: res.Failed()}
	if res != nil && res.Turn != nil {
		out.RequestID = res.Turn.RequestID
		out.TurnID = res.Turn.TurnID
		out.TurnIndex = res.Turn.TurnIndex
		out.Ended = res.Turn.Ended
		if len(res.Turn.Errors) > 0 {
			out.Error = res.Turn.Errors[0].Error()
		}
	}
	if r := res.Result(); r != nil {
		out.CostUSD = r.TotalCostUSD
		out.DurationMs = r.DurationMs
		if r.IsError && out.Error == "" {
			out.Error = r.Subtype
		}
	}
	return out
}

func (a *app) printResult(sessionID string, res *sidecar.RunResult) error {
	if a.jsonOut {
		w, err := a.jsonWriter()
		if err != nil {
			return err
		}
		return w.Write(newRunOutput(sessionID, res))
	}
	fmt.Fprintln(a.out, res.Text())
	return nil
}

func newRunCmd(a *app) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Send a prompt and print the reply when the turn ends",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.attach(ctx, sessionID)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.Run(ctx, strings.Join(args, " "))
			if err != nil && res == nil {
				return err
			}
			if perr := a.printResult(s.ID(), res); perr != nil {
				return perr
			}
			if err != nil {
				return err
			}
			if res.Failed() {
				return errTurnFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session to attach (default: create one)")
	return cmd
}

func newStreamCmd(a *app) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "stream [prompt]",
		Short: "Send a prompt and render the turn as it happens",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.attach(ctx, sessionID)
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := s.Stream(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			defer st.Close()

			printer := render.NewPrinter(a.renderer())
			w, err := a.jsonWriter()
			if err != nil {
				return err
			}
			for ev := range st.Events() {
				if a.jsonOut {
					if err := w.Write(ev); err != nil {
						return err
					}
					continue
				}
				printer.Print(ev)
			}
			res, err := st.Result(ctx)
			if err != nil {
				return err
			}
			if res.Failed() {
				return errTurnFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session to attach (default: create one)")
	return cmd
}

func newBatchCmd(a *app) *cobra.Command {
	var (
		sessionID string
		file      string
		parallel  int
		qps       float64
	)
	cmd := &cobra.Command{
		Use:   "batch [prompt...]",
		Short: "Run several prompts concurrently on one session",
		Long: `Each argument (or each non-empty line of --file) is sent as its own
query. Replies are printed in input order once all turns have ended.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompts := args
			if file != "" {
				lines, err := readPrompts(file)
				if err != nil {
					return err
				}
				prompts = append(prompts, lines...)
			}
			if len(prompts) == 0 {
				return fmt.Errorf("no prompts given")
			}
			if parallel < 1 {
				return fmt.Errorf("--parallel must be at least 1")
			}
			if qps < 0 {
				return fmt.Errorf("--qps must not be negative")
			}
			limit := rate.Inf
			if qps > 0 {
				limit = rate.Limit(qps)
			}
			limiter := rate.NewLimiter(limit, 1)

			ctx := cmd.Context()
			s, err := a.attach(ctx, sessionID)
			if err != nil {
				return err
			}
			defer s.Close()

			results := make([]*sidecar.RunResult, len(prompts))
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(parallel)
			for i, prompt := range prompts {
				g.Go(func() error {
					if err := limiter.Wait(gctx); err != nil {
						return err
					}
					res, err := s.Run(gctx, prompt)
					if err != nil {
						return fmt.Errorf("prompt %d: %w", i+1, err)
					}
					results[i] = res
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			failed := 0
			for i, res := range results {
				if res.Failed() {
					failed++
				}
				if a.jsonOut {
					if err := a.printResult(s.ID(), res); err != nil {
						return err
					}
					continue
				}
				fmt.Fprintf(a.out, "[%d] %s\n", i+1, res.Text())
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d turns failed: %w", failed, len(results), errTurnFailed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session to attach (default: create one)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read prompts from a file, one per line")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 4, "Maximum concurrent queries")
	cmd.Flags().Float64Var(&qps, "qps", 0, "Maximum queries started per second (0: unlimited)")
	return cmd
}

func readPrompts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var prompts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			prompts = append(prompts, line)
		}
	}
	return prompts, scanner.Err()
}
