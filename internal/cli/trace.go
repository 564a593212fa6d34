package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/admit/internal/ir"
	"github.com/roach88/admit/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database   string
	Token      string // optional - a single dispatch
	App        string // optional - one application's verdicts
	Invocation string // optional - every dispatch of one call
	Limit      int
}

// TraceResult holds the trace output.
type TraceResult struct {
	Verdicts []ir.VerdictRecord `json:"verdicts"`
	Stats    TraceStats         `json:"stats"`
}

// TraceStats counts verdicts per outcome.
type TraceStats struct {
	Total          int `json:"total"`
	Pass           int `json:"pass"`
	Fail           int `json:"fail"`
	NotImplemented int `json:"not_implemented"`
	ExecutionError int `json:"execution_error"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print the recorded verdict log",
		Long: `Print verdicts recorded by "admit validate --record" or "admit serve".

Without filters every verdict is printed in log order. --token selects one
dispatch, --invocation every dispatch of the same entry to the same module,
and --app one application's verdicts.

Examples:
  admit trace --db ./admit.db
  admit trace --db ./admit.db --token 0190d5c4-...
  admit trace --db ./admit.db --app blog --limit 20 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Token, "token", "", "dispatch token to show")
	cmd.Flags().StringVar(&opts.App, "app", "", "filter to one application")
	cmd.Flags().StringVar(&opts.Invocation, "invocation", "", "filter to one invocation id")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum verdicts to print (0 = all)")
	cmd.MarkFlagsMutuallyExclusive("token", "app", "invocation")

	return cmd
}

func runTrace(ctx context.Context, opts *TraceOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreOpen, "failed to open database", err)
	}
	defer st.Close()

	verdicts, err := readTrace(ctx, st, opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreRead, "failed to read verdicts", err)
	}
	if opts.Token != "" && len(verdicts) == 0 {
		return formatter.Fail(ExitFailure, ErrCodeVerdictNotFound, fmt.Sprintf("no verdict recorded for token %s", opts.Token), nil)
	}

	result := TraceResult{Verdicts: verdicts, Stats: countOutcomes(verdicts)}
	if result.Verdicts == nil {
		result.Verdicts = []ir.VerdictRecord{}
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result, opts.Token)
	}
	return outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
}

func readTrace(ctx context.Context, st *store.Store, opts *TraceOptions) ([]ir.VerdictRecord, error) {
	switch {
	case opts.Token != "":
		rec, ok, err := st.ReadVerdictByToken(ctx, opts.Token)
		if err != nil || !ok {
			return nil, err
		}
		return []ir.VerdictRecord{rec}, nil
	case opts.Invocation != "":
		recs, err := st.ReadVerdictsByInvocation(ctx, opts.Invocation)
		if err != nil {
			return nil, err
		}
		if opts.Limit > 0 && len(recs) > opts.Limit {
			recs = recs[:opts.Limit]
		}
		return recs, nil
	default:
		return st.ReadVerdicts(ctx, opts.App, opts.Limit)
	}
}

func countOutcomes(verdicts []ir.VerdictRecord) TraceStats {
	stats := TraceStats{Total: len(verdicts)}
	for _, v := range verdicts {
		switch v.Outcome {
		case ir.OutcomePass:
			stats.Pass++
		case ir.OutcomeFail:
			stats.Fail++
		case ir.OutcomeNotImplemented:
			stats.NotImplemented++
		case ir.OutcomeExecutionError:
			stats.ExecutionError++
		}
	}
	return stats
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult, token string) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(CLIResponse{Status: "ok", Data: result, TraceID: token})
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintln(w, "=== Verdicts ===")
	if len(result.Verdicts) == 0 {
		fmt.Fprintln(w, "  (no verdicts)")
	}
	for _, v := range result.Verdicts {
		formatVerdictLine(w, v, verbose)
	}
	fmt.Fprintln(w)

	s := result.Stats
	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total:           %d\n", s.Total)
	fmt.Fprintf(w, "  Pass:            %d\n", s.Pass)
	fmt.Fprintf(w, "  Fail:            %d\n", s.Fail)
	fmt.Fprintf(w, "  Not implemented: %d\n", s.NotImplemented)
	fmt.Fprintf(w, "  Execution error: %d\n", s.ExecutionError)
	return nil
}

func formatVerdictLine(w io.Writer, v ir.VerdictRecord, verbose bool) {
	target := v.EntryType
	if v.Function != "" {
		target = fmt.Sprintf("%s -> %s.%s", v.EntryType, v.Module, v.Function)
	}
	fmt.Fprintf(w, "  [%d] %s %s %s", v.Seq, v.App, target, v.Outcome)
	if v.Reason != "" {
		fmt.Fprintf(w, " (%s)", v.Reason)
	}
	fmt.Fprintln(w)

	if verbose {
		fmt.Fprintf(w, "       Token: %s\n", v.Token)
		fmt.Fprintf(w, "       Entry: %s\n", truncateID(v.EntryAddress))
		if v.InvocationID != "" {
			fmt.Fprintf(w, "       Call:  %s\n", truncateID(v.InvocationID))
		}
	}
}

// truncateID shortens a content address for display.
func truncateID(id string) string {
	if len(id) > 16 {
		return id[:16] + "..."
	}
	return id
}
