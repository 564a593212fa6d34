package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/admit/internal/dispatch"
	"github.com/roach88/admit/internal/ir"
	"github.com/roach88/admit/internal/sandbox"
	"github.com/roach88/admit/internal/store"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	registrySource
	Type    string
	Entry   string // file path or "-" for stdin
	Ctx     string // optional validation data file
	Token   string
	Record  bool
	Strict  bool
	Timeout time.Duration
}

// VerdictReport is the validate command's result.
type VerdictReport struct {
	Token        string     `json:"token"`
	App          string     `json:"app"`
	EntryType    string     `json:"entry_type"`
	EntryAddress string     `json:"entry_address"`
	Module       string     `json:"module,omitempty"`
	Function     string     `json:"function,omitempty"`
	InvocationID string     `json:"invocation_id,omitempty"`
	Outcome      ir.Outcome `json:"outcome"`
	Reason       string     `json:"reason,omitempty"`
	Admitted     bool       `json:"admitted"`
	Recorded     bool       `json:"recorded"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Dispatch one entry to its validation function",
		Long: `Dispatch one entry through the validation pipeline and print the verdict.

Modules are resolved either from a manifest directory (--manifests) or from an
application previously imported with "admit compile" (--db with --app).
The entry is a JSON document read from --entry (a file, or - for stdin).

The command exits 1 when the verdict does not admit the entry. A
not_implemented verdict admits unless --strict is set.

Examples:
  admit validate --manifests ./manifests/blog --type post --entry post.json
  admit validate --db ./admit.db --app blog --type post --entry - --record
  admit validate --manifests ./manifests/blog --type '%dna' --entry dna.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Manifests, "manifests", "", "manifest directory to compile")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.App, "app", "", "imported application name (with --db)")
	cmd.Flags().StringVar(&opts.Type, "type", "", "entry type tag (required)")
	_ = cmd.MarkFlagRequired("type")
	cmd.Flags().StringVar(&opts.Entry, "entry", "", "entry JSON file, or - for stdin (required)")
	_ = cmd.MarkFlagRequired("entry")
	cmd.Flags().StringVar(&opts.Ctx, "ctx", "", "validation data JSON file")
	cmd.Flags().StringVar(&opts.Token, "token", "", "dispatch token (default: generated UUIDv7)")
	cmd.Flags().BoolVar(&opts.Record, "record", false, "record the verdict in --db")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "reject not_implemented verdicts")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Second, "validation function timeout")

	return cmd
}

func runValidate(ctx context.Context, opts *ValidateOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	if err := opts.registrySource.validate(); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBadInput, err.Error(), nil)
	}
	if opts.Record && opts.Database == "" {
		return formatter.Fail(ExitCommandError, ErrCodeBadInput, "--record requires --db", nil)
	}

	req, err := readRequest(opts, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBadInput, err.Error(), nil)
	}

	reg, st, err := opts.openRegistry(ctx)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	defer closeStore(st)

	d, err := newCLIDispatcher(ctx, opts, st)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreRead, "failed to read verdict log", err)
	}

	v, err := d.Run(ctx, reg, req)
	if err != nil {
		return formatter.Fail(ExitCommandError, MapDispatchErrorToCode(err), "dispatch failed", err)
	}

	report := VerdictReport{
		Token:        v.Token,
		App:          v.App,
		EntryType:    v.EntryType,
		EntryAddress: v.EntryAddress,
		Module:       v.Module.Module,
		Function:     v.Function,
		InvocationID: v.InvocationID,
		Outcome:      v.Result.Outcome(),
		Reason:       ir.Reason(v.Result),
		Admitted:     ir.Admits(v.Result, opts.Strict),
		Recorded:     opts.Record,
	}
	if err := outputVerdict(formatter, report); err != nil {
		return err
	}
	if !report.Admitted {
		return NewExitError(ExitFailure, fmt.Sprintf("entry rejected: %s", report.Outcome))
	}
	return nil
}

// newCLIDispatcher builds a dispatcher over the CUE sandbox. When recording,
// the sequence clock resumes after the store's last verdict.
func newCLIDispatcher(ctx context.Context, opts *ValidateOptions, st *store.Store) (*dispatch.Dispatcher, error) {
	observers := dispatch.MultiObserver{dispatch.SlogObserver{}}
	dopts := []dispatch.Option{}

	if opts.Record {
		last, err := st.LastSeq(ctx)
		if err != nil {
			return nil, err
		}
		dopts = append(dopts, dispatch.WithClock(dispatch.NewClockAt(last)))
		observers = append(observers, store.NewVerdictRecorder(st))
	}
	dopts = append(dopts, dispatch.WithObserver(observers))

	return dispatch.New(sandbox.New(sandbox.WithTimeout(opts.Timeout)), dopts...), nil
}

func readRequest(opts *ValidateOptions, stdin io.Reader) (dispatch.Request, error) {
	var content []byte
	var err error
	if opts.Entry == "-" {
		content, err = io.ReadAll(stdin)
	} else {
		content, err = os.ReadFile(opts.Entry)
	}
	if err != nil {
		return dispatch.Request{}, fmt.Errorf("reading entry: %w", err)
	}

	req := dispatch.Request{
		Entry: ir.Entry{Content: bytes.TrimSpace(content)},
		Type:  ir.ParseEntryType(opts.Type),
		Token: opts.Token,
	}

	if opts.Ctx != "" {
		data, err := os.ReadFile(opts.Ctx)
		if err != nil {
			return dispatch.Request{}, fmt.Errorf("reading validation data: %w", err)
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req.Data); err != nil {
			return dispatch.Request{}, fmt.Errorf("parsing validation data: %w", err)
		}
	}
	return req, nil
}

func outputVerdict(formatter *OutputFormatter, r VerdictReport) error {
	if formatter.IsJSON() {
		return formatter.SuccessWithTrace(r, r.Token)
	}

	w := formatter.Writer
	mark := "✓"
	verdict := "admitted"
	if !r.Admitted {
		mark, verdict = "✗", "rejected"
	}
	fmt.Fprintf(w, "%s %s %s: %s\n", mark, r.App, r.EntryType, verdict)
	fmt.Fprintf(w, "  outcome:  %s\n", r.Outcome)
	if r.Reason != "" {
		fmt.Fprintf(w, "  reason:   %s\n", r.Reason)
	}
	if r.Function != "" {
		fmt.Fprintf(w, "  function: %s.%s\n", r.Module, r.Function)
	}
	fmt.Fprintf(w, "  token:    %s\n", r.Token)
	if formatter.Verbose {
		fmt.Fprintf(w, "  entry:    %s\n", r.EntryAddress)
		if r.InvocationID != "" {
			fmt.Fprintf(w, "  call:     %s\n", r.InvocationID)
		}
	}
	if r.Recorded {
		fmt.Fprintln(w, "  recorded")
	}
	return nil
}

// outputLoadError reports registry resolution failures: manifest errors go
// through the compile error printer, store errors as a plain error.
func outputLoadError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	switch loadErr.Code {
	case ErrCodeStoreOpen, ErrCodeStoreRead, ErrCodeAppNotFound:
		return formatter.Fail(ExitCommandError, loadErr.Code, loadErr.Message, nil)
	default:
		return outputCompileError(formatter, err)
	}
}
