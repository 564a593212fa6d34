package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/admit/internal/ir"
	"github.com/roach88/admit/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Database string
}

// ModuleReport summarizes one compiled module.
type ModuleReport struct {
	Name       string   `json:"name"`
	Runtime    string   `json:"runtime"`
	EntryTypes []string `json:"entry_types"`
	CodeBytes  int      `json:"code_bytes"`
}

// CompileReport is the compile command's result.
type CompileReport struct {
	App            string         `json:"app"`
	ManifestDigest string         `json:"manifest_digest"`
	Files          int            `json:"files"`
	Modules        []ModuleReport `json:"modules"`
	Database       string         `json:"database"`
	Unchanged      bool           `json:"unchanged"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <manifest-dir>",
		Short: "Compile a manifest directory and import it into a store",
		Long: `Compile the CUE manifest in <manifest-dir> and import the application's
modules into the SQLite store at --db, replacing any modules previously
imported for the same application.

Importing a manifest whose digest matches the stored one is a no-op.

Examples:
  admit compile ./manifests/blog --db ./admit.db
  admit compile ./manifests/blog --db ./admit.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runCompile(ctx context.Context, opts *CompileOptions, dir string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	result, err := LoadManifests(dir)
	if err != nil {
		return outputCompileError(formatter, err)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, dir)

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreOpen, "failed to open database", err)
	}
	defer st.Close()

	summary, err := st.ImportManifest(ctx, result.Manifest)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreImport, "failed to import manifest", err)
	}

	report := CompileReport{
		App:            summary.App,
		ManifestDigest: summary.ManifestDigest,
		Files:          result.FileCount,
		Modules:        moduleReports(result.Manifest),
		Database:       opts.Database,
		Unchanged:      summary.Unchanged,
	}
	return outputCompileSuccess(formatter, report)
}

func moduleReports(m *ir.AppManifest) []ModuleReport {
	reports := make([]ModuleReport, 0, len(m.Modules))
	for _, mod := range m.Modules {
		reports = append(reports, ModuleReport{
			Name:       mod.Name,
			Runtime:    mod.Runtime,
			EntryTypes: mod.EntryTypes,
			CodeBytes:  len(mod.Code),
		})
	}
	return reports
}

func outputCompileSuccess(formatter *OutputFormatter, report CompileReport) error {
	if formatter.IsJSON() {
		return formatter.Success(report)
	}

	w := formatter.Writer
	types := 0
	for _, m := range report.Modules {
		types += len(m.EntryTypes)
	}
	fmt.Fprintf(w, "✓ Compiled %s: %d module(s), %d entry type(s)\n\n", report.App, len(report.Modules), types)
	fmt.Fprintln(w, "Modules:")
	for _, m := range report.Modules {
		fmt.Fprintf(w, "  %s (%s, %d bytes): %v\n", m.Name, m.Runtime, m.CodeBytes, m.EntryTypes)
	}
	fmt.Fprintln(w)

	if report.Unchanged {
		fmt.Fprintf(w, "Unchanged in %s (digest %s)\n", report.Database, shortDigest(report.ManifestDigest))
	} else {
		fmt.Fprintf(w, "Imported into %s (digest %s)\n", report.Database, shortDigest(report.ManifestDigest))
	}
	return nil
}

// outputCompileError reports a manifest error with its source position.
// Manifest errors are command-level errors (exit code 2).
func outputCompileError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		loadErr = &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}

	if formatter.IsJSON() {
		var details any
		if loadErr.Pos.IsValid() {
			details = map[string]any{
				"file":   loadErr.Pos.Filename(),
				"line":   loadErr.Pos.Line(),
				"column": loadErr.Pos.Column(),
			}
		}
		enc := json.NewEncoder(formatter.Writer)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: loadErr.Code, Message: loadErr.Message, Details: details},
		}); encErr != nil {
			return encErr
		}
		return WrapExitError(ExitCommandError, "compilation failed", loadErr)
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)
	if loadErr.Pos.IsValid() {
		fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
	}
	fmt.Fprintf(formatter.Writer, "  %s: %s\n", loadErr.Code, loadErr.Message)
	return WrapExitError(ExitCommandError, "compilation failed", loadErr)
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
