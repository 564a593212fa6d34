package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/admit/internal/dispatch"
	"github.com/roach88/admit/internal/ir"
	"github.com/roach88/admit/internal/sandbox"
)

// ModuleCheck is the check result for one module.
type ModuleCheck struct {
	Name       string   `json:"name"`
	EntryTypes []string `json:"entry_types"`
	Missing    []string `json:"missing,omitempty"` // declared validate_ functions not defined
	Error      string   `json:"error,omitempty"`   // code does not compile
}

// CheckReport is the check command's result.
type CheckReport struct {
	App     string        `json:"app"`
	Files   int           `json:"files"`
	Modules []ModuleCheck `json:"modules"`
	OK      bool          `json:"ok"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "check <manifest-dir>",
		Short: "Check a manifest directory without importing it",
		Long: `Compile the CUE manifest in <manifest-dir> and compile each module's
validator code, reporting entry types whose validate_<type> function the
module does not define.

A missing function is not an error at dispatch time (the entry's verdict is
not_implemented), so it is reported as a warning unless --strict is set.

Examples:
  admit check ./manifests/blog
  admit check ./manifests/blog --strict --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args[0], strict, cmd)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "treat missing validate_ functions as errors")

	return cmd
}

func runCheck(opts *RootOptions, dir string, strict bool, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	result, err := LoadManifests(dir)
	if err != nil {
		return outputCompileError(formatter, err)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, dir)

	report := CheckReport{App: result.Manifest.Name, Files: result.FileCount, OK: true}
	for _, mod := range result.Manifest.Modules {
		formatter.VerboseLog("Checking module: %s", mod.Name)
		mc := checkModule(mod)
		if mc.Error != "" || (strict && len(mc.Missing) > 0) {
			report.OK = false
		}
		report.Modules = append(report.Modules, mc)
	}

	if formatter.IsJSON() {
		if !report.OK {
			if err := formatter.Error(ErrCodeModuleFuncs, "module check failed", report); err != nil {
				return err
			}
			return NewExitError(ExitFailure, "module check failed")
		}
		return formatter.Success(report)
	}

	outputCheckText(formatter, report)
	if !report.OK {
		return NewExitError(ExitFailure, "module check failed")
	}
	return nil
}

func checkModule(mod ir.ModuleSpec) ModuleCheck {
	mc := ModuleCheck{Name: mod.Name, EntryTypes: mod.EntryTypes}
	functions := make([]string, 0, len(mod.EntryTypes))
	for _, t := range mod.EntryTypes {
		functions = append(functions, dispatch.FunctionName(t))
	}
	missing, err := sandbox.CheckModule(mod.Name+".cue", mod.Code, functions)
	if err != nil {
		mc.Error = err.Error()
		return mc
	}
	mc.Missing = missing
	return mc
}

func outputCheckText(formatter *OutputFormatter, report CheckReport) {
	w := formatter.Writer
	if report.OK {
		fmt.Fprintf(w, "✓ %s: %d module(s) checked\n\n", report.App, len(report.Modules))
	} else {
		fmt.Fprintf(w, "✗ %s: module check failed\n\n", report.App)
	}

	for _, m := range report.Modules {
		switch {
		case m.Error != "":
			fmt.Fprintf(w, "  ✗ %s: %s: %s\n", m.Name, ErrCodeModuleCode, m.Error)
		case len(m.Missing) > 0:
			for _, fn := range m.Missing {
				fmt.Fprintf(w, "  ! %s: %s: %s is not defined\n", m.Name, ErrCodeModuleFuncs, fn)
			}
		default:
			fmt.Fprintf(w, "  ✓ %s: %v\n", m.Name, m.EntryTypes)
		}
	}
}
