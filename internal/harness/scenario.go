package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/admit/internal/dispatch"
	"github.com/roach88/admit/internal/ir"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario; it names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Manifests is a manifest directory. Relative paths are resolved
	// against the scenario file. Exactly one of Manifests and Manifest is set.
	Manifests string `yaml:"manifests,omitempty"`

	// Manifest is an inline CUE manifest source.
	Manifest string `yaml:"manifest,omitempty"`

	// Token is the prefix of the per-case dispatch tokens. Defaults to the
	// scenario name.
	Token string `yaml:"token,omitempty"`

	// Strict rejects NotImplemented verdicts when computing admission.
	Strict bool `yaml:"strict,omitempty"`

	// Timeout overrides the engine's per-invocation timeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Cases are dispatched in order.
	Cases []Case `yaml:"cases"`

	// Assertions validate the trace and the verdict log after all cases ran.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// dir is the directory of the scenario file, for resolving code_file
	// paths of an inline manifest.
	dir string
}

// Case is one entry submitted for validation.
type Case struct {
	Name string `yaml:"name"`

	// Type is the entry type tag, e.g. "post" or "%agent_id".
	Type string `yaml:"type"`

	// Entry is the entry's content as a YAML value; it is submitted as
	// canonical JSON. Content is the raw content instead.
	Entry   any     `yaml:"entry,omitempty"`
	Content *string `yaml:"content,omitempty"`

	// Ctx is the validation data (lifecycle, action, sources, ...).
	Ctx map[string]any `yaml:"ctx,omitempty"`

	Expect Expect `yaml:"expect"`
}

// Expect specifies the expected verdict of a case. Either Outcome or Error
// is set.
type Expect struct {
	Outcome        string  `yaml:"outcome,omitempty"`
	Reason         *string `yaml:"reason,omitempty"`
	ReasonContains string  `yaml:"reason_contains,omitempty"`
	Admitted       *bool   `yaml:"admitted,omitempty"`

	// Error is the expected dispatch error code, e.g. MALFORMED_ENTRY.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the trace or the final store state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, final_state.
	Type string `yaml:"type"`

	// Case restricts trace assertions to one case's events.
	Case string `yaml:"case,omitempty"`

	// Stage is the event stage (trace_contains, trace_count).
	Stage string `yaml:"stage,omitempty"`

	// Match holds event fields that must be equal (subset match).
	Match map[string]string `yaml:"match,omitempty"`

	// Stages is the expected stage order (trace_order).
	Stages []string `yaml:"stages,omitempty"`

	// Count is the expected number of matching events (trace_count).
	Count int `yaml:"count,omitempty"`

	// Table, Where and Expect drive final_state.
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

var knownStages = map[string]bool{
	string(dispatch.StageClassified):  true,
	string(dispatch.StageResolved):    true,
	string(dispatch.StageInvoked):     true,
	string(dispatch.StageInterpreted): true,
	string(dispatch.StageAborted):     true,
}

var knownOutcomes = map[string]bool{
	string(ir.OutcomePass):           true,
	string(ir.OutcomeFail):           true,
	string(ir.OutcomeNotImplemented): true,
	string(ir.OutcomeExecutionError): true,
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected. The manifests path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML, resolving relative paths against
// baseDir.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	scenario.dir = baseDir
	if scenario.Manifests != "" && !filepath.IsAbs(scenario.Manifests) && baseDir != "" {
		scenario.Manifests = filepath.Join(baseDir, scenario.Manifests)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios lists the scenario files (*.yaml, *.yml) of a directory,
// sorted. A file path is returned as is.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Manifests == "" && strings.TrimSpace(s.Manifest) == "":
		return fmt.Errorf("one of manifests or manifest is required")
	case s.Manifests != "" && s.Manifest != "":
		return fmt.Errorf("manifests and manifest are mutually exclusive")
	case s.Manifests != "":
		if _, err := os.Stat(s.Manifests); err != nil {
			return fmt.Errorf("manifest directory not found: %s", s.Manifests)
		}
	}

	if len(s.Cases) == 0 {
		return fmt.Errorf("cases list is required and must be non-empty")
	}

	names := make(map[string]bool, len(s.Cases))
	for i, c := range s.Cases {
		if err := validateCase(i, c); err != nil {
			return err
		}
		if names[c.Name] {
			return fmt.Errorf("cases[%d]: duplicate case name %q", i, c.Name)
		}
		names[c.Name] = true
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], names); err != nil {
			return err
		}
	}
	return nil
}

func validateCase(i int, c Case) error {
	if c.Name == "" {
		return fmt.Errorf("cases[%d]: name is required", i)
	}
	if c.Type == "" {
		return fmt.Errorf("cases[%d]: type is required", i)
	}
	if c.Entry == nil && c.Content == nil {
		return fmt.Errorf("cases[%d]: one of entry or content is required", i)
	}
	if c.Entry != nil && c.Content != nil {
		return fmt.Errorf("cases[%d]: entry and content are mutually exclusive", i)
	}

	e := c.Expect
	switch {
	case e.Outcome == "" && e.Error == "":
		return fmt.Errorf("cases[%d].expect: outcome or error is required", i)
	case e.Outcome != "" && e.Error != "":
		return fmt.Errorf("cases[%d].expect: outcome and error are mutually exclusive", i)
	case e.Outcome != "" && !knownOutcomes[e.Outcome]:
		return fmt.Errorf("cases[%d].expect: unknown outcome %q", i, e.Outcome)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, cases map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Case != "" && !cases[a.Case] {
		return fmt.Errorf("assertions[%d]: unknown case %q", index, a.Case)
	}
	if a.Stage != "" && !knownStages[a.Stage] {
		return fmt.Errorf("assertions[%d]: unknown stage %q", index, a.Stage)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Stage == "" {
			return fmt.Errorf("assertions[%d]: stage is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Stages) == 0 {
			return fmt.Errorf("assertions[%d]: stages list is required for trace_order", index)
		}
		for _, st := range a.Stages {
			if !knownStages[st] {
				return fmt.Errorf("assertions[%d]: unknown stage %q", index, st)
			}
		}
	case AssertTraceCount:
		if a.Stage == "" {
			return fmt.Errorf("assertions[%d]: stage is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
