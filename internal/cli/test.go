package cli

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/refc/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Calls  int      `json:"calls"`
	Events int      `json:"events"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <modules-dir> <scenarios-dir>",
		Short: "Run differential scenarios",
		Long: `Run every call of each scenario through the interpreter, the boundary
entry and the native entry, comparing results, raised exceptions and heap
balance. When scenarios-dir/golden/<name>.golden exists the call trace must
match it as well.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  refc test ./modules ./scenarios
  refc test ./modules ./scenarios --filter "list-*"
  refc test ./modules ./scenarios --update
  refc test ./modules ./scenarios --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, modulesDir, scenariosDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(modulesDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("modules directory not found: %s", modulesDir))
	}
	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	scenarioFiles, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(scenarioFiles)),
		Total:     len(scenarioFiles),
	}
	if len(scenarioFiles) == 0 {
		if formatter.JSON() {
			return formatter.Success(result)
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	for _, file := range scenarioFiles {
		sr := runScenario(file, modulesDir, scenariosDir, opts)
		if !formatter.JSON() {
			writeScenarioResult(formatter, sr)
		}
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if formatter.JSON() {
		if result.Failed > 0 {
			if err := formatter.encode(CLIResponse{
				Status: "error",
				Data:   result,
				Error:  &CLIError{Code: "E_TEST_FAILED", Message: fmt.Sprintf("%d scenario(s) failed", result.Failed)},
			}); err != nil {
				return err
			}
		} else if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(formatter.Writer)
		fmt.Fprintf(formatter.Writer, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	if !formatter.JSON() {
		fmt.Fprintln(formatter.Writer, "✓ All scenarios passed")
	}
	return nil
}

// findScenarioFiles finds the scenario files under dir whose base name
// without extension matches filter.
func findScenarioFiles(dir, filter string) ([]string, error) {
	all, err := harness.Discover(dir)
	if err != nil {
		return nil, err
	}
	if filter == "" {
		return all, nil
	}
	var files []string
	for _, path := range all {
		base := filepath.Base(path)
		matched, err := filepath.Match(filter, strings.TrimSuffix(base, filepath.Ext(base)))
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if matched {
			files = append(files, path)
		}
	}
	return files, nil
}

func runScenario(file, modulesDir, scenariosDir string, opts *TestOptions) ScenarioResult {
	fail := func(name, format string, args ...any) ScenarioResult {
		return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf(format, args...)}}
	}

	scenario, err := harness.LoadScenarioWithBasePath(file, modulesDir)
	if err != nil {
		return fail(filepath.Base(file), "failed to load scenario: %v", err)
	}
	result, err := harness.RunWithLogger(scenario, slog.Default())
	if err != nil {
		return fail(scenario.Name, "execution failed: %v", err)
	}

	sr := ScenarioResult{
		Name:   scenario.Name,
		Pass:   result.Pass,
		Calls:  len(scenario.Calls),
		Events: len(result.Trace),
		Errors: result.Errors,
	}

	trace, err := result.CanonicalTrace(scenario.Name)
	if err != nil {
		return fail(scenario.Name, "failed to marshal trace: %v", err)
	}
	goldenPath := filepath.Join(scenariosDir, "golden", scenario.Name+".golden")
	if opts.Update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
			return fail(scenario.Name, "failed to create golden directory: %v", err)
		}
		if err := os.WriteFile(goldenPath, trace, 0644); err != nil {
			return fail(scenario.Name, "failed to write golden file: %v", err)
		}
		return sr
	}

	golden, err := os.ReadFile(goldenPath)
	if os.IsNotExist(err) {
		return sr
	}
	if err != nil {
		return fail(scenario.Name, "failed to read golden file: %v", err)
	}
	if !bytes.Equal(golden, trace) {
		sr.Pass = false
		sr.Errors = append(sr.Errors, "trace does not match golden file (run with --update to regenerate)")
	}
	return sr
}

func writeScenarioResult(formatter *OutputFormatter, sr ScenarioResult) {
	w := formatter.Writer
	if sr.Pass {
		fmt.Fprintf(w, "✓ %s\n", sr.Name)
		formatter.VerboseLog("  %d call(s), %d event(s)", sr.Calls, sr.Events)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", sr.Name)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
