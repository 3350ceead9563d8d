package harness

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Scenario defines a differential test over one or more modules.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden files.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Modules lists the CUE module files to compile, in dependency order.
	// Paths are relative to the scenario file location.
	Modules []string `yaml:"modules"`

	// Calls are executed in order on every requested entry.
	Calls []Call `yaml:"calls"`

	// Assertions validate the compilation and the trace.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Call is one function call with its expected outcome.
type Call struct {
	// Func is the function name.
	Func string `yaml:"func"`

	// Module defaults to the first scenario module.
	Module string `yaml:"module,omitempty"`

	// Args are the positional arguments: integers, booleans, null and lists.
	Args []yaml.Node `yaml:"args"`

	// Entries restricts the entries the call runs on. Empty means all; the
	// native entry is skipped for functions that were not compiled.
	Entries []Entry `yaml:"entries,omitempty"`

	Expect Expect `yaml:"expect"`
}

// Expect is the outcome every entry must produce: a result value or the
// class of a raised exception.
type Expect struct {
	Result yaml.Node `yaml:"result"`
	Error  string    `yaml:"error,omitempty"`
}

// HasResult reports whether a result value (possibly null) is expected.
func (e Expect) HasResult() bool { return e.Result.Kind != 0 }

// Assertion validates the compilation or the trace.
type Assertion struct {
	// Type is one of compiled, interpreted, ir_contains, trace_count.
	Type string `yaml:"type"`

	// Func is "name" in the first module or "module.name".
	Func string `yaml:"func"`

	// Reason is a substring of the exclusion reason (interpreted).
	Reason string `yaml:"reason,omitempty"`

	// Text must appear in the reference-counted IR (ir_contains).
	Text string `yaml:"text,omitempty"`

	// Entry restricts the count to one entry (trace_count).
	Entry Entry `yaml:"entry,omitempty"`

	// Count is the expected number of calls (trace_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertCompiled    = "compiled"
	AssertInterpreted = "interpreted"
	AssertIRContains  = "ir_contains"
	AssertTraceCount  = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file, resolving module paths
// relative to the file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads a scenario file, resolving module paths
// relative to basePath instead of the file. This lets a directory of
// scenarios share one modules directory.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, basePath)
}

// ParseScenario parses scenario YAML. Relative module paths are joined to
// basePath when it is not empty.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, p := range scenario.Modules {
		if !filepath.IsAbs(p) && basePath != "" {
			scenario.Modules[i] = filepath.Join(basePath, p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Modules) == 0 {
		return fmt.Errorf("modules list is required and must be non-empty")
	}
	if len(s.Calls) == 0 && len(s.Assertions) == 0 {
		return fmt.Errorf("calls or assertions are required")
	}

	for _, p := range s.Modules {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return &ModuleNotFoundError{Scenario: s.Name, Path: p}
		}
	}

	for i, c := range s.Calls {
		if c.Func == "" {
			return fmt.Errorf("calls[%d]: func is required", i)
		}
		if c.Expect.HasResult() == (c.Expect.Error != "") {
			return fmt.Errorf("calls[%d].expect: exactly one of result or error is required", i)
		}
		for _, e := range c.Entries {
			if !e.valid() {
				return fmt.Errorf("calls[%d]: unknown entry %q", i, e)
			}
		}
		for j := range c.Args {
			if _, err := nodeValue(&c.Args[j]); err != nil {
				return fmt.Errorf("calls[%d].args[%d]: %w", i, j, err)
			}
		}
		if c.Expect.HasResult() {
			if _, err := nodeValue(&c.Expect.Result); err != nil {
				return fmt.Errorf("calls[%d].expect.result: %w", i, err)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion checks type-specific required fields.
func validateAssertion(index int, a *Assertion) error {
	if a.Func == "" {
		return fmt.Errorf("assertions[%d]: func is required", index)
	}
	switch a.Type {
	case AssertCompiled, AssertInterpreted:
	case AssertIRContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for ir_contains", index)
		}
	case AssertTraceCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
		if a.Entry != "" && !a.Entry.valid() {
			return fmt.Errorf("assertions[%d]: unknown entry %q", index, a.Entry)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

var bigIntLiteral = regexp.MustCompile(`^[-+]?[0-9]+$`)

// nodeValue converts a YAML value to the Go form host.FromGo accepts.
// Integers become *big.Int so literals of any size survive.
func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!null":
			return nil, nil
		case "!!bool":
			var b bool
			if err := n.Decode(&b); err != nil {
				return nil, err
			}
			return b, nil
		case "!!int":
			i, ok := new(big.Int).SetString(n.Value, 0)
			if !ok {
				return nil, fmt.Errorf("line %d: invalid integer %q", n.Line, n.Value)
			}
			return i, nil
		case "!!float":
			// Integers beyond 64 bits resolve as floats.
			if bigIntLiteral.MatchString(n.Value) {
				i, _ := new(big.Int).SetString(n.Value, 10)
				return i, nil
			}
		}
		return nil, fmt.Errorf("line %d: unsupported value %q (%s)", n.Line, n.Value, n.ShortTag())
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := nodeValue(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	}
	return nil, fmt.Errorf("line %d: unsupported value", n.Line)
}

// ModuleNotFoundError is returned when a scenario references a module file
// that doesn't exist.
type ModuleNotFoundError struct {
	Scenario string
	Path     string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("scenario %q references module file %q which does not exist", e.Scenario, e.Path)
}

// Discover returns the scenario files (*.yaml, *.yml) under dir in sorted
// order.
func Discover(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("scenario directory: %w", err)
	}
	if !info.IsDir() {
		return []string{dir}, nil
	}
	var files []string
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scenario directory: %w", err)
	}
	return files, nil
}
