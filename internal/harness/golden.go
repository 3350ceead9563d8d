package harness

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/refc/internal/ir"
)

// TraceSnapshot captures the trace of a scenario execution.
// It is serialized as canonical JSON for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles primitives, slices and maps.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"seq":   event.Seq,
			"func":  event.Func,
			"entry": string(event.Entry),
			"args":  event.Args,
		}
		if event.Error != "" {
			eventMap["error"] = event.Error
		} else {
			eventMap["result"] = event.Result
		}
		traceList[i] = eventMap
	}
	return map[string]any{
		"scenario": s.ScenarioName,
		"trace":    traceList,
	}
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

// RunWithGolden executes a scenario and compares the trace against
// testdata/golden/{scenario.Name}.golden. A failing call fails the test as
// well.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := result.CanonicalTrace(scenarioName)
	if err != nil {
		return err
	}
	newGoldie(t).Assert(t, scenarioName, traceJSON)
	return nil
}

// CanonicalTrace renders the trace as the canonical JSON stored in golden
// files.
func (r *Result) CanonicalTrace(scenarioName string) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: scenarioName, Trace: r.Trace}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// AssertCGolden compares the C emitted for module against
// testdata/golden/{name}_{module}_c.golden.
func AssertCGolden(t *testing.T, name, module string, result *Result) error {
	t.Helper()

	res, ok := result.Modules[module]
	if !ok {
		return fmt.Errorf("no module %q in result", module)
	}
	if res.C == nil {
		return fmt.Errorf("module %q has no emitted C", module)
	}
	newGoldie(t).Assert(t, name+"_"+module+"_c", res.C)
	return nil
}
