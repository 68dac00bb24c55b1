package harness

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// NoScenariosError is returned when a suite directory holds no scenario files.
type NoScenariosError struct {
	Dir string
}

// Error implements the error interface.
func (e *NoScenariosError) Error() string {
	return fmt.Sprintf("no scenario files (*.yaml, *.yml) found in %s", e.Dir)
}

// FindScenarios returns every *.yaml and *.yml file under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("scenario directory: %w", err)
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan scenarios: %w", err)
	}
	if len(paths) == 0 {
		return nil, &NoScenariosError{Dir: dir}
	}
	slices.Sort(paths)
	return paths, nil
}

// SuiteResult contains results from running a directory of scenarios.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Results        []ScenarioOutcome `json:"results"`
}

// ScenarioOutcome is the result of one scenario within a suite.
type ScenarioOutcome struct {
	Scenario string   `json:"scenario,omitempty"`
	Path     string   `json:"path"`
	Pass     bool     `json:"pass"`
	RunID    string   `json:"run_id,omitempty"`
	Errors   []string `json:"errors,omitempty"`

	// Result is the full trace when the scenario executed.
	Result *Result `json:"-"`
}

// Failures returns the outcomes that did not pass.
func (r *SuiteResult) Failures() []ScenarioOutcome {
	var out []ScenarioOutcome
	for _, o := range r.Results {
		if !o.Pass {
			out = append(out, o)
		}
	}
	return out
}

// RunSuite loads and runs every scenario under dir.
//
// For each scenario file:
//  1. Load it (bundle paths relative to the file)
//  2. Run it with a fresh driver
//  3. Record pass/fail with the failure messages
//
// A scenario that fails to load or execute counts as failed; the suite keeps
// going. Only a missing or empty directory and context cancellation are
// returned as errors.
func RunSuite(ctx context.Context, dir string, opts ...Option) (*SuiteResult, error) {
	paths, err := FindScenarios(dir)
	if err != nil {
		return nil, err
	}

	h := New(opts...)
	result := &SuiteResult{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.TotalScenarios++
		outcome := ScenarioOutcome{Path: path}

		scenario, err := LoadScenario(path)
		if err != nil {
			outcome.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
			result.Failed++
			result.Results = append(result.Results, outcome)
			continue
		}
		outcome.Scenario = scenario.Name

		run, err := h.Run(ctx, scenario)
		outcome.Result = run
		switch {
		case err != nil:
			outcome.Errors = []string{fmt.Sprintf("scenario execution failed: %v", err)}
		case !run.Pass:
			outcome.RunID = run.RunID
			outcome.Errors = run.Errors
		default:
			outcome.RunID = run.RunID
			outcome.Pass = true
		}

		if outcome.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Results = append(result.Results, outcome)
	}
	return result, nil
}
