package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines an engine test scenario: bundles to load, then steps
// that set statuses and advance ticks, then assertions on the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Bundles lists bundle directories to load, in order.
	// Relative paths are resolved against the scenario file's directory.
	Bundles []string `yaml:"bundles"`

	// Steps run in order. Each step queues its status writes and then
	// advances the engine by Ticks ticks.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and statuses.
	// Supported types: status_equals, dispatch_count, dispatch_order
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one stimulus applied to the engine.
type Step struct {
	// Name is shown in failure messages.
	Name string `yaml:"name,omitempty"`

	// Set maps status names to values. Writes are queued on the modifier
	// in name order and applied at the start of the step's first tick.
	Set map[string]any `yaml:"set,omitempty"`

	// Ticks is the number of ticks to run. Default: 1.
	Ticks int `yaml:"ticks,omitempty"`

	// Expect checks the dispatches produced by this step.
	// If nil, no validation is performed.
	Expect *StepExpect `yaml:"expect,omitempty"`
}

// StepExpect lists the expressions a step must dispatch, in order.
// An empty list means the step must dispatch nothing.
type StepExpect struct {
	Dispatches []string `yaml:"dispatches"`
}

// Assertion validates the trace or the final statuses.
type Assertion struct {
	// Type specifies the assertion type:
	// - "status_equals": Status holds Value at the end of the run
	// - "dispatch_count": Expression was dispatched exactly Count times
	// - "dispatch_order": Expressions were dispatched in this relative order
	Type string `yaml:"type"`

	// Status is the status name (status_equals).
	Status string `yaml:"status,omitempty"`

	// Value is the expected status value (status_equals).
	Value any `yaml:"value,omitempty"`

	// Expression is the expression name (dispatch_count).
	Expression string `yaml:"expression,omitempty"`

	// Count is the expected number of dispatches (dispatch_count).
	Count int `yaml:"count,omitempty"`

	// Expressions is the expected dispatch order (dispatch_order).
	Expressions []string `yaml:"expressions,omitempty"`
}

// Assertion type constants.
const (
	AssertStatusEquals  = "status_equals"
	AssertDispatchCount = "dispatch_count"
	AssertDispatchOrder = "dispatch_order"
)

// LoadScenario reads and parses a scenario YAML file. Bundle paths are
// resolved against the file's directory.
// Returns an error if the file doesn't exist, is malformed, contains unknown
// fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving bundle paths relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, basePath)
}

// ParseScenario parses scenario YAML and resolves bundle paths relative to
// basePath.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve bundle paths BEFORE validation
	for i, p := range scenario.Bundles {
		if !filepath.IsAbs(p) && basePath != "" {
			scenario.Bundles[i] = filepath.Join(basePath, p)
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
	if len(s.Bundles) == 0 {
		return fmt.Errorf("bundles list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for _, p := range s.Bundles {
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			return fmt.Errorf("bundle not found: %s", p)
		}
		if err == nil && !info.IsDir() {
			return fmt.Errorf("bundle is not a directory: %s", p)
		}
	}

	for i, step := range s.Steps {
		if step.Ticks < 0 {
			return fmt.Errorf("steps[%d]: ticks must be non-negative", i)
		}
		for name, v := range step.Set {
			if name == "" {
				return fmt.Errorf("steps[%d].set: empty status name", i)
			}
			if v == nil {
				return fmt.Errorf("steps[%d].set.%s: value is required", i, name)
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

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStatusEquals:
		if a.Status == "" {
			return fmt.Errorf("assertions[%d]: status is required for status_equals", index)
		}
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for status_equals", index)
		}
	case AssertDispatchCount:
		if a.Expression == "" {
			return fmt.Errorf("assertions[%d]: expression is required for dispatch_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for dispatch_count", index)
		}
	case AssertDispatchOrder:
		if len(a.Expressions) == 0 {
			return fmt.Errorf("assertions[%d]: expressions list is required for dispatch_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// ticks returns the number of ticks the step runs.
func (s Step) ticks() int {
	if s.Ticks == 0 {
		return 1
	}
	return s.Ticks
}

// label names the step in messages.
func (s Step) label(i int) string {
	if s.Name != "" {
		return fmt.Sprintf("step %d (%s)", i, s.Name)
	}
	return fmt.Sprintf("step %d", i)
}
