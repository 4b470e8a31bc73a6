package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines an end-to-end test of the matching service.
// Steps run against a fresh database and a fake clock; assertions then
// check the trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Timeout is the stale timeout used by reconcile steps that do not set
	// their own. Defaults to 24h.
	Timeout string `yaml:"timeout,omitempty"`

	// Setup establishes initial state. Setup steps must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow is the behavior under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step actions.
const (
	ActionSubmit    = "submit"
	ActionMatch     = "match"
	ActionReconcile = "reconcile"
	ActionAccept    = "accept"
	ActionWithdraw  = "withdraw"
	ActionAdvance   = "advance"
)

// Step is one operation against the engine or the clock.
type Step struct {
	// Action is one of submit, match, reconcile, accept, withdraw, advance.
	Action string `yaml:"action"`

	// submit
	Owner      string `yaml:"owner,omitempty"`
	Contact    string `yaml:"contact,omitempty"`
	Scope      string `yaml:"scope,omitempty"`
	College    string `yaml:"college,omitempty"`
	Department string `yaml:"department,omitempty"`

	// accept, withdraw
	Actor   string `yaml:"actor,omitempty"`
	Request string `yaml:"request,omitempty"`

	// advance
	By string `yaml:"by,omitempty"`

	// reconcile; overrides Scenario.Timeout
	Timeout string `yaml:"timeout,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks a step's outcome. Without it a step must succeed.
type Expect struct {
	// Error is a substring the step's error must contain.
	Error string `yaml:"error,omitempty"`

	// Report holds expected counters of a match or reconcile report.
	// Only the listed counters are compared.
	Report map[string]int `yaml:"report,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// request_status, match_status
	Request string `yaml:"request,omitempty"`
	Match   string `yaml:"match,omitempty"`
	Status  string `yaml:"status,omitempty"`

	// notified, notification_count; Count also serves match_count
	Member   string `yaml:"member,omitempty"`
	Template string `yaml:"template,omitempty"`
	Count    int    `yaml:"count"`

	// notification_order
	Notifications []Notification `yaml:"notifications,omitempty"`

	// final_state
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Notification names one expected send.
type Notification struct {
	Member   string `yaml:"member"`
	Template string `yaml:"template"`
}

// Assertion type constants.
const (
	AssertRequestStatus     = "request_status"
	AssertMatchStatus       = "match_status"
	AssertMatchCount        = "match_count"
	AssertNotified          = "notified"
	AssertNotificationCount = "notification_count"
	AssertNotificationOrder = "notification_order"
	AssertFinalState        = "final_state"
)

const defaultTimeout = 24 * time.Hour

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so that typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// timeout returns the scenario-wide stale timeout.
func (s *Scenario) timeout() (time.Duration, error) {
	if s.Timeout == "" {
		return defaultTimeout, nil
	}
	return time.ParseDuration(s.Timeout)
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if d, err := s.timeout(); err != nil || d <= 0 {
		return fmt.Errorf("timeout %q must be a positive duration", s.Timeout)
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: setup steps cannot have expect", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch step.Action {
	case ActionSubmit:
		if step.Owner == "" {
			return fmt.Errorf("owner is required for submit")
		}
		if step.Scope == "" {
			return fmt.Errorf("scope is required for submit")
		}
	case ActionAccept, ActionWithdraw:
		if step.Actor == "" || step.Request == "" {
			return fmt.Errorf("actor and request are required for %s", step.Action)
		}
	case ActionAdvance:
		d, err := time.ParseDuration(step.By)
		if err != nil || d <= 0 {
			return fmt.Errorf("advance needs a positive duration in by, got %q", step.By)
		}
	case ActionReconcile:
		if step.Timeout != "" {
			if _, err := time.ParseDuration(step.Timeout); err != nil {
				return fmt.Errorf("invalid timeout %q: %w", step.Timeout, err)
			}
		}
	case ActionMatch:
	case "":
		return fmt.Errorf("action is required")
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}

	if step.Expect != nil && step.Expect.Report != nil &&
		step.Action != ActionMatch && step.Action != ActionReconcile {
		return fmt.Errorf("only match and reconcile steps produce a report")
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertRequestStatus:
		if a.Request == "" || a.Status == "" {
			return fmt.Errorf("request and status are required for %s", a.Type)
		}
	case AssertMatchStatus:
		if a.Match == "" || a.Status == "" {
			return fmt.Errorf("match and status are required for %s", a.Type)
		}
	case AssertMatchCount, AssertNotificationCount:
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for %s", a.Type)
		}
	case AssertNotified:
		if a.Member == "" || a.Template == "" {
			return fmt.Errorf("member and template are required for %s", a.Type)
		}
	case AssertNotificationOrder:
		if len(a.Notifications) < 2 {
			return fmt.Errorf("at least two notifications are required for %s", a.Type)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("table is required for final_state")
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("expect is required for final_state")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
