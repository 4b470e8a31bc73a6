package harness

// Trace event types.
const (
	EventStep         = "step"
	EventNotification = "notification"
)

// TraceEvent is one entry of a scenario trace: either a step that ran or
// a notification it caused.
type TraceEvent struct {
	Seq  int    `json:"seq"`
	Type string `json:"type"`

	// step
	Action  string         `json:"action,omitempty"`
	Actor   string         `json:"actor,omitempty"`
	Request string         `json:"request,omitempty"`
	Error   string         `json:"error,omitempty"`
	Report  map[string]int `json:"report,omitempty"`

	// notification
	Member   string `json:"member,omitempty"`
	Template string `json:"template,omitempty"`
}

// RequestState is a request row as it stands after the flow.
type RequestState struct {
	ID     string `json:"id"`
	Owner  string `json:"owner"`
	Status string `json:"status"`
}

// MatchState is a match row as it stands after the flow.
type MatchState struct {
	ID        string `json:"id"`
	RequestA  string `json:"request_a"`
	RequestB  string `json:"request_b"`
	Status    string `json:"status"`
	AcceptedA bool   `json:"accepted_a"`
	AcceptedB bool   `json:"accepted_b"`
}

// State is the final content of the database, oldest rows first.
type State struct {
	Requests []RequestState `json:"requests"`
	Matches  []MatchState   `json:"matches"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
	State  State        `json:"state"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addEvent(ev TraceEvent) {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}
