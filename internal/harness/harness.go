package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/sejongpeer/studybuddy/internal/engine"
	"github.com/sejongpeer/studybuddy/internal/store"
	"github.com/sejongpeer/studybuddy/internal/testutil"
)

// Epoch is the fake clock reading at the start of every scenario.
var Epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// Harness runs one scenario against a real engine.
type Harness struct {
	store   *store.Store
	engine  *engine.Engine
	clock   *testutil.FakeClock
	gateway *testutil.RecordingGateway
	timeout time.Duration

	// traced counts gateway sends already copied into the trace.
	traced int
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a fake clock
// reading Epoch, sequential IDs ("req-1", "match-1", ...) and a recording
// gateway, so traces are reproducible. Setup failures are returned as
// errors; flow failures are recorded in the result.
func Run(scenario *Scenario) (*Result, error) {
	timeout, err := scenario.timeout()
	if err != nil {
		return nil, fmt.Errorf("invalid timeout: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:   st,
		clock:   testutil.NewFakeClock(Epoch),
		gateway: testutil.NewRecordingGateway(),
		timeout: timeout,
	}
	h.engine = engine.New(st,
		engine.WithClock(h.clock),
		engine.WithGateway(h.gateway),
		engine.WithIDGenerators(engine.NewSequenceGenerator("req"), engine.NewSequenceGenerator("match")),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	ctx := context.Background()

	for i, step := range scenario.Setup {
		if _, err := h.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("setup[%d] %s: %w", i, step.Action, err)
		}
	}
	// Notifications caused by setup are not part of the trace.
	h.traced = len(h.gateway.Sent())

	result := NewResult()
	for i, step := range scenario.Flow {
		h.runStep(ctx, i, step, result)
	}

	state, err := h.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}
	result.State = state

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// runStep executes a flow step, traces it and checks its expect clause.
func (h *Harness) runStep(ctx context.Context, index int, step Step, result *Result) {
	ev := TraceEvent{
		Type:    EventStep,
		Action:  step.Action,
		Actor:   step.Actor,
		Request: step.Request,
	}
	if step.Action == ActionSubmit {
		ev.Actor = step.Owner
	}

	report, err := h.execute(ctx, step)
	if err != nil {
		ev.Error = err.Error()
	}
	ev.Report = report
	result.addEvent(ev)
	h.traceNotifications(result)

	prefix := fmt.Sprintf("flow[%d] %s", index, step.Action)
	expect := step.Expect
	if expect == nil {
		expect = &Expect{}
	}

	switch {
	case expect.Error == "" && err != nil:
		result.AddError(fmt.Sprintf("%s: unexpected error: %v", prefix, err))
	case expect.Error != "" && err == nil:
		result.AddError(fmt.Sprintf("%s: expected error containing %q, got success", prefix, expect.Error))
	case expect.Error != "" && !strings.Contains(err.Error(), expect.Error):
		result.AddError(fmt.Sprintf("%s: expected error containing %q, got %q", prefix, expect.Error, err.Error()))
	}

	keys := make([]string, 0, len(expect.Report))
	for k := range expect.Report {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		got, ok := report[k]
		if !ok {
			result.AddError(fmt.Sprintf("%s: report has no counter %q", prefix, k))
			continue
		}
		if got != expect.Report[k] {
			result.AddError(fmt.Sprintf("%s: report %s = %d, expected %d", prefix, k, got, expect.Report[k]))
		}
	}
}

// execute performs one step. It returns the tick report for match and
// reconcile steps.
func (h *Harness) execute(ctx context.Context, step Step) (map[string]int, error) {
	switch step.Action {
	case ActionSubmit:
		_, err := h.engine.Submit(ctx, engine.NewRequest{
			Owner:      step.Owner,
			Contact:    step.Contact,
			Scope:      step.Scope,
			College:    step.College,
			Department: step.Department,
		})
		return nil, err

	case ActionMatch:
		report, err := h.engine.ExecuteMatching(ctx)
		if err != nil {
			return nil, err
		}
		return counters(report)

	case ActionReconcile:
		timeout := h.timeout
		if step.Timeout != "" {
			d, err := time.ParseDuration(step.Timeout)
			if err != nil {
				return nil, err
			}
			timeout = d
		}
		report, err := h.engine.ReconcileStale(ctx, timeout)
		if err != nil {
			return nil, err
		}
		return counters(report)

	case ActionAccept:
		_, err := h.engine.Accept(ctx, step.Actor, step.Request)
		return nil, err

	case ActionWithdraw:
		return nil, h.engine.Withdraw(ctx, step.Actor, step.Request)

	case ActionAdvance:
		d, err := time.ParseDuration(step.By)
		if err != nil {
			return nil, err
		}
		h.clock.Advance(d)
		return nil, nil
	}
	return nil, fmt.Errorf("unknown action %q", step.Action)
}

func (h *Harness) traceNotifications(result *Result) {
	sent := h.gateway.Sent()
	for _, s := range sent[h.traced:] {
		result.addEvent(TraceEvent{
			Type:     EventNotification,
			Member:   s.MemberID,
			Template: string(s.Template),
		})
	}
	h.traced = len(sent)
}

func (h *Harness) snapshot(ctx context.Context) (State, error) {
	requests, err := h.store.ListRequests(ctx)
	if err != nil {
		return State{}, err
	}
	matches, err := h.store.ListMatches(ctx)
	if err != nil {
		return State{}, err
	}

	state := State{
		Requests: make([]RequestState, len(requests)),
		Matches:  make([]MatchState, len(matches)),
	}
	for i, r := range requests {
		state.Requests[i] = RequestState{ID: r.ID, Owner: r.Owner, Status: string(r.Status)}
	}
	for i, m := range matches {
		state.Matches[i] = MatchState{
			ID:        m.ID,
			RequestA:  m.RequestA,
			RequestB:  m.RequestB,
			Status:    string(m.Status),
			AcceptedA: m.AcceptedA,
			AcceptedB: m.AcceptedB,
		}
	}
	return state, nil
}

// counters flattens a report struct into its JSON counters.
func counters(report any) (map[string]int, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	var out map[string]int
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
