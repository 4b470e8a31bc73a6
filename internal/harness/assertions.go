package harness

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/sejongpeer/studybuddy/internal/buddy"
	"github.com/sejongpeer/studybuddy/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent // full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			switch event.Type {
			case EventStep:
				fmt.Fprintf(&buf, "  [%d] %s %s %s", event.Seq, event.Action, event.Actor, event.Request)
				if event.Error != "" {
					fmt.Fprintf(&buf, " error=%q", event.Error)
				}
				buf.WriteString("\n")
			case EventNotification:
				fmt.Fprintf(&buf, "  [%d]   -> %s %s\n", event.Seq, event.Member, event.Template)
			}
		}
	}
	return buf.String()
}

func assertRequestStatus(ctx context.Context, st *store.Store, a Assertion) error {
	r, err := st.GetRequest(ctx, a.Request)
	if errors.Is(err, buddy.ErrNotFound) {
		return &AssertionError{
			Type:     AssertRequestStatus,
			Expected: fmt.Sprintf("request %s in %s", a.Request, a.Status),
			Actual:   "request not found",
		}
	}
	if err != nil {
		return err
	}
	if string(r.Status) != a.Status {
		return &AssertionError{
			Type:     AssertRequestStatus,
			Expected: fmt.Sprintf("request %s in %s", a.Request, a.Status),
			Actual:   string(r.Status),
		}
	}
	return nil
}

func assertMatchStatus(ctx context.Context, st *store.Store, a Assertion) error {
	m, err := st.GetMatch(ctx, a.Match)
	if errors.Is(err, buddy.ErrNotFound) {
		return &AssertionError{
			Type:     AssertMatchStatus,
			Expected: fmt.Sprintf("match %s in %s", a.Match, a.Status),
			Actual:   "match not found",
		}
	}
	if err != nil {
		return err
	}
	if string(m.Status) != a.Status {
		return &AssertionError{
			Type:     AssertMatchStatus,
			Expected: fmt.Sprintf("match %s in %s", a.Match, a.Status),
			Actual:   string(m.Status),
		}
	}
	return nil
}

// assertMatchCount counts matches in the final state, optionally only those
// in Status.
func assertMatchCount(state State, a Assertion) error {
	count := 0
	for _, m := range state.Matches {
		if a.Status == "" || m.Status == a.Status {
			count++
		}
	}
	if count != a.Count {
		what := "matches"
		if a.Status != "" {
			what = a.Status + " matches"
		}
		return &AssertionError{
			Type:     AssertMatchCount,
			Expected: fmt.Sprintf("%d %s", a.Count, what),
			Actual:   fmt.Sprintf("%d %s", count, what),
		}
	}
	return nil
}

// sentTo reports whether ev is a notification matching member and template.
// Empty filters match anything.
func sentTo(ev TraceEvent, member, template string) bool {
	return ev.Type == EventNotification &&
		(member == "" || ev.Member == member) &&
		(template == "" || ev.Template == template)
}

func assertNotified(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if sentTo(ev, a.Member, a.Template) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertNotified,
		Expected: fmt.Sprintf("%s sent to %s", a.Template, a.Member),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

func assertNotificationCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if sentTo(ev, a.Member, a.Template) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertNotificationCount,
			Expected: fmt.Sprintf("%d notifications (member=%q template=%q)", a.Count, a.Member, a.Template),
			Actual:   fmt.Sprintf("%d notifications", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertNotificationOrder checks that the listed notifications appear in
// order. They need not be consecutive.
func assertNotificationOrder(trace []TraceEvent, a Assertion) error {
	positions := make([]int, len(a.Notifications))
	for i, n := range a.Notifications {
		for _, ev := range trace {
			if sentTo(ev, n.Member, n.Template) {
				positions[i] = ev.Seq
				break
			}
		}
		if positions[i] == 0 {
			return &AssertionError{
				Type:     AssertNotificationOrder,
				Expected: fmt.Sprintf("all notifications present: %v", a.Notifications),
				Actual:   fmt.Sprintf("missing %s to %s", n.Template, n.Member),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(positions); i++ {
		if positions[i-1] >= positions[i] {
			prev, curr := a.Notifications[i-1], a.Notifications[i]
			return &AssertionError{
				Type:     AssertNotificationOrder,
				Expected: fmt.Sprintf("notifications in order: %v", a.Notifications),
				Actual: fmt.Sprintf("%s to %s (seq %d) should be before %s to %s (seq %d)",
					prev.Template, prev.Member, positions[i-1], curr.Template, curr.Member, positions[i]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertFinalState checks that exactly one row of Table matches Where and
// that it holds the Expect values (subset semantics).
//
// Table and column names are validated against a whitelist pattern to
// prevent SQL injection via identifier interpolation.
func assertFinalState(ctx context.Context, st *store.Store, a Assertion) error {
	if !validIdentifier.MatchString(a.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", a.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(a.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", a.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.DB().QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, formatWhereClause(a.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", a.Table, formatWhereClause(a.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actual := make(map[string]any, len(columns))
	for i, col := range columns {
		actual[col] = values[i]
	}

	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		expected := a.Expect[key]
		got, ok := actual[key]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(expected, got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expected, expected),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, got, got),
			}
		}
	}
	return nil
}

// buildWhereClause constructs a parameterized WHERE clause. Keys are sorted
// for determinism.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, key+" = ?")
		args = append(args, toSQLValue(where[key]))
	}
	return strings.Join(clauses, " AND "), args, nil
}

func toSQLValue(v any) any {
	switch val := v.(type) {
	case string, int, int64, bool:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares a YAML value with a SQLite column value.
// SQLite returns integers as int64 and stores booleans as 0/1; TEXT
// columns may come back as []byte.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case string:
		got, ok := actual.(string)
		return ok && exp == got
	case int:
		got, ok := actual.(int64)
		return ok && int64(exp) == got
	case int64:
		got, ok := actual.(int64)
		return ok && exp == got
	case bool:
		if got, ok := actual.(bool); ok {
			return exp == got
		}
		got, ok := actual.(int64)
		return ok && exp == (got != 0)
	}
	return reflect.DeepEqual(expected, actual)
}

// AssertionContext provides database access for state assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertRequestStatus, AssertMatchStatus, AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, a.Type)
				break
			}
			switch a.Type {
			case AssertRequestStatus:
				err = assertRequestStatus(actx.Ctx, actx.Store, a)
			case AssertMatchStatus:
				err = assertMatchStatus(actx.Ctx, actx.Store, a)
			default:
				err = assertFinalState(actx.Ctx, actx.Store, a)
			}
		case AssertMatchCount:
			err = assertMatchCount(result.State, a)
		case AssertNotified:
			err = assertNotified(result.Trace, a)
		case AssertNotificationCount:
			err = assertNotificationCount(result.Trace, a)
		case AssertNotificationOrder:
			err = assertNotificationOrder(result.Trace, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}
