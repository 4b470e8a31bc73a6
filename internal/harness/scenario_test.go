package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: pair
description: two members are paired
timeout: 12h
flow:
  - action: submit
    owner: m1
    scope: SAME_COLLEGE
    college: Engineering
  - action: match
    expect:
      report:
        paired: 0
assertions:
  - type: request_status
    request: req-1
    status: WAITING
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "pair", scenario.Name)
	require.Len(t, scenario.Flow, 2)
	assert.Equal(t, "Engineering", scenario.Flow[0].College)
	assert.Equal(t, map[string]int{"paired": 0}, scenario.Flow[1].Expect.Report)
	require.Len(t, scenario.Assertions, 1)
	assert.Equal(t, AssertRequestStatus, scenario.Assertions[0].Type)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: assertion is misspelled
flow:
  - action: match
assertion:
  - type: match_count
    count: 0
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertion")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: d\nflow: [{action: match}]\nassertions: [{type: match_count}]\n",
			wantErr: "name is required",
		},
		{
			name:    "empty flow",
			content: "name: n\ndescription: d\nassertions: [{type: match_count}]\n",
			wantErr: "flow list is required",
		},
		{
			name:    "no assertions",
			content: "name: n\ndescription: d\nflow: [{action: match}]\n",
			wantErr: "assertions list is required",
		},
		{
			name:    "bad timeout",
			content: "name: n\ndescription: d\ntimeout: -1h\nflow: [{action: match}]\nassertions: [{type: match_count}]\n",
			wantErr: "positive duration",
		},
		{
			name:    "unknown action",
			content: "name: n\ndescription: d\nflow: [{action: pair}]\nassertions: [{type: match_count}]\n",
			wantErr: `flow[0]: unknown action "pair"`,
		},
		{
			name:    "submit without scope",
			content: "name: n\ndescription: d\nflow: [{action: submit, owner: m1}]\nassertions: [{type: match_count}]\n",
			wantErr: "scope is required",
		},
		{
			name:    "accept without request",
			content: "name: n\ndescription: d\nflow: [{action: accept, actor: m1}]\nassertions: [{type: match_count}]\n",
			wantErr: "actor and request are required",
		},
		{
			name:    "advance without duration",
			content: "name: n\ndescription: d\nflow: [{action: advance}]\nassertions: [{type: match_count}]\n",
			wantErr: "positive duration in by",
		},
		{
			name:    "report on submit",
			content: "name: n\ndescription: d\nflow: [{action: submit, owner: m1, scope: ALL, expect: {report: {paired: 1}}}]\nassertions: [{type: match_count}]\n",
			wantErr: "only match and reconcile",
		},
		{
			name:    "expect in setup",
			content: "name: n\ndescription: d\nsetup: [{action: match, expect: {error: x}}]\nflow: [{action: match}]\nassertions: [{type: match_count}]\n",
			wantErr: "setup steps cannot have expect",
		},
		{
			name:    "unknown assertion",
			content: "name: n\ndescription: d\nflow: [{action: match}]\nassertions: [{type: trace_contains}]\n",
			wantErr: `unknown assertion type "trace_contains"`,
		},
		{
			name:    "final_state without expect",
			content: "name: n\ndescription: d\nflow: [{action: match}]\nassertions: [{type: final_state, table: buddy_matches}]\n",
			wantErr: "expect is required",
		},
		{
			name:    "order of one",
			content: "name: n\ndescription: d\nflow: [{action: match}]\nassertions: [{type: notification_order, notifications: [{member: m1, template: MATCH_FOUND}]}]\n",
			wantErr: "at least two notifications",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
