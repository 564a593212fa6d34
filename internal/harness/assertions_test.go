package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *Result {
	r := NewResult()
	r.Cases = []CaseResult{{Name: "one", Token: "t-1"}, {Name: "two", Token: "t-2"}}
	r.Trace = []TraceEvent{
		{Seq: 1, Token: "t-1", Stage: "classified", EntryType: "post"},
		{Seq: 2, Token: "t-1", Stage: "resolved", EntryType: "post", Module: "posts"},
		{Seq: 3, Token: "t-1", Stage: "invoked", EntryType: "post", Module: "posts", Function: "validate_post"},
		{Seq: 4, Token: "t-1", Stage: "interpreted", EntryType: "post", Module: "posts", Function: "validate_post", Outcome: "pass"},
		{Seq: 5, Token: "t-2", Stage: "classified", EntryType: "%agent_id"},
		{Seq: 6, Token: "t-2", Stage: "interpreted", EntryType: "%agent_id", Outcome: "not_implemented"},
	}
	return r
}

func TestAssertTraceContains(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertTraceContains(r.Trace, Assertion{Stage: "invoked", Match: map[string]string{"function": "validate_post"}}))

	a := Assertion{Case: "two", Stage: "invoked"}
	err := assertTraceContains(scopedTrace(r, a), a)
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Len(t, ae.Trace, 2)
	assert.Contains(t, err.Error(), `in case "two"`)
}

func TestAssertTraceOrder(t *testing.T) {
	r := sampleResult()

	ok := Assertion{Case: "one", Stages: []string{"classified", "invoked", "interpreted"}}
	assert.NoError(t, assertTraceOrder(scopedTrace(r, ok), ok))

	reversed := Assertion{Case: "one", Stages: []string{"interpreted", "classified"}}
	err := assertTraceOrder(scopedTrace(r, reversed), reversed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage classified not found after [interpreted]")
}

func TestAssertTraceCount(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertTraceCount(r.Trace, Assertion{Stage: "interpreted", Count: 2}))
	assert.NoError(t, assertTraceCount(r.Trace, Assertion{Stage: "interpreted", Match: map[string]string{"outcome": "pass"}, Count: 1}))

	a := Assertion{Case: "two", Stage: "resolved", Count: 1}
	err := assertTraceCount(scopedTrace(r, a), a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0 events")
}

func TestScopedTraceUnknownCase(t *testing.T) {
	assert.Empty(t, scopedTrace(sampleResult(), Assertion{Case: "missing"}))
}

func TestBuildWhereClause(t *testing.T) {
	sql, args, err := buildWhereClause(map[string]any{"token": "t-1", "app": "blog"})
	require.NoError(t, err)
	assert.Equal(t, "app = ? AND token = ?", sql)
	assert.Equal(t, []any{"blog", "t-1"}, args)

	_, _, err = buildWhereClause(map[string]any{"token; DROP TABLE verdicts": "x"})
	assert.Error(t, err)
}

func TestStateValuesEqual(t *testing.T) {
	assert.True(t, stateValuesEqual("pass", "pass"))
	assert.True(t, stateValuesEqual("pass", []byte("pass")))
	assert.True(t, stateValuesEqual(3, int64(3)))
	assert.True(t, stateValuesEqual(true, int64(1)))
	assert.True(t, stateValuesEqual(nil, nil))
	assert.False(t, stateValuesEqual("pass", nil))
	assert.False(t, stateValuesEqual("3", int64(3)))
}

func TestEvaluateAssertions_FinalStateNeedsStore(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{{Type: AssertFinalState, Table: "verdicts", Expect: map[string]any{"x": 1}}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "requires database context")
}
