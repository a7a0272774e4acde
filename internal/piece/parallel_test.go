package piece

import (
	"context"
	"testing"

	"github.com/cadenzalabs/ensemble/internal/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelRunner_AggregatesInDeclarationOrder(t *testing.T) {
	evaluator := &Evaluator{Detect: agent.DetectRuleIndex}
	executor := NewMovementExecutor(evaluator, agent.DetectRuleIndex, agent.ParseStructuredOutput)
	runner := NewParallelRunner(executor, evaluator)

	movement := &Movement{
		Name: "fanout",
		Parallel: []Movement{
			{Name: "alpha"},
			{Name: "beta"},
			{Name: "gamma"},
		},
	}

	providers := map[string]*agent.MockProvider{
		"alpha": agent.NewMockProvider([]CallResult{{Content: "alpha ok", Status: StatusDone}}),
		"beta":  agent.NewMockProvider([]CallResult{{Content: "beta ok", Status: StatusDone}}),
		"gamma": agent.NewMockProvider([]CallResult{{Content: "gamma ok", Status: StatusDone}}),
	}
	resolve := func(child *Movement) *ExecContext {
		return &ExecContext{
			Agent:       providers[child.Name],
			SessionKey:  child.Name,
			AbortSignal: make(chan struct{}),
		}
	}

	aggregated, results, err := runner.Run(context.Background(), movement, resolve, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "alpha", results[0].name)
	assert.Equal(t, "beta", results[1].name)
	assert.Equal(t, "gamma", results[2].name)

	alphaIdx := indexOf(aggregated.Content, "alpha ok")
	betaIdx := indexOf(aggregated.Content, "beta ok")
	gammaIdx := indexOf(aggregated.Content, "gamma ok")
	assert.True(t, alphaIdx < betaIdx && betaIdx < gammaIdx)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// failingAgent always errors with a plain error, distinct from
// context.Canceled, so Execute maps its response to StatusError rather
// than StatusInterrupted.
type failingAgent struct{}

func (failingAgent) Call(ctx context.Context, prompt string, opts CallOptions) (CallResult, error) {
	return CallResult{}, errTestAgentFailure
}

var errTestAgentFailure = assert.AnError

func TestParallelRunner_AllFailedReturnsErrAllParallelFailed(t *testing.T) {
	evaluator := &Evaluator{}
	executor := NewMovementExecutor(evaluator, nil, nil)
	runner := NewParallelRunner(executor, evaluator)

	movement := &Movement{
		Name: "fanout",
		Parallel: []Movement{
			{Name: "alpha"},
			{Name: "beta"},
		},
	}
	resolve := func(child *Movement) *ExecContext {
		return &ExecContext{
			Agent:       failingAgent{},
			SessionKey:  child.Name,
			AbortSignal: make(chan struct{}),
		}
	}

	_, results, err := runner.Run(context.Background(), movement, resolve, nil)
	require.ErrorIs(t, err, ErrAllParallelFailed)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, StatusError, r.response.Status)
	}
}

func TestParallelRunner_SiblingNotCancelledWhenOneFails(t *testing.T) {
	evaluator := &Evaluator{}
	executor := NewMovementExecutor(evaluator, nil, nil)
	runner := NewParallelRunner(executor, evaluator)

	movement := &Movement{
		Name: "fanout",
		Parallel: []Movement{
			{Name: "failing"},
			{Name: "succeeding"},
		},
	}
	resolve := func(child *Movement) *ExecContext {
		if child.Name == "failing" {
			abortCh := make(chan struct{})
			close(abortCh)
			return &ExecContext{Agent: agent.NewMockProvider(nil), SessionKey: child.Name, AbortSignal: abortCh}
		}
		return &ExecContext{
			Agent:       agent.NewMockProvider([]CallResult{{Content: "fine", Status: StatusDone}}),
			SessionKey:  child.Name,
			AbortSignal: make(chan struct{}),
		}
	}

	aggregated, results, err := runner.Run(context.Background(), movement, resolve, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusInterrupted, results[0].response.Status)
	assert.Equal(t, StatusDone, results[1].response.Status)
	assert.Contains(t, aggregated.Content, "fine")
}

func TestParallelRunner_AggregateRuleOverChildren(t *testing.T) {
	evaluator := &Evaluator{}
	executor := NewMovementExecutor(evaluator, nil, nil)
	runner := NewParallelRunner(executor, evaluator)

	movement := &Movement{
		Name: "fanout",
		Rules: []Rule{
			{Kind: RuleKindAggregate, AggregateOp: AggregateAll, AggregateTarget: "ok"},
		},
		Parallel: []Movement{
			{Name: "alpha"},
			{Name: "beta"},
		},
	}
	resolve := func(child *Movement) *ExecContext {
		return &ExecContext{
			Agent:       agent.NewMockProvider([]CallResult{{Content: "it is ok", Status: StatusDone}}),
			SessionKey:  child.Name,
			AbortSignal: make(chan struct{}),
		}
	}

	aggregated, _, err := runner.Run(context.Background(), movement, resolve, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, aggregated.MatchedRuleIndex)
	assert.Equal(t, MethodAggregate, aggregated.MatchedRuleMethod)
}
