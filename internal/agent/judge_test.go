package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/cadenzalabs/ensemble/internal/piece"
	"github.com/stretchr/testify/assert"
)

func TestAIJudge_ReturnsResolvedIndex(t *testing.T) {
	caller := NewMockProvider([]piece.CallResult{
		{Content: `{"step": 2, "reason": "second condition fits"}`, Status: piece.StatusDone},
	})
	conditions := []piece.JudgeCondition{{Index: 0, Text: "a"}, {Index: 1, Text: "b"}}
	idx := AIJudge(context.Background(), caller, "content", conditions)
	assert.Equal(t, 1, idx)
}

func TestAIJudge_NilCallerReturnsNegativeOne(t *testing.T) {
	conditions := []piece.JudgeCondition{{Index: 0, Text: "a"}}
	idx := AIJudge(context.Background(), nil, "content", conditions)
	assert.Equal(t, -1, idx)
}

func TestAIJudge_NoConditionsReturnsNegativeOne(t *testing.T) {
	caller := NewMockProvider(nil)
	idx := AIJudge(context.Background(), caller, "content", nil)
	assert.Equal(t, -1, idx)
}

func TestAIJudge_UnparsableResponseReturnsNegativeOne(t *testing.T) {
	caller := NewMockProvider([]piece.CallResult{
		{Content: "not json at all", Status: piece.StatusDone},
	})
	conditions := []piece.JudgeCondition{{Index: 0, Text: "a"}}
	idx := AIJudge(context.Background(), caller, "content", conditions)
	assert.Equal(t, -1, idx)
}

func TestAIJudge_OutOfRangeStepReturnsNegativeOne(t *testing.T) {
	caller := NewMockProvider([]piece.CallResult{
		{Content: `{"step": 9, "reason": "way out of range"}`, Status: piece.StatusDone},
	})
	conditions := []piece.JudgeCondition{{Index: 0, Text: "a"}}
	idx := AIJudge(context.Background(), caller, "content", conditions)
	assert.Equal(t, -1, idx)
}

type erroringAgent struct{}

func (erroringAgent) Call(ctx context.Context, prompt string, opts piece.CallOptions) (piece.CallResult, error) {
	return piece.CallResult{}, errors.New("boom")
}

func TestAIJudge_CallErrorReturnsNegativeOne(t *testing.T) {
	conditions := []piece.JudgeCondition{{Index: 0, Text: "a"}}
	idx := AIJudge(context.Background(), erroringAgent{}, "content", conditions)
	assert.Equal(t, -1, idx)
}
