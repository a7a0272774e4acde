package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStructuredOutput_DirectJSON(t *testing.T) {
	r, ok := ParseStructuredOutput(`{"step": 2, "reason": "matches"}`)
	require.True(t, ok)
	assert.Equal(t, 2, r.Step)
	assert.Equal(t, "matches", r.Reason)
}

func TestParseStructuredOutput_FencedBlockWithJSONLabel(t *testing.T) {
	raw := "Here is my answer:\n```json\n{\"step\": 1, \"reason\": \"ok\"}\n```\nThanks."
	r, ok := ParseStructuredOutput(raw)
	require.True(t, ok)
	assert.Equal(t, 1, r.Step)
}

func TestParseStructuredOutput_FencedBlockWithoutLabel(t *testing.T) {
	raw := "```\n{\"step\": 3, \"reason\": \"x\"}\n```"
	r, ok := ParseStructuredOutput(raw)
	require.True(t, ok)
	assert.Equal(t, 3, r.Step)
}

func TestParseStructuredOutput_BraceExtractionFromProse(t *testing.T) {
	raw := `I think the answer is {"step": 4, "reason": "because"} based on the above.`
	r, ok := ParseStructuredOutput(raw)
	require.True(t, ok)
	assert.Equal(t, 4, r.Step)
}

func TestParseStructuredOutput_NestedBracesBalanced(t *testing.T) {
	raw := `{"step": 1, "reason": "nested {braces} inside"}`
	r, ok := ParseStructuredOutput(raw)
	require.True(t, ok)
	assert.Equal(t, 1, r.Step)
}

func TestParseStructuredOutput_RejectsArray(t *testing.T) {
	_, ok := ParseStructuredOutput(`[{"step": 1}]`)
	assert.False(t, ok)
}

func TestParseStructuredOutput_RejectsBarePrimitive(t *testing.T) {
	_, ok := ParseStructuredOutput(`"just a string"`)
	assert.False(t, ok)
}

func TestParseStructuredOutput_RejectsZeroStep(t *testing.T) {
	_, ok := ParseStructuredOutput(`{"step": 0, "reason": "nothing"}`)
	assert.False(t, ok)
}

func TestParseStructuredOutput_RejectsMissingStep(t *testing.T) {
	_, ok := ParseStructuredOutput(`{"reason": "no step field"}`)
	assert.False(t, ok)
}

func TestParseStructuredOutput_EmptyStringRejected(t *testing.T) {
	_, ok := ParseStructuredOutput("")
	assert.False(t, ok)
}

func TestParseStructuredOutput_NoJSONAnywhere(t *testing.T) {
	_, ok := ParseStructuredOutput("just plain prose, no braces at all")
	assert.False(t, ok)
}

func TestParseStructuredOutput_UnterminatedFenceFallsBackToBraces(t *testing.T) {
	raw := "```json\n{\"step\": 2, \"reason\": \"x\"}"
	r, ok := ParseStructuredOutput(raw)
	require.True(t, ok)
	assert.Equal(t, 2, r.Step)
}
