package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectRuleIndex_BasicMatch(t *testing.T) {
	assert.Equal(t, 1, DetectRuleIndex("all done [REVIEW:2]", "review"))
}

func TestDetectRuleIndex_CaseInsensitiveMovementName(t *testing.T) {
	assert.Equal(t, 0, DetectRuleIndex("[Review:1]", "REVIEW"))
}

func TestDetectRuleIndex_LastMatchWins(t *testing.T) {
	content := "[REVIEW:1] some text [REVIEW:3] more text"
	assert.Equal(t, 2, DetectRuleIndex(content, "review"))
}

func TestDetectRuleIndex_IgnoresOtherMovementTags(t *testing.T) {
	content := "[OTHER:5] [REVIEW:2]"
	assert.Equal(t, 1, DetectRuleIndex(content, "review"))
}

func TestDetectRuleIndex_RejectsZeroAndNegative(t *testing.T) {
	assert.Equal(t, -1, DetectRuleIndex("[REVIEW:0]", "review"))
	assert.Equal(t, -1, DetectRuleIndex("[REVIEW:-1]", "review"))
}

func TestDetectRuleIndex_NoMatchReturnsNegativeOne(t *testing.T) {
	assert.Equal(t, -1, DetectRuleIndex("no tags here", "review"))
}

func TestDetectRuleIndex_HyphenatedMovementName(t *testing.T) {
	assert.Equal(t, 0, DetectRuleIndex("[FINAL-REVIEW:1]", "final-review"))
}
