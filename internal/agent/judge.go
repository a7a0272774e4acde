package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/cadenzalabs/ensemble/internal/piece"
)

// AIJudge issues a single structured-output Call to caller (the same Agent
// interface movements use), asking it to pick the best-matching condition
// index. It returns -1 on any failure to parse or an out-of-range answer.
// The engine treats this as opaque; only the conditions list and returned
// index matter.
func AIJudge(ctx context.Context, caller piece.Agent, content string, conditions []piece.JudgeCondition) int {
	if caller == nil || len(conditions) == 0 {
		return -1
	}

	prompt := buildJudgePrompt(content, conditions)
	result, err := caller.Call(ctx, prompt, piece.CallOptions{
		OutputSchema: judgeSchema,
	})
	if err != nil {
		return -1
	}

	parsed, ok := ParseStructuredOutput(result.Content)
	if !ok {
		return -1
	}
	idx := parsed.Step - 1
	if idx < 0 || idx >= len(conditions) {
		return -1
	}
	return idx
}

var judgeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"step":   map[string]any{"type": "integer"},
		"reason": map[string]any{"type": "string"},
	},
	"required": []string{"step"},
}

func buildJudgePrompt(content string, conditions []piece.JudgeCondition) string {
	var b strings.Builder
	b.WriteString("Given the following output, choose which condition best matches.\n\n")
	for i, c := range conditions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.Text)
	}
	b.WriteString("\nRespond with JSON: {\"step\": <1..")
	fmt.Fprintf(&b, "%d", len(conditions))
	b.WriteString(">, \"reason\": \"...\"}\n\n## Output\n")
	b.WriteString(content)
	return b.String()
}
