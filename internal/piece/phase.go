package piece

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StructuredResult is the `{step, reason}` shape a Phase 3 structured-output
// judge call is asked to produce.
type StructuredResult struct {
	Step   int
	Reason string
}

// StructuredParser is the pure collaborator that recovers a StructuredResult
// from raw agent content: direct JSON, a fenced code block, or a
// brace-delimited substring. Concrete implementations live outside this
// package (internal/agent.ParseStructuredOutput satisfies this signature).
type StructuredParser func(raw string) (StructuredResult, bool)

// PhaseHooks lets callers observe phase boundaries for NDJSON logging and
// streaming UIs without the executor depending on either concern.
type PhaseHooks struct {
	OnPhaseStart    func(phase Phase, instruction string)
	OnPhaseComplete func(phase Phase, status AgentStatus, content string, err error)
}

func (h PhaseHooks) start(phase Phase, instruction string) {
	if h.OnPhaseStart != nil {
		h.OnPhaseStart(phase, instruction)
	}
}

func (h PhaseHooks) complete(phase Phase, status AgentStatus, content string, err error) {
	if h.OnPhaseComplete != nil {
		h.OnPhaseComplete(phase, status, content, err)
	}
}

// runReportPhase implements Phase 2: for each declared contract, issue a
// focused agent call instructing the agent to write
// `{reportDir}/{name}`, then verify the file exists and read it back.
func (ex *MovementExecutor) runReportPhase(ctx context.Context, movement *Movement, ectx *ExecContext, hooks PhaseHooks) ([]string, error) {
	if len(movement.OutputContracts) == 0 {
		return nil, nil
	}

	contracts := make([]OutputContract, len(movement.OutputContracts))
	copy(contracts, movement.OutputContracts)
	sortContracts(contracts)

	contents := make([]string, 0, len(contracts))
	for _, contract := range contracts {
		instruction := buildReportInstruction(contract)
		hooks.start(PhaseReport, instruction)

		result, err := ex.callAgent(ctx, ectx, instruction)
		if err != nil {
			hooks.complete(PhaseReport, StatusError, "", err)
			return contents, err
		}

		path := filepath.Join(ectx.ReportDir, contract.Name)
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			hooks.complete(PhaseReport, StatusError, "", readErr)
			return contents, fmt.Errorf("report phase: contract %q not written to %s: %w", contract.Name, path, readErr)
		}
		hooks.complete(PhaseReport, result.Status, string(data), nil)
		contents = append(contents, string(data))
	}
	return contents, nil
}

func sortContracts(contracts []OutputContract) {
	for i := 1; i < len(contracts); i++ {
		for j := i; j > 0 && contracts[j].Order < contracts[j-1].Order; j-- {
			contracts[j], contracts[j-1] = contracts[j-1], contracts[j]
		}
	}
}

func buildReportInstruction(c OutputContract) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the file %q.", c.Name)
	if c.Format != "" {
		b.WriteString("\nFormat:\n")
		b.WriteString(c.Format)
	}
	return b.String()
}

// judgeOutcome is the result of the Phase 3 two-step cascade: a structured
// or tag-based match, or neither (falling through to the shared evaluator
// on Phase 1 content).
type judgeOutcome struct {
	matched bool
	index   int
	method  MatchMethod
	tag     string
}

// runJudgmentPhase implements Phase 3: build the judgment prompt from
// either the concatenated report files or the Phase 1 content, then ask
// the agent twice in cascade (structured output, then free-form tag)
// before falling through to the shared RuleEvaluator.
func (ex *MovementExecutor) runJudgmentPhase(ctx context.Context, movement *Movement, ectx *ExecContext, phase1Content string, reportContents []string, hooks PhaseHooks) judgeOutcome {
	if len(movement.Rules) == 0 {
		return judgeOutcome{}
	}

	judged := phase1Content
	if len(reportContents) > 0 {
		judged = strings.Join(reportContents, "\n---\n")
	}

	structuredInstruction := buildStructuredJudgeInstruction(movement.Rules, judged)
	hooks.start(PhaseJudge, structuredInstruction)
	result, err := ex.callAgent(ctx, ectx, structuredInstruction)
	if err == nil {
		hooks.complete(PhaseJudge, result.Status, result.Content, nil)
		if ex.parseStructured != nil {
			if parsed, ok := ex.parseStructured(result.Content); ok {
				if idx := parsed.Step - 1; idx >= 0 && idx < len(movement.Rules) {
					return judgeOutcome{matched: true, index: idx, method: MethodStructured}
				}
			}
		}
	} else {
		hooks.complete(PhaseJudge, StatusError, "", err)
	}

	tagInstruction := buildTagJudgeInstruction(movement.Name, judged)
	hooks.start(PhaseJudge, tagInstruction)
	tagResult, tagErr := ex.callAgent(ctx, ectx, tagInstruction)
	if tagErr == nil {
		hooks.complete(PhaseJudge, tagResult.Status, tagResult.Content, nil)
		if ex.detect != nil {
			if idx := ex.detect(tagResult.Content, movement.Name); idx >= 0 && idx < len(movement.Rules) {
				return judgeOutcome{matched: true, index: idx, method: MethodPhase3Tag, tag: tagResult.Content}
			}
		}
		return judgeOutcome{tag: tagResult.Content}
	}
	hooks.complete(PhaseJudge, StatusError, "", tagErr)
	return judgeOutcome{}
}

func buildStructuredJudgeInstruction(rules []Rule, content string) string {
	var b strings.Builder
	b.WriteString("## Judgment\n")
	b.WriteString("Given the following output, choose which rule applies.\n")
	b.WriteString(renderRules(rules))
	b.WriteString("\n\nRespond with JSON: {\"step\": <1..")
	b.WriteString(fmt.Sprintf("%d", len(rules)))
	b.WriteString(">, \"reason\": \"...\"}\n\n## Output\n")
	b.WriteString(content)
	return b.String()
}

func buildTagJudgeInstruction(movementName, content string) string {
	var b strings.Builder
	b.WriteString("## Judgment\n")
	fmt.Fprintf(&b, "Respond with a single tag of the form [%s:N] where N is the 1-based rule number that applies.\n\n## Output\n", strings.ToUpper(movementName))
	b.WriteString(content)
	return b.String()
}
