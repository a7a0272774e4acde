package piece

import (
	"strconv"
	"strings"
)

// InstructionContext carries everything InstructionBuilder needs to render
// a Phase 1 prompt for one movement execution.
type InstructionContext struct {
	Task             string
	PreviousResponse *AgentResponse
	PersonaText      string
	PolicyContents   []string
	Knowledge        []string
	Rules            []Rule
	UserInputs       []string
	QualityGates     []string
	// ReportHeader, when true, instructs the agent that this movement owns
	// report contracts and should not yet write them (Phase 1 only
	// produces judgable content; Phase 2 writes the files).
	ReportHeader bool
	// Appendix is the instruction fragment of the rule that routed into
	// this movement from the previous one, if that rule carried one.
	Appendix string
}

// InstructionBuilder composes the Phase 1 prompt from ordered sections.
// Missing sections are skipped entirely rather than rendered empty.
type InstructionBuilder struct{}

// Build renders the instruction text for one movement, following the
// section order specced in §4.6: task header, persona, policy, knowledge,
// previous-response, rules, user-inputs, quality-gates, report-header,
// appendix.
func (InstructionBuilder) Build(ctx InstructionContext) string {
	var b strings.Builder

	writeSection := func(header, body string) {
		if body == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if header != "" {
			b.WriteString(header)
			b.WriteString("\n")
		}
		b.WriteString(body)
	}

	writeSection("## Task", ctx.Task)
	writeSection("## Persona", ctx.PersonaText)

	if len(ctx.PolicyContents) > 0 {
		writeSection("## Policy", strings.Join(ctx.PolicyContents, "\n\n"))
	}
	if len(ctx.Knowledge) > 0 {
		writeSection("## Knowledge", strings.Join(ctx.Knowledge, "\n---\n"))
	}

	if ctx.PreviousResponse != nil {
		writeSection("## Previous Response", ctx.PreviousResponse.Content)
	}

	if len(ctx.Rules) > 0 {
		writeSection("## Rules", renderRules(ctx.Rules))
	}

	if len(ctx.UserInputs) > 0 {
		writeSection("## User Input", strings.Join(ctx.UserInputs, "\n"))
	}

	if len(ctx.QualityGates) > 0 {
		writeSection("## Quality Gates", strings.Join(ctx.QualityGates, "\n"))
	}

	if ctx.ReportHeader {
		writeSection("## Reports", "Do not write report files yet; they are produced in a later phase.")
	}

	if ctx.Appendix != "" {
		writeSection("## Appendix", ctx.Appendix)
	}

	return b.String()
}

// renderRules formats rules as a human-readable enumerated list, 1-based
// for display, matching the `[MOVEMENT:N]` tag convention agents are asked
// to emit.
func renderRules(rules []Rule) string {
	var b strings.Builder
	for i, r := range rules {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(ruleBullet(i, r))
	}
	return b.String()
}

func ruleBullet(i int, r Rule) string {
	return "- " + strconv.Itoa(i+1) + ". " + r.Condition
}
