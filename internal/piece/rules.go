package piece

import (
	"context"
	"strings"
)

// Unmatched is the sentinel index returned when no cascade stage matches.
const Unmatched = -1

// MatchResult is the outcome of running the five-stage rule cascade.
type MatchResult struct {
	Index  int
	Method MatchMethod
}

// Matched reports whether the cascade found a rule.
func (r MatchResult) Matched() bool { return r.Index != Unmatched }

// Evaluator implements the five-stage rule cascade (spec §4.3). It is
// stateless: all state it needs is passed in per call.
type Evaluator struct {
	Detect RuleDetector
	Judge  AIJudge
}

// Evaluate runs the cascade for one movement. childContents is only
// consulted when non-nil, i.e. when movement.Parallel is set; callers
// outside ParallelRunner pass nil.
//
// Stages are tried in strict order; the first match wins and no later
// stage is consulted.
func (e *Evaluator) Evaluate(ctx context.Context, movement *Movement, phase1Content, phase3Tag string, childContents []string) MatchResult {
	if len(movement.Rules) == 0 {
		return MatchResult{Index: Unmatched}
	}

	if childContents != nil {
		if m := evaluateAggregate(movement.Rules, childContents); m.Matched() {
			return m
		}
	}

	if e.Detect != nil && phase3Tag != "" {
		if idx := e.Detect(phase3Tag, movement.Name); idx >= 0 && idx < len(movement.Rules) {
			return MatchResult{Index: idx, Method: MethodPhase3Tag}
		}
	}

	if e.Detect != nil && phase1Content != "" {
		if idx := e.Detect(phase1Content, movement.Name); idx >= 0 && idx < len(movement.Rules) {
			return MatchResult{Index: idx, Method: MethodPhase1Tag}
		}
	}

	if e.Judge != nil {
		if conds := aiConditions(movement.Rules); len(conds) > 0 {
			if idx := e.Judge(ctx, phase1Content, conds); idx >= 0 {
				if real, ok := resolveCondition(conds, idx); ok {
					return MatchResult{Index: real, Method: MethodAIJudge}
				}
			}
		}
	}

	if e.Judge != nil {
		conds := allConditions(movement.Rules)
		if idx := e.Judge(ctx, phase1Content, conds); idx >= 0 && idx < len(movement.Rules) {
			return MatchResult{Index: idx, Method: MethodAIJudgeFallback}
		}
	}

	return MatchResult{Index: Unmatched}
}

// evaluateAggregate implements stage 1: all(...)/any(...) rules over a
// parallel movement's children, in parent declaration order. The earliest
// matching rule index wins (property 4: an all rule declared before an any
// rule precedes it when both match).
func evaluateAggregate(rules []Rule, childContents []string) MatchResult {
	for i, r := range rules {
		if r.Kind != RuleKindAggregate {
			continue
		}
		switch r.AggregateOp {
		case AggregateAll:
			if allContain(childContents, r.AggregateTarget, r.AggregateCaseInsensitive) {
				return MatchResult{Index: i, Method: MethodAggregate}
			}
		case AggregateAny:
			if anyContain(childContents, r.AggregateTarget, r.AggregateCaseInsensitive) {
				return MatchResult{Index: i, Method: MethodAggregate}
			}
		}
	}
	return MatchResult{Index: Unmatched}
}

func allContain(contents []string, target string, caseInsensitive bool) bool {
	if len(contents) == 0 {
		return false
	}
	for _, c := range contents {
		if !containsTarget(c, target, caseInsensitive) {
			return false
		}
	}
	return true
}

func anyContain(contents []string, target string, caseInsensitive bool) bool {
	for _, c := range contents {
		if containsTarget(c, target, caseInsensitive) {
			return true
		}
	}
	return false
}

func containsTarget(content, target string, caseInsensitive bool) bool {
	if caseInsensitive {
		return strings.Contains(strings.ToLower(content), strings.ToLower(target))
	}
	return strings.Contains(content, target)
}

// aiConditions collects RuleKindAI rules, preserving their original rule
// index so the cascade can translate a judge's answer back into the
// movement's rule list.
func aiConditions(rules []Rule) []JudgeCondition {
	var out []JudgeCondition
	for i, r := range rules {
		if r.Kind == RuleKindAI {
			out = append(out, JudgeCondition{Index: i, Text: r.Condition})
		}
	}
	return out
}

// allConditions builds the fallback condition list (stage 5) spanning
// every rule regardless of kind.
func allConditions(rules []Rule) []JudgeCondition {
	out := make([]JudgeCondition, len(rules))
	for i, r := range rules {
		out[i] = JudgeCondition{Index: i, Text: r.Condition}
	}
	return out
}

// resolveCondition maps a judge's answer (an index into the conds slice
// passed to it) back to the original rule index.
func resolveCondition(conds []JudgeCondition, answer int) (int, bool) {
	if answer < 0 || answer >= len(conds) {
		return 0, false
	}
	return conds[answer].Index, true
}
