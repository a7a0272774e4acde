package piece

import (
	"context"
	"errors"
)

// ExecContext carries the per-call environment a MovementExecutor needs
// that is not part of the static Movement/Config: the resolved agent, the
// session cache accessors, and the previous movement's output.
type ExecContext struct {
	Agent Agent

	Cwd       string
	ReportDir string
	Language  string

	SessionKey      string
	CachedSessionID string

	// Model, Edit, PermissionMode, and AllowedTools are the movement's
	// loader-normalized provider-capability overrides, passed straight
	// through to every Agent.Call this movement issues.
	Model          string
	Edit           bool
	PermissionMode PermissionMode
	AllowedTools   []string

	PreviousResponse *AgentResponse
	UserInputs       []string

	// Appendix is the instruction fragment carried forward from the rule
	// that routed into this movement, if any.
	Appendix string

	AbortSignal <-chan struct{}

	SetSession   func(key, id string)
	ClearSession func(key string)
}

// MovementExecutor runs the three-phase protocol (execute, report, judge)
// for one non-parallel movement.
type MovementExecutor struct {
	instructions InstructionBuilder
	evaluator    *Evaluator

	detect          RuleDetector
	parseStructured StructuredParser
}

// NewMovementExecutor builds an executor with the engine's injected
// collaborators.
func NewMovementExecutor(evaluator *Evaluator, detect RuleDetector, parseStructured StructuredParser) *MovementExecutor {
	return &MovementExecutor{evaluator: evaluator, detect: detect, parseStructured: parseStructured}
}

// Execute runs Phase 1 (always), Phase 2 (if the movement owns report
// contracts), and Phase 3 (if the movement has rules), returning the
// movement's final AgentResponse with MatchedRuleIndex/Method set.
func (ex *MovementExecutor) Execute(ctx context.Context, movement *Movement, ectx *ExecContext, hooks PhaseHooks) (AgentResponse, error) {
	instruction := ex.instructions.Build(InstructionContext{
		Task:             movement.InstructionTemplate,
		PreviousResponse: previousIfWanted(movement, ectx.PreviousResponse),
		PersonaText:      movement.PersonaText,
		PolicyContents:   movement.PolicyContents,
		Knowledge:        movement.KnowledgeContents,
		Rules:            movement.Rules,
		UserInputs:       ectx.UserInputs,
		QualityGates:     movement.QualityGates,
		ReportHeader:     len(movement.OutputContracts) > 0,
		Appendix:         ectx.Appendix,
	})

	hooks.start(PhaseExecute, instruction)

	if movement.Session == SessionRefresh && ectx.ClearSession != nil {
		ectx.ClearSession(ectx.SessionKey)
		ectx.CachedSessionID = ""
	}

	result, err := ex.callAgent(ctx, ectx, instruction)
	if err != nil && errors.Is(err, ErrStaleSession) {
		if ectx.ClearSession != nil {
			ectx.ClearSession(ectx.SessionKey)
		}
		ectx.CachedSessionID = ""
		result, err = ex.callAgent(ctx, ectx, instruction)
	}

	if err != nil {
		status := StatusError
		if errors.Is(err, context.Canceled) {
			status = StatusInterrupted
		}
		hooks.complete(PhaseExecute, status, "", err)
		resp := AgentResponse{
			PersonaDisplayName: movement.PersonaSpec,
			Status:             status,
			Error:              err,
			MatchedRuleIndex:   Unmatched,
		}
		return resp, nil
	}

	hooks.complete(PhaseExecute, result.Status, result.Content, nil)
	if result.SessionID != "" && ectx.SetSession != nil {
		ectx.SetSession(ectx.SessionKey, result.SessionID)
	}

	phase1Content := result.Content

	reportContents, reportErr := ex.runReportPhase(ctx, movement, ectx, hooks)
	if reportErr != nil {
		resp := AgentResponse{
			PersonaDisplayName: movement.PersonaSpec,
			Status:             StatusError,
			Content:            phase1Content,
			Error:              reportErr,
			SessionID:          result.SessionID,
			MatchedRuleIndex:   Unmatched,
		}
		return resp, nil
	}

	outcome := ex.runJudgmentPhase(ctx, movement, ectx, phase1Content, reportContents, hooks)

	resp := AgentResponse{
		PersonaDisplayName: movement.PersonaSpec,
		Status:             result.Status,
		Content:            phase1Content,
		SessionID:          result.SessionID,
		MatchedRuleIndex:   Unmatched,
	}

	if outcome.matched {
		resp.MatchedRuleIndex = outcome.index
		resp.MatchedRuleMethod = outcome.method
		return resp, nil
	}

	// Both judge steps failed to produce a tag: fall through to the shared
	// evaluator over the Phase 1 content (spec §4.2 Phase 3 step 3).
	match := ex.evaluator.Evaluate(ctx, movement, phase1Content, outcome.tag, nil)
	resp.MatchedRuleIndex = match.Index
	resp.MatchedRuleMethod = match.Method
	return resp, nil
}

// callAgent is the single call-site that threads CallOptions through to
// the resolved Agent, honoring cancellation via ectx.AbortSignal.
func (ex *MovementExecutor) callAgent(ctx context.Context, ectx *ExecContext, prompt string) (CallResult, error) {
	select {
	case <-ectx.AbortSignal:
		return CallResult{}, context.Canceled
	default:
	}

	return ectx.Agent.Call(ctx, prompt, CallOptions{
		Cwd:            ectx.Cwd,
		SessionID:      ectx.CachedSessionID,
		Model:          ectx.Model,
		Edit:           ectx.Edit,
		PermissionMode: ectx.PermissionMode,
		AllowedTools:   ectx.AllowedTools,
		AbortSignal:    ectx.AbortSignal,
	})
}

func previousIfWanted(movement *Movement, prev *AgentResponse) *AgentResponse {
	if !movement.PassPreviousResponse {
		return nil
	}
	return prev
}
