package piece

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IterationLimitRequest is passed to an optional OnIterationLimit callback
// when the loop is about to hit MaxMovements.
type IterationLimitRequest struct {
	Iteration    int
	MaxMovements int
}

// TerminalState is returned by Run once the piece reaches COMPLETE or
// ABORT, or is cancelled.
type TerminalState struct {
	Status     RunStatus
	Reason     TerminalReason
	Iteration  int
	LastOutput *AgentResponse
}

// EngineConfig is everything PieceEngine needs at construction time.
type EngineConfig struct {
	Config *Config

	// Agents maps provider name to a resolved Agent implementation. The
	// engine looks up a movement's Provider override here, falling back
	// to DefaultProvider.
	Agents          map[string]Agent
	DefaultProvider string

	Detect          RuleDetector
	Judge           AIJudge
	ParseStructured StructuredParser

	Task      string
	Cwd       string
	ReportDir string
	Language  string

	RunDir    string
	SessionID string

	RestoredSessions   map[string]string
	RestoredUserInputs []string

	OnIterationLimit func(IterationLimitRequest) (extendBy int, ok bool)
}

// PieceEngine drives a piece from its initial movement to a terminal
// state. It owns PieceState and is the only writer to it.
type PieceEngine struct {
	cfg *Config

	agents          map[string]Agent
	defaultProvider string

	task      string
	cwd       string
	reportDir string
	language  string

	evaluator *Evaluator
	executor  *MovementExecutor
	parallel  *ParallelRunner
	monitors  []*LoopMonitor

	state *State
	log   *SessionLog
	bus   eventBus

	onIterationLimit func(IterationLimitRequest) (int, bool)

	mu          sync.Mutex
	runOnce     sync.Once
	running     bool
	abortOnce   sync.Once
	abortCh     chan struct{}
	abortReason TerminalReason
}

// New constructs a PieceEngine ready to Run.
func New(ecfg EngineConfig) (*PieceEngine, error) {
	if err := ecfg.Config.Validate(); err != nil {
		return nil, err
	}

	sessionID := ecfg.SessionID
	if sessionID == "" {
		sessionID = newSessionID()
	}

	log, err := OpenSessionLog(ecfg.RunDir, sessionID)
	if err != nil {
		return nil, err
	}

	evaluator := &Evaluator{Detect: ecfg.Detect, Judge: ecfg.Judge}
	executor := NewMovementExecutor(evaluator, ecfg.Detect, ecfg.ParseStructured)
	parallel := NewParallelRunner(executor, evaluator)

	e := &PieceEngine{
		cfg:              ecfg.Config,
		agents:           ecfg.Agents,
		defaultProvider:  ecfg.DefaultProvider,
		task:             ecfg.Task,
		cwd:              ecfg.Cwd,
		reportDir:        ecfg.ReportDir,
		language:         ecfg.Language,
		evaluator:        evaluator,
		executor:         executor,
		parallel:         parallel,
		state:            NewState(ecfg.Config, ecfg.RestoredSessions, ecfg.RestoredUserInputs),
		log:              log,
		onIterationLimit: ecfg.OnIterationLimit,
		abortCh:          make(chan struct{}),
	}
	e.monitors = NewLoopMonitors(ecfg.Config.LoopMonitors, executor)
	return e, nil
}

// Subscribe returns a channel of lifecycle events. Must be called before
// Run.
func (e *PieceEngine) Subscribe() <-chan Event {
	return e.bus.Subscribe()
}

// State returns the live PieceState. Callers must not mutate it; it is
// exposed for read-only inspection (e.g. by a TUI) while Run is in
// flight.
func (e *PieceEngine) State() *State {
	return e.state
}

// SessionID returns the run's session id, the same value used for its
// NDJSON log file name (logs/<id>.jsonl), so a caller can correlate a
// history.Record with its log.
func (e *PieceEngine) SessionID() string {
	return e.log.sessionID
}

// Abort is idempotent: it signals the engine's cancellation token, which
// propagates to any in-flight agent call's AbortSignal, and causes the
// currently awaiting Run to resolve as aborted/reason.
func (e *PieceEngine) Abort(reason TerminalReason) {
	e.abortOnce.Do(func() {
		e.mu.Lock()
		e.abortReason = reason
		e.mu.Unlock()
		close(e.abortCh)
	})
}

func (e *PieceEngine) isAborted() (TerminalReason, bool) {
	select {
	case <-e.abortCh:
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.abortReason, true
	default:
		return ReasonNone, false
	}
}

// Run drives the piece to a terminal state. It suspends while agents run
// and returns only after the piece completes, aborts, or is cancelled.
// Run must not be called more than once on the same engine.
func (e *PieceEngine) Run(ctx context.Context) (TerminalState, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return TerminalState{}, ErrAlreadyRunning
	}
	e.running = true
	e.mu.Unlock()

	defer e.bus.closeAll()
	defer e.log.Close()

	e.log.PieceStart(e.task, e.cfg.Name)

	// pendingAppendix carries the instruction fragment of whichever rule
	// last routed into the upcoming movement (spec §4.6); it is consumed
	// by the very next runSingle/runParallel call and cleared immediately
	// after.
	var pendingAppendix string

	for e.state.Status == StatusRunning {
		if reason, aborted := e.isAborted(); aborted {
			return e.finishAborted(reason)
		}

		if e.state.Iteration >= e.cfg.MaxMovements {
			if e.onIterationLimit != nil {
				extend, ok := e.onIterationLimit(IterationLimitRequest{
					Iteration:    e.state.Iteration,
					MaxMovements: e.cfg.MaxMovements,
				})
				if ok && extend > 0 {
					e.cfg.MaxMovements += extend
					continue
				}
			}
			return e.finishAborted(ReasonIterationLimit)
		}

		movement, ok := e.cfg.MovementByName(e.state.CurrentMovement)
		if !ok {
			return e.finishAborted(ReasonUnknownMovement)
		}

		e.state.Iteration++
		iterCount := e.state.IncrementMovementIteration(movement.Name)

		display := movement.PersonaSpec
		if display == "" {
			display = movement.Name
		}
		e.bus.emit(Event{Kind: EventMovementStart, Movement: movement.Name, Iteration: e.state.Iteration, Timestamp: time.Now()})
		e.log.MovementStart(movement.Name, display, e.state.Iteration, movement.InstructionTemplate)

		appendix := pendingAppendix
		pendingAppendix = ""

		var (
			resp AgentResponse
			err  error
		)
		if len(movement.Parallel) > 0 {
			resp, err = e.runParallel(ctx, movement, appendix)
		} else {
			resp, err = e.runSingle(ctx, movement, iterCount, appendix)
		}

		if err != nil {
			if errors.Is(err, ErrAllParallelFailed) {
				return e.finishAborted(ReasonAllParallelFailed)
			}
			return TerminalState{}, err
		}

		if reason, aborted := e.isAborted(); aborted {
			return e.finishAborted(reason)
		}

		e.state.RecordOutput(movement.Name, resp)
		e.log.MovementComplete(movement.Name, resp.PersonaDisplayName, movement.InstructionTemplate, resp, e.state.Iteration)
		e.bus.emit(Event{Kind: EventMovementComplete, Movement: movement.Name, Iteration: e.state.Iteration, Response: &resp, Timestamp: time.Now()})

		e.state.pushLoopHistory(movement.Name, e.loopWindow())
		if next, fired := e.checkLoopMonitors(ctx, movement); fired {
			e.state.CurrentMovement = next
			continue
		}

		if len(movement.Rules) == 0 {
			e.state.Status = StatusCompleted
			e.state.TerminalReason = ReasonRuleComplete
			break
		}

		if resp.MatchedRuleIndex == Unmatched {
			return e.finishAborted(ReasonNoRuleMatched)
		}

		rule := movement.Rules[resp.MatchedRuleIndex]
		switch rule.Next {
		case NextComplete:
			e.state.Status = StatusCompleted
			e.state.TerminalReason = ReasonRuleComplete
		case NextAbort:
			return e.finishAborted(ReasonRuleAbort)
		case "":
			return e.finishAborted(ReasonNoRuleMatched)
		default:
			if _, ok := e.cfg.MovementByName(rule.Next); !ok {
				return e.finishAborted(ReasonUnknownMovement)
			}
			e.state.CurrentMovement = rule.Next
			pendingAppendix = rule.Appendix
		}
	}

	e.log.PieceComplete(e.state.Iteration)
	e.bus.emit(Event{Kind: EventPieceComplete, Iteration: e.state.Iteration, Timestamp: time.Now()})
	return e.snapshot(), nil
}

func (e *PieceEngine) finishAborted(reason TerminalReason) (TerminalState, error) {
	e.state.Status = StatusAborted
	e.state.TerminalReason = reason
	e.log.PieceAbort(e.state.Iteration, reason)
	e.bus.emit(Event{Kind: EventPieceAbort, Reason: reason, Iteration: e.state.Iteration, Timestamp: time.Now()})
	return e.snapshot(), nil
}

func (e *PieceEngine) snapshot() TerminalState {
	return TerminalState{
		Status:     e.state.Status,
		Reason:     e.state.TerminalReason,
		Iteration:  e.state.Iteration,
		LastOutput: e.state.LastOutput,
	}
}

// loopWindow bounds the sliding window kept for LoopMonitor inspection to
// the widest configured cycle*threshold, or a sane default with no
// monitors configured.
func (e *PieceEngine) loopWindow() int {
	widest := 16
	for _, m := range e.monitors {
		if w := len(m.cfg.Cycle) * m.cfg.Threshold; w > widest {
			widest = w
		}
	}
	return widest
}

func (e *PieceEngine) checkLoopMonitors(ctx context.Context, current *Movement) (string, bool) {
	for _, m := range e.monitors {
		if !m.Triggered(e.state.loopHistory) {
			continue
		}
		next, err := e.fireLoopMonitor(ctx, m)
		e.state.resetLoopHistory()
		if err != nil {
			continue
		}
		return next, true
	}
	return "", false
}

func (e *PieceEngine) fireLoopMonitor(ctx context.Context, m *LoopMonitor) (string, error) {
	synthetic := m.judgeMovement()
	resp, err := e.runSingle(ctx, &synthetic, 1, "")
	if err != nil {
		return "", err
	}
	if resp.MatchedRuleIndex == Unmatched {
		return "", errors.New("loop monitor: judge produced no match")
	}
	rule := synthetic.Rules[resp.MatchedRuleIndex]
	return rule.Next, nil
}

func (e *PieceEngine) runSingle(ctx context.Context, movement *Movement, iteration int, appendix string) (AgentResponse, error) {
	provider := e.resolveProvider(movement)
	agent, ok := e.agents[provider]
	if !ok {
		return AgentResponse{Status: StatusError, MatchedRuleIndex: Unmatched, Error: errors.New("piece: no agent registered for provider " + provider)}, nil
	}

	display := movement.PersonaSpec
	if display == "" {
		display = movement.Name
	}
	key := sessionKey(display, provider)

	prev, _ := e.state.GetPreviousOutput()
	var prevPtr *AgentResponse
	if movement.PassPreviousResponse {
		prevPtr = &prev
	}

	ectx := &ExecContext{
		Agent:            agent,
		Cwd:              e.cwd,
		ReportDir:        e.reportDir,
		Language:         e.language,
		SessionKey:       key,
		CachedSessionID:  e.state.PersonaSessions[key],
		Model:            movement.Model,
		Edit:             movement.Edit,
		PermissionMode:   movement.PermissionMode,
		AllowedTools:     movement.AllowedTools,
		PreviousResponse: prevPtr,
		UserInputs:       append([]string(nil), e.state.UserInputs...),
		Appendix:         appendix,
		AbortSignal:      e.abortCh,
		SetSession:       e.state.SetPersonaSession,
		ClearSession:     e.state.ClearPersonaSession,
	}

	hooks := PhaseHooks{
		OnPhaseStart: func(phase Phase, instruction string) {
			e.log.PhaseStart(movement.Name, phase, instruction)
			e.bus.emit(Event{Kind: EventPhaseStart, Movement: movement.Name, Phase: phase, Timestamp: time.Now()})
		},
		OnPhaseComplete: func(phase Phase, status AgentStatus, content string, err error) {
			e.log.PhaseComplete(movement.Name, phase, status, content, err)
			e.bus.emit(Event{Kind: EventPhaseComplete, Movement: movement.Name, Phase: phase, Error: err, Timestamp: time.Now()})
		},
	}

	resp, err := e.executor.Execute(ctx, movement, ectx, hooks)
	if err != nil {
		return resp, err
	}
	resp.PersonaDisplayName = display
	return resp, nil
}

func (e *PieceEngine) runParallel(ctx context.Context, movement *Movement, appendix string) (AgentResponse, error) {
	provider := e.resolveProvider(movement)

	resolve := func(child *Movement) *ExecContext {
		childProvider := provider
		if child.Provider != "" {
			childProvider = child.Provider
		}
		agent := e.agents[childProvider]
		display := child.PersonaSpec
		if display == "" {
			display = child.Name
		}
		key := sessionKey(display, childProvider)
		// SetSession/ClearSession are intentionally left nil: ParallelRunner.Run
		// overwrites them with per-child recorders and reports any session
		// mutation back through childResult, so the engine can apply it to
		// State.PersonaSessions sequentially once every child has settled.
		return &ExecContext{
			Agent:           agent,
			Cwd:             e.cwd,
			ReportDir:       e.reportDir,
			Language:        e.language,
			SessionKey:      key,
			CachedSessionID: e.state.PersonaSessions[key],
			Model:           child.Model,
			Edit:            child.Edit,
			PermissionMode:  child.PermissionMode,
			AllowedTools:    child.AllowedTools,
			Appendix:        appendix,
			AbortSignal:     e.abortCh,
		}
	}

	hooksFor := func(childName string) PhaseHooks {
		return PhaseHooks{
			OnPhaseStart: func(phase Phase, instruction string) {
				e.log.PhaseStart(childName, phase, instruction)
			},
			OnPhaseComplete: func(phase Phase, status AgentStatus, content string, err error) {
				e.log.PhaseComplete(childName, phase, status, content, err)
			},
		}
	}

	parentResp, children, err := e.parallel.Run(ctx, movement, resolve, hooksFor)
	if err != nil {
		return AgentResponse{}, err
	}

	// Every child goroutine has returned by this point, so these writes to
	// PersonaSessions are sequential on the engine's own goroutine.
	for _, c := range children {
		if c.sessionCleared {
			e.state.ClearPersonaSession(c.sessionKey)
		}
		if c.sessionSet {
			e.state.SetPersonaSession(c.sessionKey, c.sessionID)
		}
		e.state.RecordOutput(c.name, c.response)
		e.log.MovementComplete(c.name, c.response.PersonaDisplayName, "", c.response, e.state.Iteration)
	}

	return parentResp, nil
}

func (e *PieceEngine) resolveProvider(movement *Movement) string {
	if movement.Provider != "" {
		return movement.Provider
	}
	return e.defaultProvider
}

func newSessionID() string {
	return uuid.NewString()
}
