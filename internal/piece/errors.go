package piece

import "errors"

// Sentinel errors surfaced by the engine's configuration and I/O boundaries.
// In-band conditions (agent error, no-rule-matched, iteration-limit,
// cancellation) never use these; they become terminal states instead.
var (
	ErrUnknownInitialMovement = errors.New("piece: initial movement not found in config")
	ErrUnknownMovement        = errors.New("piece: movement name not found in config")
	ErrDuplicateMovement      = errors.New("piece: duplicate movement name")
	ErrNoMovements            = errors.New("piece: config has no movements")
	ErrInvalidMaxMovements    = errors.New("piece: maxMovements must be positive")
	ErrAlreadyRunning         = errors.New("piece: engine already running")

	// ErrStaleSession is returned by an Agent when a supplied session id is no
	// longer valid. The executor retries exactly once without a session id.
	ErrStaleSession = errors.New("piece: stale session id")
)

// TerminalReason enumerates why a run left the running state.
type TerminalReason string

const (
	ReasonNone              TerminalReason = ""
	ReasonRuleComplete      TerminalReason = "rule_complete"
	ReasonRuleAbort         TerminalReason = "rule_abort"
	ReasonNoRuleMatched     TerminalReason = "no_rule_matched"
	ReasonIterationLimit    TerminalReason = "iteration_limit"
	ReasonAllParallelFailed TerminalReason = "all_parallel_failed"
	ReasonUserInterrupted   TerminalReason = "user_interrupted"
	ReasonUnknownMovement   TerminalReason = "unknown_movement"
)
