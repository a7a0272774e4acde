package piece

// Bounds on the interactive user-input ring buffer (spec §3 invariant 5).
const (
	MaxUserInputs  = 20
	MaxInputLength = 4000
)

// RunStatus is the coarse lifecycle state of a PieceState.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusAborted   RunStatus = "aborted"
)

// State is the mutable object owned by exactly one PieceEngine. Every field
// is written only from the engine's goroutine; parallel child executors
// never touch it directly, they return results in a per-child slice that the
// engine reads sequentially once every child has settled (§4.5).
type State struct {
	CurrentMovement string
	Iteration       int
	Status          RunStatus
	TerminalReason  TerminalReason

	// MovementOutputs preserves insertion order via movementOrder alongside
	// the map, since Go map iteration order is undefined and
	// GetPreviousOutput depends on insertion order.
	MovementOutputs map[string]AgentResponse
	movementOrder   []string

	LastOutput *AgentResponse

	PersonaSessions map[string]string

	MovementIterations map[string]int

	UserInputs []string

	// loopHistory is the sliding window of completed movement names the
	// LoopMonitor inspects; it is not part of the spec's public state shape
	// but lives alongside it since only the engine mutates both.
	loopHistory []string
}

// NewState builds a fresh PieceState at the piece's initial movement, with
// optional restored session ids and user inputs (from a prior process's
// session cache / interactive buffer).
func NewState(cfg *Config, restoredSessions map[string]string, restoredInputs []string) *State {
	s := &State{
		CurrentMovement:     cfg.InitialMovement,
		Status:              StatusRunning,
		MovementOutputs:     make(map[string]AgentResponse),
		PersonaSessions:     make(map[string]string, len(restoredSessions)),
		MovementIterations:  make(map[string]int),
	}
	for k, v := range restoredSessions {
		s.PersonaSessions[k] = v
	}
	for _, in := range restoredInputs {
		s.AddUserInput(in)
	}
	return s
}

// IncrementMovementIteration bumps the per-movement counter, starting at 1,
// and returns the new count.
func (s *State) IncrementMovementIteration(name string) int {
	s.MovementIterations[name]++
	return s.MovementIterations[name]
}

// RecordOutput stores a movement's final response, preserving first-seen
// insertion order, and updates LastOutput.
func (s *State) RecordOutput(name string, resp AgentResponse) {
	if _, exists := s.MovementOutputs[name]; !exists {
		s.movementOrder = append(s.movementOrder, name)
	}
	s.MovementOutputs[name] = resp
	s.LastOutput = &resp
}

// AddUserInput truncates text to MaxInputLength, appends it, and evicts the
// oldest entries beyond MaxUserInputs (spec §3 invariant 5, §8 property 7).
func (s *State) AddUserInput(text string) {
	if len(text) > MaxInputLength {
		text = text[:MaxInputLength]
	}
	s.UserInputs = append(s.UserInputs, text)
	if over := len(s.UserInputs) - MaxUserInputs; over > 0 {
		s.UserInputs = s.UserInputs[over:]
	}
}

// GetPreviousOutput returns LastOutput if set, else the most recently
// inserted entry of MovementOutputs, else false.
func (s *State) GetPreviousOutput() (AgentResponse, bool) {
	if s.LastOutput != nil {
		return *s.LastOutput, true
	}
	if n := len(s.movementOrder); n > 0 {
		return s.MovementOutputs[s.movementOrder[n-1]], true
	}
	return AgentResponse{}, false
}

// SetPersonaSession records the session id returned by the provider for a
// given session key. Idempotent: overwriting the same key with the same
// value is a no-op in effect.
func (s *State) SetPersonaSession(key, id string) {
	s.PersonaSessions[key] = id
}

// ClearPersonaSession drops a cached session id, used on Session == refresh
// and on stale-session retry.
func (s *State) ClearPersonaSession(key string) {
	delete(s.PersonaSessions, key)
}

// sessionKey is the lookup key for PersonaSessions: persona display name
// plus provider tag, per spec §4.2.
func sessionKey(personaDisplayName, provider string) string {
	return personaDisplayName + "|" + provider
}

// pushLoopHistory appends a completed movement's name to the sliding
// window the LoopMonitor inspects, capping its length to avoid unbounded
// growth over very long runs.
func (s *State) pushLoopHistory(name string, maxLen int) {
	s.loopHistory = append(s.loopHistory, name)
	if over := len(s.loopHistory) - maxLen; over > 0 {
		s.loopHistory = s.loopHistory[over:]
	}
}

// resetLoopHistory clears the sliding window, used after a LoopMonitor
// fires (Open Question 3: reset immediately after firing).
func (s *State) resetLoopHistory() {
	s.loopHistory = nil
}
