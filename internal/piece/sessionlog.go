package piece

import (
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"

	"github.com/cadenzalabs/ensemble/pkg/ndjson"
)

const (
	recordPieceStart       = "piece_start"
	recordMovementStart    = "movement_start"
	recordPhaseStart       = "phase_start"
	recordPhaseComplete    = "phase_complete"
	recordMovementComplete = "movement_complete"
	recordPieceComplete    = "piece_complete"
	recordPieceAbort       = "piece_abort"
)

// logRecord is the union of every NDJSON record shape the session log
// emits (spec §4.7). Fields irrelevant to Type are left zero and omitted
// by the omitempty tags.
type logRecord struct {
	Type string `json:"type"`

	Task      string    `json:"task,omitempty"`
	PieceName string    `json:"pieceName,omitempty"`
	StartTime time.Time `json:"startTime,omitempty"`

	Movement    string    `json:"movement,omitempty"`
	Persona     string    `json:"persona,omitempty"`
	Iteration   int       `json:"iteration,omitempty"`
	Instruction string    `json:"instruction,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`

	Phase     int    `json:"phase,omitempty"`
	PhaseName string `json:"phaseName,omitempty"`

	Status  string `json:"status,omitempty"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`

	MatchedRuleIndex  *int   `json:"matchedRuleIndex,omitempty"`
	MatchedRuleMethod string `json:"matchedRuleMethod,omitempty"`

	Iterations int    `json:"iterations,omitempty"`
	Reason     string `json:"reason,omitempty"`
	EndTime    time.Time `json:"endTime,omitempty"`
}

// pointerSnapshot is the shape of logs/latest.json and logs/previous.json
// (spec §6).
type pointerSnapshot struct {
	SessionID  string    `json:"sessionId"`
	LogFile    string    `json:"logFile"`
	Task       string    `json:"task"`
	PieceName  string    `json:"pieceName"`
	Status     string    `json:"status"`
	StartTime  time.Time `json:"startTime"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Iterations int       `json:"iterations"`
}

// SessionLog is the write-only, append-only NDJSON lifecycle log for one
// piece run, plus its derived latest/previous pointer files.
type SessionLog struct {
	writer *ndjson.Writer

	sessionID string
	logPath   string
	latest    pointerSnapshot
	latestDir string
}

// OpenSessionLog opens `<runDir>/logs/<sessionID>.jsonl` for appending and
// arranges the latest/previous pointer rotation: if logs/latest.json
// already exists from a prior run, it is copied to logs/previous.json
// before this run writes its first pointer update.
func OpenSessionLog(runDir, sessionID string) (*SessionLog, error) {
	logsDir := filepath.Join(runDir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, err
	}

	logPath := filepath.Join(logsDir, sessionID+".jsonl")
	latestPath := filepath.Join(logsDir, "latest.json")
	previousPath := filepath.Join(logsDir, "previous.json")

	if _, err := os.Stat(latestPath); err == nil {
		if copyErr := ndjson.CopyFile(latestPath, previousPath); copyErr != nil {
			return nil, copyErr
		}
	}

	w, err := ndjson.Open(logPath)
	if err != nil {
		return nil, err
	}

	return &SessionLog{writer: w, sessionID: sessionID, logPath: logPath, latestDir: logsDir}, nil
}

// Close closes the underlying file. NDJSON append failures are non-fatal
// per spec §7; Close errors are returned for the caller to log.
func (l *SessionLog) Close() error {
	return l.writer.Close()
}

func (l *SessionLog) append(r logRecord) {
	// Append failures are discarded here and the run continues
	// (spec §7 "NDJSON I/O ... Non-fatal; logged and skipped").
	_ = l.writer.Append(r)
}

func (l *SessionLog) updatePointer(status string, iterations int) {
	l.latest.Status = status
	l.latest.Iterations = iterations
	l.latest.UpdatedAt = time.Now()
	_ = ndjson.WriteJSON(filepath.Join(l.latestDir, "latest.json"), l.latest)
}

// PieceStart records the piece_start lifecycle entry.
func (l *SessionLog) PieceStart(task, pieceName string) {
	now := time.Now()
	l.latest = pointerSnapshot{
		SessionID: l.sessionID,
		LogFile:   l.logPath,
		Task:      task,
		PieceName: pieceName,
		Status:    string(StatusRunning),
		StartTime: now,
	}
	l.append(logRecord{Type: recordPieceStart, Task: task, PieceName: pieceName, StartTime: now})
	l.updatePointer(string(StatusRunning), 0)
}

// MovementStart records the movement_start lifecycle entry.
func (l *SessionLog) MovementStart(movement, persona string, iteration int, instruction string) {
	l.append(logRecord{
		Type:        recordMovementStart,
		Movement:    movement,
		Persona:     persona,
		Iteration:   iteration,
		Instruction: instruction,
		Timestamp:   time.Now(),
	})
}

// PhaseStart records a phase_start entry.
func (l *SessionLog) PhaseStart(movement string, phase Phase, instruction string) {
	l.append(logRecord{
		Type:        recordPhaseStart,
		Movement:    movement,
		Phase:       int(phase),
		PhaseName:   phase.String(),
		Instruction: instruction,
		Timestamp:   time.Now(),
	})
}

// PhaseComplete records a phase_complete entry.
func (l *SessionLog) PhaseComplete(movement string, phase Phase, status AgentStatus, content string, err error) {
	rec := logRecord{
		Type:      recordPhaseComplete,
		Movement:  movement,
		Phase:     int(phase),
		PhaseName: phase.String(),
		Status:    string(status),
		Content:   content,
		Timestamp: time.Now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	l.append(rec)
}

// MovementComplete records the movement_complete entry and advances the
// latest pointer's iteration count.
func (l *SessionLog) MovementComplete(movement, persona, instruction string, resp AgentResponse, iterations int) {
	rec := logRecord{
		Type:              recordMovementComplete,
		Movement:          movement,
		Persona:           persona,
		Status:            string(resp.Status),
		Content:           resp.Content,
		Instruction:       instruction,
		MatchedRuleMethod: string(resp.MatchedRuleMethod),
		Timestamp:         time.Now(),
	}
	if resp.MatchedRuleIndex >= 0 {
		idx := resp.MatchedRuleIndex
		rec.MatchedRuleIndex = &idx
	}
	if resp.Error != nil {
		rec.Error = resp.Error.Error()
	}
	l.append(rec)
	l.updatePointer(string(StatusRunning), iterations)
}

// PieceComplete records piece_complete and the final pointer update.
func (l *SessionLog) PieceComplete(iterations int) {
	now := time.Now()
	l.append(logRecord{Type: recordPieceComplete, Iterations: iterations, EndTime: now})
	l.updatePointer(string(StatusCompleted), iterations)
}

// PieceAbort records piece_abort and the final pointer update. No further
// records are written after this call (property 8).
func (l *SessionLog) PieceAbort(iterations int, reason TerminalReason) {
	now := time.Now()
	l.append(logRecord{Type: recordPieceAbort, Iterations: iterations, Reason: string(reason), EndTime: now})
	l.updatePointer(string(StatusAborted), iterations)
}

// ReplayedMovement is one movement_complete record reconstructed from a
// log file.
type ReplayedMovement struct {
	Movement          string
	Status            AgentStatus
	Content           string
	MatchedRuleIndex  int
	MatchedRuleMethod MatchMethod
	Timestamp         time.Time
}

// ReplayedLog is the history LoadNdjsonLog reconstructs: a header plus the
// ordered movement_complete records, equivalent to movementOutputs.
type ReplayedLog struct {
	PieceName string
	Task      string
	StartTime time.Time
	Status    RunStatus
	Reason    TerminalReason
	EndTime   time.Time
	Movements []ReplayedMovement
}

// Empty reports whether this is the zero-value sentinel returned for a
// missing or empty log file.
func (r ReplayedLog) Empty() bool {
	return r.PieceName == "" && r.Task == "" && len(r.Movements) == 0
}

// LoadNdjsonLog replays path, rebuilding a history equivalent to
// movementOutputs by keeping only movement_complete records. Missing or
// empty files return the empty sentinel (spec §4.7).
func LoadNdjsonLog(path string) (ReplayedLog, error) {
	lines, err := ndjson.ReadLines(path)
	if err != nil {
		return ReplayedLog{}, err
	}
	var out ReplayedLog
	for _, line := range lines {
		var rec logRecord
		if err := sonic.Unmarshal(line, &rec); err != nil {
			continue
		}
		switch rec.Type {
		case recordPieceStart:
			out.PieceName = rec.PieceName
			out.Task = rec.Task
			out.StartTime = rec.StartTime
			out.Status = StatusRunning
		case recordMovementComplete:
			rm := ReplayedMovement{
				Movement:          rec.Movement,
				Status:            AgentStatus(rec.Status),
				Content:           rec.Content,
				MatchedRuleMethod: MatchMethod(rec.MatchedRuleMethod),
				MatchedRuleIndex:  Unmatched,
				Timestamp:         rec.Timestamp,
			}
			if rec.MatchedRuleIndex != nil {
				rm.MatchedRuleIndex = *rec.MatchedRuleIndex
			}
			out.Movements = append(out.Movements, rm)
		case recordPieceComplete:
			out.Status = StatusCompleted
			out.EndTime = rec.EndTime
		case recordPieceAbort:
			out.Status = StatusAborted
			out.Reason = TerminalReason(rec.Reason)
			out.EndTime = rec.EndTime
		}
	}
	return out, nil
}
