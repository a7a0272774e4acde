package piece

// LoopMonitor detects repeated cycles over a named movement sequence and,
// on trigger, resolves a one-shot judgment movement deciding where to go
// next (spec §4.8).
type LoopMonitor struct {
	cfg      LoopMonitorConfig
	executor *MovementExecutor
}

// NewLoopMonitors builds one runtime LoopMonitor per configured descriptor.
func NewLoopMonitors(cfgs []LoopMonitorConfig, executor *MovementExecutor) []*LoopMonitor {
	monitors := make([]*LoopMonitor, 0, len(cfgs))
	for _, c := range cfgs {
		if c.Threshold <= 0 {
			c.Threshold = 3
		}
		monitors = append(monitors, &LoopMonitor{cfg: c, executor: executor})
	}
	return monitors
}

// Triggered reports whether the tail of history equals cfg.Cycle repeated
// cfg.Threshold times.
func (m *LoopMonitor) Triggered(history []string) bool {
	n := len(m.cfg.Cycle)
	if n < 2 {
		return false
	}
	window := n * m.cfg.Threshold
	if len(history) < window {
		return false
	}
	tail := history[len(history)-window:]
	for rep := 0; rep < m.cfg.Threshold; rep++ {
		for i := 0; i < n; i++ {
			if tail[rep*n+i] != m.cfg.Cycle[i] {
				return false
			}
		}
	}
	return true
}

// judgeMovement synthesizes the monitor's one-shot judgment movement from
// its configured persona/instruction/rules.
func (m *LoopMonitor) judgeMovement() Movement {
	return Movement{
		Name:                "__loop_monitor__",
		PersonaText:         m.cfg.JudgePersona,
		InstructionTemplate: m.cfg.JudgeInstructionTemplate,
		Rules:               m.cfg.JudgeRules,
	}
}
