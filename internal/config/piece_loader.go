package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cadenzalabs/ensemble/internal/agent"
	"github.com/cadenzalabs/ensemble/internal/piece"
)

// pieceDocument is the raw YAML shape a piece file parses into, before
// normalization produces a read-only piece.Config. This is the concrete
// instance of the "already-normalized PieceConfig" boundary spec.md §1
// declares external to the engine.
type pieceDocument struct {
	Name            string                 `yaml:"name"`
	InitialMovement string                 `yaml:"initial_movement"`
	MaxMovements    int                    `yaml:"max_movements"`
	Providers       map[string]providerDoc `yaml:"providers"`
	Movements       []movementDoc          `yaml:"movements"`
	LoopMonitors    []loopMonitorDoc       `yaml:"loop_monitors"`
}

type providerDoc struct {
	Kind      string `yaml:"kind"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
}

type ruleDoc struct {
	Condition                string `yaml:"condition"`
	Next                     string `yaml:"next"`
	Appendix                 string `yaml:"appendix"`
	AggregateCaseInsensitive bool   `yaml:"aggregate_case_insensitive"`
}

type outputContractDoc struct {
	Name   string `yaml:"name"`
	Order  int    `yaml:"order"`
	Format string `yaml:"format"`
}

type movementDoc struct {
	Name string `yaml:"name"`

	Persona   string   `yaml:"persona"`
	Policy    []string `yaml:"policy"`
	Knowledge []string `yaml:"knowledge"`

	Instruction string `yaml:"instruction"`

	Rules []ruleDoc `yaml:"rules"`

	OutputContracts []outputContractDoc `yaml:"output_contracts"`
	QualityGates    []string            `yaml:"quality_gates"`

	PassPreviousResponse bool   `yaml:"pass_previous_response"`
	Session              string `yaml:"session"`

	Edit           bool     `yaml:"edit"`
	PermissionMode string   `yaml:"permission_mode"`
	AllowedTools   []string `yaml:"allowed_tools"`

	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`

	Parallel []movementDoc `yaml:"parallel"`
}

type loopMonitorDoc struct {
	Cycle     []string `yaml:"cycle"`
	Threshold int      `yaml:"threshold"`
	Judge     judgeDoc `yaml:"judge"`
}

type judgeDoc struct {
	Persona     string    `yaml:"persona"`
	Instruction string    `yaml:"instruction"`
	Rules       []ruleDoc `yaml:"rules"`
}

var (
	aiConditionRe  = regexp.MustCompile(`^\s*ai\(\s*"(.*)"\s*\)\s*$`)
	allConditionRe = regexp.MustCompile(`^\s*all\(\s*"(.*)"\s*\)\s*$`)
	anyConditionRe = regexp.MustCompile(`^\s*any\(\s*"(.*)"\s*\)\s*$`)
)

// PieceLoader parses piece YAML documents, resolving `@scope` single-level
// file includes for persona/policy/knowledge fragments relative to the
// document's directory, and builds the agent.Registry the document's
// providers table describes. It does not implement the full layered
// `@scope`/facet/persona/policy resolver — that remains out of scope per
// spec.md §1, noted in DESIGN.md.
type PieceLoader struct {
	Registry *agent.Registry
}

// NewPieceLoader builds a loader seeded with the engine's built-in
// provider kinds (claude, codex, mock).
func NewPieceLoader() *PieceLoader {
	return &PieceLoader{Registry: agent.Default()}
}

// Load parses path and returns a normalized, read-only piece.Config plus
// the per-movement resolved piece.Agent map the engine is constructed
// with.
func (l *PieceLoader) Load(path string) (*piece.Config, map[string]piece.Agent, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var doc pieceDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	dir := filepath.Dir(path)

	cfg := &piece.Config{
		Name:            doc.Name,
		InitialMovement: doc.InitialMovement,
		MaxMovements:    doc.MaxMovements,
	}

	cfg.Movements = make([]piece.Movement, len(doc.Movements))
	for i, md := range doc.Movements {
		m, err := normalizeMovement(dir, md)
		if err != nil {
			return nil, nil, err
		}
		cfg.Movements[i] = m
	}

	for _, lm := range doc.LoopMonitors {
		cfg.LoopMonitors = append(cfg.LoopMonitors, piece.LoopMonitorConfig{
			Cycle:                    lm.Cycle,
			Threshold:                lm.Threshold,
			JudgePersona:             lm.Judge.Persona,
			JudgeInstructionTemplate: lm.Judge.Instruction,
			JudgeRules:               normalizeRules(lm.Judge.Rules),
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if err := validateRuleTargets(cfg); err != nil {
		return nil, nil, err
	}

	agents, err := l.buildAgents(doc.Providers)
	if err != nil {
		return nil, nil, err
	}

	return cfg, agents, nil
}

func (l *PieceLoader) buildAgents(providers map[string]providerDoc) (map[string]piece.Agent, error) {
	agents := make(map[string]piece.Agent, len(providers))
	for name, p := range providers {
		built, err := l.Registry.Build(p.Kind, agent.Spec{
			Name:      name,
			Kind:      p.Kind,
			Model:     p.Model,
			APIKeyEnv: p.APIKeyEnv,
			BaseURL:   p.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("config: provider %q: %w", name, err)
		}
		agents[name] = built
	}
	if _, ok := agents["mock"]; !ok {
		built, err := l.Registry.Build("mock", agent.Spec{Name: "mock", Kind: "mock"})
		if err == nil {
			agents["mock"] = built
		}
	}
	return agents, nil
}

func normalizeMovement(dir string, md movementDoc) (piece.Movement, error) {
	personaText, personaPath, err := resolveScope(dir, md.Persona)
	if err != nil {
		return piece.Movement{}, fmt.Errorf("config: movement %q persona: %w", md.Name, err)
	}

	policy, err := resolveScopeList(dir, md.Policy)
	if err != nil {
		return piece.Movement{}, fmt.Errorf("config: movement %q policy: %w", md.Name, err)
	}
	knowledge, err := resolveScopeList(dir, md.Knowledge)
	if err != nil {
		return piece.Movement{}, fmt.Errorf("config: movement %q knowledge: %w", md.Name, err)
	}

	contracts := make([]piece.OutputContract, len(md.OutputContracts))
	for i, c := range md.OutputContracts {
		contracts[i] = piece.OutputContract{Name: c.Name, Order: c.Order, Format: c.Format}
	}

	m := piece.Movement{
		Name:                 md.Name,
		PersonaSpec:          md.Persona,
		PersonaPath:          personaPath,
		PersonaText:          personaText,
		PolicyContents:       policy,
		KnowledgeContents:    knowledge,
		InstructionTemplate:  md.Instruction,
		Rules:                normalizeRules(md.Rules),
		OutputContracts:      contracts,
		QualityGates:         md.QualityGates,
		PassPreviousResponse: md.PassPreviousResponse,
		Session:              piece.SessionMode(orDefault(md.Session, string(piece.SessionContinue))),
		Edit:                 md.Edit,
		PermissionMode:       piece.PermissionMode(orDefault(md.PermissionMode, string(piece.PermissionReadonly))),
		AllowedTools:         md.AllowedTools,
		Provider:             md.Provider,
		Model:                md.Model,
	}

	if len(md.Parallel) > 0 {
		m.Parallel = make([]piece.Movement, len(md.Parallel))
		for i, child := range md.Parallel {
			cm, err := normalizeMovement(dir, child)
			if err != nil {
				return piece.Movement{}, err
			}
			m.Parallel[i] = cm
		}
	}

	return m, nil
}

func normalizeRules(docs []ruleDoc) []piece.Rule {
	rules := make([]piece.Rule, len(docs))
	for i, d := range docs {
		rules[i] = normalizeRule(d)
	}
	return rules
}

// normalizeRule discriminates the three mutually exclusive rule kinds once,
// at load time, per spec.md §9's re-architecture guidance: the engine
// never re-parses condition text at runtime.
func normalizeRule(d ruleDoc) piece.Rule {
	if m := aiConditionRe.FindStringSubmatch(d.Condition); m != nil {
		return piece.Rule{Condition: m[1], Next: d.Next, Kind: piece.RuleKindAI, Appendix: d.Appendix}
	}
	if m := allConditionRe.FindStringSubmatch(d.Condition); m != nil {
		return piece.Rule{
			Condition: m[1], Next: d.Next, Kind: piece.RuleKindAggregate,
			AggregateOp: piece.AggregateAll, AggregateTarget: m[1],
			AggregateCaseInsensitive: d.AggregateCaseInsensitive, Appendix: d.Appendix,
		}
	}
	if m := anyConditionRe.FindStringSubmatch(d.Condition); m != nil {
		return piece.Rule{
			Condition: m[1], Next: d.Next, Kind: piece.RuleKindAggregate,
			AggregateOp: piece.AggregateAny, AggregateTarget: m[1],
			AggregateCaseInsensitive: d.AggregateCaseInsensitive, Appendix: d.Appendix,
		}
	}
	return piece.Rule{Condition: d.Condition, Next: d.Next, Kind: piece.RuleKindPlain, Appendix: d.Appendix}
}

// resolveScope resolves a single `@path` reference relative to dir, or
// returns spec verbatim as inline text. Only one level of include is
// supported; included files are not themselves scanned for `@` references.
func resolveScope(dir, spec string) (text string, path string, err error) {
	if !strings.HasPrefix(spec, "@") {
		return spec, "", nil
	}
	rel := strings.TrimPrefix(spec, "@")
	full := filepath.Join(dir, rel)
	data, err := os.ReadFile(full)
	if err != nil {
		return "", "", err
	}
	return string(data), full, nil
}

func resolveScopeList(dir string, specs []string) ([]string, error) {
	out := make([]string, len(specs))
	for i, s := range specs {
		text, _, err := resolveScope(dir, s)
		if err != nil {
			return nil, err
		}
		out[i] = text
	}
	return out, nil
}

// validateRuleTargets rejects a document whose rules reference a movement
// absent from the movements list, before any engine is constructed (spec
// §7 "Configuration... Fatal before run; fail fast").
func validateRuleTargets(cfg *piece.Config) error {
	known := make(map[string]struct{}, len(cfg.Movements))
	for _, m := range cfg.Movements {
		known[m.Name] = struct{}{}
	}
	var walk func(rules []piece.Rule) error
	walk = func(rules []piece.Rule) error {
		for _, r := range rules {
			switch r.Next {
			case "", piece.NextComplete, piece.NextAbort:
				continue
			default:
				if _, ok := known[r.Next]; !ok {
					return fmt.Errorf("%w: rule targets %q", piece.ErrUnknownMovement, r.Next)
				}
			}
		}
		return nil
	}
	for _, m := range cfg.Movements {
		if err := walk(m.Rules); err != nil {
			return err
		}
		for _, child := range m.Parallel {
			if err := walk(child.Rules); err != nil {
				return err
			}
		}
	}
	return walk(flattenMonitorRules(cfg))
}

func flattenMonitorRules(cfg *piece.Config) []piece.Rule {
	var all []piece.Rule
	for _, lm := range cfg.LoopMonitors {
		all = append(all, lm.JudgeRules...)
	}
	return all
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
