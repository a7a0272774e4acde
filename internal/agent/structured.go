package agent

import (
	"strings"

	"github.com/bytedance/sonic"

	"github.com/cadenzalabs/ensemble/internal/piece"
)

// rawStructured mirrors the `{step, reason}` shape a Phase 3 structured
// judge call is asked to produce; using a dedicated struct (rather than
// piece.StructuredResult directly) keeps sonic's json tags out of the
// piece package.
type rawStructured struct {
	Step   int    `json:"step"`
	Reason string `json:"reason"`
}

// ParseStructuredOutput recovers a piece.StructuredResult from raw agent
// content, trying in order: direct JSON, a fenced code block, then a
// brace-delimited substring. Arrays and bare primitives are rejected.
func ParseStructuredOutput(raw string) (piece.StructuredResult, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return piece.StructuredResult{}, false
	}

	if r, ok := tryUnmarshalObject(trimmed); ok {
		return r, true
	}

	if block, ok := extractFencedBlock(trimmed); ok {
		if r, ok := tryUnmarshalObject(block); ok {
			return r, true
		}
	}

	if block, ok := extractBraces(trimmed); ok {
		if r, ok := tryUnmarshalObject(block); ok {
			return r, true
		}
	}

	return piece.StructuredResult{}, false
}

// tryUnmarshalObject rejects arrays and bare primitives: a valid result
// must decode as a JSON object containing a "step" field.
func tryUnmarshalObject(s string) (piece.StructuredResult, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return piece.StructuredResult{}, false
	}
	var raw rawStructured
	if err := sonic.UnmarshalString(s, &raw); err != nil {
		return piece.StructuredResult{}, false
	}
	if raw.Step == 0 {
		return piece.StructuredResult{}, false
	}
	return piece.StructuredResult{Step: raw.Step, Reason: raw.Reason}, true
}

func extractFencedBlock(s string) (string, bool) {
	const fence = "```"
	start := strings.Index(s, fence)
	if start == -1 {
		return "", false
	}
	rest := s[start+len(fence):]
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine == "json" || firstLine == "" {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, fence)
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

func extractBraces(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
