package agent

import (
	"regexp"
	"strconv"
	"strings"
)

// tagPattern matches `[MOVEMENT:N]` tags generically; the movement name is
// verified against the caller's expected name after matching so that
// hyphens/underscores in the name are preserved literally rather than
// interpreted as regex metacharacters.
var tagPattern = regexp.MustCompile(`\[([A-Za-z0-9_-]+):(-?\d+)\]`)

// DetectRuleIndex scans content case-insensitively for tokens of the form
// `[MOVEMENT:N]` where MOVEMENT equals movementName (uppercased, with
// hyphens/underscores preserved literally) and N >= 1. It returns the last
// match as a 0-based index, or -1 when N < 1 or no match is found.
func DetectRuleIndex(content, movementName string) int {
	want := strings.ToUpper(movementName)
	best := -1

	for _, m := range tagPattern.FindAllStringSubmatch(content, -1) {
		if strings.ToUpper(m[1]) != want {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil || n < 1 {
			continue
		}
		best = n - 1
	}
	return best
}
