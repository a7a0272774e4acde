package piece

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrAllParallelFailed is raised when every child of a parallel movement
// errored; the engine maps it to a terminal abort with reason
// all_parallel_failed.
var ErrAllParallelFailed = errors.New("piece: all parallel children failed")

// ChildResolver resolves the ExecContext a single child sub-movement
// should run with, given the parent's context. Each child gets its own
// session key (its own persona/provider), but shares cwd/reportDir/abort
// signal with the parent. Run overwrites the SetSession/ClearSession
// callbacks it returns, so resolve need not (and should not) set them.
type ChildResolver func(child *Movement) *ExecContext

// StreamPrefixer wraps a child's streamed output with a `[childName]`
// prefix before writing to a single, mutex-guarded sink (spec §4.4).
// ParallelRunner.Run takes no StreamPrefixer; children's streamed output
// is not routed through one.
type StreamPrefixer func(childName string, sink func(line string)) func(chunk string)

// ParallelRunner fans out a movement's children concurrently and
// aggregates their outputs (spec §4.4).
type ParallelRunner struct {
	executor  *MovementExecutor
	evaluator *Evaluator
}

// NewParallelRunner builds a runner sharing the engine's MovementExecutor
// and Evaluator.
func NewParallelRunner(executor *MovementExecutor, evaluator *Evaluator) *ParallelRunner {
	return &ParallelRunner{executor: executor, evaluator: evaluator}
}

type childResult struct {
	name     string
	response AgentResponse
	err      error

	// sessionKey/sessionID/sessionSet/sessionCleared record the session
	// cache mutation (if any) the child's Execute requested. Applying
	// these is deferred to the engine goroutine after wg.Wait(), keeping
	// State.PersonaSessions single-writer even with concurrent children
	// (spec §4.5).
	sessionKey     string
	sessionID      string
	sessionSet     bool
	sessionCleared bool
}

// Run executes every child of movement.Parallel concurrently, waits for
// all to settle, and composes the parent's aggregated AgentResponse. It
// returns the parent response plus each child's own response (for storage
// into StateManager's MovementOutputs), in declaration order.
func (r *ParallelRunner) Run(ctx context.Context, movement *Movement, resolve ChildResolver, hooks func(childName string) PhaseHooks) (AgentResponse, []childResult, error) {
	children := movement.Parallel
	results := make([]childResult, len(children))

	var wg sync.WaitGroup
	for i := range children {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			child := &children[i]
			ectx := resolve(child)

			// SetSession/ClearSession must not touch State.PersonaSessions
			// from this goroutine: record the request locally and let the
			// caller apply it sequentially once every child has finished.
			var res childResult
			ectx.SetSession = func(key, id string) {
				res.sessionKey, res.sessionID, res.sessionSet = key, id, true
			}
			ectx.ClearSession = func(key string) {
				res.sessionKey, res.sessionCleared = key, true
			}

			var h PhaseHooks
			if hooks != nil {
				h = hooks(child.Name)
			}
			resp, err := r.executor.Execute(ctx, child, ectx, h)
			res.name, res.response, res.err = child.Name, resp, err
			results[i] = res
		}(i)
	}
	wg.Wait()

	allFailed := true
	childContents := make([]string, len(results))
	var b strings.Builder
	for i, res := range results {
		childContents[i] = res.response.Content
		if res.response.Status != StatusError && res.err == nil {
			allFailed = false
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n", res.name)
		b.WriteString(res.response.Content)
	}

	if allFailed && len(results) > 0 {
		return AgentResponse{}, results, ErrAllParallelFailed
	}

	aggregated := AgentResponse{
		Content:          b.String(),
		Status:           StatusDone,
		MatchedRuleIndex: Unmatched,
	}

	match := r.evaluator.Evaluate(ctx, movement, aggregated.Content, "", childContents)
	aggregated.MatchedRuleIndex = match.Index
	aggregated.MatchedRuleMethod = match.Method

	return aggregated, results, nil
}
