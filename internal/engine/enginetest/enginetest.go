// Package enginetest provides a deterministic scripted engine for testing
// the session layer without a model behind it.
package enginetest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/flitsinc/agent-sessions/internal/agents"
	"github.com/flitsinc/agent-sessions/internal/engine"
)

// Script describes one run: the events to emit in order, then the final
// outcome. If PauseAfter is positive the run blocks after emitting that
// many events until Resume is closed; tests use this to hold a run open
// while a superseding message arrives.
type Script struct {
	Events     []json.RawMessage
	PauseAfter int
	Resume     chan struct{}
	Result     engine.Result
	Err        error
}

// RecordedRun captures one Run invocation for assertions.
type RecordedRun struct {
	Agent   *agents.Agent
	Request engine.Request
}

// Engine replays scripts in order, one per Run call. The last script
// repeats if Run is called more often than scripts were queued; with no
// scripts at all every run completes immediately with an empty result.
type Engine struct {
	mu      sync.Mutex
	scripts []Script
	next    int
	runs    []RecordedRun
}

func New(scripts ...Script) *Engine {
	return &Engine{scripts: scripts}
}

func (e *Engine) Run(ctx context.Context, agent *agents.Agent, req engine.Request) (*engine.Run, error) {
	e.mu.Lock()
	e.runs = append(e.runs, RecordedRun{Agent: agent, Request: req})
	var script Script
	if len(e.scripts) > 0 {
		if e.next < len(e.scripts) {
			script = e.scripts[e.next]
			e.next++
		} else {
			script = e.scripts[len(e.scripts)-1]
		}
	}
	e.mu.Unlock()

	run := engine.NewRun(len(script.Events) + 1)
	go func() {
		for i, ev := range script.Events {
			if err := run.Emit(ctx, ev); err != nil {
				run.Finish(engine.Result{}, err)
				return
			}
			if script.PauseAfter > 0 && i+1 == script.PauseAfter && script.Resume != nil {
				select {
				case <-script.Resume:
				case <-ctx.Done():
					run.Finish(engine.Result{}, ctx.Err())
					return
				}
			}
		}
		run.Finish(script.Result, script.Err)
	}()
	return run, nil
}

// Runs returns every recorded Run invocation so far.
func (e *Engine) Runs() []RecordedRun {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]RecordedRun, len(e.runs))
	copy(out, e.runs)
	return out
}
