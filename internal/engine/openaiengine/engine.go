// Package openaiengine runs agents on the OpenAI chat completions API:
// streaming text deltas, incremental tool-call accumulation, tool execution
// through the registry, approval interruptions, and handoffs expressed as
// transfer_to_<agent> pseudo-tools.
package openaiengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/flitsinc/agent-sessions/internal/agents"
	"github.com/flitsinc/agent-sessions/internal/engine"
	"github.com/flitsinc/agent-sessions/internal/idgen"
	"github.com/flitsinc/agent-sessions/internal/tools"
)

type Config struct {
	Model  string
	APIKey string
}

type Engine struct {
	client *openai.Client
	model  string
	graph  *agents.Graph
}

func New(cfg Config, graph *agents.Graph) (*Engine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if graph == nil {
		return nil, fmt.Errorf("agent graph is required")
	}
	return &Engine{client: openai.NewClient(cfg.APIKey), model: cfg.Model, graph: graph}, nil
}

func (e *Engine) Run(ctx context.Context, agent *agents.Agent, req engine.Request) (*engine.Run, error) {
	if agent == nil {
		return nil, fmt.Errorf("agent is required")
	}
	run := engine.NewRun(64)
	go e.loop(ctx, agent, req, run)
	return run, nil
}

func (e *Engine) loop(ctx context.Context, start *agents.Agent, req engine.Request, run *engine.Run) {
	cur := start
	var history []engine.Message

	if req.State != nil {
		if a, ok := e.graph.Get(req.State.Agent); ok {
			cur = a
		}
		history = append(history, req.State.History...)
		undecided, err := e.settleApprovals(ctx, run, cur, req.State.Pending, &history)
		if err != nil {
			run.Finish(engine.Result{}, err)
			return
		}
		if len(undecided) > 0 {
			state := &engine.State{Agent: cur.Name, History: history, Pending: undecided}
			run.Finish(engine.Result{History: history, FinalAgent: cur.Name, Interruptions: undecided, State: state}, nil)
			return
		}
	} else {
		history = append(history, req.History...)
	}

	if err := run.Emit(ctx, engine.AgentUpdatedEvent(cur.Name)); err != nil {
		run.Finish(engine.Result{}, err)
		return
	}

	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 10
	}

	for turn := 0; turn < maxTurns; turn++ {
		text, calls, err := e.streamTurn(ctx, run, cur, history)
		if err != nil {
			run.Finish(engine.Result{}, err)
			return
		}

		if text != "" {
			history = append(history, engine.Message{Role: "assistant", Content: text})
			if err := run.Emit(ctx, engine.TextDoneEvent()); err != nil {
				run.Finish(engine.Result{}, err)
				return
			}
			if err := run.Emit(ctx, engine.MessageOutputEvent(cur.Name, idgen.New(), "assistant", text)); err != nil {
				run.Finish(engine.Result{}, err)
				return
			}
		}

		if len(calls) == 0 {
			run.Finish(engine.Result{History: history, FinalOutput: text, FinalAgent: cur.Name}, nil)
			return
		}

		history = append(history, assistantToolCallMessage(calls))

		var pending []*engine.PendingApproval
		for _, call := range calls {
			if target, ok := handoffTarget(cur, call.Name); ok {
				next, exists := e.graph.Get(target)
				if !exists {
					run.Finish(engine.Result{}, fmt.Errorf("handoff to unknown agent %s", target))
					return
				}
				output := fmt.Sprintf(`{"assistant":%q}`, target)
				if err := run.Emit(ctx, engine.HandoffEvent(cur.Name, target, call.ID, output)); err != nil {
					run.Finish(engine.Result{}, err)
					return
				}
				if err := run.Emit(ctx, engine.AgentUpdatedEvent(target)); err != nil {
					run.Finish(engine.Result{}, err)
					return
				}
				history = append(history, toolResultMessage(call, output))
				cur = next
				continue
			}

			if err := run.Emit(ctx, engine.ToolCallEvent(cur.Name, call.ID, call.Name, call.Arguments)); err != nil {
				run.Finish(engine.Result{}, err)
				return
			}

			tool, ok := lookupTool(cur, call.Name)
			if !ok {
				output := fmt.Sprintf(`{"error":"unknown tool %s"}`, call.Name)
				if err := emitToolOutput(ctx, run, cur.Name, call, output, &history); err != nil {
					run.Finish(engine.Result{}, err)
					return
				}
				continue
			}

			if tool.NeedsApproval {
				if err := run.Emit(ctx, engine.ToolApprovalEvent(cur.Name, call.ID, call.Name, call.Arguments)); err != nil {
					run.Finish(engine.Result{}, err)
					return
				}
				pending = append(pending, &engine.PendingApproval{
					CallID:    call.ID,
					Agent:     cur.Name,
					Tool:      call.Name,
					Arguments: call.Arguments,
				})
				continue
			}

			output := executeTool(ctx, tool, call)
			if err := emitToolOutput(ctx, run, cur.Name, call, output, &history); err != nil {
				run.Finish(engine.Result{}, err)
				return
			}
		}

		if len(pending) > 0 {
			state := &engine.State{Agent: cur.Name, History: history, Pending: pending}
			run.Finish(engine.Result{History: history, FinalAgent: cur.Name, Interruptions: pending, State: state}, nil)
			return
		}
	}

	run.Finish(engine.Result{}, fmt.Errorf("max turns (%d) exceeded", maxTurns))
}

// settleApprovals replays recorded decisions: approved calls execute now,
// rejected calls feed a refusal back to the model. Calls still undecided
// are returned so the run can re-suspend.
func (e *Engine) settleApprovals(ctx context.Context, run *engine.Run, cur *agents.Agent, pending []*engine.PendingApproval, history *[]engine.Message) ([]*engine.PendingApproval, error) {
	var undecided []*engine.PendingApproval
	for _, p := range pending {
		call := engine.ToolCallRef{ID: p.CallID, Name: p.Tool, Arguments: p.Arguments}
		switch p.Decision {
		case engine.DecisionApproved:
			tool, ok := lookupTool(cur, p.Tool)
			var output string
			if !ok {
				output = fmt.Sprintf(`{"error":"unknown tool %s"}`, p.Tool)
			} else {
				output = executeTool(ctx, tool, call)
			}
			if err := emitToolOutput(ctx, run, cur.Name, call, output, history); err != nil {
				return nil, err
			}
		case engine.DecisionRejected:
			output := `{"error":"Tool execution was not approved."}`
			if err := emitToolOutput(ctx, run, cur.Name, call, output, history); err != nil {
				return nil, err
			}
		default:
			undecided = append(undecided, p)
		}
	}
	return undecided, nil
}

// streamTurn runs one model completion, emitting text deltas as they
// arrive and accumulating tool-call fragments until the stream ends.
func (e *Engine) streamTurn(ctx context.Context, run *engine.Run, agent *agents.Agent, history []engine.Message) (string, []engine.ToolCallRef, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    e.model,
		Messages: chatMessages(agent, history),
		Tools:    chatTools(agent),
		Stream:   true,
	}

	stream, err := e.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return "", nil, fmt.Errorf("create completion stream: %w", err)
	}
	defer stream.Close()

	var text strings.Builder
	acc := newToolCallAccumulator()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("stream recv: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			text.WriteString(delta.Content)
			if err := run.Emit(ctx, engine.TextDeltaEvent(delta.Content)); err != nil {
				return "", nil, err
			}
		}
		acc.add(delta.ToolCalls)
	}

	return text.String(), acc.calls(), nil
}

func executeTool(ctx context.Context, tool *tools.Tool, call engine.ToolCallRef) string {
	result, err := tool.Call(ctx, json.RawMessage(call.Arguments))
	if err != nil {
		encoded, _ := json.Marshal(map[string]string{"error": err.Error()})
		return string(encoded)
	}
	return string(result)
}

func emitToolOutput(ctx context.Context, run *engine.Run, agent string, call engine.ToolCallRef, output string, history *[]engine.Message) error {
	if err := run.Emit(ctx, engine.ToolCallOutputEvent(agent, call.ID, call.Name, output)); err != nil {
		return err
	}
	*history = append(*history, toolResultMessage(call, output))
	return nil
}

func assistantToolCallMessage(calls []engine.ToolCallRef) engine.Message {
	return engine.Message{Role: "assistant", ToolCalls: calls}
}

func toolResultMessage(call engine.ToolCallRef, output string) engine.Message {
	return engine.Message{Role: "tool", Content: output, ToolCallID: call.ID, Name: call.Name}
}

func lookupTool(agent *agents.Agent, name string) (*tools.Tool, bool) {
	for _, t := range agent.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}
