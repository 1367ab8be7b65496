package core

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/civicworks/coachtool/internal/agent/telemetry"
	"github.com/civicworks/coachtool/internal/llm"
)

// RunSpec configures one agent run.
type RunSpec struct {
	Recipe        string
	Model         string
	SystemPrompt  string
	UserMessage   string
	History       []llm.Message // optional prior turns, inserted before the user message
	MaxIterations int
	Temperature   float64
	MaxTokens     int
	JSONResponse  bool // force a json_object response (questions recipe)
	TokenBudget   int  // evidence token cap across the run; 0 disables
}

// Runner drives the tool-calling loop. One Runner is shared across requests;
// all per-run state lives on the stack of the Run methods.
type Runner struct {
	Provider llm.Provider
	Tools    *Toolset
	Counter  Counter
	Logger   *log.Logger
	Metrics  *telemetry.Metrics
}

// RunToCompletion loops until the model produces a final answer. On the last
// allowed iteration tool use is disabled, so the run makes at most
// MaxIterations model calls.
func (r *Runner) RunToCompletion(ctx context.Context, spec RunSpec) (RunResult, error) {
	return r.run(ctx, spec, false)
}

// Resolve executes tool rounds only, reserving the final model call for the
// caller's separate streaming completion. If the model stops calling tools
// early, the result carries its answer as Content and no streaming call is
// needed.
func (r *Runner) Resolve(ctx context.Context, spec RunSpec) (RunResult, error) {
	return r.run(ctx, spec, true)
}

func (r *Runner) run(ctx context.Context, spec RunSpec, resolve bool) (RunResult, error) {
	start := time.Now()
	result, err := r.loop(ctx, spec, resolve)
	if r.Metrics != nil {
		outcome := "ok"
		switch {
		case err != nil:
			outcome = "error"
		case result.BudgetExhausted:
			outcome = "budget_exhausted"
		}
		r.Metrics.Runs.WithLabelValues(spec.Recipe, outcome).Inc()
		r.Metrics.RunDuration.WithLabelValues(spec.Recipe).Observe(time.Since(start).Seconds())
		r.Metrics.Iterations.WithLabelValues(spec.Recipe).Observe(float64(result.Iterations))
	}
	return result, err
}

func (r *Runner) loop(ctx context.Context, spec RunSpec, resolve bool) (RunResult, error) {
	maxIter := spec.MaxIterations
	if maxIter < 1 {
		maxIter = 1
	}
	// In resolve mode the caller's streaming completion is the forced-final
	// call, so the loop itself gets one round fewer. With a cap of 1 that
	// leaves zero tool rounds and the streaming call is the only model call.
	loopIter := maxIter
	if resolve {
		loopIter--
	}

	messages := make([]llm.Message, 0, len(spec.History)+2)
	messages = append(messages, llm.Message{Role: "system", Content: spec.SystemPrompt})
	messages = append(messages, spec.History...)
	if spec.UserMessage != "" {
		messages = append(messages, llm.Message{Role: "user", Content: spec.UserMessage})
	}

	budget := newEvidenceBudget(r.Counter, spec.TokenBudget)
	result := RunResult{}

	for iter := 1; iter <= loopIter; iter++ {
		final := !resolve && iter == loopIter

		req := llm.ChatRequest{
			Model:       spec.Model,
			Messages:    messages,
			Temperature: spec.Temperature,
			MaxTokens:   spec.MaxTokens,
		}
		if spec.JSONResponse {
			req.ResponseFormat = &llm.ResponseFormat{Type: "json_object"}
		}
		// Tool definitions ride along on every call: the API rejects
		// tool_choice without tools, so the forced-final call keeps them and
		// pins tool_choice to "none" instead of dropping them.
		req.Tools = r.Tools.Definitions()
		if final {
			req.ToolChoice = "none"
		}

		resp, err := r.Provider.ChatCompletion(ctx, req)
		result.Iterations++
		r.observeLLM(spec.Model, resp, err)
		if err != nil {
			result.Messages = messages
			return result, fmt.Errorf("model call (iteration %d): %w", iter, err)
		}

		if len(resp.Message.ToolCalls) == 0 || final {
			result.Content = resp.Message.Content
			result.BudgetExhausted = final && len(resp.Message.ToolCalls) > 0
			result.Messages = append(messages, resp.Message)
			return result, nil
		}

		messages = append(messages, resp.Message)
		toolMsgs, evidence := r.executeToolCalls(ctx, resp.Message.ToolCalls, budget)
		messages = append(messages, toolMsgs...)
		result.Evidence = append(result.Evidence, evidence...)
	}

	// Resolve mode: iteration budget spent on tool rounds; the caller makes
	// the streaming call over the resolved history.
	result.Messages = messages
	result.BudgetExhausted = true
	return result, nil
}

// executeToolCalls fans the turn's tool calls out concurrently and appends
// results in call order, keyed by tool-call ID, regardless of completion
// order.
func (r *Runner) executeToolCalls(ctx context.Context, calls []llm.ToolCall, budget *evidenceBudget) ([]llm.Message, []EvidenceItem) {
	type outcome struct {
		envelope map[string]interface{}
		items    []EvidenceItem
	}
	outcomes := make([]outcome, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i := range calls {
		i := i
		g.Go(func() error {
			call := calls[i]
			envelope, items := r.Tools.Execute(gctx, call.Function.Name, call.Function.Arguments)
			outcomes[i] = outcome{envelope: envelope, items: items}
			if r.Metrics != nil {
				status := "ok"
				if _, failed := envelope["error"]; failed {
					status = "error"
				}
				r.Metrics.ToolCalls.WithLabelValues(call.Function.Name, status).Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	var msgs []llm.Message
	var evidence []EvidenceItem
	for i, call := range calls {
		budget.clamp(outcomes[i].items)
		msgs = append(msgs, llm.Message{
			Role:       "tool",
			ToolCallID: call.ID,
			Content:    marshalPayload(outcomes[i].envelope),
		})
		evidence = append(evidence, outcomes[i].items...)
	}
	return msgs, evidence
}

func (r *Runner) observeLLM(model string, resp llm.ChatResponse, err error) {
	if r.Metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.Metrics.LLMRequests.WithLabelValues(model, status).Inc()
	if err == nil {
		r.Metrics.LLMTokens.WithLabelValues(model, "prompt").Add(float64(resp.PromptTokens))
		r.Metrics.LLMTokens.WithLabelValues(model, "completion").Add(float64(resp.CompletionTokens))
	}
}
