// Copyright 2025 Chorus
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package engine implements the orchestration state machine. One
// Execute call drives one State from intent classification through
// planning, backend calls and grounding synthesis to a final answer,
// persisting a snapshot after every node. Errors are captured in the
// state, never raised past Execute: every run resolves to an answer.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"chorus/engine/connectors/base"
	"chorus/engine/intent"
	"chorus/engine/planner"
	"chorus/engine/provider"
	"chorus/engine/shared/logger"
	"chorus/engine/store"
)

const (
	// DefaultMaxIterations bounds the node loop of one execution
	DefaultMaxIterations = 10

	// contextTokens is the conversation history budget per LLM call
	contextTokens = 1000

	errMaxIterations = "max iterations exceeded"

	answerFallback = "I'm sorry, I wasn't able to produce an answer for that request."
)

// Backend dispatches calls to named connectors. Registries for tools,
// external agents and data sources all satisfy it.
type Backend interface {
	Call(ctx context.Context, name string, payload map[string]interface{}) (*base.Result, error)
	Names() []string
}

// Deps carries everything an Engine needs, injected at construction so
// tests can instantiate isolated engines. LLM is required; nil Memory,
// Cache, Tools, Agents and DataSources disable the matching features.
type Deps struct {
	Classifier  intent.Classifier
	Planner     *planner.Planner
	LLM         provider.ChatClient
	Tools       Backend
	Agents      Backend
	DataSources Backend
	Memory      *store.MemoryStore
	Cache       *store.CacheStore
	Snapshots   SnapshotStore

	MaxIterations int
}

type handlerFunc func(ctx context.Context, st *State) (Node, error)

// Engine executes orchestration runs. It is safe for concurrent use;
// each run owns its State exclusively.
type Engine struct {
	classifier  intent.Classifier
	planner     *planner.Planner
	llm         provider.ChatClient
	tools       Backend
	agents      Backend
	datasources Backend
	memory      *store.MemoryStore
	cache       *store.CacheStore
	snapshots   SnapshotStore

	maxIterations int
	handlers      map[Node]handlerFunc
	log           *logger.Logger
}

// New validates deps, fills defaults and builds the node handler table.
func New(deps Deps) (*Engine, error) {
	if deps.LLM == nil {
		return nil, fmt.Errorf("engine requires an LLM client")
	}
	if deps.Classifier == nil {
		deps.Classifier = intent.NewDefaultClassifier()
	}
	if deps.Planner == nil {
		deps.Planner = planner.New()
	}
	if deps.Snapshots == nil {
		deps.Snapshots = NewInMemorySnapshotStore()
	}
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = DefaultMaxIterations
	}

	e := &Engine{
		classifier:    deps.Classifier,
		planner:       deps.Planner,
		llm:           deps.LLM,
		tools:         deps.Tools,
		agents:        deps.Agents,
		datasources:   deps.DataSources,
		memory:        deps.Memory,
		cache:         deps.Cache,
		snapshots:     deps.Snapshots,
		maxIterations: deps.MaxIterations,
		log:           logger.New("engine"),
	}

	e.handlers = map[Node]handlerFunc{
		NodeIntentRouter:  e.handleIntentRouter,
		NodePlanner:       e.handlePlanner,
		NodeLLMAgent:      e.handleLLMAgent,
		NodeToolExecutor:  e.handleToolExecutor,
		NodeExternalAgent: e.handleExternalAgent,
		NodeGrounding:     e.handleGrounding,
		NodeMemoryStore:   e.handleMemoryStore,
	}

	return e, nil
}

// Execute runs the state machine to completion and returns the same
// State, finalized. The returned state always carries an answer; any
// failure is in State.Error rather than an error return.
func (e *Engine) Execute(ctx context.Context, st *State) *State {
	start := time.Now()
	if st.ExecutionID == "" {
		st.ExecutionID = uuid.NewString()
	}

	if e.cache != nil {
		key := store.CacheKey(st.UserID, st.UserInput)
		if val, ok, err := e.cache.Get(ctx, key); err == nil && ok {
			promCacheLookups.WithLabelValues("hit").Inc()
			st.Answer = val
			st.CurrentNode = NodeEnd
			e.finalize(st, true)
			e.observe(st, start)
			return st
		}
		promCacheLookups.WithLabelValues("miss").Inc()
	}

	// start is implicit: the first ticked node is the intent router
	st.CurrentNode = NodeIntentRouter

	for st.CurrentNode != NodeEnd {
		if st.Error != "" {
			st.CurrentNode = NodeEnd
			break
		}
		if st.Iteration >= e.maxIterations {
			st.Error = errMaxIterations
			st.CurrentNode = NodeEnd
			break
		}

		handler, ok := e.handlers[st.CurrentNode]
		if !ok {
			st.Error = fmt.Sprintf("unknown node %q", st.CurrentNode)
			st.CurrentNode = NodeEnd
			break
		}

		promNodeTransitions.WithLabelValues(string(st.CurrentNode)).Inc()
		next, err := handler(ctx, st)
		if err != nil {
			e.log.ErrorWithErr(st.UserID, st.ExecutionID, "node failed", err, map[string]interface{}{
				"node": string(st.CurrentNode),
			})
			st.Error = err.Error()
			next = NodeEnd
		}

		st.CurrentNode = next
		st.Iteration++
		e.saveSnapshot(ctx, st)
	}

	e.finalize(st, false)

	if e.cache != nil && st.Error == "" && st.Answer != "" {
		key := store.CacheKey(st.UserID, st.UserInput)
		if err := e.cache.Set(ctx, key, st.Answer, 0); err != nil {
			e.log.Warn(st.UserID, st.ExecutionID, "failed to cache answer", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	e.observe(st, start)
	return st
}

// Snapshot returns the persisted state for an execution id.
func (e *Engine) Snapshot(ctx context.Context, executionID string) (*State, error) {
	return e.snapshots.Load(ctx, executionID)
}

func (e *Engine) handleIntentRouter(_ context.Context, st *State) (Node, error) {
	res := e.classifier.Classify(st.UserInput)
	st.Intent = res.Label
	st.Confidence = res.Confidence

	e.log.Info(st.UserID, st.ExecutionID, "intent classified", map[string]interface{}{
		"intent":     res.Label,
		"confidence": res.Confidence,
	})

	if plannedIntents[res.Label] {
		return NodePlanner, nil
	}
	if node, ok := intentRoutes[res.Label]; ok {
		return node, nil
	}
	return NodeLLMAgent, nil
}

func (e *Engine) handlePlanner(_ context.Context, st *State) (Node, error) {
	plan, err := e.planner.PlanFor(st.Intent, st.UserInput)
	if err != nil {
		return NodeEnd, fmt.Errorf("planning failed: %w", err)
	}
	st.Plan = plan

	first := plan.FirstReady()
	if first == nil {
		return NodeMemoryStore, nil
	}
	return actionNode(first.Action), nil
}

func (e *Engine) handleLLMAgent(ctx context.Context, st *State) (Node, error) {
	var task *planner.Task
	prompt := st.UserInput

	if st.Plan != nil {
		task = st.Plan.FirstReady()
		if task == nil {
			return NodeMemoryStore, nil
		}
		if task.Action != planner.ActionLLMCall {
			return actionNode(task.Action), nil
		}
		if err := st.Plan.MarkInProgress(task.ID); err != nil {
			return NodeEnd, err
		}
		if p, ok := task.Parameters["prompt"].(string); ok && p != "" {
			prompt = p
		}
	}

	resp, err := e.llm.Complete(ctx, provider.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: e.systemPrompt(ctx, st),
	})
	if err != nil {
		if task != nil {
			_ = st.Plan.MarkFailed(task.ID)
		}
		return NodeEnd, fmt.Errorf("llm call failed: %w", err)
	}

	st.LLMResponse = resp.Content
	if task != nil {
		if err := st.Plan.MarkCompleted(task.ID, resp.Content); err != nil {
			return NodeEnd, err
		}
	}

	e.log.InfoWithDuration(st.UserID, st.ExecutionID, "llm call completed",
		float64(resp.Latency.Milliseconds()), map[string]interface{}{
			"model":  resp.Model,
			"tokens": resp.TokensUsed,
		})

	if st.Plan != nil {
		if next := st.Plan.FirstReady(); next != nil {
			return actionNode(next.Action), nil
		}
	}
	return NodeMemoryStore, nil
}

func (e *Engine) handleToolExecutor(ctx context.Context, st *State) (Node, error) {
	if e.tools == nil {
		return NodeEnd, fmt.Errorf("no tools configured")
	}

	var task *planner.Task
	name := ""
	payload := map[string]interface{}{"input": st.UserInput}

	if st.Plan != nil {
		task = st.Plan.FirstReady()
		if task == nil {
			return NodeMemoryStore, nil
		}
		if task.Action != planner.ActionToolExecution {
			return actionNode(task.Action), nil
		}
		if err := st.Plan.MarkInProgress(task.ID); err != nil {
			return NodeEnd, err
		}
		if n, ok := task.Parameters["tool"].(string); ok {
			name = n
		}
		if p, ok := task.Parameters["payload"].(map[string]interface{}); ok {
			payload = p
		}
	}
	if name == "" {
		var err error
		if name, err = defaultBackendName(e.tools); err != nil {
			return NodeEnd, fmt.Errorf("no tool available: %w", err)
		}
	}

	res, err := e.tools.Call(ctx, name, payload)
	if err != nil {
		if task != nil {
			_ = st.Plan.MarkFailed(task.ID)
		}
		return NodeEnd, fmt.Errorf("tool %s failed: %w", name, err)
	}

	st.ToolResults = append(st.ToolResults, res)
	if !res.Success {
		if task != nil {
			_ = st.Plan.MarkFailed(task.ID)
		}
		return NodeEnd, fmt.Errorf("tool %s failed: %s", name, res.Error)
	}
	if task != nil {
		if err := st.Plan.MarkCompleted(task.ID, res.Data); err != nil {
			return NodeEnd, err
		}
		if next := st.Plan.FirstReady(); next != nil {
			return actionNode(next.Action), nil
		}
	}
	return NodeGrounding, nil
}

func (e *Engine) handleExternalAgent(ctx context.Context, st *State) (Node, error) {
	if e.agents == nil {
		return NodeEnd, fmt.Errorf("no external agents configured")
	}

	var task *planner.Task
	name := ""
	payload := map[string]interface{}{"input": st.UserInput}

	if st.Plan != nil {
		task = st.Plan.FirstReady()
		if task == nil {
			return NodeMemoryStore, nil
		}
		if task.Action != planner.ActionExternalAgent {
			return actionNode(task.Action), nil
		}
		if err := st.Plan.MarkInProgress(task.ID); err != nil {
			return NodeEnd, err
		}
		if n, ok := task.Parameters["agent"].(string); ok {
			name = n
		}
		if p, ok := task.Parameters["payload"].(map[string]interface{}); ok {
			payload = p
		}
	}
	if name == "" {
		var err error
		if name, err = defaultBackendName(e.agents); err != nil {
			return NodeEnd, fmt.Errorf("no external agent available: %w", err)
		}
	}

	res, err := e.agents.Call(ctx, name, payload)
	if err != nil {
		if task != nil {
			_ = st.Plan.MarkFailed(task.ID)
		}
		return NodeEnd, fmt.Errorf("external agent %s failed: %w", name, err)
	}

	st.ExternalAgentResult = res
	if !res.Success {
		if task != nil {
			_ = st.Plan.MarkFailed(task.ID)
		}
		return NodeEnd, fmt.Errorf("external agent %s failed: %s", name, res.Error)
	}
	if task != nil {
		if err := st.Plan.MarkCompleted(task.ID, res.Data); err != nil {
			return NodeEnd, err
		}
		if next := st.Plan.FirstReady(); next != nil {
			return actionNode(next.Action), nil
		}
	}

	// Agent responses are complete answers; no synthesis pass
	return NodeMemoryStore, nil
}

func (e *Engine) handleGrounding(ctx context.Context, st *State) (Node, error) {
	if st.Plan != nil {
		if task := st.Plan.FirstReady(); task != nil && task.Action == planner.ActionDataQuery {
			if e.datasources == nil {
				return NodeEnd, fmt.Errorf("no data sources configured")
			}
			if err := st.Plan.MarkInProgress(task.ID); err != nil {
				return NodeEnd, err
			}

			name, _ := task.Parameters["datasource"].(string)
			if name == "" {
				var err error
				if name, err = defaultBackendName(e.datasources); err != nil {
					return NodeEnd, fmt.Errorf("no data source available: %w", err)
				}
			}

			res, err := e.datasources.Call(ctx, name, task.Parameters)
			if err != nil {
				_ = st.Plan.MarkFailed(task.ID)
				return NodeEnd, fmt.Errorf("data source %s failed: %w", name, err)
			}
			if !res.Success {
				_ = st.Plan.MarkFailed(task.ID)
				return NodeEnd, fmt.Errorf("data source %s failed: %s", name, res.Error)
			}

			st.GroundingData = res.Data
			if err := st.Plan.MarkCompleted(task.ID, res.Data); err != nil {
				return NodeEnd, err
			}

			if next := st.Plan.FirstReady(); next != nil {
				return actionNode(next.Action), nil
			}
			// Retrieval without a synthesis task still synthesizes once
			return NodeLLMAgent, nil
		}
	}

	// Fold tool output into grounding data for one synthesis pass
	if st.GroundingData == nil && len(st.ToolResults) > 0 && st.LLMResponse == "" {
		st.GroundingData = st.ToolResults[len(st.ToolResults)-1].Data
		return NodeLLMAgent, nil
	}

	return NodeMemoryStore, nil
}

func (e *Engine) handleMemoryStore(ctx context.Context, st *State) (Node, error) {
	st.Answer = e.resolveAnswer(st)

	if e.memory != nil {
		if err := e.memory.AddMessage(ctx, st.UserID, "user", st.UserInput); err != nil {
			e.log.Warn(st.UserID, st.ExecutionID, "failed to store user message", map[string]interface{}{
				"error": err.Error(),
			})
		}
		if err := e.memory.AddMessage(ctx, st.UserID, "assistant", st.Answer); err != nil {
			e.log.Warn(st.UserID, st.ExecutionID, "failed to store assistant message", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return NodeEnd, nil
}

// resolveAnswer picks the final answer by source priority: the LLM
// response wins, then the external agent's payload, then the last tool
// result, then a generic fallback.
func (e *Engine) resolveAnswer(st *State) string {
	if st.LLMResponse != "" {
		return st.LLMResponse
	}
	if st.ExternalAgentResult != nil && st.ExternalAgentResult.Success {
		if s := stringifyData(st.ExternalAgentResult.Data); s != "" {
			return s
		}
	}
	if n := len(st.ToolResults); n > 0 {
		if s := stringifyData(st.ToolResults[n-1].Data); s != "" {
			return s
		}
	}
	return answerFallback
}

// systemPrompt assembles conversation history and grounding data into
// the system prompt for one LLM call.
func (e *Engine) systemPrompt(ctx context.Context, st *State) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant.")

	if e.memory != nil && st.UserID != "" {
		if msgs, err := e.memory.GetContext(ctx, st.UserID, contextTokens); err == nil && len(msgs) > 0 {
			b.WriteString("\n\nConversation so far:\n")
			for _, msg := range msgs {
				b.WriteString(msg.Role)
				b.WriteString(": ")
				b.WriteString(msg.Content)
				b.WriteString("\n")
			}
		}
	}

	if st.GroundingData != nil {
		b.WriteString("\n\nRelevant data:\n")
		b.WriteString(stringifyData(st.GroundingData))
	}

	return b.String()
}

// finalize freezes the state: the answer is guaranteed non-empty and
// finalMetadata aggregates the run for the caller.
func (e *Engine) finalize(st *State, cached bool) {
	st.CurrentNode = NodeEnd
	if st.Answer == "" {
		st.Answer = answerFallback
	}
	st.FinalMetadata = map[string]interface{}{
		"execution_id": st.ExecutionID,
		"intent":       st.Intent,
		"confidence":   st.Confidence,
		"iterations":   st.Iteration,
		"failed":       st.Error != "",
		"cached":       cached,
	}
}

func (e *Engine) observe(st *State, start time.Time) {
	status := "success"
	if st.Error != "" {
		status = "error"
	}
	intentLabel := st.Intent
	if intentLabel == "" {
		intentLabel = "unclassified"
	}
	promExecutionsTotal.WithLabelValues(intentLabel, status).Inc()
	promExecutionDuration.Observe(time.Since(start).Seconds())
}

func (e *Engine) saveSnapshot(ctx context.Context, st *State) {
	if err := e.snapshots.Save(ctx, st); err != nil {
		e.log.Warn(st.UserID, st.ExecutionID, "failed to persist snapshot", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// defaultBackendName picks the lexically first registered name so the
// choice is deterministic when a request does not name a backend.
func defaultBackendName(b Backend) (string, error) {
	names := b.Names()
	if len(names) == 0 {
		return "", fmt.Errorf("no connectors registered")
	}
	sort.Strings(names)
	return names[0], nil
}

func stringifyData(data interface{}) string {
	switch v := data.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}
