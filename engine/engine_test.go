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

package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorus/engine/connectors/base"
	"chorus/engine/planner"
	"chorus/engine/provider"
	"chorus/engine/store"
)

// fakeLLM returns canned content and records calls.
type fakeLLM struct {
	content string
	err     error
	calls   int
	prompts []string
	systems []string
}

func (f *fakeLLM) Complete(_ context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	f.calls++
	f.prompts = append(f.prompts, req.Prompt)
	f.systems = append(f.systems, req.SystemPrompt)
	if f.err != nil {
		return nil, f.err
	}
	return &provider.CompletionResponse{Content: f.content, Model: "fake", Latency: time.Millisecond}, nil
}

func (f *fakeLLM) CompleteStream(ctx context.Context, req provider.CompletionRequest, handler provider.StreamHandler) (*provider.CompletionResponse, error) {
	resp, err := f.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := handler(resp.Content); err != nil {
		return nil, err
	}
	return resp, nil
}

func (f *fakeLLM) Close() {}

// fakeBackend answers every call with fixed data.
type fakeBackend struct {
	names  []string
	data   interface{}
	fail   bool
	called []string
}

func (f *fakeBackend) Call(_ context.Context, name string, _ map[string]interface{}) (*base.Result, error) {
	f.called = append(f.called, name)
	if f.fail {
		return &base.Result{Success: false, Error: "backend down"}, nil
	}
	return &base.Result{Success: true, Data: f.data}, nil
}

func (f *fakeBackend) Names() []string { return f.names }

func newTestEngine(t *testing.T, deps Deps) *Engine {
	t.Helper()
	if deps.LLM == nil {
		deps.LLM = &fakeLLM{content: "llm answer"}
	}
	e, err := New(deps)
	require.NoError(t, err)
	return e
}

func TestExecuteGreetingPath(t *testing.T) {
	llm := &fakeLLM{content: "hello!"}
	e := newTestEngine(t, Deps{LLM: llm})

	st := e.Execute(context.Background(), NewState("u1", "hello there"))

	assert.Equal(t, NodeEnd, st.CurrentNode)
	assert.Empty(t, st.Error)
	assert.Equal(t, "greeting", st.Intent)
	assert.Equal(t, "hello!", st.Answer)
	assert.Equal(t, 1, llm.calls)
	// intentRouter, llmAgent, memoryStore
	assert.Equal(t, 3, st.Iteration)
}

func TestExecuteDataQueryPlanTerminates(t *testing.T) {
	llm := &fakeLLM{content: "there are 2 open orders"}
	ds := &fakeBackend{names: []string{"orders-db"}, data: []map[string]interface{}{{"id": 1}, {"id": 2}}}
	e := newTestEngine(t, Deps{LLM: llm, DataSources: ds})

	st := e.Execute(context.Background(), NewState("u1", "query all open orders"))

	require.Empty(t, st.Error)
	assert.Equal(t, "data_query", st.Intent)
	assert.Equal(t, "there are 2 open orders", st.Answer)
	assert.NotNil(t, st.GroundingData)
	assert.Equal(t, []string{"orders-db"}, ds.called)

	// Two dependent tasks complete well inside the bound
	assert.LessOrEqual(t, st.Iteration, 6)
	require.NotNil(t, st.Plan)
	assert.True(t, st.Plan.IsComplete())

	// Synthesis saw the retrieved data
	require.Equal(t, 1, llm.calls)
	assert.Contains(t, llm.systems[0], "Relevant data")
}

func TestExecuteMaxIterationGuard(t *testing.T) {
	e := newTestEngine(t, Deps{MaxIterations: 4})

	// A handler that always routes back to itself never terminates on
	// its own
	e.handlers[NodeLLMAgent] = func(context.Context, *State) (Node, error) {
		return NodeLLMAgent, nil
	}

	st := e.Execute(context.Background(), NewState("u1", "hello"))

	assert.Equal(t, NodeEnd, st.CurrentNode)
	assert.Equal(t, "max iterations exceeded", st.Error)
	assert.Equal(t, 4, st.Iteration)
	// Even a failed run answers
	assert.NotEmpty(t, st.Answer)
	assert.Equal(t, true, st.FinalMetadata["failed"])
}

func TestExecuteExternalAgentAnswer(t *testing.T) {
	agents := &fakeBackend{names: []string{"travel-agent"}, data: "flight booked"}
	e := newTestEngine(t, Deps{LLM: &fakeLLM{content: "unused"}, Agents: agents})

	st := e.Execute(context.Background(), NewState("u1", "ask the travel agent to book my flight"))

	require.Empty(t, st.Error)
	assert.Equal(t, "external_agent", st.Intent)
	// No LLM response, so the agent payload is the answer
	assert.Equal(t, "flight booked", st.Answer)
	assert.Equal(t, []string{"travel-agent"}, agents.called)
}

func TestExecuteToolPathSynthesizes(t *testing.T) {
	llm := &fakeLLM{content: "it is sunny in Berlin"}
	tools := &fakeBackend{names: []string{"weather"}, data: map[string]interface{}{"temp": 21}}
	e := newTestEngine(t, Deps{LLM: llm, Tools: tools})

	st := e.Execute(context.Background(), NewState("u1", "invoke the weather tool"))

	require.Empty(t, st.Error)
	assert.Equal(t, "tool_request", st.Intent)
	require.Len(t, st.ToolResults, 1)
	assert.Equal(t, "it is sunny in Berlin", st.Answer)

	// Tool output was folded into the synthesis prompt
	require.Equal(t, 1, llm.calls)
	assert.Contains(t, llm.systems[0], "Relevant data")
}

func TestExecuteLLMFailureCapturedInState(t *testing.T) {
	llm := &fakeLLM{err: fmt.Errorf("provider exploded")}
	e := newTestEngine(t, Deps{LLM: llm})

	st := e.Execute(context.Background(), NewState("u1", "hello"))

	assert.Equal(t, NodeEnd, st.CurrentNode)
	assert.Contains(t, st.Error, "provider exploded")
	assert.Equal(t, answerFallback, st.Answer)
	assert.Equal(t, true, st.FinalMetadata["failed"])
}

func TestExecuteBackendFailureCapturedInState(t *testing.T) {
	ds := &fakeBackend{names: []string{"orders-db"}, fail: true}
	e := newTestEngine(t, Deps{LLM: &fakeLLM{content: "x"}, DataSources: ds})

	st := e.Execute(context.Background(), NewState("u1", "query all open orders"))

	assert.Contains(t, st.Error, "backend down")
	assert.NotEmpty(t, st.Answer)
	require.NotNil(t, st.Plan)
	// The dependent synthesis task was skipped, not left pending
	assert.True(t, st.Plan.IsComplete())
}

func TestExecuteWritesMemory(t *testing.T) {
	backend := store.NewInMemStore()
	defer backend.Close()
	memory := store.NewMemoryStore(backend, 10, time.Hour)

	e := newTestEngine(t, Deps{LLM: &fakeLLM{content: "hi!"}, Memory: memory})
	e.Execute(context.Background(), NewState("u1", "hello"))

	msgs, err := memory.GetContext(context.Background(), "u1", 10000)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "hi!", msgs[1].Content)
}

func TestExecuteMemoryContextInPrompt(t *testing.T) {
	backend := store.NewInMemStore()
	defer backend.Close()
	memory := store.NewMemoryStore(backend, 10, time.Hour)
	require.NoError(t, memory.AddMessage(context.Background(), "u1", "user", "my name is Ada"))

	llm := &fakeLLM{content: "hello Ada"}
	e := newTestEngine(t, Deps{LLM: llm, Memory: memory})
	e.Execute(context.Background(), NewState("u1", "hello again"))

	require.Equal(t, 1, llm.calls)
	assert.Contains(t, llm.systems[0], "my name is Ada")
}

func TestExecuteCache(t *testing.T) {
	backend := store.NewInMemStore()
	defer backend.Close()
	cache := store.NewCacheStore(backend, time.Minute)

	llm := &fakeLLM{content: "computed once"}
	e := newTestEngine(t, Deps{LLM: llm, Cache: cache})

	first := e.Execute(context.Background(), NewState("u1", "hello"))
	assert.Equal(t, "computed once", first.Answer)
	assert.Equal(t, false, first.FinalMetadata["cached"])

	second := e.Execute(context.Background(), NewState("u1", "hello"))
	assert.Equal(t, "computed once", second.Answer)
	assert.Equal(t, true, second.FinalMetadata["cached"])
	assert.Equal(t, 1, llm.calls)
}

func TestExecutePersistsSnapshots(t *testing.T) {
	snaps := NewInMemorySnapshotStore()
	e := newTestEngine(t, Deps{LLM: &fakeLLM{content: "hi"}, Snapshots: snaps})

	st := e.Execute(context.Background(), NewState("u1", "hello"))

	loaded, err := snaps.Load(context.Background(), st.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, st.ExecutionID, loaded.ExecutionID)
	assert.Equal(t, NodeEnd, loaded.CurrentNode)
	assert.Equal(t, st.Iteration, loaded.Iteration)
}

func TestExecuteFinalMetadata(t *testing.T) {
	e := newTestEngine(t, Deps{LLM: &fakeLLM{content: "hi"}})

	st := e.Execute(context.Background(), NewState("u1", "hello"))

	md := st.FinalMetadata
	require.NotNil(t, md)
	assert.Equal(t, st.ExecutionID, md["execution_id"])
	assert.Equal(t, "greeting", md["intent"])
	assert.Equal(t, st.Iteration, md["iterations"])
	assert.Equal(t, false, md["failed"])
}

func TestExecuteAssignsExecutionID(t *testing.T) {
	e := newTestEngine(t, Deps{LLM: &fakeLLM{content: "hi"}})

	st := e.Execute(context.Background(), &State{UserID: "u1", UserInput: "hello"})
	assert.NotEmpty(t, st.ExecutionID)
}

func TestNewRequiresLLM(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestResolveAnswerPriority(t *testing.T) {
	e := newTestEngine(t, Deps{})

	tests := []struct {
		name string
		st   *State
		want string
	}{
		{
			name: "llm response wins",
			st: &State{
				LLMResponse:         "from llm",
				ExternalAgentResult: &base.Result{Success: true, Data: "from agent"},
				ToolResults:         []*base.Result{{Success: true, Data: "from tool"}},
			},
			want: "from llm",
		},
		{
			name: "agent beats tool",
			st: &State{
				ExternalAgentResult: &base.Result{Success: true, Data: "from agent"},
				ToolResults:         []*base.Result{{Success: true, Data: "from tool"}},
			},
			want: "from agent",
		},
		{
			name: "last tool result",
			st: &State{
				ToolResults: []*base.Result{
					{Success: true, Data: "first"},
					{Success: true, Data: "last"},
				},
			},
			want: "last",
		},
		{
			name: "fallback",
			st:   &State{},
			want: answerFallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.resolveAnswer(tt.st))
		})
	}
}

func TestToolExecutorReroutesNonToolTask(t *testing.T) {
	tool := &fakeBackend{names: []string{"webhook"}}
	e := newTestEngine(t, Deps{LLM: &fakeLLM{content: "x"}, Tools: tool})

	plan, err := planner.NewPlan("data_query", []*planner.Task{
		{ID: "t1", Description: "synthesize", Action: planner.ActionLLMCall},
	})
	require.NoError(t, err)

	st := NewState("u1", "query something")
	st.Plan = plan

	next, err := e.handleToolExecutor(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, NodeLLMAgent, next)
	// The ready task belongs to another node; no tool may run
	assert.Empty(t, tool.called)
	assert.Equal(t, planner.StatusPending, plan.Get("t1").Status)
}

func TestToolExecutorCompletedPlanRoutesToMemory(t *testing.T) {
	tool := &fakeBackend{names: []string{"webhook"}}
	e := newTestEngine(t, Deps{LLM: &fakeLLM{content: "x"}, Tools: tool})

	plan, err := planner.NewPlan("tool_request", []*planner.Task{
		{ID: "t1", Description: "run webhook", Action: planner.ActionToolExecution},
	})
	require.NoError(t, err)
	require.NoError(t, plan.MarkInProgress("t1"))
	require.NoError(t, plan.MarkCompleted("t1", "done"))

	st := NewState("u1", "invoke the webhook")
	st.Plan = plan

	next, err := e.handleToolExecutor(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, NodeMemoryStore, next)
	assert.Empty(t, tool.called)
}

func TestExternalAgentReroutesNonAgentTask(t *testing.T) {
	agents := &fakeBackend{names: []string{"travel-agent"}}
	e := newTestEngine(t, Deps{LLM: &fakeLLM{content: "x"}, Agents: agents})

	plan, err := planner.NewPlan("data_query", []*planner.Task{
		{ID: "t1", Description: "fetch rows", Action: planner.ActionDataQuery},
	})
	require.NoError(t, err)

	st := NewState("u1", "query something")
	st.Plan = plan

	next, err := e.handleExternalAgent(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, NodeGrounding, next)
	assert.Empty(t, agents.called)
	assert.Equal(t, planner.StatusPending, plan.Get("t1").Status)
}
