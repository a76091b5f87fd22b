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

package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorus/engine/intent"
)

func twoTaskPlan(t *testing.T) *Plan {
	t.Helper()
	plan, err := NewPlan("data_query", []*Task{
		{ID: "a", Action: ActionDataQuery},
		{ID: "b", Action: ActionLLMCall, Dependencies: []string{"a"}},
	})
	require.NoError(t, err)
	return plan
}

func TestReadyTasksRespectDependencies(t *testing.T) {
	plan := twoTaskPlan(t)

	ready := plan.ReadyTasks()
	require.Len(t, ready, 1)
	assert.Equal(t, "a", ready[0].ID)

	// b only becomes ready once a completes
	require.NoError(t, plan.MarkInProgress("a"))
	assert.Empty(t, plan.ReadyTasks())

	require.NoError(t, plan.MarkCompleted("a", "rows"))
	ready = plan.ReadyTasks()
	require.Len(t, ready, 1)
	assert.Equal(t, "b", ready[0].ID)
}

func TestMarkInProgressRequiresCompletedDeps(t *testing.T) {
	plan := twoTaskPlan(t)

	err := plan.MarkInProgress("b")
	assert.ErrorContains(t, err, "incomplete dependencies")
}

func TestIsCompleteAfterAllTasksDone(t *testing.T) {
	plan := twoTaskPlan(t)
	assert.False(t, plan.IsComplete())

	require.NoError(t, plan.MarkCompleted("a", nil))
	assert.False(t, plan.IsComplete())

	require.NoError(t, plan.MarkCompleted("b", nil))
	assert.True(t, plan.IsComplete())
}

func TestFailedTaskSkipsDependents(t *testing.T) {
	plan, err := NewPlan("analytics", []*Task{
		{ID: "a", Action: ActionDataQuery},
		{ID: "b", Action: ActionLLMCall, Dependencies: []string{"a"}},
		{ID: "c", Action: ActionLLMCall, Dependencies: []string{"b"}},
	})
	require.NoError(t, err)

	require.NoError(t, plan.MarkFailed("a"))

	assert.Equal(t, StatusSkipped, plan.Get("b").Status)
	assert.Equal(t, StatusSkipped, plan.Get("c").Status)
	assert.True(t, plan.IsComplete())
}

func TestNewPlanRejectsCycles(t *testing.T) {
	_, err := NewPlan("bad", []*Task{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"a"}},
	})
	assert.ErrorContains(t, err, "cycle")
}

func TestNewPlanRejectsUnknownDependency(t *testing.T) {
	_, err := NewPlan("bad", []*Task{
		{ID: "a", Dependencies: []string{"missing"}},
	})
	assert.ErrorContains(t, err, "unknown task")
}

func TestNewPlanRejectsDuplicateIDs(t *testing.T) {
	_, err := NewPlan("bad", []*Task{
		{ID: "a"},
		{ID: "a"},
	})
	assert.ErrorContains(t, err, "duplicate")
}

func TestPlannerTemplates(t *testing.T) {
	p := New()

	tests := []struct {
		intentLabel string
		wantTasks   int
		wantFirst   Action
	}{
		{intent.LabelDataQuery, 2, ActionDataQuery},
		{intent.LabelAnalytics, 3, ActionDataQuery},
		{intent.LabelCodeGen, 1, ActionLLMCall},
		{"never_seen_before", 1, ActionLLMCall},
	}

	for _, tt := range tests {
		t.Run(tt.intentLabel, func(t *testing.T) {
			plan, err := p.PlanFor(tt.intentLabel, "do the thing")
			require.NoError(t, err)
			assert.Len(t, plan.Tasks, tt.wantTasks)

			first := plan.FirstReady()
			require.NotNil(t, first)
			assert.Equal(t, tt.wantFirst, first.Action)
		})
	}
}

// Walking a template plan to completion through ReadyTasks must visit every
// task exactly once, in dependency order.
func TestTemplateWalkToCompletion(t *testing.T) {
	p := New()
	plan, err := p.PlanFor(intent.LabelAnalytics, "quarterly numbers")
	require.NoError(t, err)

	var order []string
	for !plan.IsComplete() {
		task := plan.FirstReady()
		require.NotNil(t, task, "plan stalled with pending tasks")
		require.NoError(t, plan.MarkInProgress(task.ID))
		require.NoError(t, plan.MarkCompleted(task.ID, "ok"))
		order = append(order, task.ID)
	}

	assert.Equal(t, []string{"task-1", "task-2", "task-3"}, order)
}
