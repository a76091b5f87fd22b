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

// Package planner decomposes a classified request into a dependency-ordered
// plan of tasks. Plans are small template DAGs; cycles are rejected at
// construction time, never discovered at runtime.
package planner

import (
	"fmt"
)

// Action identifies what kind of backend executes a task.
type Action string

const (
	ActionLLMCall       Action = "llm_call"
	ActionToolExecution Action = "tool_execution"
	ActionExternalAgent Action = "external_agent"
	ActionDataQuery     Action = "data_query"
)

// Status tracks a task through its lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// Task is one unit of work in a plan.
type Task struct {
	ID           string                 `json:"id"`
	Description  string                 `json:"description"`
	Action       Action                 `json:"action"`
	Parameters   map[string]interface{} `json:"parameters,omitempty"`
	Dependencies []string               `json:"dependencies,omitempty"`
	Status       Status                 `json:"status"`
	Result       interface{}            `json:"result,omitempty"`
}

// Plan is an ordered collection of tasks forming a DAG. Task order in the
// slice is the insertion order of the template, which keeps ReadyTasks
// deterministic.
type Plan struct {
	Intent string  `json:"intent"`
	Tasks  []*Task `json:"tasks"`
}

// NewPlan builds a plan from tasks and validates it: every dependency must
// reference a task in the plan and the dependency graph must be acyclic.
func NewPlan(intent string, tasks []*Task) (*Plan, error) {
	p := &Plan{Intent: intent, Tasks: tasks}

	byID := make(map[string]*Task, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			return nil, fmt.Errorf("plan for intent %s contains a task without an ID", intent)
		}
		if _, dup := byID[t.ID]; dup {
			return nil, fmt.Errorf("plan for intent %s contains duplicate task ID %s", intent, t.ID)
		}
		if t.Status == "" {
			t.Status = StatusPending
		}
		byID[t.ID] = t
	}

	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("task %s depends on unknown task %s", t.ID, dep)
			}
		}
	}

	if err := p.checkAcyclic(byID); err != nil {
		return nil, err
	}

	return p, nil
}

// checkAcyclic runs a depth-first search over the dependency edges.
func (p *Plan) checkAcyclic(byID map[string]*Task) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(p.Tasks))

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("plan contains a dependency cycle through task %s", id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, dep := range byID[id].Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	for _, t := range p.Tasks {
		if err := visit(t.ID); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the task with the given ID, or nil.
func (p *Plan) Get(id string) *Task {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// ReadyTasks returns every pending task whose dependencies have all
// completed, in plan order. This is the only scheduling primitive the
// engine consumes.
func (p *Plan) ReadyTasks() []*Task {
	var ready []*Task
	for _, t := range p.Tasks {
		if t.Status != StatusPending {
			continue
		}
		if p.depsCompleted(t) {
			ready = append(ready, t)
		}
	}
	return ready
}

// FirstReady returns the first ready task in plan order, or nil when no
// task is ready.
func (p *Plan) FirstReady() *Task {
	for _, t := range p.Tasks {
		if t.Status == StatusPending && p.depsCompleted(t) {
			return t
		}
	}
	return nil
}

func (p *Plan) depsCompleted(t *Task) bool {
	for _, dep := range t.Dependencies {
		d := p.Get(dep)
		if d == nil || d.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// MarkInProgress transitions a task to in_progress. A task may only start
// when every dependency has completed.
func (p *Plan) MarkInProgress(id string) error {
	t := p.Get(id)
	if t == nil {
		return fmt.Errorf("unknown task %s", id)
	}
	if t.Status != StatusPending {
		return fmt.Errorf("task %s is %s, not pending", id, t.Status)
	}
	if !p.depsCompleted(t) {
		return fmt.Errorf("task %s has incomplete dependencies", id)
	}
	t.Status = StatusInProgress
	return nil
}

// MarkCompleted records a task result and transitions it to completed.
func (p *Plan) MarkCompleted(id string, result interface{}) error {
	t := p.Get(id)
	if t == nil {
		return fmt.Errorf("unknown task %s", id)
	}
	t.Status = StatusCompleted
	t.Result = result
	return nil
}

// MarkFailed transitions a task to failed and skips every task that
// depends on it, transitively.
func (p *Plan) MarkFailed(id string) error {
	t := p.Get(id)
	if t == nil {
		return fmt.Errorf("unknown task %s", id)
	}
	t.Status = StatusFailed
	p.skipDependents(id)
	return nil
}

func (p *Plan) skipDependents(id string) {
	for _, t := range p.Tasks {
		if t.Status != StatusPending {
			continue
		}
		for _, dep := range t.Dependencies {
			if dep == id {
				t.Status = StatusSkipped
				p.skipDependents(t.ID)
				break
			}
		}
	}
}

// IsComplete reports whether no task remains pending or in progress.
func (p *Plan) IsComplete() bool {
	for _, t := range p.Tasks {
		if t.Status == StatusPending || t.Status == StatusInProgress {
			return false
		}
	}
	return true
}
