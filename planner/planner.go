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
	"fmt"

	"chorus/engine/intent"
)

// Planner maps an intent label to a template plan of 1-3 tasks with
// explicit dependency edges.
type Planner struct {
	templates map[string]templateFunc
}

type templateFunc func(input string) []*Task

// New creates a Planner with the stock intent templates.
func New() *Planner {
	p := &Planner{templates: make(map[string]templateFunc)}

	p.templates[intent.LabelDataQuery] = dataQueryTemplate
	p.templates[intent.LabelAnalytics] = analyticsTemplate
	p.templates[intent.LabelCodeGen] = singleLLMTemplate("Generate the requested code")

	return p
}

// PlanFor builds a plan for the given intent and user input. Intents
// without a registered template get a single LLM call.
func (p *Planner) PlanFor(intentLabel, input string) (*Plan, error) {
	tmpl, ok := p.templates[intentLabel]
	if !ok {
		tmpl = singleLLMTemplate("Answer the request")
	}

	plan, err := NewPlan(intentLabel, tmpl(input))
	if err != nil {
		// Templates are static, so this only fires on a programming error
		return nil, fmt.Errorf("invalid template for intent %s: %w", intentLabel, err)
	}
	return plan, nil
}

// dataQueryTemplate retrieves data first, then synthesizes an answer from
// the retrieval result.
func dataQueryTemplate(input string) []*Task {
	return []*Task{
		{
			ID:          "task-1",
			Description: "Retrieve records matching the request",
			Action:      ActionDataQuery,
			Parameters:  map[string]interface{}{"query": input},
		},
		{
			ID:           "task-2",
			Description:  "Synthesize an answer from the retrieved data",
			Action:       ActionLLMCall,
			Parameters:   map[string]interface{}{"prompt": input},
			Dependencies: []string{"task-1"},
		},
	}
}

// analyticsTemplate retrieves data, analyzes it, then writes a summary.
func analyticsTemplate(input string) []*Task {
	return []*Task{
		{
			ID:          "task-1",
			Description: "Retrieve the data set to analyze",
			Action:      ActionDataQuery,
			Parameters:  map[string]interface{}{"query": input},
		},
		{
			ID:           "task-2",
			Description:  "Analyze the retrieved data",
			Action:       ActionLLMCall,
			Parameters:   map[string]interface{}{"prompt": "Analyze the following data for: " + input},
			Dependencies: []string{"task-1"},
		},
		{
			ID:           "task-3",
			Description:  "Summarize the analysis",
			Action:       ActionLLMCall,
			Parameters:   map[string]interface{}{"prompt": "Summarize the analysis for: " + input},
			Dependencies: []string{"task-2"},
		},
	}
}

func singleLLMTemplate(description string) templateFunc {
	return func(input string) []*Task {
		return []*Task{
			{
				ID:          "task-1",
				Description: description,
				Action:      ActionLLMCall,
				Parameters:  map[string]interface{}{"prompt": input},
			},
		}
	}
}
