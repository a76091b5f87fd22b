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
	"github.com/google/uuid"

	"chorus/engine/connectors/base"
	"chorus/engine/planner"
)

// State is the complete execution state of one orchestration run. It is
// owned by exactly one engine run and mutated only by the node handler
// currently executing; after the run reaches the end node it must be
// treated as immutable.
type State struct {
	ExecutionID string `json:"execution_id"`
	UserInput   string `json:"user_input"`
	UserID      string `json:"user_id"`

	CurrentNode Node `json:"current_node"`
	Iteration   int  `json:"iteration"`

	Intent     string        `json:"intent,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	Plan       *planner.Plan `json:"plan,omitempty"`

	LLMResponse         string         `json:"llm_response,omitempty"`
	ToolResults         []*base.Result `json:"tool_results,omitempty"`
	ExternalAgentResult *base.Result   `json:"external_agent_result,omitempty"`
	GroundingData       interface{}    `json:"grounding_data,omitempty"`

	Answer        string                 `json:"answer,omitempty"`
	Error         string                 `json:"error,omitempty"`
	FinalMetadata map[string]interface{} `json:"final_metadata,omitempty"`
}

// NewState builds the initial state for one user input. The execution
// id is assigned here and never changes.
func NewState(userID, userInput string) *State {
	return &State{
		ExecutionID: uuid.NewString(),
		UserID:      userID,
		UserInput:   userInput,
		CurrentNode: NodeStart,
	}
}
