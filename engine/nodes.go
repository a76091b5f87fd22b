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
	"chorus/engine/intent"
	"chorus/engine/planner"
)

// Node identifies one step of the orchestration state machine. The set
// is closed: adding a node means extending this enum and the handler
// table built in New, which keeps dispatch compile-time checked.
type Node string

const (
	NodeStart         Node = "start"
	NodeIntentRouter  Node = "intentRouter"
	NodePlanner       Node = "planner"
	NodeLLMAgent      Node = "llmAgent"
	NodeExternalAgent Node = "externalAgent"
	NodeToolExecutor  Node = "toolExecutor"
	NodeGrounding     Node = "grounding"
	NodeMemoryStore   Node = "memoryStore"
	NodeEnd           Node = "end"
)

// intentRoutes is the static intent to node table consulted for intents
// that need no multi-step plan. Structurally complex intents go to the
// planner instead.
var intentRoutes = map[string]Node{
	intent.LabelToolRequest:   NodeToolExecutor,
	intent.LabelExternalAgent: NodeExternalAgent,
	intent.LabelGreeting:      NodeLLMAgent,
	intent.LabelGeneral:       NodeLLMAgent,
}

// plannedIntents are the intents whose requests decompose into task
// plans.
var plannedIntents = map[string]bool{
	intent.LabelDataQuery: true,
	intent.LabelAnalytics: true,
	intent.LabelCodeGen:   true,
}

// actionNode maps a task action to the node that executes it. Data
// queries run at the grounding node, which retrieves and then hands the
// result to the LLM agent for synthesis.
func actionNode(action planner.Action) Node {
	switch action {
	case planner.ActionToolExecution:
		return NodeToolExecutor
	case planner.ActionExternalAgent:
		return NodeExternalAgent
	case planner.ActionDataQuery:
		return NodeGrounding
	default:
		return NodeLLMAgent
	}
}
