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

// Package intent classifies free-text user input into an intent label.
// The default implementation is an ordered keyword-rule classifier; the
// Classifier interface exists so an LLM-backed strategy can be substituted
// without touching the engine.
package intent

import (
	"strings"
)

// Intent labels produced by the default rule set.
const (
	LabelDataQuery     = "data_query"
	LabelAnalytics     = "analytics"
	LabelCodeGen       = "code_generation"
	LabelToolRequest   = "tool_request"
	LabelExternalAgent = "external_agent"
	LabelGreeting      = "greeting"
	LabelGeneral       = "general"
)

// DefaultConfidence is assigned when no rule matches.
const DefaultConfidence = 0.7

// Result is a classification outcome.
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classifier maps user input to an intent label with a confidence score.
// Implementations must be stateless with respect to inputs: the same input
// always yields the same result.
type Classifier interface {
	Classify(input string) Result
}

// Rule is one ordered keyword rule. The rule matches when any of its
// keywords appears in the lower-cased input.
type Rule struct {
	Label      string
	Confidence float64
	Keywords   []string
}

// RuleClassifier applies an ordered rule list, first match wins.
type RuleClassifier struct {
	rules        []Rule
	defaultLabel string
}

// NewRuleClassifier creates a classifier with the given ordered rules.
// Unknown input falls through to defaultLabel at DefaultConfidence.
func NewRuleClassifier(rules []Rule, defaultLabel string) *RuleClassifier {
	return &RuleClassifier{
		rules:        rules,
		defaultLabel: defaultLabel,
	}
}

// NewDefaultClassifier creates the stock rule set used by the engine.
// Rule order matters: more specific intents are listed first so that, for
// example, "query the sales database" classifies as data_query rather than
// general.
func NewDefaultClassifier() *RuleClassifier {
	return NewRuleClassifier([]Rule{
		{
			Label:      LabelDataQuery,
			Confidence: 0.9,
			Keywords:   []string{"query", "database", "select", "records", "lookup", "fetch data"},
		},
		{
			Label:      LabelAnalytics,
			Confidence: 0.85,
			Keywords:   []string{"analyze", "analysis", "report", "trend", "summarize data", "metrics", "statistics"},
		},
		{
			Label:      LabelCodeGen,
			Confidence: 0.85,
			Keywords:   []string{"code", "function", "implement", "script", "refactor", "debug"},
		},
		{
			Label:      LabelToolRequest,
			Confidence: 0.8,
			Keywords:   []string{"run tool", "execute", "trigger", "invoke", "webhook"},
		},
		{
			Label:      LabelExternalAgent,
			Confidence: 0.8,
			Keywords:   []string{"agent", "delegate", "specialist", "escalate"},
		},
		{
			Label:      LabelGreeting,
			Confidence: 0.95,
			Keywords:   []string{"hello", "hi ", "hey", "good morning", "good evening"},
		},
	}, LabelGeneral)
}

// Classify applies the ordered rules against the lower-cased input.
func (c *RuleClassifier) Classify(input string) Result {
	lowered := strings.ToLower(input)

	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lowered, kw) {
				return Result{Label: rule.Label, Confidence: rule.Confidence}
			}
		}
	}

	return Result{Label: c.defaultLabel, Confidence: DefaultConfidence}
}
