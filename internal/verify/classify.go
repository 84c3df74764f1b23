// Package verify decides whether an executed automation attempt achieved
// its instruction. Typing-style instructions are checked by literal text
// match against detected screen text; everything else is model judged.
package verify

import "strings"

// StrategyTag names the verification path chosen for an instruction.
type StrategyTag string

const (
	// StrategyLiteral checks that the typed payload is visible on screen.
	StrategyLiteral StrategyTag = "literal_text_match"
	// StrategyJudge asks the evaluation model to compare before/after state.
	StrategyJudge StrategyTag = "model_judged"
)

// Classifier selects the strategy tag for an instruction based on a
// configurable keyword list.
type Classifier struct {
	keywords []string
}

// NewClassifier lowercases the keyword list once up front. An empty list
// means every instruction is model judged.
func NewClassifier(keywords []string) *Classifier {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			lowered = append(lowered, k)
		}
	}
	return &Classifier{keywords: lowered}
}

// Classify tags an instruction. Matching is a case-insensitive substring
// check so non-spaced scripts like Japanese work the same as English.
func (c *Classifier) Classify(instruction string) StrategyTag {
	lowered := strings.ToLower(instruction)
	for _, k := range c.keywords {
		if strings.Contains(lowered, k) {
			return StrategyLiteral
		}
	}
	return StrategyJudge
}
