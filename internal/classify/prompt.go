// Package classify builds classifier prompts, parses decisions out of
// model output, and drives the classifier HTTP transport with its retry
// and fallback policy.
package classify

import (
	"encoding/json"

	"github.com/pathemata-mathemata/openrouter/internal/chatapi"
	"github.com/pathemata-mathemata/openrouter/internal/config"
)

const truncationMarker = "\n[TRUNCATED]"

type flatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildInput produces the classifier's input text from the inbound
// payload, per the configured strategy, truncated to maxChars.
func BuildInput(req *chatapi.Request, strategy config.ClassifierStrategy, maxChars int) string {
	var input string
	if strategy == config.StrategyFullMessages {
		input = serializeMessages(req.Messages)
	} else {
		input = lastUserText(req.Messages)
		if input == "" {
			input = serializeMessages(req.Messages)
		}
	}
	return truncate(input, maxChars)
}

func lastUserText(messages []chatapi.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Text()
		}
	}
	return ""
}

func serializeMessages(messages []chatapi.Message) string {
	flat := make([]flatMessage, 0, len(messages))
	for _, m := range messages {
		flat = append(flat, flatMessage{Role: m.Role, Content: m.Text()})
	}
	data, err := json.Marshal(flat)
	if err != nil {
		return ""
	}
	return string(data)
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	cut := maxChars
	if cut > len(s) {
		cut = len(s)
	}
	return s[:cut] + truncationMarker
}

// ExtractDecision scans text for the first character in [0-2] and returns
// it as an integer, or ok=false if no such character is present.
func ExtractDecision(text string) (int, bool) {
	for _, r := range text {
		if r >= '0' && r <= '2' {
			return int(r - '0'), true
		}
	}
	return 0, false
}

// BuildMessages assembles the two-message classifier conversation: a
// system turn with the configured prompt, and a user turn wrapping the
// built input.
func BuildMessages(systemPrompt, input string) []chatapi.Message {
	return []chatapi.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: "Return only 0, 1, or 2. Input:\n" + input},
	}
}
