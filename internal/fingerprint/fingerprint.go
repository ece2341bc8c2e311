// Package fingerprint computes stable hashes over the routing-relevant
// subset of an inbound chat-completion payload and flattens mixed
// string/part-array message content to plain text.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// routingSubset is the tuple that determines a classifier decision. Model
// name, stream flag, and sampling parameters are deliberately excluded —
// two requests that differ only in those fields must collide.
type routingSubset struct {
	Messages       json.RawMessage `json:"messages"`
	Tools          json.RawMessage `json:"tools,omitempty"`
	ToolChoice     json.RawMessage `json:"tool_choice,omitempty"`
	ResponseFormat json.RawMessage `json:"response_format,omitempty"`
}

// Hash returns a hex SHA-256 digest over a deterministic JSON serialization
// of the routing-relevant subset of payload.
func Hash(payload []byte) (string, error) {
	var raw struct {
		Messages       json.RawMessage `json:"messages"`
		Tools          json.RawMessage `json:"tools"`
		ToolChoice     json.RawMessage `json:"tool_choice"`
		ResponseFormat json.RawMessage `json:"response_format"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return "", err
	}

	subset := routingSubset{
		Messages:       raw.Messages,
		Tools:          raw.Tools,
		ToolChoice:     raw.ToolChoice,
		ResponseFormat: raw.ResponseFormat,
	}
	data, err := json.Marshal(subset)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// CoerceContent flattens an OpenAI-style message content field — which may
// be a bare string or an array of content parts — to plain text.
//
// Precedence for a part's text, in order: the part itself if it is a plain
// string, part.text, part.input_text, a recursive coercion of part.content.
// A part matching none of those falls back to its JSON serialization.
func CoerceContent(content interface{}) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []interface{}:
		out := ""
		for _, part := range v {
			out += coercePart(part)
		}
		return out
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func coercePart(part interface{}) string {
	if s, ok := part.(string); ok {
		return s
	}
	m, ok := part.(map[string]interface{})
	if !ok {
		data, err := json.Marshal(part)
		if err != nil {
			return ""
		}
		return string(data)
	}
	if t, ok := m["text"].(string); ok {
		return t
	}
	if t, ok := m["input_text"].(string); ok {
		return t
	}
	if nested, ok := m["content"]; ok {
		return CoerceContent(nested)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(data)
}
