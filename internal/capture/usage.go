package capture

import (
	"github.com/pkoukk/tiktoken-go"
)

// CountTokens counts tokens in text using the gpt-3.5-turbo encoding. Exact
// per-model counts are not required here; the estimate only fills in when a
// provider response carries no usage object.
func CountTokens(text string) (int, error) {
	tk, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
	if err != nil {
		return 0, err
	}
	return len(tk.Encode(text, nil, nil)), nil
}

// EstimateUsage attaches a best-effort token usage estimate to a chat-shaped
// call when the response body lacks a usage object. Non-chat or unreadable
// bodies are left untouched; estimation failures are silent.
func EstimateUsage(call *CapturedCall) {
	if call == nil || call.Usage != nil {
		return
	}
	resp, ok := call.ResponseBody.(map[string]any)
	if !ok {
		return
	}
	if _, hasUsage := resp["usage"]; hasUsage {
		if u := usageFromMap(resp["usage"]); u != nil {
			call.Usage = u
		}
		return
	}

	prompt := chatText(call.RequestBody, "messages", "content")
	completion := choiceText(resp)
	if prompt == "" && completion == "" {
		return
	}
	p, errP := CountTokens(prompt)
	c, errC := CountTokens(completion)
	if errP != nil || errC != nil {
		return
	}
	call.Usage = &TokenUsage{
		PromptTokens:     p,
		CompletionTokens: c,
		TotalTokens:      p + c,
		Estimated:        true,
	}
}

func usageFromMap(v any) *TokenUsage {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	u := &TokenUsage{
		PromptTokens:     intField(m, "prompt_tokens"),
		CompletionTokens: intField(m, "completion_tokens"),
		TotalTokens:      intField(m, "total_tokens"),
	}
	if u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0 {
		return nil
	}
	return u
}

func intField(m map[string]any, key string) int {
	if f, ok := m[key].(float64); ok {
		return int(f)
	}
	return 0
}

// chatText concatenates the content strings of a chat request body.
func chatText(body any, listKey, contentKey string) string {
	m, ok := body.(map[string]any)
	if !ok {
		return ""
	}
	items, ok := m[listKey].([]any)
	if !ok {
		return ""
	}
	var out string
	for _, item := range items {
		if msg, ok := item.(map[string]any); ok {
			if s, ok := msg[contentKey].(string); ok {
				out += s
			}
		}
	}
	return out
}

// choiceText extracts assistant output from a chat completion response.
func choiceText(resp map[string]any) string {
	choices, ok := resp["choices"].([]any)
	if !ok {
		return ""
	}
	var out string
	for _, ch := range choices {
		m, ok := ch.(map[string]any)
		if !ok {
			continue
		}
		if msg, ok := m["message"].(map[string]any); ok {
			if s, ok := msg["content"].(string); ok {
				out += s
			}
		}
		if delta, ok := m["delta"].(map[string]any); ok {
			if s, ok := delta["content"].(string); ok {
				out += s
			}
		}
	}
	return out
}
