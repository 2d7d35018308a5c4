package sanitize

import (
	"strings"
	"sync"
)

// defaultBinaryFields are field-name substrings whose values are typically
// base64 blobs or raw media and never belong in a request log.
var defaultBinaryFields = []string{
	"audio",
	"image",
	"b64_json",
	"base64",
	"binary",
	"input_audio",
}

// openAIAudioFields extends the default set for OpenAI audio webhooks, whose
// payloads nest media under additional field names.
var openAIAudioFields = append([]string{
	"data",
	"delta",
	"transcript_chunk",
	"wav",
	"mp3",
	"pcm",
}, defaultBinaryFields...)

// extraBinaryFields holds configured per-source extensions, keyed by
// lowercased source tag. Registration happens once at startup; reads during
// interception take the lock briefly.
var (
	extraFieldsMu     sync.RWMutex
	extraBinaryFields = map[string][]string{}
)

// RegisterBinaryFields extends the field set for a source tag with extra
// substrings. Registering the same source again appends; the built-in sets
// are never replaced.
func RegisterBinaryFields(source string, fields []string) {
	if len(fields) == 0 {
		return
	}
	key := strings.ToLower(source)
	extraFieldsMu.Lock()
	extraBinaryFields[key] = append(extraBinaryFields[key], fields...)
	extraFieldsMu.Unlock()
}

// BinaryFieldsForSource returns the field-name substring set used to strip
// binary payloads for a given source tag: the built-in set for the tag plus
// any registered extensions. Unknown sources get the default set.
func BinaryFieldsForSource(source string) []string {
	key := strings.ToLower(source)
	base := defaultBinaryFields
	switch key {
	case "openai-audio", "openai_audio_webhook":
		base = openAIAudioFields
	}
	extraFieldsMu.RLock()
	extra := extraBinaryFields[key]
	extraFieldsMu.RUnlock()
	if len(extra) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	out = append(out, extra...)
	return out
}

// StripBinaryFields recursively removes map entries whose lowercased key
// contains any of the given substrings. The key is dropped entirely, not
// nulled. Slices are walked element-wise; scalar values pass through
// unchanged. The input is not mutated.
func StripBinaryFields(value any, fieldSubstrings []string) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			if containsAny(strings.ToLower(k), fieldSubstrings) {
				continue
			}
			out[k] = StripBinaryFields(elem, fieldSubstrings)
		}
		return out
	case []any:
		out := make([]any, 0, len(v))
		for _, elem := range v {
			out = append(out, StripBinaryFields(elem, fieldSubstrings))
		}
		return out
	default:
		return value
	}
}

// StripBinaryFieldsForSource is StripBinaryFields with the per-source set
// selected by tag.
func StripBinaryFieldsForSource(value any, source string) any {
	return StripBinaryFields(value, BinaryFieldsForSource(source))
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
