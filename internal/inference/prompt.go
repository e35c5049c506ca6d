package inference

import (
	"strings"
	"unicode"
)

const (
	systemPrompt = "You are a helpful customer support assistant."
	assistantCue = "<|assistant|>"
	endOfTurn    = "</s>"
	tagOpen      = "<"
)

// stopSequences end generation at the close of the assistant turn or the start of a new user turn.
var stopSequences = []string{endOfTurn, "<|user|>"}

// BuildPrompt renders the three-role chat template the adapter was trained on.
func BuildPrompt(question string) string {
	var b strings.Builder
	b.WriteString("<|system|>\n")
	b.WriteString(systemPrompt)
	b.WriteString(endOfTurn + "\n")
	b.WriteString("<|user|>\n")
	b.WriteString(question)
	b.WriteString(endOfTurn + "\n")
	b.WriteString(assistantCue + "\n")
	return b.String()
}

// PostProcess extracts the assistant's answer from decoded model output. Text after the last
// assistant cue is kept, everything from the first tag-open character on is dropped, and the result
// is trimmed.
func PostProcess(decoded string) string {
	text := decoded
	if i := strings.LastIndex(text, assistantCue); i >= 0 {
		text = text[i+len(assistantCue):]
	}
	if i := strings.Index(text, tagOpen); i >= 0 {
		text = strings.TrimRightFunc(text[:i], unicode.IsSpace)
	}
	return strings.TrimSpace(text)
}
