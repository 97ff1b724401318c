package translate

import (
	"fmt"
	"strings"
)

// Tag markers delimit the text to translate in the prompt and the
// translation in the model's response. Chat models pad replies with
// commentary; the tags make extraction deterministic.
const (
	startTag = "<START>"
	endTag   = "<END>"
)

// Prompt builds the instruction sent to an LLM translation backend.
func Prompt(text, targetLanguage string) string {
	return fmt.Sprintf(
		"Translate the text between %s and %s into %s. "+
			"Respond with only the translation, wrapped between %s and %s.\n\n%s\n%s\n%s",
		startTag, endTag, targetLanguage, startTag, endTag,
		startTag, text, endTag,
	)
}

// ExtractTagged returns the content between the first startTag/endTag pair
// in response. When the model omitted the tags, the trimmed response is
// returned as-is rather than failing the utterance.
func ExtractTagged(response string) string {
	start := strings.Index(response, startTag)
	end := strings.Index(response, endTag)
	if start != -1 && end != -1 && start < end {
		return strings.TrimSpace(response[start+len(startTag) : end])
	}
	return strings.TrimSpace(response)
}
