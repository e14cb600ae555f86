package sharelink

import (
	"context"
	"fmt"
)

// MaxPromptTextRunes is how much page text is sent with a prompt.
const MaxPromptTextRunes = 5000

// TruncateRunes returns at most n runes of s.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// SummaryPrompt asks for a social-media summary of text under maxLength characters.
func SummaryPrompt(text, language string, maxLength int) string {
	if language == "" {
		language = DefaultSummaryLanguage
	}
	if maxLength <= 0 {
		maxLength = DefaultSummaryMaxLength
	}
	return fmt.Sprintf("Summarize the following text in %s. THE SUMMARY MUST BE UNDER %d CHARACTERS. "+
		"Keep it concise and catchy for a social media post. "+
		"DO NOT include any introductory text, just the summary itself.\n\nText: %s",
		language, maxLength, TruncateRunes(text, MaxPromptTextRunes))
}

// CatchyTitlePrompt asks for a short eye-catch title derived from a page title.
func CatchyTitlePrompt(title, language string) string {
	if language == "" {
		language = DefaultSummaryLanguage
	}
	return fmt.Sprintf("Create a short, impactful, and catchy title for a social media eye-catch image "+
		"based on this page title: %q. Use %s. THE TITLE MUST BE UNDER 30 CHARACTERS and VERY STRIKING. "+
		"DO NOT include any introductory text, quotes, or punctuation unless essential. Just the title itself.",
		title, language)
}

// HashtagsPrompt asks for exactly three hashtags describing text.
func HashtagsPrompt(text, language string) string {
	if language == "" {
		language = DefaultSummaryLanguage
	}
	return fmt.Sprintf("Extract exactly 3 highly relevant and trending hashtags from the following text in %s. "+
		"THE HASHTAGS MUST BE REPRESENTATIVE OF THE CONTENT. "+
		"Format the output only as hashtags separated by spaces (e.g., #Apple #iPhone #Technology). "+
		"DO NOT include any other text.\n\nText: %s",
		language, TruncateRunes(text, MaxPromptTextRunes))
}

// Summarize dispatches a SummaryPrompt.
func (d *Dispatcher) Summarize(ctx context.Context, text, language string, maxLength int, cfg ProviderConfig) (string, error) {
	return d.Dispatch(ctx, SummaryPrompt(text, language, maxLength), cfg)
}

// CatchyTitle dispatches a CatchyTitlePrompt.
func (d *Dispatcher) CatchyTitle(ctx context.Context, title, language string, cfg ProviderConfig) (string, error) {
	return d.Dispatch(ctx, CatchyTitlePrompt(title, language), cfg)
}

// Hashtags dispatches a HashtagsPrompt.
func (d *Dispatcher) Hashtags(ctx context.Context, text, language string, cfg ProviderConfig) (string, error) {
	return d.Dispatch(ctx, HashtagsPrompt(text, language), cfg)
}
