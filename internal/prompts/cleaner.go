package prompts

import (
	"regexp"
	"strings"
	"unicode"
)

// loraPattern matches a model-weight annotation: "<lora:" NAME ":" WEIGHT ">"
// where NAME contains no colon and WEIGHT is made of digits and dots.
var loraPattern = regexp.MustCompile(`<lora:([^:]+):([0-9.]+)>`)

var (
	// \s alone is ASCII only; \p{Z} adds NBSP, ideographic and other Unicode spaces.
	whitespaceRun = regexp.MustCompile(`[\s\v\x{85}\p{Z}\x{FEFF}]+`)
	nonAlnum      = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// CleaningRule is one step of the prompt cleaning pipeline.
type CleaningRule interface {
	Name() string
	Apply(prompt string) string
}

// Cleaner strips annotations and excluded vocabulary from prompts. It holds no
// mutable state once built and Clean has no side effects.
type Cleaner struct {
	rules []CleaningRule
}

// NewCleaner builds the standard pipeline: LoRA removal, excluded-word
// filtering (skipped when the set is empty) and whitespace normalisation.
func NewCleaner(excluded ExcludedWords) *Cleaner {
	return &Cleaner{
		rules: []CleaningRule{
			&LoraRemovalRule{},
			&ExcludedWordRule{words: excluded},
			&WhitespaceRule{},
		},
	}
}

// Clean returns the cleaned prompt. The result may be empty.
func (c *Cleaner) Clean(prompt string) string {
	if prompt == "" {
		return ""
	}
	cleaned := prompt
	for _, rule := range c.rules {
		cleaned = rule.Apply(cleaned)
	}
	return cleaned
}

// LoraRemovalRule deletes every <lora:NAME:WEIGHT> token.
type LoraRemovalRule struct{}

func (r *LoraRemovalRule) Name() string { return "lora_removal" }

func (r *LoraRemovalRule) Apply(prompt string) string {
	return loraPattern.ReplaceAllString(prompt, "")
}

// ExcludedWordRule drops whitespace-delimited tokens whose normal form is in the set.
type ExcludedWordRule struct {
	words ExcludedWords
}

func (r *ExcludedWordRule) Name() string { return "excluded_words" }

func (r *ExcludedWordRule) Apply(prompt string) string {
	if len(r.words) == 0 {
		return prompt
	}

	tokens := strings.FieldsFunc(prompt, isSpace)
	kept := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if r.words.Contains(NormalizeToken(token)) {
			continue
		}
		kept = append(kept, token)
	}
	return strings.Join(kept, " ")
}

// WhitespaceRule turns newlines into sentence breaks and collapses whitespace.
type WhitespaceRule struct{}

func (r *WhitespaceRule) Name() string { return "whitespace" }

func (r *WhitespaceRule) Apply(prompt string) string {
	cleaned := strings.ReplaceAll(prompt, "\n", ". ")
	cleaned = whitespaceRun.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}

// NormalizeToken lowercases a token and strips everything but ASCII letters and digits.
func NormalizeToken(token string) string {
	return strings.ToLower(nonAlnum.ReplaceAllString(token, ""))
}
