package prompts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// ExcludedWords is the set of lowercase tokens removed from prompts.
type ExcludedWords map[string]struct{}

func NewExcludedWords(words ...string) ExcludedWords {
	set := make(ExcludedWords, len(words))
	for _, word := range words {
		word = strings.ToLower(strings.TrimSpace(word))
		if word != "" {
			set[word] = struct{}{}
		}
	}
	return set
}

func (ew ExcludedWords) Contains(word string) bool {
	_, ok := ew[word]
	return ok
}

// ParseExcludedWords reads a comma-separated word list.
func ParseExcludedWords(content string) ExcludedWords {
	return NewExcludedWords(strings.Split(content, ",")...)
}

// LoadExcludedWords reads the word list at path. A missing file yields an
// empty set and a nil error.
func LoadExcludedWords(path string) (ExcludedWords, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ExcludedWords{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read excluded words file: %w", err)
	}
	return ParseExcludedWords(string(data)), nil
}
