package prompts

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"civitai-scraper/internal/utils"
	"civitai-scraper/pkg/types"
)

// Corpus collects the raw prompt pairs of one classification bucket.
type Corpus struct {
	name  string
	pairs map[types.PromptPair]struct{}
}

func NewCorpus(name string) *Corpus {
	return &Corpus{
		name:  name,
		pairs: make(map[types.PromptPair]struct{}),
	}
}

func (c *Corpus) Name() string { return c.name }

// Add records a raw pair. Pairs with an empty positive prompt are ignored.
func (c *Corpus) Add(positive, negative string) {
	if positive == "" {
		return
	}
	c.pairs[types.PromptPair{Positive: positive, Negative: negative}] = struct{}{}
}

// Len is the number of distinct raw pairs.
func (c *Corpus) Len() int { return len(c.pairs) }

// Lines cleans every pair, drops those whose positive side cleans to nothing,
// and returns the distinct "{positive}|||{negative}" lines in sorted order.
func (c *Corpus) Lines(cleaner *Cleaner) []string {
	unique := make(map[string]struct{}, len(c.pairs))
	for pair := range c.pairs {
		positive := cleaner.Clean(pair.Positive)
		if positive == "" {
			continue
		}
		negative := cleaner.Clean(pair.Negative)
		unique[types.PromptPair{Positive: positive, Negative: negative}.String()] = struct{}{}
	}
	return sortedKeys(unique)
}

// WriteFile writes the cleaned lines to path, one per line with a trailing
// newline. With merge, lines already present in the file are kept as well.
// It returns the number of lines written.
func (c *Corpus) WriteFile(path string, cleaner *Cleaner, merge bool) (int, error) {
	lines := c.Lines(cleaner)

	if merge {
		existing, err := readLines(path)
		if err != nil {
			return 0, err
		}
		if len(existing) > 0 {
			unique := make(map[string]struct{}, len(lines)+len(existing))
			for _, line := range existing {
				unique[line] = struct{}{}
			}
			for _, line := range lines {
				unique[line] = struct{}{}
			}
			lines = sortedKeys(unique)
		}
	}

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	if _, err := utils.WriteFileAtomic(path, strings.NewReader(b.String())); err != nil {
		return 0, fmt.Errorf("failed to write %s corpus: %w", c.name, err)
	}
	return len(lines), nil
}

// readLines returns the non-blank lines of path whose positive side is non-empty.
func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if types.ParsePromptPair(line).Positive == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
