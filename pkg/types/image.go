package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// PromptSeparator joins the positive and negative side of a prompt pair on output lines.
const PromptSeparator = "|||"

// NSFWLevel is the severity marker attached to an image. The API has sent it
// both as a string ("None", "Soft", "Mature", "X") and as a number.
type NSFWLevel string

const NSFWLevelX NSFWLevel = "X"

func (l *NSFWLevel) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*l = ""
		return nil
	}

	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = NSFWLevel(s)
		return nil
	}

	if _, err := strconv.ParseFloat(raw, 64); err != nil {
		return fmt.Errorf("invalid nsfwLevel %s", raw)
	}
	*l = NSFWLevel(raw)
	return nil
}

type ImageStats struct {
	CryCount     int `json:"cryCount"`
	LaughCount   int `json:"laughCount"`
	LikeCount    int `json:"likeCount"`
	DislikeCount int `json:"dislikeCount"`
	HeartCount   int `json:"heartCount"`
	CommentCount int `json:"commentCount"`
}

// Number is a numeric metadata value kept in its JSON text form. Generators
// disagree on types (64-bit unsigned seeds, quoted steps), so any number or
// numeric string is accepted and anything else decodes to the empty value.
type Number string

func (n *Number) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*n = ""
			return nil
		}
		raw = strings.TrimSpace(s)
	}
	if _, err := strconv.ParseFloat(raw, 64); err != nil {
		*n = ""
		return nil
	}
	*n = Number(raw)
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseFloat(string(n), 64); err != nil {
		return json.Marshal(string(n))
	}
	return []byte(n), nil
}

func (n Number) String() string { return string(n) }

// Int64 returns the value as an integer, or 0 when it does not fit.
func (n Number) Int64() int64 {
	if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return i
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(f)
}

// Float64 returns the value as a float, or 0 when it is empty.
func (n Number) Float64() float64 {
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0
	}
	return f
}

// GenerationMeta is the generation metadata attached to an image. Every field
// is optional and a field of an unexpected type is left empty instead of
// failing the whole page.
type GenerationMeta struct {
	Prompt         string `json:"prompt,omitempty"`
	NegativePrompt string `json:"negativePrompt,omitempty"`
	CFGScale       Number `json:"cfgScale,omitempty"`
	Steps          Number `json:"steps,omitempty"`
	Sampler        string `json:"sampler,omitempty"`
	Seed           Number `json:"seed,omitempty"`
	Model          string `json:"Model,omitempty"`
}

func (m *GenerationMeta) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		*m = GenerationMeta{}
		return nil
	}

	*m = GenerationMeta{
		Prompt:         stringField(fields["prompt"]),
		NegativePrompt: stringField(fields["negativePrompt"]),
		Sampler:        stringField(fields["sampler"]),
		Model:          stringField(fields["Model"]),
	}
	numberField(&m.CFGScale, fields["cfgScale"])
	numberField(&m.Steps, fields["steps"])
	numberField(&m.Seed, fields["seed"])
	return nil
}

func stringField(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func numberField(n *Number, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	n.UnmarshalJSON(raw)
}

type ImageItem struct {
	ID        int64           `json:"id"`
	URL       string          `json:"url"`
	Hash      string          `json:"hash"`
	Width     int             `json:"width"`
	Height    int             `json:"height"`
	CreatedAt time.Time       `json:"createdAt"`
	PostID    int64           `json:"postId"`
	Stats     ImageStats      `json:"stats"`
	Meta      *GenerationMeta `json:"meta"`
	Username  string          `json:"username"`
	NSFW      bool            `json:"nsfw"`
	NSFWLevel NSFWLevel       `json:"nsfwLevel,omitempty"`
}

// Prompt returns the raw positive and negative prompt, empty when the image has no metadata.
func (i ImageItem) Prompt() (string, string) {
	if i.Meta == nil {
		return "", ""
	}
	return i.Meta.Prompt, i.Meta.NegativePrompt
}

type PageMetadata struct {
	NextPage    string `json:"nextPage,omitempty"`
	NextCursor  string `json:"nextCursor,omitempty"`
	CurrentPage int    `json:"currentPage,omitempty"`
	PageSize    int    `json:"pageSize,omitempty"`
	TotalItems  int    `json:"totalItems,omitempty"`
	TotalPages  int    `json:"totalPages,omitempty"`
}

type PageResponse struct {
	Items    []ImageItem  `json:"items"`
	Metadata PageMetadata `json:"metadata"`
}

// PromptPair is a (positive, negative) prompt tuple. It is comparable and is
// used directly as a set key, so no separator is needed for uniqueness.
type PromptPair struct {
	Positive string
	Negative string
}

func (p PromptPair) String() string {
	return p.Positive + PromptSeparator + p.Negative
}

// ParsePromptPair splits a corpus line back into its two sides.
func ParsePromptPair(line string) PromptPair {
	positive, negative, _ := strings.Cut(line, PromptSeparator)
	return PromptPair{Positive: positive, Negative: negative}
}

// RunStats are the counters of one harvest run.
type RunStats struct {
	TotalFetched int `json:"total_fetched"`
	Downloaded   int `json:"downloaded"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
	SFW          int `json:"sfw"`
	NSFW         int `json:"nsfw"`
	Pages        int `json:"pages"`
}

func (rs RunStats) String() string {
	return fmt.Sprintf("Total: %d, SFW: %d, NSFW: %d, Downloaded: %d, Skipped: %d, Failed: %d, Pages: %d",
		rs.TotalFetched, rs.SFW, rs.NSFW, rs.Downloaded, rs.Skipped, rs.Failed, rs.Pages)
}
