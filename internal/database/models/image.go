package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type Image struct {
	ID             int64     `json:"id" db:"id"`
	Filename       string    `json:"filename" db:"filename"`
	URL            string    `json:"url" db:"url"`
	Hash           string    `json:"hash" db:"hash"`
	Width          int       `json:"width" db:"width"`
	Height         int       `json:"height" db:"height"`
	PostID         int64     `json:"post_id" db:"post_id"`
	Username       string    `json:"username" db:"username"`
	NSFW           bool      `json:"nsfw" db:"nsfw"`
	NSFWLevel      string    `json:"nsfw_level" db:"nsfw_level"`
	Prompt         string    `json:"prompt" db:"prompt"`
	NegativePrompt string    `json:"negative_prompt" db:"negative_prompt"`
	Model          string    `json:"model" db:"model"`
	Sampler        string    `json:"sampler" db:"sampler"`
	Steps          int       `json:"steps" db:"steps"`
	CFGScale       float64   `json:"cfg_scale" db:"cfg_scale"`
	Seed           string    `json:"seed" db:"seed"`
	Loras          LoraList  `json:"loras" db:"loras"`
	LikeCount      int       `json:"like_count" db:"like_count"`
	HeartCount     int       `json:"heart_count" db:"heart_count"`
	CommentCount   int       `json:"comment_count" db:"comment_count"`
	LaughCount     int       `json:"laugh_count" db:"laugh_count"`
	CryCount       int       `json:"cry_count" db:"cry_count"`
	DislikeCount   int       `json:"dislike_count" db:"dislike_count"`
	ImageCreatedAt time.Time `json:"image_created_at" db:"image_created_at"`
	ScrapedAt      time.Time `json:"scraped_at" db:"scraped_at"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

type Lora struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// LoraList is stored as a JSON array in a text column.
type LoraList []Lora

func (ll LoraList) Value() (driver.Value, error) {
	if len(ll) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(ll)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (ll *LoraList) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*ll = LoraList{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("type assertion to []byte or string failed")
	}

	if len(data) == 0 {
		*ll = LoraList{}
		return nil
	}
	return json.Unmarshal(data, ll)
}

// CatalogStats summarises the catalog for the API and the monitor.
type CatalogStats struct {
	TotalImages   int          `json:"total_images"`
	SFWImages     int          `json:"sfw_images"`
	NSFWImages    int          `json:"nsfw_images"`
	WithPrompt    int          `json:"with_prompt"`
	Users         int          `json:"users"`
	LastScrapedAt string       `json:"last_scraped_at"`
	TopModels     []ModelCount `json:"top_models"`
}

type ModelCount struct {
	Model string `json:"model"`
	Count int    `json:"count"`
}

// ImageFilter selects catalog rows. NSFW is "sfw", "nsfw" or empty for both.
type ImageFilter struct {
	Page     int
	PageSize int
	NSFW     string
	Query    string
	Username string
}
