package scraper

import (
	"net/url"
	"testing"

	"civitai-scraper/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNSFW(t *testing.T) {
	assert.True(t, IsNSFW(types.ImageItem{NSFWLevel: "X"}))

	for _, level := range []types.NSFWLevel{"", "None", "Soft", "Mature", "x", "XXX"} {
		assert.False(t, IsNSFW(types.ImageItem{NSFWLevel: level}), "level %q", level)
	}
}

func TestFileExtension(t *testing.T) {
	tests := map[string]string{
		"https://image.civitai.com/a/b/123.png":            "png",
		"https://image.civitai.com/a/b/123.JPEG":           "JPEG",
		"https://image.civitai.com/a/b/123.webp?width=450": "webp",
		"https://image.civitai.com/a/b/123.gif#frag":       "gif",
		"https://image.civitai.com/a/b/123.jpg":            "jpg",
		"https://image.civitai.com/a/b/123.mp4":            "jpg",
		"https://image.civitai.com/a/b/width=450/123":      "jpg",
		"https://image.civitai.com/a/b.png/123":            "jpg",
		"https://image.civitai.com/a/b/123?file=evil.png":  "jpg",
		"":                                                 "jpg",
	}

	for rawURL, want := range tests {
		assert.Equal(t, want, FileExtension(rawURL), rawURL)
	}
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "42.png", Filename(types.ImageItem{ID: 42, URL: "https://x/y/42.png"}))
	assert.Equal(t, "7.jpg", Filename(types.ImageItem{ID: 7, URL: "https://x/y/7"}))
}

func TestBuildInitialURL(t *testing.T) {
	raw := BuildInitialURL("https://civitai.com/api/v1/", "tok en", "alice")
	assert.Equal(t, "https://civitai.com/api/v1/images?token=tok+en&nsfw=X&username=alice&limit=100", raw)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "tok en", u.Query().Get("token"))

	raw = BuildInitialURL("https://civitai.com/api/v1", "", "alice")
	assert.Equal(t, "https://civitai.com/api/v1/images?nsfw=X&username=alice&limit=100", raw)
}

func TestRedactToken(t *testing.T) {
	redacted := redactToken("https://civitai.com/api/v1/images?token=secret&username=alice")
	assert.NotContains(t, redacted, "secret")
	assert.Contains(t, redacted, "username=alice")

	plain := "https://civitai.com/api/v1/images?username=alice"
	assert.Equal(t, plain, redactToken(plain))
}
