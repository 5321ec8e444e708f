package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"civitai-scraper/internal/config"
	"civitai-scraper/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveBody(t *testing.T, status int, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, config.DefaultUserAgent, r.UserAgent())
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestFetchPage(t *testing.T) {
	url := serveBody(t, http.StatusOK, `{
		"items": [{"id": 7, "url": "https://x/7.png", "nsfwLevel": "X", "meta": {"prompt": "cat", "Model": "SDXL"}}],
		"metadata": {"nextPage": "https://x/next?cursor=abc", "nextCursor": "abc"}
	}`)

	page, err := newTestClient().FetchPage(context.Background(), url)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.EqualValues(t, 7, page.Items[0].ID)
	assert.Equal(t, types.NSFWLevelX, page.Items[0].NSFWLevel)
	assert.Equal(t, "SDXL", page.Items[0].Meta.Model)
	assert.Equal(t, "https://x/next?cursor=abc", page.Metadata.NextPage)
}

func TestFetchPageEmptyItems(t *testing.T) {
	url := serveBody(t, http.StatusOK, `{"items": [], "metadata": {}}`)

	page, err := newTestClient().FetchPage(context.Background(), url)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Empty(t, page.Metadata.NextPage)
}

func TestFetchPageFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"items": []}`},
		{"unauthorized", http.StatusUnauthorized, `{"error": "bad token"}`},
		{"malformed json", http.StatusOK, `{"items": [`},
		{"missing items", http.StatusOK, `{"metadata": {}}`},
		{"null items", http.StatusOK, `{"items": null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := serveBody(t, tt.status, tt.body)
			page, err := newTestClient().FetchPage(context.Background(), url)
			assert.Error(t, err)
			assert.Nil(t, page)
		})
	}
}

func TestFetchPageTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient().FetchPage(context.Background(), url)
	assert.Error(t, err)
}

func TestNSFWLevelAcceptsNumbers(t *testing.T) {
	url := serveBody(t, http.StatusOK, `{"items": [{"id": 1, "nsfwLevel": 4}, {"id": 2, "nsfwLevel": null}, {"id": 3}]}`)

	page, err := newTestClient().FetchPage(context.Background(), url)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, types.NSFWLevel("4"), page.Items[0].NSFWLevel)
	assert.False(t, IsNSFW(page.Items[0]))
	assert.Empty(t, page.Items[1].NSFWLevel)
	assert.Empty(t, page.Items[2].NSFWLevel)
}

func TestFetchPageLenientMeta(t *testing.T) {
	tests := []struct {
		name  string
		meta  string
		seed  string
		steps string
		cfg   string
	}{
		{"unsigned 64-bit seed", `{"prompt": "cat", "seed": 18446744073709551615}`, "18446744073709551615", "", ""},
		{"quoted steps", `{"prompt": "cat", "steps": "30"}`, "", "30", ""},
		{"quoted cfg scale", `{"prompt": "cat", "cfgScale": "7"}`, "", "", "7"},
		{"exponent seed", `{"prompt": "cat", "seed": 1.5e3}`, "1.5e3", "", ""},
		{"boolean seed", `{"prompt": "cat", "seed": true, "steps": {"n": 1}}`, "", "", ""},
		{"non-numeric string", `{"prompt": "cat", "cfgScale": "high"}`, "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := serveBody(t, http.StatusOK, `{"items": [{"id": 1, "meta": `+tt.meta+`}, {"id": 2, "meta": {"prompt": "dog"}}]}`)

			page, err := newTestClient().FetchPage(context.Background(), url)
			require.NoError(t, err)
			require.Len(t, page.Items, 2)
			meta := page.Items[0].Meta
			require.NotNil(t, meta)
			assert.Equal(t, "cat", meta.Prompt)
			assert.Equal(t, tt.seed, meta.Seed.String())
			assert.Equal(t, tt.steps, meta.Steps.String())
			assert.Equal(t, tt.cfg, meta.CFGScale.String())
			assert.Equal(t, "dog", page.Items[1].Meta.Prompt)
		})
	}
}

func TestFetchPageNonObjectMeta(t *testing.T) {
	url := serveBody(t, http.StatusOK, `{"items": [{"id": 1, "meta": "n/a"}, {"id": 2, "meta": {"prompt": 5, "Model": "SDXL"}}]}`)

	page, err := newTestClient().FetchPage(context.Background(), url)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotNil(t, page.Items[0].Meta)
	positive, negative := page.Items[0].Prompt()
	assert.Empty(t, positive)
	assert.Empty(t, negative)
	assert.Empty(t, page.Items[1].Meta.Prompt)
	assert.Equal(t, "SDXL", page.Items[1].Meta.Model)
}
