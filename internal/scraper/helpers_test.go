package scraper

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strconv"
	"sync"
	"testing"

	"civitai-scraper/internal/config"
	"civitai-scraper/pkg/types"

	"github.com/sirupsen/logrus"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestClient() *Client {
	return NewClient(config.CivitaiConfig{UserAgent: config.DefaultUserAgent, Timeout: 5}, newTestLogger())
}

// listing serves a paginated image listing under /api/v1/images and image
// bodies under /img/. Page i links to page i+1 through ?cursor=i+1.
type listing struct {
	mu          sync.Mutex
	srv         *httptest.Server
	pages       [][]types.ImageItem
	failPage    int
	imageStatus map[string]int
	pageHits    int
	imageHits   int
	queries     []url.Values
	userAgents  []string
}

func newListing(t *testing.T) *listing {
	t.Helper()
	l := &listing{failPage: -1, imageStatus: make(map[string]int)}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/images", l.servePage)
	mux.HandleFunc("/img/", l.serveImage)
	l.srv = httptest.NewServer(mux)
	t.Cleanup(l.srv.Close)
	return l
}

func (l *listing) baseURL() string { return l.srv.URL + "/api/v1" }

func (l *listing) imageURL(name string) string { return l.srv.URL + "/img/" + name }

// item builds a listing item whose image is served by l.
func (l *listing) item(id int64, ext string, level types.NSFWLevel, prompt, negative string) types.ImageItem {
	item := types.ImageItem{
		ID:        id,
		URL:       l.imageURL(fmt.Sprintf("%d.%s", id, ext)),
		Username:  "alice",
		NSFWLevel: level,
	}
	if prompt != "" || negative != "" {
		item.Meta = &types.GenerationMeta{Prompt: prompt, NegativePrompt: negative}
	}
	return item
}

func (l *listing) servePage(w http.ResponseWriter, r *http.Request) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pageHits++
	l.queries = append(l.queries, r.URL.Query())
	l.userAgents = append(l.userAgents, r.UserAgent())

	idx := 0
	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		idx, _ = strconv.Atoi(cursor)
	}
	if idx == l.failPage || idx >= len(l.pages) {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := types.PageResponse{Items: l.pages[idx]}
	if resp.Items == nil {
		resp.Items = []types.ImageItem{}
	}
	if idx+1 < len(l.pages) {
		resp.Metadata.NextPage = fmt.Sprintf("%s/api/v1/images?cursor=%d", l.srv.URL, idx+1)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (l *listing) serveImage(w http.ResponseWriter, r *http.Request) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.imageHits++
	l.userAgents = append(l.userAgents, r.UserAgent())

	name := path.Base(r.URL.Path)
	if status, ok := l.imageStatus[name]; ok {
		w.WriteHeader(status)
		return
	}
	w.Write([]byte("image:" + name))
}
