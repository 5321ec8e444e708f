package scraper

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"civitai-scraper/pkg/types"
)

// PageSize is the number of items requested per page.
const PageSize = 100

const fallbackExtension = "jpg"

var knownExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"gif":  true,
	"webp": true,
}

// IsNSFW classifies an image. Only the maximum severity level counts as NSFW;
// every other level, including an absent one, is SFW.
func IsNSFW(item types.ImageItem) bool {
	return item.NSFWLevel == types.NSFWLevelX
}

// FileExtension infers the extension from the suffix of the URL path. Unknown
// or missing suffixes fall back to jpg.
func FileExtension(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}

	ext := strings.TrimPrefix(path.Ext(p), ".")
	if knownExtensions[strings.ToLower(ext)] {
		return ext
	}
	return fallbackExtension
}

// Filename is the on-disk name of an image: "{id}.{ext}".
func Filename(item types.ImageItem) string {
	return fmt.Sprintf("%d.%s", item.ID, FileExtension(item.URL))
}

// BuildInitialURL returns the first page URL for username. The token
// parameter is left out when no token is configured.
func BuildInitialURL(baseURL, token, username string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(baseURL, "/"))
	b.WriteString("/images?")
	if token != "" {
		b.WriteString("token=")
		b.WriteString(url.QueryEscape(token))
		b.WriteString("&")
	}
	fmt.Fprintf(&b, "nsfw=X&username=%s&limit=%d", url.QueryEscape(username), PageSize)
	return b.String()
}

// redactToken hides the token query parameter so URLs can be logged.
func redactToken(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Get("token") == "" {
		return rawURL
	}
	q.Set("token", "REDACTED")
	u.RawQuery = q.Encode()
	return u.String()
}
