package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"civitai-scraper/internal/config"
	"civitai-scraper/pkg/types"

	"github.com/sirupsen/logrus"
)

// errNoItems marks a page body that decoded but carried no items array.
var errNoItems = errors.New("invalid response format: no items")

// Client performs the GET requests of a run: one per page and one per image.
type Client struct {
	client    *http.Client
	userAgent string
	logger    *logrus.Logger
}

func NewClient(cfg config.CivitaiConfig, logger *logrus.Logger) *Client {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}

	client := &http.Client{
		Timeout: time.Duration(cfg.Timeout) * time.Second,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	return &Client{
		client:    client,
		userAgent: userAgent,
		logger:    logger,
	}
}

// FetchPage requests one page of the image listing. Any failure (transport,
// non-2xx status, undecodable body) is logged and returned; callers stop
// paginating on error and never retry.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (*types.PageResponse, error) {
	c.logger.Infof("Fetching: %s", redactToken(pageURL))

	resp, err := c.get(ctx, pageURL)
	if err != nil {
		c.logger.Errorf("Error fetching page: %v", err)
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		c.logger.Errorf("Error fetching page: %v", err)
		return nil, err
	}

	var page types.PageResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		c.logger.Errorf("Error decoding page: %v", err)
		return nil, fmt.Errorf("failed to decode page: %w", err)
	}
	if page.Items == nil {
		c.logger.Error("No data received or invalid response format")
		return nil, errNoItems
	}

	return &page, nil
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	return c.client.Do(req)
}
