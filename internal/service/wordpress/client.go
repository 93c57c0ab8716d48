package wordpress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wpsteward/steward/internal/config"
)

const (
	headerTotalPages = "X-WP-TotalPages"
	headerTotalPosts = "X-WP-Total"

	maxErrorBody = 512
)

// PageRequest addresses a single page of a WordPress collection endpoint.
type PageRequest struct {
	BaseURL         string
	Page            int
	PerPage         int
	IncludeEmbedded bool
}

// Client reads pages from the WordPress REST API. It never retries.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func NewClient(cfg config.WordPressConfig, logger *zap.Logger) *Client {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		IdleConnTimeout:       120 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   10,
		TLSHandshakeTimeout:   20 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: tr,
			Timeout:   timeout,
		},
		limiter: limiter,
		logger:  logger,
	}
}

// FetchPage issues one GET for the requested page and returns its raw posts
// together with the X-WP-TotalPages / X-WP-Total metadata.
func (c *Client) FetchPage(ctx context.Context, pr PageRequest) (*Page, error) {
	endpoint, err := pageURL(pr)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Fetching WordPress page", zap.String("url", endpoint))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var posts []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&posts); err != nil {
		return nil, fmt.Errorf("%w: failed to decode page %d: %v", ErrMalformedPayload, pr.Page, err)
	}

	return &Page{
		Posts:      posts,
		TotalPages: headerInt(resp.Header, headerTotalPages),
		TotalPosts: headerInt(resp.Header, headerTotalPosts),
	}, nil
}

func pageURL(pr PageRequest) (string, error) {
	u, err := url.Parse(pr.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid WordPress API URL %q", pr.BaseURL)
	}

	q := u.Query()
	q.Set("page", strconv.Itoa(pr.Page))
	q.Set("per_page", strconv.Itoa(pr.PerPage))
	if pr.IncludeEmbedded {
		q.Set("_embed", "true")
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// headerInt reads a numeric header; absent or garbled values count as zero.
func headerInt(h http.Header, key string) int {
	n, err := strconv.Atoi(h.Get(key))
	if err != nil {
		return 0
	}
	return n
}
