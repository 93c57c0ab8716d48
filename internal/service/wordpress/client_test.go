package wordpress

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wpsteward/steward/internal/config"
)

func newTestClient() *Client {
	return NewClient(config.WordPressConfig{Timeout: "5s"}, zap.NewNop())
}

func TestClient_FetchPage(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"page":     r.URL.Query().Get("page"),
			"per_page": r.URL.Query().Get("per_page"),
			"_embed":   r.URL.Query().Get("_embed"),
		}
		w.Header().Set("X-WP-TotalPages", "4")
		w.Header().Set("X-WP-Total", "37")
		w.Write([]byte(`[{"id":1},{"id":2}]`))
	}))
	defer server.Close()

	page, err := newTestClient().FetchPage(context.Background(), PageRequest{
		BaseURL:         server.URL,
		Page:            2,
		PerPage:         10,
		IncludeEmbedded: true,
	})

	require.NoError(t, err)
	assert.Len(t, page.Posts, 2)
	assert.Equal(t, 4, page.TotalPages)
	assert.Equal(t, 37, page.TotalPosts)
	assert.Equal(t, map[string]string{"page": "2", "per_page": "10", "_embed": "true"}, gotQuery)
}

func TestClient_FetchPage_WithoutEmbedOrHeaders(t *testing.T) {
	var rawQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	page, err := newTestClient().FetchPage(context.Background(), PageRequest{BaseURL: server.URL, Page: 1, PerPage: 100})

	require.NoError(t, err)
	assert.NotContains(t, rawQuery, "_embed")
	assert.Zero(t, page.TotalPages)
	assert.Zero(t, page.TotalPosts)
}

func TestClient_FetchPage_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	page, err := newTestClient().FetchPage(context.Background(), PageRequest{BaseURL: server.URL, Page: 1, PerPage: 10})

	assert.Nil(t, page)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
	assert.Contains(t, err.Error(), "502")

	var upstreamErr *UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	assert.Equal(t, http.StatusBadGateway, upstreamErr.StatusCode)
}

func TestClient_FetchPage_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient().FetchPage(context.Background(), PageRequest{BaseURL: url, Page: 1, PerPage: 10})
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
}

func TestClient_FetchPage_InvalidBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"rest_no_route"}`))
	}))
	defer server.Close()

	_, err := newTestClient().FetchPage(context.Background(), PageRequest{BaseURL: server.URL, Page: 1, PerPage: 10})
	assert.True(t, errors.Is(err, ErrMalformedPayload))
}

func TestClient_FetchPage_InvalidURL(t *testing.T) {
	_, err := newTestClient().FetchPage(context.Background(), PageRequest{BaseURL: "not a url", Page: 1, PerPage: 10})
	assert.Error(t, err)
}

func TestPageURL_KeepsExistingQuery(t *testing.T) {
	got, err := pageURL(PageRequest{BaseURL: "https://wp.example.com/wp-json/wp/v2/faq?lang=th", Page: 3, PerPage: 50})
	require.NoError(t, err)
	assert.Equal(t, "https://wp.example.com/wp-json/wp/v2/faq?lang=th&page=3&per_page=50", got)
}
