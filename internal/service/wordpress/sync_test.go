package wordpress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wpsteward/steward/internal/config"
	"github.com/wpsteward/steward/internal/models"
	"github.com/wpsteward/steward/internal/testutil"
)

// MockRecorder is a mock implementation of RunRecorder
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordRun(ctx context.Context, kind string, startedAt time.Time, stats any, runErr error) {
	m.Called(ctx, kind, startedAt, stats, runErr)
}

// fakeWordPress serves numbered pages of posts and remembers which pages were asked for.
type fakeWordPress struct {
	mu         sync.Mutex
	totalPages int
	perPage    int
	failPages  map[int]int
	requested  []int
}

func (f *fakeWordPress) handler(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	f.mu.Lock()
	f.requested = append(f.requested, page)
	status, fail := f.failPages[page]
	f.mu.Unlock()

	if fail {
		w.WriteHeader(status)
		return
	}

	posts := make([]map[string]any, 0, f.perPage)
	for i := 0; i < f.perPage; i++ {
		id := (page-1)*f.perPage + i + 1
		posts = append(posts, map[string]any{
			"id":       id,
			"title":    map[string]string{"rendered": fmt.Sprintf("Post %d", id)},
			"link":     fmt.Sprintf("https://wp.example.com/?p=%d", id),
			"date":     "2024-01-01T00:00:00",
			"modified": "2024-02-01T00:00:00",
			"status":   "publish",
			"type":     "post",
			"content":  map[string]string{"rendered": "<p>content</p>"},
			"_embedded": map[string]any{
				"wp:term": [][]map[string]string{
					{{"name": "News", "taxonomy": "category"}},
					{{"name": "Urgent", "taxonomy": "post_tag"}},
				},
			},
		})
	}

	w.Header().Set("X-WP-TotalPages", strconv.Itoa(f.totalPages))
	w.Header().Set("X-WP-Total", strconv.Itoa(f.totalPages*f.perPage))
	json.NewEncoder(w).Encode(posts)
}

func (f *fakeWordPress) pages() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.requested...)
}

// testutilDB reads back what a sync stored.
type testutilDB struct {
	db *gorm.DB
}

func (s *testutilDB) post(t *testing.T, externalID int64) models.Post {
	t.Helper()
	var post models.Post
	require.NoError(t, s.db.Where("post_id = ?", externalID).Take(&post).Error)
	return post
}

func (s *testutilDB) count(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.db.Model(&models.Post{}).Count(&n).Error)
	return n
}

func newTestService(t *testing.T, apiURL string, recorder RunRecorder) (*Service, *testutilDB) {
	db := testutil.NewDB(t)
	cfg := &config.WordPressConfig{APIURL: apiURL, PerPage: 2, Timeout: "5s"}
	return NewService(cfg, db, recorder, zap.NewNop()), &testutilDB{db: db}
}

func TestService_SyncPage(t *testing.T) {
	wp := &fakeWordPress{totalPages: 3, perPage: 2}
	server := httptest.NewServer(http.HandlerFunc(wp.handler))
	defer server.Close()

	recorder := new(MockRecorder)
	recorder.On("RecordRun", mock.Anything, models.RunKindSyncPage, mock.Anything, mock.Anything, nil).Return()

	svc, store := newTestService(t, server.URL, recorder)

	result, err := svc.SyncPage(context.Background(), Options{Page: 2})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 0, result.Errors)
	assert.Equal(t, 2, result.Page)
	assert.Equal(t, 3, result.TotalPages)
	assert.Equal(t, 6, result.TotalPosts)
	assert.Equal(t, "Sync complete for page 2/3. Created: 2, Updated: 0, Errors: 0", result.Summary())

	post := store.post(t, 3)
	assert.Equal(t, "Post 3", post.Title)
	assert.Equal(t, models.TermList{"News"}, post.Categories)
	assert.Equal(t, models.TermList{"Urgent"}, post.Tags)
	recorder.AssertExpectations(t)
}

func TestService_SyncPage_WithoutEmbedLeavesTermsUnresolved(t *testing.T) {
	var embedParam string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		embedParam = r.URL.Query().Get("_embed")
		w.Header().Set("X-WP-TotalPages", "1")
		w.Write([]byte(`[{"id": 11, "title": {"rendered": "Plain"}, "link": "https://wp.example.com/plain"}]`))
	}))
	defer server.Close()

	svc, store := newTestService(t, server.URL, nil)
	noEmbed := false

	result, err := svc.SyncPage(context.Background(), Options{IncludeEmbedded: &noEmbed})

	require.NoError(t, err)
	assert.Empty(t, embedParam)
	assert.Equal(t, 1, result.Created)
	post := store.post(t, 11)
	assert.Nil(t, post.Categories)
	assert.Nil(t, post.Tags)
}

func TestService_SyncPage_UpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	recorder := new(MockRecorder)
	recorder.On("RecordRun", mock.Anything, models.RunKindSyncPage, mock.Anything, mock.Anything, mock.Anything).Return()

	svc, _ := newTestService(t, server.URL, recorder)

	result, err := svc.SyncPage(context.Background(), Options{})

	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
	assert.Contains(t, err.Error(), "503")
	recorder.AssertExpectations(t)
}

func TestService_SyncPage_Idempotent(t *testing.T) {
	wp := &fakeWordPress{totalPages: 1, perPage: 2}
	server := httptest.NewServer(http.HandlerFunc(wp.handler))
	defer server.Close()

	svc, store := newTestService(t, server.URL, nil)
	ctx := context.Background()

	first, err := svc.SyncPage(ctx, Options{})
	require.NoError(t, err)
	before := store.post(t, 1)

	second, err := svc.SyncPage(ctx, Options{})
	require.NoError(t, err)
	after := store.post(t, 1)

	assert.Equal(t, 2, first.Created)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Updated)
	assert.Equal(t, int64(2), store.count(t))
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.Title, after.Title)
	assert.Equal(t, before.Categories, after.Categories)
	assert.Equal(t, before.Tags, after.Tags)
}

func TestService_SyncAll(t *testing.T) {
	wp := &fakeWordPress{totalPages: 3, perPage: 2}
	server := httptest.NewServer(http.HandlerFunc(wp.handler))
	defer server.Close()

	recorder := new(MockRecorder)
	recorder.On("RecordRun", mock.Anything, models.RunKindSyncAll, mock.Anything, mock.Anything, nil).Return()

	svc, store := newTestService(t, server.URL, recorder)

	result, err := svc.SyncAll(context.Background(), Options{})

	require.NoError(t, err)
	// probe, then every page in order
	assert.Equal(t, []int{1, 1, 2, 3}, wp.pages())
	assert.Equal(t, 3, result.TotalPages)
	assert.Equal(t, 6, result.TotalPosts)
	assert.Equal(t, 6, result.TotalCreated)
	assert.Equal(t, 0, result.TotalUpdated)
	assert.Equal(t, 0, result.TotalErrors)
	require.Len(t, result.Pages, 3)
	for i, p := range result.Pages {
		assert.Equal(t, i+1, p.Page)
		assert.True(t, p.Success)
		require.NotNil(t, p.Created)
		assert.Equal(t, 2, *p.Created)
	}
	assert.Equal(t, int64(6), store.count(t))
	recorder.AssertExpectations(t)
}

func TestService_SyncAll_FailedPageDoesNotStopWalk(t *testing.T) {
	wp := &fakeWordPress{totalPages: 3, perPage: 2, failPages: map[int]int{2: http.StatusInternalServerError}}
	server := httptest.NewServer(http.HandlerFunc(wp.handler))
	defer server.Close()

	svc, store := newTestService(t, server.URL, nil)

	result, err := svc.SyncAll(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 2, 3}, wp.pages())
	require.Len(t, result.Pages, 3)

	assert.True(t, result.Pages[0].Success)
	assert.False(t, result.Pages[1].Success)
	assert.Equal(t, 2, result.Pages[1].Page)
	assert.Contains(t, result.Pages[1].Error, "500")
	assert.Nil(t, result.Pages[1].Created)
	assert.True(t, result.Pages[2].Success)

	assert.Equal(t, 4, result.TotalCreated)
	assert.Equal(t, 1, result.FailedPages())
	assert.Equal(t, int64(4), store.count(t))
}

func TestService_SyncAll_NoUpstreamData(t *testing.T) {
	wp := &fakeWordPress{totalPages: 0, perPage: 0}
	server := httptest.NewServer(http.HandlerFunc(wp.handler))
	defer server.Close()

	svc, _ := newTestService(t, server.URL, nil)

	result, err := svc.SyncAll(context.Background(), Options{})

	assert.Nil(t, result)
	assert.True(t, errors.Is(err, ErrNoUpstreamData))
	assert.Equal(t, []int{1}, wp.pages())
}

func TestService_SyncAll_ProbeFailure(t *testing.T) {
	wp := &fakeWordPress{totalPages: 3, perPage: 2, failPages: map[int]int{1: http.StatusForbidden}}
	server := httptest.NewServer(http.HandlerFunc(wp.handler))
	defer server.Close()

	svc, _ := newTestService(t, server.URL, nil)

	_, err := svc.SyncAll(context.Background(), Options{})

	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
	assert.Equal(t, []int{1}, wp.pages())
}

func TestService_Import_PartialFailure(t *testing.T) {
	svc, store := newTestService(t, "http://unused.invalid", nil)

	raws := []json.RawMessage{
		json.RawMessage(`{"id": 1, "title": {"rendered": "One"}, "link": "l1", "date": "2024-01-01T00:00:00"}`),
		json.RawMessage(`{"id": 2, "title": {"rendered": "Two"}, "link": "l2", "date": "not a date"}`),
		json.RawMessage(`{"id": 3, "title": {"rendered": "Three"}, "link": "l3"}`),
		json.RawMessage(`{"id": "four"}`),
		json.RawMessage(`{"id": 5, "title": "Five", "link": "l5", "categoryNames": ["Prepared"], "tagNames": [],
			"_embedded": {"wp:term": [[{"name": "Ignored", "taxonomy": "category"}]]}}`),
	}

	result := svc.Import(context.Background(), raws)

	assert.Equal(t, BatchResult{Created: 3, Updated: 0, Errors: 2}, result)
	assert.Equal(t, int64(3), store.count(t))

	five := store.post(t, 5)
	assert.Equal(t, "Five", five.Title)
	assert.Equal(t, models.TermList{"Prepared"}, five.Categories)
	assert.True(t, five.Tags.Resolved())
	assert.Empty(t, five.Tags)
}

func TestService_Probe(t *testing.T) {
	wp := &fakeWordPress{totalPages: 5, perPage: 1}
	server := httptest.NewServer(http.HandlerFunc(wp.handler))
	defer server.Close()

	svc, store := newTestService(t, server.URL, nil)

	probe, err := svc.Probe(context.Background(), Options{PerPage: 1})

	require.NoError(t, err)
	assert.Equal(t, server.URL, probe.APIURL)
	assert.Equal(t, 5, probe.TotalPages)
	assert.Equal(t, 5, probe.TotalPosts)
	assert.Equal(t, int64(0), store.count(t))
}

func TestAllPagesResult_JSONShape(t *testing.T) {
	zero := 0
	result := AllPagesResult{
		Pages: []PageOutcome{
			{Page: 1, Success: true, Created: &zero, Updated: &zero, Errors: &zero},
			{Page: 2, Success: false, Error: "boom"},
		},
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"pages": [
			{"page": 1, "success": true, "created": 0, "updated": 0, "errors": 0},
			{"page": 2, "success": false, "error": "boom"}
		],
		"totalCreated": 0, "totalUpdated": 0, "totalErrors": 0, "totalPages": 0, "totalPosts": 0
	}`, string(data))
}
