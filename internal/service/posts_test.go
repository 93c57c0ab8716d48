package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wpsteward/steward/internal/models"
	"github.com/wpsteward/steward/internal/testutil"
)

func seedPosts(t *testing.T, db *gorm.DB) []models.Post {
	t.Helper()
	day := func(d int) *time.Time {
		ts := time.Date(2024, 3, d, 10, 0, 0, 0, time.UTC)
		return &ts
	}
	posts := []models.Post{
		{PostID: 101, Title: "Scholarship Announcement", Permalink: "https://wp.example.com/a", PostType: "post", PostStatus: "publish", PostDate: day(1),
			Categories: models.TermList{"News", "Funding"}, Tags: models.TermList{}},
		{PostID: 102, Title: "Dormitory rules", Permalink: "https://wp.example.com/b", PostType: "faq", PostStatus: "draft", PostDate: day(3)},
		{PostID: 103, Title: "Second scholarship round", Permalink: "https://wp.example.com/c, \"quoted\"", PostType: "post", PostStatus: "publish", PostDate: day(2),
			ResponsibleEmail: testutil.StringPtr("owner@example.com")},
	}
	require.NoError(t, db.Create(&posts).Error)
	return posts
}

func TestPostService_List(t *testing.T) {
	db := testutil.NewDB(t)
	seedPosts(t, db)
	svc := NewPostService(db, zap.NewNop())
	ctx := context.Background()

	list, err := svc.List(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), list.Total)
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, 10, list.Limit)
	assert.Equal(t, 1, list.TotalPages)
	require.Len(t, list.Posts, 3)
	assert.Equal(t, int64(102), list.Posts[0].PostID)
	assert.Equal(t, int64(101), list.Posts[2].PostID)

	list, err = svc.List(ctx, ListQuery{Search: "SCHOLARSHIP", Sort: "asc"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), list.Total)
	require.Len(t, list.Posts, 2)
	assert.Equal(t, int64(101), list.Posts[0].PostID)
	assert.Equal(t, int64(103), list.Posts[1].PostID)

	list, err = svc.List(ctx, ListQuery{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, list.TotalPages)
	require.Len(t, list.Posts, 1)
	assert.Equal(t, int64(101), list.Posts[0].PostID)
}

func TestPostService_List_Empty(t *testing.T) {
	svc := NewPostService(testutil.NewDB(t), zap.NewNop())

	list, err := svc.List(context.Background(), ListQuery{Search: "nothing"})

	require.NoError(t, err)
	assert.NotNil(t, list.Posts)
	assert.Empty(t, list.Posts)
	assert.Zero(t, list.TotalPages)
}

func TestPostService_SaveEmail(t *testing.T) {
	db := testutil.NewDB(t)
	posts := seedPosts(t, db)
	svc := NewPostService(db, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, svc.SaveEmail(ctx, posts[0].ID, " staff@example.com "))

	var stored models.Post
	require.NoError(t, db.Take(&stored, posts[0].ID).Error)
	require.NotNil(t, stored.ResponsibleEmail)
	assert.Equal(t, "staff@example.com", *stored.ResponsibleEmail)

	tests := []struct {
		name  string
		id    uint
		email string
		field string
	}{
		{name: "missing id", id: 0, email: "staff@example.com", field: "postId"},
		{name: "missing email", id: posts[0].ID, email: "", field: "email"},
		{name: "malformed email", id: posts[0].ID, email: "not-an-email", field: "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.SaveEmail(ctx, tt.id, tt.email)

			assert.True(t, errors.Is(err, ErrValidation))
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	err := svc.SaveEmail(ctx, 9999, "staff@example.com")
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestPostService_DeleteSelected(t *testing.T) {
	db := testutil.NewDB(t)
	posts := seedPosts(t, db)
	svc := NewPostService(db, zap.NewNop())
	ctx := context.Background()

	_, err := svc.DeleteSelected(ctx, nil)
	assert.ErrorIs(t, err, ErrValidation)

	count, err := svc.DeleteSelected(ctx, []uint{posts[0].ID, posts[2].ID, 9999})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	var remaining []models.Post
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, int64(102), remaining[0].PostID)
}

func TestPostService_DeleteAll(t *testing.T) {
	db := testutil.NewDB(t)
	seedPosts(t, db)
	svc := NewPostService(db, zap.NewNop())

	count, err := svc.DeleteAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	var left int64
	require.NoError(t, db.Model(&models.Post{}).Count(&left).Error)
	assert.Zero(t, left)
}

func TestPostService_ExportCSV(t *testing.T) {
	db := testutil.NewDB(t)
	seedPosts(t, db)
	svc := NewPostService(db, zap.NewNop())

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(context.Background(), &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, ExportHeader, records[0])

	assert.Equal(t, []string{
		"102", "Dormitory rules", "faq", "2024-03-03 10:00:00", "", "draft", "", "", "", "", "https://wp.example.com/b",
	}, records[1])
	assert.Equal(t, "owner@example.com", records[2][8])
	assert.Equal(t, "https://wp.example.com/c, \"quoted\"", records[2][10])
	assert.Equal(t, "News; Funding", records[3][6])
}
