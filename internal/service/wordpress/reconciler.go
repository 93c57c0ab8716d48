package wordpress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wpsteward/steward/internal/models"
	"github.com/wpsteward/steward/pkg/util"
)

const (
	defaultPostType   = "post"
	defaultPostStatus = "publish"
)

// Outcome classifies a single upsert.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
)

// Record is a post normalised for storage.
type Record struct {
	ExternalID   int64
	Title        string
	Permalink    string
	PostType     string
	PostDate     *time.Time
	PostModified *time.Time
	PostStatus   string
	Content      string
	Categories   models.TermList
	Tags         models.TermList
}

func (r Record) toModel() models.Post {
	return models.Post{
		PostID:       r.ExternalID,
		Title:        r.Title,
		Permalink:    r.Permalink,
		PostType:     r.PostType,
		PostDate:     r.PostDate,
		PostModified: r.PostModified,
		PostStatus:   r.PostStatus,
		Content:      r.Content,
		Categories:   r.Categories,
		Tags:         r.Tags,
	}
}

// NewRecord maps an upstream post and its resolved terms onto a Record.
// Every failure wraps ErrMalformedPayload.
func NewRecord(post Post, categories, tags models.TermList) (Record, error) {
	if post.ID <= 0 {
		return Record{}, fmt.Errorf("%w: missing post id", ErrMalformedPayload)
	}

	postDate, err := util.ParseWPTime(post.Date)
	if err != nil {
		return Record{}, fmt.Errorf("%w: post %d date: %v", ErrMalformedPayload, post.ID, err)
	}
	postModified, err := util.ParseWPTime(post.Modified)
	if err != nil {
		return Record{}, fmt.Errorf("%w: post %d modified: %v", ErrMalformedPayload, post.ID, err)
	}

	rec := Record{
		ExternalID:   post.ID,
		Title:        util.FlattenHTML(post.Title.Rendered),
		Permalink:    post.Link,
		PostType:     post.Type,
		PostDate:     postDate,
		PostModified: postModified,
		PostStatus:   post.Status,
		Content:      post.Content.Rendered,
		Categories:   categories,
		Tags:         tags,
	}
	if rec.PostType == "" {
		rec.PostType = defaultPostType
	}
	if rec.PostStatus == "" {
		rec.PostStatus = defaultPostStatus
	}

	return rec, nil
}

// Reconciler writes Records into the post store keyed on the external id.
type Reconciler struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewReconciler(db *gorm.DB, logger *zap.Logger) *Reconciler {
	return &Reconciler{db: db, logger: logger}
}

// Upsert creates the row for rec.ExternalID or overwrites its content columns.
// responsible_email and last_reminder are never written here.
func (r *Reconciler) Upsert(ctx context.Context, rec Record) (Outcome, error) {
	var outcome Outcome

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Post
		err := tx.Select("id").Where("post_id = ?", rec.ExternalID).Take(&existing).Error

		switch {
		case err == nil:
			post := rec.toModel()
			if err := tx.Model(&existing).Select(models.ContentColumns).Updates(&post).Error; err != nil {
				return fmt.Errorf("failed to update post %d: %w", rec.ExternalID, err)
			}
			outcome = OutcomeUpdated
		case errors.Is(err, gorm.ErrRecordNotFound):
			post := rec.toModel()
			if err := tx.Create(&post).Error; err != nil {
				return fmt.Errorf("failed to create post %d: %w", rec.ExternalID, err)
			}
			outcome = OutcomeCreated
		default:
			return fmt.Errorf("failed to query existing post %d: %w", rec.ExternalID, err)
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	r.logger.Debug("Reconciled post",
		zap.Int64("post_id", rec.ExternalID),
		zap.String("outcome", string(outcome)))

	return outcome, nil
}
