package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wpsteward/steward/internal/models"
	"github.com/wpsteward/steward/pkg/util"
)

const (
	defaultListLimit = 10
	maxListLimit     = 200
	exportTimeLayout = "2006-01-02 15:04:05"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrPostNotFound = errors.New("post not found")
)

// ValidationError names the offending input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ExportHeader is the column row of the CSV export.
var ExportHeader = []string{
	"ID", "Title", "Type", "Date", "Modified", "Status",
	"Categories", "Tags", "Responsible Email", "Last Reminder", "URL",
}

type ListQuery struct {
	Page   int
	Limit  int
	Search string
	Sort   string
}

type PostList struct {
	Posts      []models.Post `json:"posts"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	TotalPages int           `json:"totalPages"`
}

// PostService covers the operator facing reads and writes on stored posts.
type PostService struct {
	db       *gorm.DB
	validate *validator.Validate
	logger   *zap.Logger
}

func NewPostService(db *gorm.DB, logger *zap.Logger) *PostService {
	return &PostService{
		db:       db,
		validate: validator.New(),
		logger:   logger,
	}
}

// List returns a page of posts ordered by post date, optionally filtered by a
// case-insensitive title search.
func (s *PostService) List(ctx context.Context, q ListQuery) (*PostList, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultListLimit
	}
	if q.Limit > maxListLimit {
		q.Limit = maxListLimit
	}

	query := s.db.WithContext(ctx).Model(&models.Post{})
	if search := strings.TrimSpace(q.Search); search != "" {
		query = query.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count posts: %w", err)
	}

	order := "post_date DESC"
	if strings.EqualFold(q.Sort, "asc") {
		order = "post_date ASC"
	}

	posts := []models.Post{}
	err := query.Order(order).Order("id").
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	return &PostList{
		Posts:      posts,
		Total:      total,
		Page:       q.Page,
		Limit:      q.Limit,
		TotalPages: int(math.Ceil(float64(total) / float64(q.Limit))),
	}, nil
}

// SaveEmail assigns the responsible email of a post by its internal id.
func (s *PostService) SaveEmail(ctx context.Context, postID uint, email string) error {
	if postID == 0 {
		return &ValidationError{Field: "postId", Message: "Post ID is required"}
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return &ValidationError{Field: "email", Message: "Email is required"}
	}
	if err := s.validate.Var(email, "email"); err != nil {
		return &ValidationError{Field: "email", Message: "Invalid email format"}
	}

	result := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ?", postID).
		Update("responsible_email", email)
	if result.Error != nil {
		return fmt.Errorf("failed to save email: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPostNotFound
	}

	s.logger.Info("Responsible email saved", zap.Uint("id", postID), zap.String("email", email))
	return nil
}

// DeleteAll removes every stored post.
func (s *PostService) DeleteAll(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Post{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete posts: %w", result.Error)
	}

	s.logger.Warn("All posts deleted", zap.Int64("count", result.RowsAffected))
	return result.RowsAffected, nil
}

// DeleteSelected removes the posts with the given internal ids.
func (s *PostService) DeleteSelected(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, &ValidationError{Field: "ids", Message: "No posts selected for deletion"}
	}

	result := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Post{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete posts: %w", result.Error)
	}

	s.logger.Info("Selected posts deleted", zap.Int("requested", len(ids)), zap.Int64("count", result.RowsAffected))
	return result.RowsAffected, nil
}

// ExportCSV writes every post, newest first, as CSV.
func (s *PostService) ExportCSV(ctx context.Context, w io.Writer) error {
	var posts []models.Post
	if err := s.db.WithContext(ctx).Order("post_date DESC").Order("id").Find(&posts).Error; err != nil {
		return fmt.Errorf("failed to load posts: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return err
	}
	for _, p := range posts {
		email := ""
		if p.ResponsibleEmail != nil {
			email = *p.ResponsibleEmail
		}
		row := []string{
			strconv.FormatInt(p.PostID, 10),
			p.Title,
			p.PostType,
			util.FormatDate(p.PostDate, exportTimeLayout, ""),
			util.FormatDate(p.PostModified, exportTimeLayout, ""),
			p.PostStatus,
			strings.Join(p.Categories, "; "),
			strings.Join(p.Tags, "; "),
			email,
			util.FormatDate(p.LastReminder, exportTimeLayout, ""),
			p.Permalink,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
