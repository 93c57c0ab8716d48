package wordpress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wpsteward/steward/internal/config"
	"github.com/wpsteward/steward/internal/models"
)

// RunRecorder persists a summary of each sync or import invocation.
type RunRecorder interface {
	RecordRun(ctx context.Context, kind string, startedAt time.Time, stats any, runErr error)
}

// PageFetcher is the upstream side of a sync.
type PageFetcher interface {
	FetchPage(ctx context.Context, pr PageRequest) (*Page, error)
}

// Service drives the fetch -> extract terms -> reconcile pipeline.
type Service struct {
	config     *config.WordPressConfig
	fetcher    PageFetcher
	reconciler *Reconciler
	recorder   RunRecorder
	logger     *zap.Logger
}

func NewService(cfg *config.WordPressConfig, db *gorm.DB, recorder RunRecorder, logger *zap.Logger) *Service {
	return NewServiceWithFetcher(cfg, NewClient(*cfg, logger), db, recorder, logger)
}

func NewServiceWithFetcher(cfg *config.WordPressConfig, fetcher PageFetcher, db *gorm.DB, recorder RunRecorder, logger *zap.Logger) *Service {
	return &Service{
		config:     cfg,
		fetcher:    fetcher,
		reconciler: NewReconciler(db, logger),
		recorder:   recorder,
		logger:     logger,
	}
}

// SyncPage fetches one page and reconciles every post on it.
func (s *Service) SyncPage(ctx context.Context, opts Options) (*PageResult, error) {
	startedAt := time.Now()
	pr := s.pageRequest(opts)

	result, err := s.syncPage(ctx, pr)
	s.record(ctx, models.RunKindSyncPage, startedAt, result, err)
	if err != nil {
		s.logger.Error("Failed to sync WordPress page", zap.Int("page", pr.Page), zap.Error(err))
		return nil, err
	}

	s.logger.Info("WordPress page synced",
		zap.Int("page", result.Page),
		zap.Int("total_pages", result.TotalPages),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("errors", result.Errors))

	return result, nil
}

// SyncAll probes page 1 for the page count, then syncs pages 1..N strictly in
// order. A failed page is recorded and the walk moves on.
func (s *Service) SyncAll(ctx context.Context, opts Options) (*AllPagesResult, error) {
	startedAt := time.Now()
	pr := s.pageRequest(opts)

	result, err := s.syncAll(ctx, pr)
	s.record(ctx, models.RunKindSyncAll, startedAt, result, err)
	if err != nil {
		s.logger.Error("Failed to sync all WordPress pages", zap.Error(err))
		return nil, err
	}

	s.logger.Info("WordPress sync completed",
		zap.Int("total_pages", result.TotalPages),
		zap.Int("failed_pages", result.FailedPages()),
		zap.Int("created", result.TotalCreated),
		zap.Int("updated", result.TotalUpdated),
		zap.Int("errors", result.TotalErrors),
		zap.Duration("duration", time.Since(startedAt)))

	return result, nil
}

func (s *Service) syncAll(ctx context.Context, pr PageRequest) (*AllPagesResult, error) {
	probe, err := s.fetcher.FetchPage(ctx, PageRequest{
		BaseURL: pr.BaseURL,
		Page:    1,
		PerPage: pr.PerPage,
	})
	if err != nil {
		return nil, err
	}
	if probe.TotalPages <= 0 {
		return nil, ErrNoUpstreamData
	}

	result := &AllPagesResult{
		Pages:      make([]PageOutcome, 0, probe.TotalPages),
		TotalPages: probe.TotalPages,
		TotalPosts: probe.TotalPosts,
	}

	for page := 1; page <= probe.TotalPages; page++ {
		pr.Page = page
		pageResult, err := s.syncPage(ctx, pr)
		if err != nil {
			s.logger.Error("Failed to sync page", zap.Int("page", page), zap.Error(err))
			result.Pages = append(result.Pages, PageOutcome{
				Page:    page,
				Success: false,
				Error:   err.Error(),
			})
			continue
		}

		created, updated, errs := pageResult.Created, pageResult.Updated, pageResult.Errors
		result.Pages = append(result.Pages, PageOutcome{
			Page:    page,
			Success: true,
			Created: &created,
			Updated: &updated,
			Errors:  &errs,
		})
		result.TotalCreated += created
		result.TotalUpdated += updated
		result.TotalErrors += errs
	}

	return result, nil
}

func (s *Service) syncPage(ctx context.Context, pr PageRequest) (*PageResult, error) {
	page, err := s.fetcher.FetchPage(ctx, pr)
	if err != nil {
		return nil, err
	}

	return &PageResult{
		BatchResult: s.reconcileAll(ctx, page.Posts),
		Page:        pr.Page,
		TotalPages:  page.TotalPages,
		TotalPosts:  page.TotalPosts,
	}, nil
}

// Import reconciles posts supplied directly by an operator, e.g. a JSON export.
func (s *Service) Import(ctx context.Context, posts []json.RawMessage) BatchResult {
	startedAt := time.Now()

	result := s.reconcileAll(ctx, posts)
	s.record(ctx, models.RunKindImport, startedAt, result, nil)

	s.logger.Info("JSON import completed",
		zap.Int("posts", len(posts)),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("errors", result.Errors))

	return result
}

// Probe reports the upstream page and post counts without importing.
func (s *Service) Probe(ctx context.Context, opts Options) (*ProbeResult, error) {
	pr := s.pageRequest(opts)
	page, err := s.fetcher.FetchPage(ctx, PageRequest{BaseURL: pr.BaseURL, Page: 1, PerPage: pr.PerPage})
	if err != nil {
		return nil, err
	}

	return &ProbeResult{
		APIURL:     pr.BaseURL,
		PerPage:    pr.PerPage,
		TotalPages: page.TotalPages,
		TotalPosts: page.TotalPosts,
	}, nil
}

// reconcileAll upserts posts in order. Each failure is logged and counted and
// never stops the remaining posts.
func (s *Service) reconcileAll(ctx context.Context, raws []json.RawMessage) BatchResult {
	var result BatchResult

	for i, raw := range raws {
		outcome, err := s.reconcileOne(ctx, raw)
		if err != nil {
			s.logger.Error("Failed to import post", zap.Int("index", i), zap.Error(err))
			result.Errors++
			continue
		}

		switch outcome {
		case OutcomeCreated:
			result.Created++
		case OutcomeUpdated:
			result.Updated++
		}
	}

	return result
}

func (s *Service) reconcileOne(ctx context.Context, raw json.RawMessage) (Outcome, error) {
	var post Post
	if err := json.Unmarshal(raw, &post); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	categories, tags := s.resolveTerms(post)

	rec, err := NewRecord(post, categories, tags)
	if err != nil {
		return "", err
	}

	return s.reconciler.Upsert(ctx, rec)
}

// resolveTerms prefers pre-resolved name lists and falls back to embedded
// terms. A nil list means the terms could not be resolved.
func (s *Service) resolveTerms(post Post) (categories, tags models.TermList) {
	terms, err := ExtractTerms(post.Embedded)
	if err != nil {
		s.logger.Warn("Failed to extract terms", zap.Int64("post_id", post.ID), zap.Error(err))
	}

	switch {
	case post.CategoryNames != nil:
		categories = post.CategoryNames
	case err == nil && terms.Resolved:
		categories = terms.Categories
	}

	switch {
	case post.TagNames != nil:
		tags = post.TagNames
	case err == nil && terms.Resolved:
		tags = terms.Tags
	}

	return categories, tags
}

func (s *Service) pageRequest(opts Options) PageRequest {
	pr := PageRequest{
		BaseURL:         opts.APIURL,
		Page:            opts.Page,
		PerPage:         opts.PerPage,
		IncludeEmbedded: s.config.EmbedTerms(),
	}
	if pr.BaseURL == "" {
		pr.BaseURL = s.config.APIURL
	}
	if pr.Page < 1 {
		pr.Page = 1
	}
	if pr.PerPage < 1 {
		pr.PerPage = s.config.PerPage
	}
	if opts.IncludeEmbedded != nil {
		pr.IncludeEmbedded = *opts.IncludeEmbedded
	}
	return pr
}

func (s *Service) record(ctx context.Context, kind string, startedAt time.Time, stats any, err error) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordRun(ctx, kind, startedAt, stats, err)
}
