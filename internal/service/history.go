package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/wpsteward/steward/internal/models"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// HistoryService keeps a log of sync, import and reminder runs.
type HistoryService struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewHistoryService(db *gorm.DB, logger *zap.Logger) *HistoryService {
	return &HistoryService{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// RecordRun stores one run. Failing to record never fails the run itself.
func (h *HistoryService) RecordRun(ctx context.Context, kind string, startedAt time.Time, stats any, runErr error) {
	run := &models.SyncRun{
		RunID:      uuid.NewString(),
		Kind:       kind,
		Success:    runErr == nil,
		StartedAt:  startedAt.UTC(),
		FinishedAt: h.now().UTC(),
		Stats:      datatypes.JSON("{}"),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}

	if stats != nil {
		data, err := json.Marshal(stats)
		if err != nil {
			h.logger.Warn("Failed to encode run stats", zap.String("kind", kind), zap.Error(err))
		} else if string(data) != "null" {
			run.Stats = datatypes.JSON(data)
		}
	}

	if err := h.db.WithContext(ctx).Create(run).Error; err != nil {
		h.logger.Error("Failed to record run", zap.String("kind", kind), zap.Error(err))
	}
}

// RecentRuns returns the latest runs, newest first.
func (h *HistoryService) RecentRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit < 1 {
		limit = defaultRunsLimit
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}

	runs := []models.SyncRun{}
	err := h.db.WithContext(ctx).
		Order("started_at desc").
		Order("id desc").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}
	return runs, nil
}
