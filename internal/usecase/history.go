package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/smartbin/internal/logging"
	"github.com/example/smartbin/internal/repository"
)

// CycleRepository defines the persistence operations needed by the history.
type CycleRepository interface {
	SaveLog(ctx context.Context, log *repository.CycleLog) error
	FindByCycleID(ctx context.Context, cycleID string) (*repository.CycleLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// CycleHistory persists completed cycles and serves them back to the status API.
type CycleHistory struct {
	repo           CycleRepository
	cache          Cache
	logger         *zap.Logger
	cacheTTL       time.Duration
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

type cachedCycle struct {
	CycleID     string    `json:"cycle_id"`
	PhotoPath   string    `json:"photo_path"`
	Label       string    `json:"label"`
	Source      string    `json:"source"`
	RemoteError string    `json:"remote_error,omitempty"`
	Archived    bool      `json:"archived"`
	ArchivePath string    `json:"archive_path,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewCycleHistory constructs a history backed by repo, with cache in front of reads.
func NewCycleHistory(repo CycleRepository, cache Cache, logger *zap.Logger) *CycleHistory {
	return &CycleHistory{
		repo:           repo,
		cache:          cache,
		logger:         logger.Named("cycle_history"),
		cacheTTL:       24 * time.Hour,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

func cacheKey(cycleID string) string {
	return fmt.Sprintf("cycle:%s", cycleID)
}

// RecordCycle stores the cycle log and caches it for status lookups.
func (h *CycleHistory) RecordCycle(ctx context.Context, report *CycleReport) error {
	log := logFromReport(report)
	opLogger := logging.WithOperation(h.logger, "history.record_cycle", log.CycleID)

	if err := h.repo.SaveLog(ctx, log); err != nil {
		wrapped := logging.NewOperationError("history.save_log", log.CycleID, err)
		opLogger.Error("failed to persist cycle log", zap.Error(wrapped))
		return wrapped
	}

	serialized, err := json.Marshal(cachedFromLog(log))
	if err != nil {
		opLogger.Error("failed to serialize cycle log", zap.Error(err))
		return err
	}

	if err := h.withRedisRetry(ctx, log.CycleID, "cache.set.cycle", func() error {
		return h.cache.Set(ctx, cacheKey(log.CycleID), string(serialized), h.cacheTTL)
	}); err != nil {
		opLogger.Error("failed to cache cycle log", zap.Error(err))
		return err
	}
	return nil
}

// GetCycle returns a cycle from the cache, or from the database on a miss.
func (h *CycleHistory) GetCycle(ctx context.Context, cycleID string) (*repository.CycleLog, error) {
	if cached, err := h.withRedisGet(ctx, cycleID, "cache.get.cycle", cacheKey(cycleID)); err == nil {
		var payload cachedCycle
		if err := json.Unmarshal([]byte(cached), &payload); err != nil {
			logging.WithOperation(h.logger, "history.get_cycle", cycleID).Warn("failed to decode cached cycle", zap.Error(err))
		} else {
			return logFromCached(payload), nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logging.WithOperation(h.logger, "history.get_cycle", cycleID).Warn("failed to read cache", zap.Error(err))
	}

	return h.repo.FindByCycleID(ctx, cycleID)
}

func logFromReport(report *CycleReport) *repository.CycleLog {
	log := &repository.CycleLog{
		CycleID:    report.CycleID,
		PhotoPath:  report.Photo.Path,
		Label:      report.Label.String(),
		Source:     string(report.Source),
		DurationMs: report.Duration.Milliseconds(),
		CreatedAt:  report.StartedAt.UTC(),
	}
	if report.RemoteErr != nil {
		log.RemoteError = report.RemoteErr.Error()
	}
	if report.Archive != nil {
		log.Archived = true
		log.ArchivePath = report.Archive.Destination
	}
	return log
}

func cachedFromLog(log *repository.CycleLog) cachedCycle {
	return cachedCycle{
		CycleID:     log.CycleID,
		PhotoPath:   log.PhotoPath,
		Label:       log.Label,
		Source:      log.Source,
		RemoteError: log.RemoteError,
		Archived:    log.Archived,
		ArchivePath: log.ArchivePath,
		DurationMs:  log.DurationMs,
		CreatedAt:   log.CreatedAt,
	}
}

func logFromCached(c cachedCycle) *repository.CycleLog {
	return &repository.CycleLog{
		CycleID:     c.CycleID,
		PhotoPath:   c.PhotoPath,
		Label:       c.Label,
		Source:      c.Source,
		RemoteError: c.RemoteError,
		Archived:    c.Archived,
		ArchivePath: c.ArchivePath,
		DurationMs:  c.DurationMs,
		CreatedAt:   c.CreatedAt,
	}
}

func (h *CycleHistory) withRedisRetry(ctx context.Context, cycleID, operation string, fn func() error) error {
	if h.retryAttempts <= 1 {
		return logging.NewOperationError(operation, cycleID, fn())
	}

	backoff := h.initialBackoff
	opLogger := logging.WithOperation(h.logger, operation, cycleID)
	var err error
	for attempt := 0; attempt < h.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, cycleID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= h.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !repository.IsTransientError(err) || attempt == h.retryAttempts-1 {
			if !errors.Is(err, redis.Nil) {
				opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			}
			return logging.NewOperationError(operation, cycleID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, cycleID, err)
}

func (h *CycleHistory) withRedisGet(ctx context.Context, cycleID, operation, key string) (string, error) {
	var result string
	err := h.withRedisRetry(ctx, cycleID, operation, func() error {
		value, err := h.cache.Get(ctx, key)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}
