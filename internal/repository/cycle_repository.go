package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/smartbin/internal/logging"
)

// CycleLog represents one persisted sense-classify-route cycle.
type CycleLog struct {
	ID          uint      `gorm:"primaryKey"`
	CycleID     string    `gorm:"column:cycle_id;uniqueIndex;size:64"`
	PhotoPath   string    `gorm:"column:photo_path;size:512"`
	Label       string    `gorm:"column:label;size:32;index"`
	Source      string    `gorm:"column:source;size:16"`
	RemoteError string    `gorm:"column:remote_error;type:text"`
	Archived    bool      `gorm:"column:archived"`
	ArchivePath string    `gorm:"column:archive_path;size:512"`
	DurationMs  int64     `gorm:"column:duration_ms"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (CycleLog) TableName() string {
	return "cycle_logs"
}

// MetricsAggregation holds raw counters computed by the database.
type MetricsAggregation struct {
	TotalCount         int64
	RecyclableCount    int64
	NonRecyclableCount int64
	UnknownCount       int64
	RemoteCount        int64
	LocalCount         int64
	ArchivedCount      int64
	AverageDurationMs  float64
}

// CycleRepository provides persistence APIs for cycle logs.
type CycleRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewCycleRepository creates a new repository instance.
func NewCycleRepository(db *gorm.DB, logger *zap.Logger) *CycleRepository {
	return &CycleRepository{
		db:             db,
		logger:         logger.Named("cycle_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *CycleRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&CycleLog{})
}

// SaveLog persists a cycle log entry.
func (r *CycleRepository) SaveLog(ctx context.Context, log *CycleLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.CycleID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByCycleID retrieves the log for a cycle.
func (r *CycleRepository) FindByCycleID(ctx context.Context, cycleID string) (*CycleLog, error) {
	var log CycleLog
	err := r.executeWithRetry(ctx, "repository.find_by_cycle_id", cycleID, func() error {
		return r.db.WithContext(ctx).First(&log, "cycle_id = ?", cycleID).Error
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateMetrics computes label, source and archive counters across all cycles.
func (r *CycleRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).Model(&CycleLog{}).Select(
			"COUNT(*) AS total_count, " +
				"COALESCE(SUM(CASE WHEN label = 'recyclable' THEN 1 ELSE 0 END), 0) AS recyclable_count, " +
				"COALESCE(SUM(CASE WHEN label = 'nonrecyclable' THEN 1 ELSE 0 END), 0) AS non_recyclable_count, " +
				"COALESCE(SUM(CASE WHEN label = 'unknown' THEN 1 ELSE 0 END), 0) AS unknown_count, " +
				"COALESCE(SUM(CASE WHEN source = 'remote' THEN 1 ELSE 0 END), 0) AS remote_count, " +
				"COALESCE(SUM(CASE WHEN source = 'local' THEN 1 ELSE 0 END), 0) AS local_count, " +
				"COALESCE(SUM(CASE WHEN archived THEN 1 ELSE 0 END), 0) AS archived_count, " +
				"COALESCE(AVG(duration_ms), 0) AS average_duration_ms",
		).Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *CycleRepository) executeWithRetry(ctx context.Context, operation, cycleID string, fn func() error) error {
	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, cycleID)
	attempts := r.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, cycleID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !IsTransientError(err) || attempt == attempts-1 {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			}
			return logging.NewOperationError(operation, cycleID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, cycleID, err)
}

// IsTransientError reports whether err is worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
