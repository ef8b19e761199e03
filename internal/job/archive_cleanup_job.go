package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docrank/internal/filestore"
)

const defaultArchiveKeep = 72 * time.Hour

// ArchiveCleanupJob removes archived uploads older than maxAge. Stores that
// cannot list their objects are left alone.
type ArchiveCleanupJob struct {
	store  filestore.Store
	maxAge time.Duration
	now    func() time.Time
}

func NewArchiveCleanupJob(store filestore.Store, maxAge time.Duration) *ArchiveCleanupJob {
	return &ArchiveCleanupJob{store: store, maxAge: maxAge, now: time.Now}
}

func (j *ArchiveCleanupJob) Name() string {
	return "archive_cleanup"
}

func (j *ArchiveCleanupJob) Run(ctx context.Context) error {
	if j.store == nil {
		return nil
	}
	sweeper, ok := j.store.(filestore.Sweeper)
	if !ok {
		logutil.GetLogger(ctx).Debug("archive store does not support cleanup", zap.String("type", j.store.Type()))
		return nil
	}
	maxAge := j.maxAge
	if maxAge <= 0 {
		maxAge = defaultArchiveKeep
	}
	removed, err := sweeper.DeleteBefore(ctx, j.now().Add(-maxAge))
	if err != nil {
		return err
	}
	if removed > 0 {
		logutil.GetLogger(ctx).Info("archived documents removed", zap.Int("count", removed))
	}
	return nil
}
