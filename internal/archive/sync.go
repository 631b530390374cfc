package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ObjectStore uploads archived photos to remote storage.
type ObjectStore interface {
	UploadFile(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
}

// SyncResult summarises one backlog upload.
type SyncResult struct {
	Uploaded int
	Failed   int
}

// Syncer pushes the offline backlog to object storage once connectivity returns.
type Syncer struct {
	root        string
	prefix      string
	store       ObjectStore
	probe       OnlineChecker
	concurrency int
	logger      *zap.Logger
}

// NewSyncer uploads every manifest entry under root to store, keyed by prefix.
func NewSyncer(root, prefix string, store ObjectStore, probe OnlineChecker, concurrency int, logger *zap.Logger) *Syncer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Syncer{
		root:        root,
		prefix:      prefix,
		store:       store,
		probe:       probe,
		concurrency: concurrency,
		logger:      logger.Named("archive_sync"),
	}
}

// Sync uploads archived photos. When remove is set, local copies are deleted
// after a successful upload. Individual failures are counted, not returned.
func (s *Syncer) Sync(ctx context.Context, remove bool) (SyncResult, error) {
	if !s.probe.IsOnline(ctx) {
		return SyncResult{}, fmt.Errorf("cannot sync archive while offline")
	}

	rows, err := ScanManifest(s.root)
	if err != nil {
		return SyncResult{}, err
	}

	var uploaded, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, row := range rows {
		row := row
		g.Go(func() error {
			if err := s.upload(gctx, row, remove); err != nil {
				failed.Add(1)
				s.logger.Error("failed to sync photo", zap.String("path", row.Path), zap.Error(err))
				return nil
			}
			uploaded.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SyncResult{}, err
	}

	result := SyncResult{Uploaded: int(uploaded.Load()), Failed: int(failed.Load())}
	s.logger.Info("archive sync finished", zap.Int("uploaded", result.Uploaded), zap.Int("failed", result.Failed))
	return result, nil
}

func (s *Syncer) upload(ctx context.Context, row ManifestRow, remove bool) error {
	local := filepath.Join(s.root, row.Path)
	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	key := path.Join(s.prefix, filepath.ToSlash(row.Path))
	if err := s.store.UploadFile(ctx, key, f, info.Size(), "image/jpeg"); err != nil {
		return err
	}

	if remove {
		f.Close()
		if err := os.Remove(local); err != nil {
			return fmt.Errorf("uploaded but failed to remove %s: %w", local, err)
		}
	}
	return nil
}
