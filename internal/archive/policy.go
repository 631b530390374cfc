// Package archive keeps photos taken while offline so they can be used for
// retraining later.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/example/smartbin/internal/camera"
	"github.com/example/smartbin/internal/classifier"
)

const (
	RecyclableDir    = "recyclable"
	NonRecyclableDir = "nonrecyclable"
)

// OnlineChecker reports current connectivity.
type OnlineChecker interface {
	IsOnline(ctx context.Context) bool
}

// Record describes one archived photo.
type Record struct {
	Source      string
	Destination string
}

// Policy moves photos into labeled collection directories while offline.
type Policy struct {
	root   string
	probe  OnlineChecker
	logger *zap.Logger
}

// NewPolicy archives under root, typically <base>/data-collection.
func NewPolicy(root string, probe OnlineChecker, logger *zap.Logger) *Policy {
	return &Policy{root: root, probe: probe, logger: logger.Named("archive")}
}

// LabelDir returns the collection directory for a label, or "" for Unknown.
func LabelDir(label classifier.Label) string {
	switch label {
	case classifier.Recyclable:
		return RecyclableDir
	case classifier.NonRecyclable:
		return NonRecyclableDir
	default:
		return ""
	}
}

// Archive re-checks connectivity and, when offline, moves the photo into the
// label's directory. It returns nil when nothing was moved.
func (p *Policy) Archive(ctx context.Context, photo camera.Photo, label classifier.Label) (*Record, error) {
	dir := LabelDir(label)
	if dir == "" {
		return nil, nil
	}

	if p.probe.IsOnline(ctx) {
		p.logger.Debug("online, keeping photo in place", zap.String("photo", photo.Path))
		return nil, nil
	}

	destDir := filepath.Join(p.root, dir)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", destDir, err)
	}

	dest := filepath.Join(destDir, photo.Name())
	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("archive destination %s already exists", dest)
	}
	if err := os.Rename(photo.Path, dest); err != nil {
		return nil, fmt.Errorf("failed to move %s to %s: %w", photo.Path, dest, err)
	}

	p.logger.Info("photo archived",
		zap.String("source", photo.Path),
		zap.String("destination", dest),
		zap.Stringer("label", label))

	return &Record{Source: photo.Path, Destination: dest}, nil
}
