package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/example/smartbin/internal/classifier"
)

// ManifestRow is one archived photo in the training manifest.
type ManifestRow struct {
	Path       string `parquet:"path"`
	Label      string `parquet:"label"`
	SizeBytes  int64  `parquet:"size_bytes"`
	CapturedAt int64  `parquet:"captured_at"`
}

// ScanManifest lists every archived photo under root.
func ScanManifest(root string) ([]ManifestRow, error) {
	var rows []ManifestRow
	for _, label := range []classifier.Label{classifier.Recyclable, classifier.NonRecyclable} {
		dir := filepath.Join(root, LabelDir(label))
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", dir, err)
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".jpg") {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
			}
			rows = append(rows, ManifestRow{
				Path:       filepath.Join(LabelDir(label), entry.Name()),
				Label:      label.String(),
				SizeBytes:  info.Size(),
				CapturedAt: capturedAt(entry.Name(), info.ModTime().Unix()),
			})
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Path < rows[j].Path })
	return rows, nil
}

// WriteManifest scans root and writes the manifest as a parquet file.
func WriteManifest(root, out string) (int, error) {
	rows, err := ScanManifest(root)
	if err != nil {
		return 0, err
	}
	if err := parquet.WriteFile(out, rows); err != nil {
		return 0, fmt.Errorf("failed to write manifest %s: %w", out, err)
	}
	return len(rows), nil
}

// capturedAt recovers the unix timestamp from photo_<ts>.jpg names.
func capturedAt(name string, fallback int64) int64 {
	var ts int64
	if _, err := fmt.Sscanf(name, "photo_%d.jpg", &ts); err != nil {
		return fallback
	}
	return ts
}
