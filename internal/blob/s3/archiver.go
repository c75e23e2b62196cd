package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketlens/internal/domain"
)

// SnapshotArchiver uploads the raw, undecoded pages of a catalog fetch so a
// sync pass can be replayed or audited later. Archival is best-effort: a
// failed upload is logged and skipped, never allowed to fail the sync cycle.
type SnapshotArchiver struct {
	writer domain.BlobWriter
	logger *slog.Logger
	now    func() time.Time
}

// NewSnapshotArchiver creates a SnapshotArchiver. A nil writer disables
// archival; ArchiveFetch then does nothing.
func NewSnapshotArchiver(writer domain.BlobWriter, logger *slog.Logger) *SnapshotArchiver {
	return &SnapshotArchiver{
		writer: writer,
		logger: logger.With("component", "snapshot_archiver"),
		now:    time.Now,
	}
}

// ArchiveFetch uploads each raw page of one fetch under a timestamped prefix:
//
//	snapshots/markets/2026/08/28/143502/page-001.json
//
// It returns the number of pages uploaded.
func (a *SnapshotArchiver) ArchiveFetch(ctx context.Context, pages [][]byte) int {
	if a.writer == nil || len(pages) == 0 {
		return 0
	}

	prefix := a.now().UTC().Format("snapshots/markets/2006/01/02/150405")
	uploaded := 0
	for i, page := range pages {
		path := fmt.Sprintf("%s/page-%03d.json", prefix, i+1)
		if err := a.writer.Put(ctx, path, bytes.NewReader(page), "application/json"); err != nil {
			a.logger.Warn("snapshot upload failed", "path", path, "error", err)
			continue
		}
		uploaded++
	}

	if uploaded > 0 {
		a.logger.Info("archived fetch snapshot", "prefix", prefix, "pages", uploaded)
	}
	return uploaded
}
