package upload

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"catcharity/internal/mediaurl"
)

const (
	DefaultSweepInterval = 1 * time.Hour
	DefaultSweepGrace    = 1 * time.Hour
)

// PhotoIndex reports whether a Photo record references a URL.
type PhotoIndex interface {
	ExistsByURL(ctx context.Context, url string) (bool, error)
}

// Sweeper deletes files in the upload directory that no Photo record
// references once they are older than the grace period.
type Sweeper struct {
	photos   PhotoIndex
	uploads  *Service
	interval time.Duration
	grace    time.Duration
}

func NewSweeper(photos PhotoIndex, uploads *Service, interval, grace time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if grace <= 0 {
		grace = DefaultSweepGrace
	}
	return &Sweeper{
		photos:   photos,
		uploads:  uploads,
		interval: interval,
		grace:    grace,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	slog.Info("starting upload sweeper", "component", "upload_sweeper", "interval", s.interval)

	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping upload sweeper", "component", "upload_sweeper")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns the number of files removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	entries, err := os.ReadDir(s.uploads.rootDir)
	if err != nil {
		slog.Error("error listing upload directory", "component", "upload_sweeper", "error", err)
		return 0
	}

	cutoff := time.Now().Add(-s.grace)
	removed := 0

	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed
		}
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		// Abandoned temp files from interrupted uploads.
		if strings.HasPrefix(name, ".upload-") {
			if err := os.Remove(filepath.Join(s.uploads.rootDir, name)); err == nil {
				removed++
			}
			continue
		}
		if strings.HasPrefix(name, ".") {
			continue
		}

		url := mediaurl.Photo(name)
		referenced, err := s.photos.ExistsByURL(ctx, url)
		if err != nil {
			slog.Error("error checking upload reference", "component", "upload_sweeper", "error", err, "file", name)
			continue
		}
		if referenced {
			continue
		}

		if err := s.uploads.Delete(url); err != nil {
			slog.Warn("error deleting orphaned upload", "component", "upload_sweeper", "error", err, "file", name)
			continue
		}
		removed++
	}

	if removed > 0 {
		slog.Info("deleted orphaned uploads", "component", "upload_sweeper", "count", removed)
	}
	return removed
}
