package reload

import (
	"context"
	"os"
	"time"
)

// StatBackend observes a WatchSet by polling modification times.  It works
// everywhere, at the cost of one stat per watched file per interval and a
// detection latency of up to one interval.
//
// The zero value is a valid backend polling at DefaultInterval.
type StatBackend struct {
	// Interval is the time between polling passes.  If unset,
	// DefaultInterval is used.
	Interval time.Duration
}

// Name implements Backend
func (sb StatBackend) Name() string { return BackendStat }

// Watch implements Backend.  The first pass records a baseline; subsequent
// passes report any file whose modification time moved, along with files
// that appear after the baseline was taken.  Deleted files are forgotten
// rather than reported, since editors routinely remove and recreate files
// on save.
func (sb StatBackend) Watch(ctx context.Context, set WatchSet, changed chan<- string) error {
	interval := sb.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	mtimes := make(map[string]time.Time)
	if err := sb.poll(set, mtimes, nil); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if err := sb.poll(set, mtimes, changed); err != nil {
				return err
			}
		}
	}
}

// poll performs one enumeration pass.  When changed is nil, the pass only
// establishes the baseline.
func (sb StatBackend) poll(set WatchSet, mtimes map[string]time.Time, changed chan<- string) error {
	files, err := set.Files()
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(files))
	for _, path := range files {
		seen[path] = true

		info, err := os.Stat(path)
		if err != nil {
			// the file vanished between enumeration and stat
			delete(mtimes, path)
			continue
		}

		previous, known := mtimes[path]
		mtimes[path] = info.ModTime()

		if changed == nil {
			continue
		}

		if !known || info.ModTime().After(previous) {
			offer(changed, path)
		}
	}

	for path := range mtimes {
		if !seen[path] {
			delete(mtimes, path)
		}
	}

	return nil
}
