package reload

import (
	"context"
	"os"

	"github.com/fsnotify/fsnotify"
)

// NotifyBackend observes a WatchSet through OS filesystem events via
// fsnotify.  It reacts faster than StatBackend and also sees files created
// after watching began, which polling can miss between passes.
//
// The zero value is a valid backend.
type NotifyBackend struct{}

// Name implements Backend
func (nb NotifyBackend) Name() string { return BackendNotify }

// Watch implements Backend.  Directories are registered rather than
// individual files so that rename-and-replace saves, the way most editors
// write files, still produce events for the replacing file.
func (nb NotifyBackend) Watch(ctx context.Context, set WatchSet, changed chan<- string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	defer watcher.Close()

	dirs, err := set.Dirs()
	if err != nil {
		return err
	}

	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !relevant(event) {
				continue
			}

			if event.Has(fsnotify.Create) {
				// a new subdirectory must be watched too
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}

			if set.Contains(event.Name) {
				offer(changed, event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			return err
		}
	}
}

// relevant filters the event operations that indicate a content change.
// Chmod-only events are ignored.
func relevant(event fsnotify.Event) bool {
	return event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) ||
		event.Has(fsnotify.Rename)
}
