package reload

import (
	"context"
	"fmt"
	"time"
)

// Backend names accepted by BackendFor.
const (
	// BackendAuto selects NotifyBackend when the platform supports
	// filesystem events, falling back to StatBackend otherwise.
	BackendAuto = "auto"

	// BackendStat selects the polling backend.
	BackendStat = "stat"

	// BackendNotify selects the filesystem-event backend.
	BackendNotify = "notify"
)

// DefaultInterval is the polling interval used by StatBackend when none
// is configured.
const DefaultInterval = time.Second

// Backend is a strategy for observing filesystem changes.  Implementations
// block inside Watch, sending the path of each observed change on the given
// channel, until the context is done.
type Backend interface {
	// Name identifies this backend in informational output.
	Name() string

	// Watch observes the given set until ctx is done.  Every observed
	// change results in the changed path being sent on the channel.
	// Sends must not block forever: implementations drop changes that
	// the receiver is not ready for beyond the channel's capacity.
	Watch(ctx context.Context, set WatchSet, changed chan<- string) error
}

// BackendFor maps a configured backend name onto an implementation.  The
// empty string is treated as BackendAuto.  The interval applies only to
// polling; a zero interval means DefaultInterval.
func BackendFor(name string, interval time.Duration) (Backend, error) {
	switch name {
	case "", BackendAuto:
		return autoBackend{interval: interval}, nil

	case BackendStat:
		return StatBackend{Interval: interval}, nil

	case BackendNotify:
		return NotifyBackend{}, nil

	default:
		return nil, fmt.Errorf("unrecognized reloader backend: %q", name)
	}
}

// autoBackend prefers filesystem events and degrades to polling when the
// event watcher cannot be created, e.g. on exotic platforms or when the
// inotify instance limit is hit.
type autoBackend struct {
	interval time.Duration
}

func (ab autoBackend) Name() string { return BackendAuto }

func (ab autoBackend) Watch(ctx context.Context, set WatchSet, changed chan<- string) error {
	err := NotifyBackend{}.Watch(ctx, set, changed)
	if err == nil || ctx.Err() != nil {
		return err
	}

	return StatBackend{Interval: ab.interval}.Watch(ctx, set, changed)
}

// offer sends a changed path without blocking.  A reloader only acts on the
// first change it sees, so dropping bursts is harmless.
func offer(changed chan<- string, path string) {
	select {
	case changed <- path:
	default:
	}
}
