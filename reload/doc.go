// Package reload restarts the development server process when watched files
// change.
//
// The reloader uses a supervisor/worker model.  The supervisor re-execs the
// current binary with a marker environment variable set and restarts it every
// time it exits with RestartExitCode.  The worker serves traffic while a
// Backend watches the filesystem; on the first observed change the worker
// exits with RestartExitCode, and the supervisor starts a fresh one.
//
// Two backends are available: StatBackend polls modification times on an
// interval, while NotifyBackend reacts to OS filesystem events and is both
// faster and cheaper.  NotifyBackend is preferred when the platform supports
// it; see BackendFor.
package reload
