package reload

import (
	"context"
	"os"
	"os/exec"

	"github.com/travisdoesmath/fakezeug"
	"go.uber.org/fx"
)

// Module is the module label under which code in this package emits
// informational output.
const Module = "Reload"

// RunMainEnv is the environment variable marking a worker process.  The
// supervisor sets it to "true" on every child it spawns; everything else
// about the child's environment and arguments is inherited.
const RunMainEnv = "FAKEZEUG_RUN_MAIN"

// IsWorker reports whether this process was spawned by a supervisor and
// should therefore serve traffic and watch for changes, rather than
// supervise.
func IsWorker() bool {
	return os.Getenv(RunMainEnv) == "true"
}

// Reloader ties a Backend and a WatchSet into the supervisor/worker restart
// protocol.  The zero value supervises re-execs of the current binary,
// watching the working directory with the automatic backend.
type Reloader struct {
	// Backend observes the filesystem.  If nil, BackendFor(BackendAuto, 0)
	// is used.
	Backend Backend

	// Set is the collection of files observed for changes.
	Set WatchSet

	// Printer receives informational messages.  If unset, a default
	// stderr printer is used.
	Printer fx.Printer

	// Exit terminates the worker process.  If unset, os.Exit is used.
	// Tests may substitute a capture function.
	Exit func(int)

	// Command builds the worker process to spawn.  If unset, the current
	// binary is re-executed with the same arguments, working directory,
	// and standard streams.
	Command func(context.Context) *exec.Cmd
}

func (r *Reloader) backend() Backend {
	if r.Backend != nil {
		return r.Backend
	}

	b, _ := BackendFor(BackendAuto, 0)
	return b
}

func (r *Reloader) printer() fx.Printer {
	if r.Printer != nil {
		return r.Printer
	}

	return fakezeug.NewModulePrinter(Module, nil)
}

func (r *Reloader) exit(code int) {
	if r.Exit != nil {
		r.Exit(code)
		return
	}

	os.Exit(code)
}

// command builds the next worker process with the restart marker set.
func (r *Reloader) command(ctx context.Context) *exec.Cmd {
	var cmd *exec.Cmd
	if r.Command != nil {
		cmd = r.Command(ctx)
	} else {
		cmd = exec.CommandContext(ctx, os.Args[0], os.Args[1:]...)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	cmd.Env = append(cmd.Env, RunMainEnv+"=true")
	return cmd
}

// Supervise runs the supervisor loop: spawn a worker, wait for it to exit,
// and restart it whenever it exits with RestartExitCode.  Any other exit
// terminates the loop.  A worker that exited cleanly yields a nil return;
// otherwise the worker's error is returned.
//
// Supervise never returns while workers keep requesting restarts.  Context
// cancellation kills the current worker and returns ctx.Err().
func (r *Reloader) Supervise(ctx context.Context) error {
	p := r.printer()
	p.Printf("restarting with %s backend", r.backend().Name())

	for {
		err := r.command(ctx).Run()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if ExitCodeFor(err) == RestartExitCode {
			p.Printf("worker requested restart")
			continue
		}

		return err
	}
}

// Watch runs this reloader's backend inside a worker process.  On the first
// observed change it logs the triggering path and exits the process with
// RestartExitCode, handing control back to the supervisor.  If the context
// is done first, Watch returns ctx.Err() without exiting.  A backend failure
// is returned as is.
func (r *Reloader) Watch(ctx context.Context) error {
	changed := make(chan string, 1)
	watchErr := make(chan error, 1)

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		watchErr <- r.backend().Watch(watchCtx, r.Set, changed)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()

	case err := <-watchErr:
		return err

	case path := <-changed:
		r.printer().Printf("detected change in %q, reloading", path)
		r.exit(RestartExitCode)
		return nil
	}
}
