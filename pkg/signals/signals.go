// Package signals keeps routine signals from killing gtctl while it is
// reconfiguring the dataplane.
package signals

import (
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// Ignored lists the signals drained by Ignore.
var Ignored = []os.Signal{
	unix.SIGALRM,
	unix.SIGCHLD,
	unix.SIGHUP,
	unix.SIGINT,
	unix.SIGIO,
	unix.SIGPIPE,
	unix.SIGQUIT,
	unix.SIGTERM,
	unix.SIGUSR1,
	unix.SIGUSR2,
	unix.SIGWINCH,
}

// Ignore starts draining the Ignored signals and logging them. Only an
// uncatchable kill stops the process until the returned function is
// called.
func Ignore() (stop func()) {
	ch := make(chan os.Signal, 16)
	signal.Notify(ch, Ignored...)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case sig := <-ch:
				slog.Info("got signal", "signal", sig)
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}
