package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// TerminationSignals are treated identically: both begin a graceful drain.
var TerminationSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// WatchSignals subscribes to TerminationSignals and relays each one as a
// trigger. The returned function unsubscribes.
func (c *Coordinator) WatchSignals(ctx context.Context) (stop func()) {
	ch := make(chan os.Signal, len(TerminationSignals))
	signal.Notify(ch, TerminationSignals...)

	relayCtx, cancel := context.WithCancel(ctx)
	go c.Relay(relayCtx, ch)

	return func() {
		signal.Stop(ch)
		cancel()
	}
}

// Relay forwards signals from ch as triggers until ctx is done or ch closes.
func (c *Coordinator) Relay(ctx context.Context, ch <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-ch:
			if !ok {
				return
			}
			c.Trigger(sig.String())
		}
	}
}
