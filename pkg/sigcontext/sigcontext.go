package sigcontext

import (
	"context"
	"os"
	"os/signal"
	"sync"
)

// WithSignalNotify derives a context that is cancelled on the first of sigs
// delivered to the process, and a func reporting which signal that was. The
// func is safe to call once the context is done and returns nil when the
// context ended for another reason. The returned cancel func must be called
// to release the signal handlers; after it runs a further signal falls back
// to the runtime's default behaviour (a second ^C terminates the process).
func WithSignalNotify(ctx context.Context, sigs ...os.Signal) (context.Context, func() os.Signal, context.CancelFunc) {
	sigctx, ctxcancel := context.WithCancel(ctx)

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, sigs...)

	var (
		mu       sync.Mutex
		received os.Signal
		once     sync.Once
	)
	release := func() {
		once.Do(func() {
			signal.Stop(sigchan)
		})
	}

	go func() {
		defer release()
		select {
		case <-sigctx.Done():
		case sig := <-sigchan:
			mu.Lock()
			received = sig
			mu.Unlock()
			ctxcancel()
		}
	}()

	which := func() os.Signal {
		mu.Lock()
		defer mu.Unlock()
		return received
	}
	cancel := func() {
		ctxcancel()
		release()
	}
	return sigctx, which, cancel
}
