package metaapi

import (
	"context"
	"sync"
)

// connectFuture represents the first connect attempt of one dial cycle.
// Connect() is idempotent — redundant calls await the same future rather
// than opening a second socket.
type connectFuture struct {
	done chan struct{}
	err  error
	once sync.Once
}

func newConnectFuture() *connectFuture {
	return &connectFuture{done: make(chan struct{})}
}

func (f *connectFuture) resolve(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

func (f *connectFuture) wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
