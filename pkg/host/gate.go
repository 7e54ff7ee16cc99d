package host

import (
	"context"
	"sync"
)

// Gate is a single-shot broadcast: once opened it stays open and releases all
// current and future waiters.
type Gate struct {
	once sync.Once
	ch   chan struct{}
}

func newGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Open opens the gate. Subsequent calls do nothing.
func (g *Gate) Open() {
	g.once.Do(func() { close(g.ch) })
}

// IsOpen reports whether Open was called.
func (g *Gate) IsOpen() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until the gate is open or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
