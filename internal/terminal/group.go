package terminal

import (
	"context"
	"sync"
)

// Group tracks channels across every endpoint built from it, so one Shutdown
// reaches channels accepted before a reconfiguration swapped the endpoint.
type Group struct {
	mu      sync.Mutex
	stopped bool
	quit    chan struct{}
	wg      sync.WaitGroup
}

// NewGroup creates an open group.
func NewGroup() *Group {
	return &Group{quit: make(chan struct{})}
}

func (g *Group) add() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return false
	}
	g.wg.Add(1)
	return true
}

func (g *Group) done() { g.wg.Done() }

func (g *Group) stopping() <-chan struct{} { return g.quit }

// Shutdown closes every open channel with a normal-closure reason and waits
// for them to finish or for ctx to expire. New channels are refused.
func (g *Group) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	if !g.stopped {
		g.stopped = true
		close(g.quit)
	}
	g.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
