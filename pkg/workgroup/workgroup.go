package workgroup

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Group runs context bound workers and collects the first error. The first
// worker to fail cancels the others.
type Group struct {
	ctx   context.Context
	group *errgroup.Group
}

// WithContext creates a Group whose workers receive a context derived from ctx.
func WithContext(ctx context.Context) *Group {
	group, gctx := errgroup.WithContext(ctx)
	return &Group{
		ctx:   gctx,
		group: group,
	}
}

// Work starts fn in its own goroutine.
func (g *Group) Work(fn func(context.Context) error) {
	g.group.Go(func() error {
		return fn(g.ctx)
	})
}

// Wait blocks until all workers have returned.
func (g *Group) Wait() error {
	return g.group.Wait()
}
