package authsdk

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Group collapses concurrent calls sharing a key into one execution whose
// result every caller receives.
//
// fn runs on a context detached from the first caller's cancellation, so
// one caller giving up does not abort the work the others wait on. A caller
// whose own context ends stops waiting and gets ctx.Err().
type Group[T any] struct {
	sf singleflight.Group

	mu       sync.Mutex
	inflight map[string]bool
}

// Do runs fn once per key at a time.
func (g *Group[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	detached := context.WithoutCancel(ctx)

	ch := g.sf.DoChan(key, func() (any, error) {
		g.mark(key, true)
		defer g.mark(key, false)
		return fn(detached)
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	}
}

// InFlight reports whether fn is currently running for key.
func (g *Group[T]) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inflight[key]
}

func (g *Group[T]) mark(key string, running bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight == nil {
		g.inflight = make(map[string]bool)
	}
	if running {
		g.inflight[key] = true
	} else {
		delete(g.inflight, key)
	}
}
