package pdfjobs

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

// Pool sizing constants.
const (
	// MinPoolSize ensures at least one browser is available.
	MinPoolSize = 1

	// MaxPoolSize caps browser instances to limit memory (~200MB each).
	MaxPoolSize = 8

	// cpuDivisor leaves headroom for Chrome child processes.
	cpuDivisor = 2
)

// Compile-time interface check
var _ PageRenderer = (*RendererPool)(nil)

// RendererPool spreads rendering over several PageRenderers, each with its
// own browser. Renderers are created lazily on first acquire.
type RendererPool struct {
	size      int
	newFn     func() PageRenderer
	renderers []PageRenderer
	sem       chan PageRenderer
	mu        sync.Mutex
	created   int
	closed    bool
}

// NewRendererPool creates a pool with capacity for n renderers built by newFn.
func NewRendererPool(n int, newFn func() PageRenderer) *RendererPool {
	if n < 1 {
		n = 1
	}

	return &RendererPool{
		size:      n,
		newFn:     newFn,
		renderers: make([]PageRenderer, 0, n),
		sem:       make(chan PageRenderer, n),
	}
}

// acquire gets a renderer from the pool, creating one if needed.
// Blocks until one is released or ctx is done.
func (p *RendererPool) acquire(ctx context.Context) (PageRenderer, error) {
	// Try to get an existing renderer (non-blocking)
	select {
	case r, ok := <-p.sem:
		if !ok {
			return nil, ErrPoolClosed
		}
		return r, nil
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if p.created < p.size {
		p.created++
		p.mu.Unlock()

		// Create new renderer outside the lock
		r := p.newFn()

		p.mu.Lock()
		if p.closed {
			// Close already copied the renderer list; this one is ours to close.
			p.mu.Unlock()
			_ = r.Close()
			return nil, ErrPoolClosed
		}
		p.renderers = append(p.renderers, r)
		p.mu.Unlock()

		return r, nil
	}
	p.mu.Unlock()

	// All renderers created, wait for one to be released
	select {
	case r, ok := <-p.sem:
		if !ok {
			return nil, ErrPoolClosed
		}
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// release returns a renderer to the pool.
// The lock is held while sending so Close cannot close the channel mid-send;
// the channel has room for every renderer so the send never blocks.
func (p *RendererPool) release(r PageRenderer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.sem <- r
}

// RenderImage renders with the next free renderer.
func (p *RendererPool) RenderImage(ctx context.Context, html string, width, height float64) (string, error) {
	r, err := p.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer p.release(r)
	return r.RenderImage(ctx, html, width, height)
}

// RenderPDF renders with the next free renderer.
func (p *RendererPool) RenderPDF(ctx context.Context, html string, page *PageSettings) (string, error) {
	r, err := p.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer p.release(r)
	return r.RenderPDF(ctx, html, page)
}

// Close releases all browser resources.
// Returns an aggregated error if multiple renderers fail to close.
func (p *RendererPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.sem)
	renderers := p.renderers
	p.mu.Unlock()

	var errs []error
	for _, r := range renderers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Size returns the pool capacity.
func (p *RendererPool) Size() int {
	return p.size
}

// ResolvePoolSize determines the browser pool size.
// Priority: explicit count > GOMAXPROCS-based calculation.
func ResolvePoolSize(browsers int) int {
	if browsers > 0 {
		return browsers
	}

	// Auto-calculate based on GOMAXPROCS (adjusted by automaxprocs for containers)
	n := runtime.GOMAXPROCS(0) / cpuDivisor

	if n < MinPoolSize {
		return MinPoolSize
	}
	if n > MaxPoolSize {
		return MaxPoolSize
	}
	return n
}
