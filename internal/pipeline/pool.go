package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samcharles93/mospeada/internal/generation"
	"github.com/samcharles93/mospeada/internal/metrics"
)

// Pool holds a fixed set of model instances. Each instance serves one
// session at a time.
type Pool struct {
	free    chan generation.Model
	size    int
	metrics *metrics.Metrics
}

// NewPool builds size instances with newModel.
func NewPool(size int, newModel func() (generation.Model, error)) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be >= 1, got %d", size)
	}
	if newModel == nil {
		return nil, errors.New("pool needs a model constructor")
	}
	p := &Pool{free: make(chan generation.Model, size), size: size}
	for i := range size {
		m, err := newModel()
		if err != nil {
			return nil, fmt.Errorf("create model instance %d: %w", i, err)
		}
		p.free <- m
	}
	return p, nil
}

// WithMetrics records acquisition wait times on m.
func (p *Pool) WithMetrics(m *metrics.Metrics) *Pool {
	p.metrics = m
	return p
}

// Acquire blocks until an instance is free or ctx is done. The returned
// release func puts the instance back; calling it more than once is safe.
func (p *Pool) Acquire(ctx context.Context) (generation.Model, func(), error) {
	start := time.Now()
	select {
	case m := <-p.free:
		p.metrics.ObservePoolWait(time.Since(start))
		var once sync.Once
		return m, func() { once.Do(func() { p.free <- m }) }, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// Size is the number of instances.
func (p *Pool) Size() int { return p.size }

// Available is the number of instances not currently acquired.
func (p *Pool) Available() int { return len(p.free) }
