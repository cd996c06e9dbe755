// Package pool provides a bounded worker pool for fanning out
// CPU-heavy validation batches. Cryptographic checks dominate tick
// latency; running them in parallel is safe because workers only
// compute verdicts, and the caller merges verdicts deterministically.
package pool

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Pool runs batches of tasks with bounded parallelism.
type Pool struct {
	limit int
}

// NewPool creates a pool running at most limit tasks concurrently.
// A limit of 0 or less uses GOMAXPROCS.
func NewPool(limit int) *Pool {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	return &Pool{limit: limit}
}

// TearDown releases the pool. Provided for symmetry with callers that
// manage the pool's lifecycle; the current implementation holds no
// resources.
func (p *Pool) TearDown() {}

// Parallelize runs f(0..n-1) across the pool's workers and blocks
// until all calls return.
func (p *Pool) Parallelize(n int, f func(i int)) {
	if n <= 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(p.limit)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			f(i)
			return nil
		})
	}
	// Tasks never return errors; Wait only joins them.
	_ = g.Wait()
}
