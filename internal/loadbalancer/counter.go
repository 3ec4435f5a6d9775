// Package loadbalancer implements the per-destination active-connection
// gauge and the selection strategies: RoundRobin, LeastConnections, Random,
// and PowerOfTwoChoices (with WeightedRoundRobin declared but falling back
// to RoundRobin).
package loadbalancer

import "sync/atomic"

// connCounter is a non-negative, atomically updated active-request gauge
// for one destination. Decrement clamps at zero via a compare-and-swap
// loop rather than a bare Add(-1), so a mismatched or duplicate completion
// hook can never drive the gauge negative.
type connCounter struct {
	value atomic.Int64
}

func (c *connCounter) increment() int64 {
	return c.value.Add(1)
}

func (c *connCounter) decrement() int64 {
	for {
		cur := c.value.Load()
		if cur <= 0 {
			c.value.CompareAndSwap(cur, 0)
			return 0
		}
		if c.value.CompareAndSwap(cur, cur-1) {
			return cur - 1
		}
	}
}

func (c *connCounter) get() int64 {
	return c.value.Load()
}
