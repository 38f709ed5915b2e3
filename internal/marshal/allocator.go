// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

package marshal

import (
	"sync"
	"sync/atomic"
)

// Allocator provides the storage owned by return-direction buffers.
type Allocator interface {
	Alloc(n int) []byte
	Release(b []byte)
}

// sizeClasses are the pooled capacities. Larger requests bypass the pools.
var sizeClasses = [...]int{16, 64, 256, 1024, 4096}

// PoolAllocator is a pooled Allocator that accounts for every buffer it hands
// out. Outstanding reports buffers not yet released and DoubleReleases counts
// releases of buffers it does not consider live.
type PoolAllocator struct {
	pools [len(sizeClasses)]sync.Pool

	mu   sync.Mutex
	live map[*byte]struct{}

	outstanding    atomic.Int64
	doubleReleases atomic.Int64
}

// NewPoolAllocator creates an empty pooled allocator.
func NewPoolAllocator() *PoolAllocator {
	return &PoolAllocator{live: make(map[*byte]struct{})}
}

// Alloc returns a zeroed buffer of length n. Zero-length requests return a
// shared empty slice that is not tracked.
func (a *PoolAllocator) Alloc(n int) []byte {
	if n <= 0 {
		return []byte{}
	}
	var b []byte
	if class := classFor(n); class >= 0 {
		if pooled, ok := a.pools[class].Get().(*[]byte); ok {
			b = (*pooled)[:n]
		} else {
			b = make([]byte, n, sizeClasses[class])
		}
	} else {
		b = make([]byte, n)
	}

	a.mu.Lock()
	a.live[&b[:1][0]] = struct{}{}
	a.mu.Unlock()
	a.outstanding.Add(1)
	return b
}

// Release returns b to the allocator. Releasing a buffer twice, or one the
// allocator never issued, is recorded and otherwise ignored.
func (a *PoolAllocator) Release(b []byte) {
	if cap(b) == 0 {
		return
	}
	key := &b[:1][0]

	a.mu.Lock()
	_, ok := a.live[key]
	delete(a.live, key)
	a.mu.Unlock()

	if !ok {
		a.doubleReleases.Add(1)
		return
	}
	a.outstanding.Add(-1)

	b = b[:cap(b)]
	clear(b)
	for i, size := range sizeClasses {
		if cap(b) == size {
			a.pools[i].Put(&b)
			return
		}
	}
}

// Outstanding returns the number of buffers allocated and not yet released.
func (a *PoolAllocator) Outstanding() int64 { return a.outstanding.Load() }

// DoubleReleases returns the number of rejected releases.
func (a *PoolAllocator) DoubleReleases() int64 { return a.doubleReleases.Load() }

func classFor(n int) int {
	for i, size := range sizeClasses {
		if n <= size {
			return i
		}
	}
	return -1
}
