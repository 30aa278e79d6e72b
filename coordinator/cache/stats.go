package cache

import (
	"sync/atomic"
	"time"
)

type CacheStats struct {
	Created time.Time

	Reads    atomic.Int64
	LastRead atomic.Int64
}

func (s *CacheStats) touch(now time.Time) {
	s.Reads.Add(1)
	s.LastRead.Store(now.UnixNano())
}

type Summary struct {
	Entries int
	Hits    int64
	Misses  int64
	Evicted int64
}
