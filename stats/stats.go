// Package stats keeps in-memory request counters per route.
package stats

import (
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

type counter struct {
	count   atomic.Int64
	errors  atomic.Int64
	totalNs atomic.Int64
}

type Summary struct {
	Count  int64   `json:"count"`
	Errors int64   `json:"errors"`
	AvgMs  float64 `json:"avg_ms"`
}

type Registry struct {
	started  time.Time
	counters cmap.ConcurrentMap[string, *counter]
}

func New() *Registry {
	return &Registry{
		started:  time.Now(),
		counters: cmap.New[*counter](),
	}
}

// Record adds one request to the counter of the given route
func (r *Registry) Record(route string, latency time.Duration, failed bool) {
	c := r.counters.Upsert(route, nil, func(exist bool, old, _ *counter) *counter {
		if exist {
			return old
		}
		return &counter{}
	})
	c.count.Add(1)
	c.totalNs.Add(int64(latency))
	if failed {
		c.errors.Add(1)
	}
}

func (r *Registry) Snapshot() map[string]Summary {
	result := make(map[string]Summary, r.counters.Count())
	for item := range r.counters.IterBuffered() {
		n := item.Val.count.Load()
		s := Summary{Count: n, Errors: item.Val.errors.Load()}
		if n > 0 {
			s.AvgMs = float64(item.Val.totalNs.Load()) / float64(n) / float64(time.Millisecond)
		}
		result[item.Key] = s
	}
	return result
}

func (r *Registry) Uptime() time.Duration {
	return time.Since(r.started)
}
