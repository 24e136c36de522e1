package stats

import (
	"sync"
	"testing"
	"time"
)

func TestRegistry_Record(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Record("POST /detect_faces", 10*time.Millisecond, i%5 == 0)
		}(i)
	}
	wg.Wait()
	r.Record("GET /health", time.Millisecond, false)

	got := r.Snapshot()
	detect := got["POST /detect_faces"]
	if detect.Count != 50 || detect.Errors != 10 {
		t.Errorf("detect summary = %+v", detect)
	}
	if detect.AvgMs < 9.99 || detect.AvgMs > 10.01 {
		t.Errorf("detect avg_ms = %v, want 10", detect.AvgMs)
	}
	if got["GET /health"].Count != 1 {
		t.Errorf("health summary = %+v", got["GET /health"])
	}
}

func TestRegistry_SnapshotEmpty(t *testing.T) {
	r := New()
	if got := r.Snapshot(); len(got) != 0 {
		t.Errorf("Snapshot() = %v, want empty", got)
	}
	if r.Uptime() < 0 {
		t.Errorf("Uptime() negative")
	}
}
