package work

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

func TestNewPool(t *testing.T) {
	tests := []struct {
		name        string
		size        int
		expectError bool
	}{
		{"valid pool", 5, false},
		{"single slot", 1, false},
		{"zero slots", 0, true},
		{"negative slots", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := NewPool(tt.size)
			if tt.expectError {
				if err != ErrInvalidWorkerCount {
					t.Errorf("Expected ErrInvalidWorkerCount, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if pool.Size() != tt.size {
				t.Errorf("Expected size %d, got %d", tt.size, pool.Size())
			}
			if pool.Available() != tt.size {
				t.Errorf("Expected %d free slots, got %d", tt.size, pool.Available())
			}
		})
	}
}

func TestPoolExcessAcquireFails(t *testing.T) {
	pool, err := NewPool(3)
	if err != nil {
		t.Fatal(err)
	}

	var (
		wg      sync.WaitGroup
		granted atomic.Int64
		denied  atomic.Int64
		mu      sync.Mutex
		held    []*Slot
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			slot, ok := pool.TryAcquire(fmt.Sprintf("job-%d", i))
			if !ok {
				denied.Add(1)
				return
			}
			granted.Add(1)
			mu.Lock()
			held = append(held, slot)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if granted.Load() != 3 {
		t.Errorf("Expected 3 granted slots, got %d", granted.Load())
	}
	if denied.Load() != 17 {
		t.Errorf("Expected 17 denials, got %d", denied.Load())
	}

	seen := map[int]bool{}
	for _, s := range held {
		if seen[s.Index()] {
			t.Errorf("Slot %d handed out twice", s.Index())
		}
		seen[s.Index()] = true
	}

	pool.Release(held[0])
	if _, ok := pool.TryAcquire("next"); !ok {
		t.Error("Released slot was not immediately acquirable")
	}
}

func TestPoolNoLeakUnderChurn(t *testing.T) {
	const size = 4
	pool, err := NewPool(size)
	if err != nil {
		t.Fatal(err)
	}

	cycles := size * 100
	var (
		wg   sync.WaitGroup
		busy atomic.Int64
		peak atomic.Int64
	)

	for i := 0; i < cycles; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for {
				slot, ok := pool.TryAcquire(fmt.Sprintf("job-%d", i))
				if !ok {
					runtime.Gosched()
					continue
				}
				n := busy.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				busy.Add(-1)
				pool.Release(slot)
				return
			}
		}(i)
	}
	wg.Wait()

	if peak.Load() > size {
		t.Errorf("More than %d slots busy at once: %d", size, peak.Load())
	}
	if pool.Available() != size {
		t.Errorf("Leaked slots: %d free of %d", pool.Available(), size)
	}

	stats := pool.Stats()
	if stats.Acquired != int64(cycles) || stats.Released != int64(cycles) {
		t.Errorf("Expected %d acquire/release, got %d/%d", cycles, stats.Acquired, stats.Released)
	}
	if stats.Busy != 0 {
		t.Errorf("Expected no busy slots, got %d", stats.Busy)
	}
}

func TestPoolDoubleReleasePanics(t *testing.T) {
	pool, _ := NewPool(1)
	slot, ok := pool.TryAcquire("job")
	if !ok {
		t.Fatal("Expected slot")
	}
	pool.Release(slot)

	defer func() {
		if recover() == nil {
			t.Error("Expected panic on double release")
		}
	}()
	pool.Release(slot)
}

func TestPoolForeignSlotPanics(t *testing.T) {
	a, _ := NewPool(1)
	b, _ := NewPool(1)
	slot, _ := a.TryAcquire("job")

	defer func() {
		if recover() == nil {
			t.Error("Expected panic releasing a slot from another pool")
		}
	}()
	b.Release(slot)
}

func TestPoolSlotsSnapshot(t *testing.T) {
	pool, _ := NewPool(2)
	slot, _ := pool.TryAcquire("job-a")

	infos := pool.Slots()
	if len(infos) != 2 {
		t.Fatalf("Expected 2 slots, got %d", len(infos))
	}
	if !infos[slot.Index()].Busy || infos[slot.Index()].CurrentJobID != "job-a" {
		t.Errorf("Unexpected slot info %+v", infos[slot.Index()])
	}
	if infos[1-slot.Index()].Busy {
		t.Error("Free slot reported busy")
	}
}

func TestPoolStopRejects(t *testing.T) {
	pool, _ := NewPool(2)
	held, _ := pool.TryAcquire("job-a")
	pool.Stop()

	if _, ok := pool.TryAcquire("job-b"); ok {
		t.Error("Stopped pool handed out a slot")
	}
	pool.Release(held)
	if pool.Available() != 2 {
		t.Errorf("Expected 2 free slots after release, got %d", pool.Available())
	}
}
