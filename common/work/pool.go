package work

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidWorkerCount = errors.New("invalid worker count")
	ErrPoolStopped        = errors.New("worker pool has been stopped")
	ErrTaskTimeout        = errors.New("task execution timeout")
)

// Slot is the ownership handle for one unit of pool capacity.
// It is returned by TryAcquire and must be passed to Release exactly once.
type Slot struct {
	index      int
	jobID      string
	acquiredAt time.Time
	released   atomic.Bool
}

func (s *Slot) Index() int {
	return s.index
}

func (s *Slot) JobID() string {
	return s.jobID
}

func (s *Slot) AcquiredAt() time.Time {
	return s.acquiredAt
}

// SlotInfo is a point-in-time view of one slot
type SlotInfo struct {
	Index        int    `json:"index"`
	Busy         bool   `json:"busy"`
	CurrentJobID string `json:"current_job_id,omitempty"`
}

// PoolStats holds statistics about the pool
type PoolStats struct {
	Size     int   `json:"size"`
	Busy     int   `json:"busy"`
	Acquired int64 `json:"acquired"`
	Released int64 `json:"released"`
	Rejected int64 `json:"rejected"`
}

// Pool is a fixed set of execution slots. It never queues: when every slot
// is busy TryAcquire reports false and the caller decides what to do.
type Pool struct {
	mu      sync.Mutex
	slots   []*Slot // nil entry means free
	free    []int
	stopped bool

	// Metrics
	acquired atomic.Int64
	released atomic.Int64
	rejected atomic.Int64
}

// NewPool creates a pool with size slots
func NewPool(size int) (*Pool, error) {
	if size <= 0 {
		return nil, ErrInvalidWorkerCount
	}

	free := make([]int, size)
	for i := range free {
		// pop from the end so slot 0 is handed out first
		free[i] = size - 1 - i
	}

	return &Pool{
		slots: make([]*Slot, size),
		free:  free,
	}, nil
}

// Size returns the number of slots
func (p *Pool) Size() int {
	return len(p.slots)
}

// TryAcquire claims a free slot for jobID without blocking.
func (p *Pool) TryAcquire(jobID string) (*Slot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || len(p.free) == 0 {
		p.rejected.Add(1)
		return nil, false
	}

	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]

	slot := &Slot{
		index:      idx,
		jobID:      jobID,
		acquiredAt: time.Now(),
	}
	p.slots[idx] = slot
	p.acquired.Add(1)

	log.Debug().
		Int("slot", idx).
		Str("jobID", jobID).
		Msg("Slot acquired")

	return slot, true
}

// Release frees the slot. Releasing the same handle twice, or a handle that
// does not belong to this pool, is a programming error and panics.
func (p *Pool) Release(slot *Slot) {
	if slot == nil {
		panic("work: release of nil slot")
	}
	if !slot.released.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("work: slot %d released twice (job %s)", slot.index, slot.jobID))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if slot.index < 0 || slot.index >= len(p.slots) || p.slots[slot.index] != slot {
		panic(fmt.Sprintf("work: slot %d does not belong to this pool", slot.index))
	}

	p.slots[slot.index] = nil
	p.free = append(p.free, slot.index)
	p.released.Add(1)

	log.Debug().
		Int("slot", slot.index).
		Str("jobID", slot.jobID).
		Dur("held", time.Since(slot.acquiredAt)).
		Msg("Slot released")
}

// Available returns the number of free slots
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Stop makes every further TryAcquire fail. Slots already held stay valid
// and must still be released.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
}

// Slots returns a snapshot of every slot
func (p *Pool) Slots() []SlotInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	infos := make([]SlotInfo, len(p.slots))
	for i, s := range p.slots {
		infos[i] = SlotInfo{Index: i}
		if s != nil {
			infos[i].Busy = true
			infos[i].CurrentJobID = s.jobID
		}
	}
	return infos
}

// Stats returns pool statistics
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	busy := len(p.slots) - len(p.free)
	p.mu.Unlock()

	return PoolStats{
		Size:     len(p.slots),
		Busy:     busy,
		Acquired: p.acquired.Load(),
		Released: p.released.Load(),
		Rejected: p.rejected.Load(),
	}
}
