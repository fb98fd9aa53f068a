package preload

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/cairnmed/lucent/internal/model"
	"github.com/cairnmed/lucent/internal/pixel"
)

// State is a preload task's position in its lifecycle.
type State uint8

const (
	StateIdle State = iota
	StateScheduled
	StateRunning
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Progress reports one instance that became resident.
type Progress struct {
	Series    model.NodeID
	SeriesKey string
	SOPUID    string
}

// Scheduler runs at most one background prefetch task process-wide. It is
// constructed explicitly at startup and handed to call sites; there is no
// package-level task state. The worker reads only the instance snapshot
// given at Start time and writes only into the pixel cache — it never
// touches the tree or the secondary index.
type Scheduler struct {
	dec    pixel.Decoder
	cache  *pixel.Cache
	gauge  pixel.MemoryGauge
	notify func(Progress)

	// budgetDivisor splits the total memory budget: a series whose
	// estimated decoded size fits within total/budgetDivisor is
	// prefetched whole.
	budgetDivisor int64

	mu      sync.Mutex
	current *task
	// shrink scales the free-memory estimate after an out-of-memory
	// failure (soft back-pressure, recovers after a clean completion).
	shrink  float64
	loading map[string]struct{}
}

type task struct {
	snap   Snapshot
	state  State
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Snapshot is the bounded view of a series a task works over. The
// instance list is captured at Start time; later tree mutation does not
// affect a running task.
type Snapshot struct {
	Series    model.NodeID
	SeriesKey string
	Instances []pixel.InstanceInfo
	Cursor    int
}

// New creates a scheduler. notify receives a Progress per resident
// instance; it is invoked from the worker goroutine and must be
// thread-safe (typically it posts into the model queue).
func New(dec pixel.Decoder, cache *pixel.Cache, gauge pixel.MemoryGauge, notify func(Progress)) *Scheduler {
	return &Scheduler{
		dec:           dec,
		cache:         cache,
		gauge:         gauge,
		notify:        notify,
		budgetDivisor: 3,
		shrink:        1,
		loading:       make(map[string]struct{}),
	}
}

// SetBudgetDivisor overrides the full-prefetch budget fraction (default 3,
// i.e. total/3). Values below 1 are ignored.
func (s *Scheduler) SetBudgetDivisor(d int64) {
	if d >= 1 {
		s.mu.Lock()
		s.budgetDivisor = d
		s.mu.Unlock()
	}
}

// Start schedules prefetching around the cursor of the given snapshot.
// A task already running for the same series makes this a no-op. A task
// for a different series is cancelled cooperatively; the new task waits
// for its unwind before reaching Running, so no notification from the
// cancelled task is ever observed afterwards.
func (s *Scheduler) Start(snap Snapshot) {
	if len(snap.Instances) == 0 {
		return
	}
	s.mu.Lock()
	prev := s.current
	if prev != nil && prev.state != StateCompleted && prev.state != StateCancelled {
		if prev.snap.SeriesKey == snap.SeriesKey {
			s.mu.Unlock()
			return
		}
		prev.state = StateCancelled
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		snap:   snap,
		state:  StateScheduled,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.current = t
	s.mu.Unlock()

	go s.run(t, prev)
}

// Stop cancels the active task, if any, and waits for its unwind.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	t := s.current
	if t != nil && t.state != StateCompleted && t.state != StateCancelled {
		t.state = StateCancelled
		t.cancel()
	}
	s.mu.Unlock()
	if t != nil {
		<-t.done
	}
}

// State returns the current task's state, or Idle when none was ever
// scheduled.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return StateIdle
	}
	return s.current.state
}

// Wait blocks until the current task, if any, has unwound.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	t := s.current
	s.mu.Unlock()
	if t != nil {
		<-t.done
	}
}

func (s *Scheduler) run(t *task, prev *task) {
	defer t.cancel()
	defer close(t.done)

	// Supersession: the previous task must finish unwinding before this
	// one starts loading.
	if prev != nil {
		<-prev.done
	}

	s.mu.Lock()
	if t.state == StateCancelled {
		s.mu.Unlock()
		return
	}
	t.state = StateRunning
	s.mu.Unlock()

	oom := false
	for _, i := range s.plan(t.snap) {
		if t.ctx.Err() != nil {
			break
		}
		if err := s.loadOne(t, t.snap.Instances[i]); err != nil {
			if errors.Is(err, pixel.ErrOutOfMemory) {
				oom = true
			}
			break
		}
	}

	s.mu.Lock()
	if t.state == StateRunning {
		t.state = StateCompleted
		if !oom && s.shrink < 1 {
			// Recover the window estimate after a clean pass.
			s.shrink *= 2
			if s.shrink > 1 {
				s.shrink = 1
			}
		}
	}
	s.mu.Unlock()
}

// loadOne makes a single instance resident. Instances already resident or
// already being loaded are skipped. Any decode error aborts the task;
// out-of-memory additionally shrinks future window estimates.
func (s *Scheduler) loadOne(t *task, info pixel.InstanceInfo) error {
	uid := info.SOPInstanceUID
	if s.cache.Contains(uid) {
		return nil
	}
	if !s.markLoading(uid) {
		return nil
	}
	defer s.unmarkLoading(uid)

	buf, err := s.dec.Decode(t.ctx, info)
	if err != nil {
		if t.ctx.Err() != nil {
			return err
		}
		if errors.Is(err, pixel.ErrOutOfMemory) {
			s.noteOOM()
			log.Printf("preload %s: out of memory on %s, aborting task", t.snap.SeriesKey, uid)
			return err
		}
		log.Printf("preload %s: decode %s: %v", t.snap.SeriesKey, uid, err)
		return err
	}

	s.cache.Add(uid, buf)
	if t.ctx.Err() == nil && s.notify != nil {
		s.notify(Progress{Series: t.snap.Series, SeriesKey: t.snap.SeriesKey, SOPUID: uid})
	}
	return nil
}

func (s *Scheduler) markLoading(uid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.loading[uid]; busy {
		return false
	}
	s.loading[uid] = struct{}{}
	return true
}

func (s *Scheduler) unmarkLoading(uid string) {
	s.mu.Lock()
	delete(s.loading, uid)
	s.mu.Unlock()
}

func (s *Scheduler) noteOOM() {
	s.mu.Lock()
	s.shrink /= 2
	if s.shrink < 1.0/16 {
		s.shrink = 1.0 / 16
	}
	s.mu.Unlock()
}
