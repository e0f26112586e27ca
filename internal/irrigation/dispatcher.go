package irrigation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// CycleInfo describes an in-flight cycle.
type CycleInfo struct {
	CycleID   string    `json:"cycle_id"`
	WaterID   int       `json:"water_id"`
	Reading   float64   `json:"reading"`
	State     State     `json:"state"`
	Submitted time.Time `json:"submitted_at"`
}

type inflight struct {
	cancel context.CancelFunc

	mu   sync.Mutex
	info CycleInfo
}

func (f *inflight) setState(st State) {
	f.mu.Lock()
	f.info.State = st
	f.mu.Unlock()
}

func (f *inflight) snapshot() CycleInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info
}

// Dispatcher runs watering cycles in the background on a bounded number of
// workers, at most one per Water station.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Dispatcher struct {
	seq    *Sequencer
	sem    *semaphore.Weighted
	logger Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	inflight map[int]*inflight
	reports  chan<- Report
}

// NewDispatcher creates a dispatcher running at most workers cycles at once.
func NewDispatcher(seq *Sequencer, workers int, logger Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = noopLogger{}
	}
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		seq:      seq,
		sem:      semaphore.NewWeighted(int64(workers)),
		logger:   logger,
		base:     base,
		cancel:   cancel,
		inflight: make(map[int]*inflight),
	}
}

// NotifyReports sends every finished Report to ch. Sends do not block;
// reports are dropped when ch is full.
func (d *Dispatcher) NotifyReports(ch chan<- Report) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reports = ch
}

// Submit queues a watering cycle for a Water station.
//
// Returns:
//   - bool: false when the station already has a queued or running cycle,
//     or the dispatcher has been shut down
func (d *Dispatcher) Submit(waterID int, reading float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	if _, busy := d.inflight[waterID]; busy {
		return false
	}

	ctx, cancel := context.WithCancel(d.base)
	f := &inflight{
		cancel: cancel,
		info: CycleInfo{
			CycleID:   uuid.NewString(),
			WaterID:   waterID,
			Reading:   reading,
			State:     StateQueued,
			Submitted: d.seq.clock.Now(),
		},
	}
	d.inflight[waterID] = f

	d.wg.Add(1)
	go d.work(ctx, f)
	return true
}

func (d *Dispatcher) work(ctx context.Context, f *inflight) {
	defer d.wg.Done()
	defer f.cancel()
	info := f.snapshot()

	defer func() {
		d.mu.Lock()
		delete(d.inflight, info.WaterID)
		d.mu.Unlock()
	}()

	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.logger.Info("queued watering cycle dropped",
			"cycle_id", info.CycleID,
			"water_id", info.WaterID,
			"reason", err,
		)
		f.setState(StateFailed)
		report := Report{
			CycleID:   info.CycleID,
			WaterID:   info.WaterID,
			Reading:   info.Reading,
			Outcome:   OutcomeFailed,
			Reason:    fmt.Errorf("%w: while queued: %w", ErrCancelled, err),
			States:    []State{StateQueued, StateFailed},
			StartedAt: info.Submitted,
			EndedAt:   d.seq.clock.Now(),
		}
		d.seq.finish(ctx, report)
		d.forward(report)
		return
	}
	defer d.sem.Release(1)

	d.forward(d.seq.run(ctx, info.CycleID, info.WaterID, info.Reading, f.setState))
}

func (d *Dispatcher) forward(report Report) {
	d.mu.Lock()
	ch := d.reports
	d.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- report:
	default:
		d.logger.Warn("cycle report dropped, receiver is behind",
			"cycle_id", report.CycleID,
			"water_id", report.WaterID,
			"outcome", report.Outcome,
		)
	}
}

// Stop cancels the cycle of one Water station. The pump, if running, is
// switched off before the cycle ends.
//
// Returns:
//   - bool: false when the station has no cycle in flight
func (d *Dispatcher) Stop(waterID int) bool {
	d.mu.Lock()
	f, ok := d.inflight[waterID]
	d.mu.Unlock()
	if !ok {
		return false
	}
	f.cancel()
	return true
}

// Busy reports whether a Water station has a cycle queued or running.
func (d *Dispatcher) Busy(waterID int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[waterID]
	return ok
}

// Active lists the in-flight cycles ordered by Water id.
func (d *Dispatcher) Active() []CycleInfo {
	d.mu.Lock()
	cycles := make([]CycleInfo, 0, len(d.inflight))
	for _, f := range d.inflight {
		cycles = append(cycles, f.snapshot())
	}
	d.mu.Unlock()

	sort.Slice(cycles, func(i, j int) bool { return cycles[i].WaterID < cycles[j].WaterID })
	return cycles
}

// Shutdown cancels every cycle, rejects new submissions and waits for the
// workers to finish their pump-off cleanup.
//
// Returns:
//   - error: ctx.Err() wrapped when ctx ends before the workers are done
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for watering cycles: %w", ErrDispatcherClosed, ctx.Err())
	}
}
