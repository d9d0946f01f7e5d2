// Package queue serializes user actions: at most one action is in flight
// at a time and each finishes, refresh included, before the next starts.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/fairyhunter13/vending-kiosk/internal/config"
	"github.com/fairyhunter13/vending-kiosk/internal/model"
	"github.com/fairyhunter13/vending-kiosk/internal/obs"
	"github.com/fairyhunter13/vending-kiosk/internal/orchestrator"
	"github.com/fairyhunter13/vending-kiosk/internal/store"
)

// Runner executes one action against a snapshot.
type Runner interface {
	Run(ctx context.Context, a orchestrator.Action, prev model.Snapshot) (model.Snapshot, orchestrator.Record)
}

// Manager owns the single worker draining the queue into the store.
type Manager struct {
	cfg     config.Config
	q       *Queue
	st      *store.Store
	run     Runner
	metrics *obs.Metrics
	seq     Sequencer
	ctx     context.Context
	cancel  context.CancelFunc

	admit sync.Mutex
	mu    sync.RWMutex
	last  orchestrator.Record
	wg    sync.WaitGroup
}

// NewManager constructs a Manager.
func NewManager(cfg config.Config, q *Queue, st *store.Store, run Runner, m *obs.Metrics) *Manager {
	return &Manager{cfg: cfg, q: q, st: st, run: run, metrics: m}
}

// Start begins processing in the background.
func (m *Manager) Start(parent context.Context) {
	m.ctx, m.cancel = context.WithCancel(parent)
	m.q.Start(m.ctx)
	m.wg.Add(1)
	go m.worker(m.ctx)
}

// Stop cancels the worker and waits for it to return.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Manager) worker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-m.q.Out():
			m.process(ctx, job)
		}
	}
}

func (m *Manager) process(ctx context.Context, job *Job) {
	prev := m.st.Current()
	next, rec := m.run.Run(ctx, job.Action, prev)
	rec.Seq = job.Seq
	if rec.Refreshed {
		m.st.Replace(next, job.Seq)
	}
	m.mu.Lock()
	m.last = rec
	m.mu.Unlock()
	m.q.MarkProcessed()
	m.metrics.SetBacklog(m.q.Pending())
	job.done <- rec
}

// Enqueue admits a under the configured policy and returns its job
// without waiting for it to run.
func (m *Manager) Enqueue(a orchestrator.Action) (*Job, error) {
	m.admit.Lock()
	defer m.admit.Unlock()
	if m.cfg.ActionPolicy == config.PolicyReject && m.q.Pending() > 0 {
		obs.Logger.Info("action_rejected", "kind", a.Kind, "reason", "busy")
		return nil, ErrBusy
	}
	job := newJob(m.seq.Next(), a)
	if err := m.q.Enqueue(job); err != nil {
		obs.Logger.Warn("action_rejected", "kind", a.Kind, "error", err)
		return nil, err
	}
	m.metrics.SetBacklog(m.q.Pending())
	return job, nil
}

// Submit enqueues a and waits for its record. If ctx ends first the
// action still runs to completion in the background.
func (m *Manager) Submit(ctx context.Context, a orchestrator.Action) (orchestrator.Record, error) {
	job, err := m.Enqueue(a)
	if err != nil {
		return orchestrator.Record{}, err
	}
	select {
	case rec := <-job.done:
		return rec, nil
	case <-ctx.Done():
		return orchestrator.Record{}, ctx.Err()
	}
}

// Busy reports whether an action is queued or in flight.
func (m *Manager) Busy() bool { return m.q.Pending() > 0 }

// Last returns the most recently finished record.
func (m *Manager) Last() orchestrator.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// BacklogSize returns jobs waiting to run.
func (m *Manager) BacklogSize() int { return m.q.BacklogSize() }

// IsShuttingDown reports whether new actions are refused.
func (m *Manager) IsShuttingDown() bool { return m.q.IsShuttingDown() }

// CloseIntake refuses future actions.
func (m *Manager) CloseIntake() { m.q.CloseIntake() }

// QueueMetrics exposes the underlying queue counters.
func (m *Manager) QueueMetrics() (enq, proc uint64, backlog int) { return m.q.Metrics() }

// DrainUntil blocks until every admitted action has finished or ctx is done.
func (m *Manager) DrainUntil(ctx context.Context) bool {
	for {
		if m.q.Pending() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}
