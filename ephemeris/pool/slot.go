package pool

import (
	"sync/atomic"
	"time"

	"github.com/siderealabs/ephemerisd/faults"
)

// SlotState tracks one worker slot through its lifecycle.
type SlotState int32

// Slot lifecycle states.
const (
	SlotInitializing SlotState = iota
	SlotIdle
	SlotBusy
	SlotDraining
	SlotDead
)

func (s SlotState) String() string {
	switch s {
	case SlotInitializing:
		return "initializing"
	case SlotIdle:
		return "idle"
	case SlotBusy:
		return "busy"
	case SlotDraining:
		return "draining"
	case SlotDead:
		return "dead"
	}
	return "unknown"
}

// slot is one worker seat in the pool. The slot's goroutine owns the
// transport; other goroutines only observe state.
type slot struct {
	id    int
	state atomic.Int32
	tr    transport
}

func (s *slot) setState(st SlotState) { s.state.Store(int32(st)) }
func (s *slot) getState() SlotState   { return SlotState(s.state.Load()) }

// run is the slot goroutine: spawn a worker, serve jobs until the worker
// fails, then replace it if the replacement budget allows.
func (p *Pool) run(s *slot) {
	defer p.wg.Done()
	for {
		s.setState(SlotInitializing)
		tr, err := p.cfg.Spawn()
		if err != nil {
			log.WithError(err).WithFields(logFields(p.cfg.BundleID, s.id)).Error("Could not spawn worker")
			s.setState(SlotDead)
			if !p.awaitReplacementBudget() {
				return
			}
			continue
		}
		s.tr = tr
		s.setState(SlotIdle)
		log.WithFields(logFields(p.cfg.BundleID, s.id)).Info("Worker slot ready")

		if !p.serve(s) {
			// Shutdown: finish draining and exit.
			s.setState(SlotDraining)
			tr.kill()
			s.setState(SlotDead)
			return
		}
		// Worker failure: transport already killed by serve.
		s.setState(SlotDead)
		workerReplacements.WithLabelValues(p.cfg.BundleID).Inc()
		p.replacements.Add(1)
		if !p.awaitReplacementBudget() {
			log.WithFields(logFields(p.cfg.BundleID, s.id)).Error("Replacement budget exhausted, slot stays dead")
			return
		}
	}
}

// serve pulls jobs off the queue until the worker dies or the pool shuts
// down. It returns true when the worker failed and should be replaced,
// false on shutdown.
func (p *Pool) serve(s *slot) bool {
	for {
		select {
		case <-p.quit:
			return false
		case t := <-p.queue:
			if t.canceled.Load() {
				continue
			}
			s.setState(SlotBusy)
			start := time.Now()
			resp, ok := p.roundTrip(s, t)
			if !ok {
				s.tr.kill()
				p.requeueOrFail(t)
				return true
			}
			jobLatency.WithLabelValues(p.cfg.BundleID).Observe(time.Since(start).Seconds())
			jobsCompleted.WithLabelValues(p.cfg.BundleID).Inc()
			p.completed.Add(1)
			p.totalLatency.Add(int64(time.Since(start) / time.Millisecond))
			t.done <- resp
			s.setState(SlotIdle)
		}
	}
}

// roundTrip runs one job against the slot's worker. A false return means
// the worker can no longer be trusted: send failure, closed response
// channel, response identifier mismatch, or timeout.
func (p *Pool) roundTrip(s *slot, t *task) (jobResponse, bool) {
	if err := s.tr.send(t.job); err != nil {
		log.WithError(err).WithFields(logFields(p.cfg.BundleID, s.id)).Error("Could not send job to worker")
		return jobResponse{}, false
	}
	timer := time.NewTimer(p.cfg.JobTimeout)
	defer timer.Stop()
	select {
	case resp, open := <-s.tr.responses():
		if !open || resp.ID != t.job.ID {
			log.WithFields(logFields(p.cfg.BundleID, s.id)).Error("Worker response stream broken")
			return jobResponse{}, false
		}
		return resp, true
	case <-timer.C:
		log.WithFields(logFields(p.cfg.BundleID, s.id)).Errorf("Job exceeded %s, killing worker", p.cfg.JobTimeout)
		return jobResponse{}, false
	}
}

// requeueOrFail gives a job stranded by a dead worker one more chance on
// another slot. A second failure surfaces as a COMPUTE fault.
func (p *Pool) requeueOrFail(t *task) {
	if !t.retried {
		t.retried = true
		select {
		case p.queue <- t:
			return
		default:
		}
	}
	t.done <- jobResponse{
		ID:    t.job.ID,
		Fault: faults.New(faults.CodeCompute, "the worker handling this request terminated unexpectedly"),
	}
}
