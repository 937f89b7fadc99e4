package pool

import (
	"context"
	goruntime "runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/siderealabs/ephemerisd/ephemeris/compute"
	"github.com/siderealabs/ephemerisd/faults"
)

var log = logrus.WithField("prefix", "pool")

const (
	defaultJobTimeout     = 30 * time.Second
	defaultQueueSize      = 64
	defaultReplacementCap = 6
	replacementWindow     = time.Minute
)

// Config wires a pool to one kernel bundle.
type Config struct {
	ManifestPath          string
	BundleID              string
	Workers               int
	QueueSize             int
	JobTimeout            time.Duration
	MaxReplacementsPerMin int
	// Spawn overrides worker creation. Defaults to forking the running
	// binary's worker subcommand against ManifestPath.
	Spawn SpawnFunc
}

// task is one queued job plus its rendezvous with the submitter.
type task struct {
	job      jobRequest
	done     chan jobResponse
	canceled atomic.Bool
	retried  bool
}

// Pool schedules compute jobs over a fixed set of worker slots with a
// bounded FIFO queue. One pool exists per kernel bundle.
type Pool struct {
	cfg   Config
	queue chan *task
	slots []*slot
	quit  chan struct{}
	wg    sync.WaitGroup

	completed    atomic.Uint64
	totalLatency atomic.Int64 // milliseconds
	replacements atomic.Uint64

	budgetMu    sync.Mutex
	budgetTimes []time.Time
}

// New builds a pool. Call Start to spawn workers.
func New(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2 * goruntime.GOMAXPROCS(0)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	if cfg.MaxReplacementsPerMin <= 0 {
		cfg.MaxReplacementsPerMin = defaultReplacementCap
	}
	if cfg.Spawn == nil {
		manifest := cfg.ManifestPath
		cfg.Spawn = func() (transport, error) { return spawnProcess(manifest) }
	}
	return &Pool{
		cfg:   cfg,
		queue: make(chan *task, cfg.QueueSize),
		quit:  make(chan struct{}),
	}
}

// Start spawns the worker slots.
func (p *Pool) Start() {
	log.WithFields(logrus.Fields{
		"bundle":  p.cfg.BundleID,
		"workers": p.cfg.Workers,
		"queue":   p.cfg.QueueSize,
	}).Info("Starting compute pool")
	for i := 0; i < p.cfg.Workers; i++ {
		s := &slot{id: i}
		s.setState(SlotInitializing)
		p.slots = append(p.slots, s)
		p.wg.Add(1)
		go p.run(s)
	}
}

// Stop drains the pool: slots finish their in-flight job, workers are
// killed, and queued jobs are failed so submitters unblock.
func (p *Pool) Stop() error {
	close(p.quit)
	p.wg.Wait()
	for {
		select {
		case t := <-p.queue:
			t.done <- jobResponse{
				ID:    t.job.ID,
				Fault: faults.New(faults.CodeOverloaded, "the service is shutting down"),
			}
		default:
			return nil
		}
	}
}

// Status reports unhealthy when every slot is dead.
func (p *Pool) Status() error {
	for _, s := range p.slots {
		if s.getState() != SlotDead {
			return nil
		}
	}
	return errors.Errorf("all %d worker slots for bundle %s are dead", len(p.slots), p.cfg.BundleID)
}

// Submit enqueues one compute request and blocks until a worker answers
// or ctx is done. A full queue fails fast with SERVICE.OVERLOADED.
func (p *Pool) Submit(ctx context.Context, req compute.Request) (*compute.Result, error) {
	t := &task{
		job:  jobRequest{ID: uuid.New().String(), Req: req},
		done: make(chan jobResponse, 1),
	}
	select {
	case p.queue <- t:
	default:
		queueRejections.WithLabelValues(p.cfg.BundleID).Inc()
		f := faults.Newf(faults.CodeOverloaded, "the compute queue for %s is full", p.cfg.BundleID)
		f.RetryAfter = 2
		return nil, f
	}
	queueDepth.WithLabelValues(p.cfg.BundleID).Set(float64(len(p.queue)))

	select {
	case resp := <-t.done:
		if resp.Fault != nil {
			return nil, resp.Fault
		}
		return resp.Result, nil
	case <-ctx.Done():
		// The slot skips canceled tasks; an already-running job finishes
		// in the worker and its response is dropped.
		t.canceled.Store(true)
		return nil, ctx.Err()
	}
}

// Health is a point-in-time snapshot for the health endpoint.
type Health struct {
	Bundle        string         `json:"bundle"`
	Slots         map[string]int `json:"slots"`
	QueueDepth    int            `json:"queue_depth"`
	JobsCompleted uint64         `json:"jobs_completed"`
	AvgLatencyMS  float64        `json:"avg_latency_ms"`
	Replacements  uint64         `json:"worker_replacements"`
}

// Health snapshots slot states and throughput counters.
func (p *Pool) Health() Health {
	h := Health{
		Bundle:        p.cfg.BundleID,
		Slots:         map[string]int{},
		QueueDepth:    len(p.queue),
		JobsCompleted: p.completed.Load(),
		Replacements:  p.replacements.Load(),
	}
	for _, s := range p.slots {
		h.Slots[s.getState().String()]++
	}
	if h.JobsCompleted > 0 {
		h.AvgLatencyMS = float64(p.totalLatency.Load()) / float64(h.JobsCompleted)
	}
	return h
}

// awaitReplacementBudget enforces the replacement rate cap. When the cap
// is hit it waits for the oldest replacement to age out of the window;
// shutdown aborts the wait.
func (p *Pool) awaitReplacementBudget() bool {
	for {
		p.budgetMu.Lock()
		now := time.Now()
		kept := p.budgetTimes[:0]
		for _, ts := range p.budgetTimes {
			if now.Sub(ts) < replacementWindow {
				kept = append(kept, ts)
			}
		}
		p.budgetTimes = kept
		if len(p.budgetTimes) < p.cfg.MaxReplacementsPerMin {
			p.budgetTimes = append(p.budgetTimes, now)
			p.budgetMu.Unlock()
			return true
		}
		wait := replacementWindow - now.Sub(p.budgetTimes[0])
		p.budgetMu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-p.quit:
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

func logFields(bundle string, slotID int) logrus.Fields {
	return logrus.Fields{"bundle": bundle, "slot": slotID}
}
