// Package monitor samples the resident memory of the process tree and keeps
// the peak. It is a diagnostic aid only.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Sampler returns the current memory use in bytes.
type Sampler func(ctx context.Context) (uint64, error)

// Monitor polls a Sampler and records the highest value seen.
type Monitor struct {
	interval time.Duration
	sample   Sampler
	peak     atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a monitor for pid. A nil sampler sums the RSS of pid and all
// of its descendants.
func New(pid int32, interval time.Duration, sample Sampler) *Monitor {
	if sample == nil {
		sample = TreeRSS(pid)
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Monitor{interval: interval, sample: sample}
}

// TreeRSS samples the resident set size of pid plus its children, recursively.
func TreeRSS(pid int32) Sampler {
	return func(ctx context.Context) (uint64, error) {
		p, err := process.NewProcessWithContext(ctx, pid)
		if err != nil {
			return 0, err
		}
		return treeRSS(ctx, p), nil
	}
}

func treeRSS(ctx context.Context, p *process.Process) uint64 {
	var total uint64
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil {
		total = mem.RSS
	}
	children, err := p.ChildrenWithContext(ctx)
	if err != nil {
		return total
	}
	for _, c := range children {
		total += treeRSS(ctx, c)
	}
	return total
}

// Start begins polling in the background until Stop or ctx is done.
// Starting a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		m.poll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.poll(ctx)
			}
		}
	}(m.done)
}

func (m *Monitor) poll(ctx context.Context) {
	v, err := m.sample(ctx)
	if err != nil {
		// a failed sample counts as zero
		zap.L().Debug("memory sample failed", zap.Error(err))
		v = 0
	}
	m.observe(v)
}

func (m *Monitor) observe(v uint64) {
	for {
		cur := m.peak.Load()
		if v <= cur || m.peak.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Stop halts polling and waits for the poller to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Reset clears the recorded peak.
func (m *Monitor) Reset() {
	m.peak.Store(0)
}

// Peak returns the highest sample in bytes.
func (m *Monitor) Peak() uint64 {
	return m.peak.Load()
}

// PeakGiB returns the peak in GiB.
func (m *Monitor) PeakGiB() float64 {
	return float64(m.Peak()) / (1 << 30)
}
