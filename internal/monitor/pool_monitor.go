package monitor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"modelhub-backend/pkg/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	DefaultInterval = 30 * time.Second

	ActionScaleUp   = "scale_up"
	ActionScaleDown = "scale_down"

	minBacklogForScaleUp = 10
)

// Inspector is the part of *asynq.Inspector the monitor reads.
type Inspector interface {
	Servers() ([]*asynq.ServerInfo, error)
	Queues() ([]string, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

type WorkerStats struct {
	ID          string         `json:"id"`
	Host        string         `json:"host"`
	PID         int            `json:"pid"`
	Concurrency int            `json:"concurrency"`
	ActiveTasks int            `json:"active_tasks"`
	Load        float64        `json:"load"`
	Queues      map[string]int `json:"queues"`
	Status      string         `json:"status"`
	Uptime      float64        `json:"uptime_seconds"`
}

// Free reports whether the server can take another task.
func (w WorkerStats) Free() bool { return w.ActiveTasks < w.Concurrency }

type QueueStats struct {
	Pending   int     `json:"pending"`
	Active    int     `json:"active"`
	Scheduled int     `json:"scheduled"`
	Retry     int     `json:"retry"`
	Archived  int     `json:"archived"`
	Processed int     `json:"processed_today"`
	Failed    int     `json:"failed_today"`
	Latency   float64 `json:"latency_seconds"`
	Paused    bool    `json:"paused"`
}

// Advice is a scaling suggestion for one queue. The monitor never scales
// anything itself.
type Advice struct {
	Queue  string `json:"queue"`
	Action string `json:"action"`
	Length int    `json:"length"`
	Free   int    `json:"free_workers"`
}

type Snapshot struct {
	Timestamp time.Time             `json:"timestamp"`
	Workers   []WorkerStats         `json:"workers"`
	Queues    map[string]QueueStats `json:"queues"`
	Host      *HostStats            `json:"host,omitempty"`
	Advice    []Advice              `json:"advice"`
}

// PoolMonitor periodically samples worker servers, queues and the host.
type PoolMonitor struct {
	inspector Inspector
	host      HostSampler
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu     sync.RWMutex
	last   *Snapshot
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoolMonitor builds a monitor. host may be nil to skip host stats.
func NewPoolMonitor(inspector Inspector, host HostSampler, interval time.Duration, log *zap.Logger) *PoolMonitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &PoolMonitor{
		inspector: inspector,
		host:      host,
		interval:  interval,
		logger:    logger.OrGlobal(log).Named("monitor"),
		now:       time.Now,
	}
}

// Start samples immediately and then every interval until Stop or ctx ends.
func (m *PoolMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		m.logger.Warn("pool monitor already running")
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			if _, err := m.Sample(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Error("pool monitor sample failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	m.logger.Info("pool monitor started", zap.Duration("interval", m.interval))
}

func (m *PoolMonitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.logger.Info("pool monitor stopped")
}

// Stats returns the most recent snapshot, or nil before the first sample.
func (m *PoolMonitor) Stats() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Sample takes a snapshot now, stores it and logs any advice.
func (m *PoolMonitor) Sample(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := m.now()
	snap := &Snapshot{Timestamp: now.UTC(), Queues: map[string]QueueStats{}}

	servers, err := m.inspector.Servers()
	if err != nil {
		return nil, err
	}
	for _, s := range servers {
		w := WorkerStats{
			ID:          s.ID,
			Host:        s.Host,
			PID:         s.PID,
			Concurrency: s.Concurrency,
			ActiveTasks: len(s.ActiveWorkers),
			Queues:      s.Queues,
			Status:      s.Status,
			Uptime:      now.Sub(s.Started).Seconds(),
		}
		if w.Concurrency > 0 {
			w.Load = float64(w.ActiveTasks) / float64(w.Concurrency)
		}
		snap.Workers = append(snap.Workers, w)
	}
	sort.Slice(snap.Workers, func(i, j int) bool { return snap.Workers[i].ID < snap.Workers[j].ID })

	queues, err := m.inspector.Queues()
	if err != nil {
		return nil, err
	}
	for _, q := range queues {
		info, err := m.inspector.GetQueueInfo(q)
		if err != nil {
			m.logger.Warn("queue info failed", zap.String("queue", q), zap.Error(err))
			continue
		}
		snap.Queues[q] = QueueStats{
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
			Processed: info.Processed,
			Failed:    info.Failed,
			Latency:   info.Latency.Seconds(),
			Paused:    info.Paused,
		}
	}

	if m.host != nil {
		hs, err := m.host.Sample(ctx)
		if err != nil {
			m.logger.Warn("host sample failed", zap.Error(err))
		} else {
			snap.Host = &hs
		}
	}

	snap.Advice = Balance(snap.Workers, snap.Queues)
	m.log(snap)

	m.mu.Lock()
	m.last = snap
	m.mu.Unlock()
	return snap, nil
}

// Balance suggests scale_up for a queue whose backlog exceeds twice the
// free workers and ten tasks, and scale_down for an empty queue while more
// than one worker is free.
func Balance(workers []WorkerStats, queues map[string]QueueStats) []Advice {
	free := 0
	for _, w := range workers {
		if w.Free() {
			free++
		}
	}

	names := make([]string, 0, len(queues))
	for q := range queues {
		names = append(names, q)
	}
	sort.Strings(names)

	advice := []Advice{}
	for _, q := range names {
		length := queues[q].Pending
		switch {
		case length > free*2 && length > minBacklogForScaleUp:
			advice = append(advice, Advice{Queue: q, Action: ActionScaleUp, Length: length, Free: free})
		case length == 0 && free > 1:
			advice = append(advice, Advice{Queue: q, Action: ActionScaleDown, Length: length, Free: free})
		}
	}
	return advice
}

func (m *PoolMonitor) log(s *Snapshot) {
	if len(s.Workers) == 0 {
		m.logger.Warn("no active workers")
	}
	for _, w := range s.Workers {
		m.logger.Debug("worker",
			zap.String("id", w.ID),
			zap.Int("active", w.ActiveTasks),
			zap.Int("concurrency", w.Concurrency),
			zap.Float64("load", w.Load))
	}
	for _, a := range s.Advice {
		m.logger.Info("worker pool advice",
			zap.String("queue", a.Queue),
			zap.String("action", a.Action),
			zap.Int("length", a.Length),
			zap.Int("free_workers", a.Free))
	}
}
