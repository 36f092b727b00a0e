// Package monitor owns the check cycle: fetch proposals, diff against the
// seen-set, notify new ones, and schedule the next run. A single Monitor
// guards a single realm/program/destination triple.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"realmbot/internal/runtime/supervisor"
	"realmbot/internal/storage"
	kit "realmbot/internal/transport"
	logx "realmbot/pkg/logx"
)

// State of the scheduler.
type State string

const (
	// StateIdle: configuration incomplete (or reset); nothing scheduled.
	StateIdle State = "idle"
	// StateArmed: configured and waiting for the next timer fire.
	StateArmed State = "armed"
	// StateRunning: a cycle is in flight. At most one at a time.
	StateRunning State = "running"
)

// DefaultInterval between cycles, measured from cycle completion so slow
// cycles never overlap the next one.
const DefaultInterval = 30 * time.Minute

var (
	ErrBusy          = errors.New("a check cycle is already running")
	ErrNotConfigured = errors.New("monitor is not fully configured")
)

// Status is a point-in-time snapshot for /status and the daily digest.
type Status struct {
	State      State
	Config     storage.MonitorConfig
	Interval   time.Duration
	LastRunAt  time.Time
	LastResult RunResult
	NextRunAt  time.Time
}

// Monitor is the scheduler state machine around the Pipeline. All transitions
// happen under mu; cycles themselves run on supervisor goroutines.
type Monitor struct {
	store storage.Store
	pipe  *Pipeline
	log   logx.Logger

	mu       sync.Mutex
	state    State
	cfg      storage.MonitorConfig
	interval time.Duration
	sup      *supervisor.Supervisor

	// timerVer invalidates stale AfterFunc callbacks: every schedule or
	// cancel bumps it, and a firing callback only proceeds if its captured
	// version is still current.
	timer    *time.Timer
	timerVer uint64

	lastRunAt  time.Time
	lastResult RunResult
	nextRunAt  time.Time
}

func New(store storage.Store, pipe *Pipeline, interval time.Duration, log logx.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Monitor{
		store:    store,
		pipe:     pipe,
		log:      log,
		interval: interval,
		state:    StateIdle,
	}
}

// Start loads the persisted configuration and, if it is complete, arms the
// scheduler and kicks off an immediate cycle so a restart doesn't wait a full
// interval before catching up.
func (m *Monitor) Start(ctx context.Context) error {
	cfg, err := m.store.LoadConfig(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.sup = supervisor.New(ctx, supervisor.WithLogger(m.log))
	m.cfg = cfg
	if !cfg.Complete() {
		m.state = StateIdle
		m.mu.Unlock()
		m.log.Info("monitor idle, waiting for configuration")
		return nil
	}
	m.state = StateArmed
	m.mu.Unlock()

	m.log.Info("monitor armed",
		logx.String("realm", cfg.RealmID),
		logx.String("program", cfg.ProgramID),
		logx.Int64("chat_id", cfg.ChatID),
	)
	m.spawnCycle("startup")
	return nil
}

// Stop cancels the timer and waits for any in-flight cycle to finish.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.cancelTimerLocked()
	sup := m.sup
	m.sup = nil
	m.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Stop(ctx)
}

// SetTarget persists the realm/program pair. If the configuration is now
// complete and no cycle is in flight, the scheduler arms and checks right away.
func (m *Monitor) SetTarget(ctx context.Context, realmID, programID string) error {
	return m.updateConfig(ctx, func(cfg *storage.MonitorConfig) {
		cfg.RealmID = realmID
		cfg.ProgramID = programID
	})
}

// SetDestination persists the chat the notifications go to.
func (m *Monitor) SetDestination(ctx context.Context, chatID int64, threadID int) error {
	return m.updateConfig(ctx, func(cfg *storage.MonitorConfig) {
		cfg.ChatID = chatID
		cfg.ThreadID = threadID
	})
}

func (m *Monitor) updateConfig(ctx context.Context, mutate func(*storage.MonitorConfig)) error {
	m.mu.Lock()
	cfg := m.cfg
	mutate(&cfg)
	m.mu.Unlock()

	if err := m.store.SaveConfig(ctx, cfg); err != nil {
		return err
	}

	m.mu.Lock()
	m.cfg = cfg
	if m.state == StateRunning {
		// The in-flight cycle finishes with its captured config; the
		// completion path re-arms (or idles) against the new one.
		m.mu.Unlock()
		return nil
	}
	if !cfg.Complete() {
		m.cancelTimerLocked()
		m.state = StateIdle
		m.mu.Unlock()
		return nil
	}
	m.cancelTimerLocked()
	m.state = StateArmed
	m.mu.Unlock()

	// A fresh target deserves an immediate look, not a 30-minute wait.
	m.spawnCycle("reconfigure")
	return nil
}

// TriggerNow runs a cycle synchronously. Returns ErrBusy while one is already
// in flight and ErrNotConfigured when the scheduler is idle.
func (m *Monitor) TriggerNow(ctx context.Context) (RunResult, error) {
	m.mu.Lock()
	switch m.state {
	case StateRunning:
		m.mu.Unlock()
		return RunResult{}, ErrBusy
	case StateIdle:
		m.mu.Unlock()
		return RunResult{}, ErrNotConfigured
	}
	m.mu.Unlock()
	return m.runCycle(ctx, "manual")
}

// Reset wipes the persisted configuration and seen-set and returns the
// scheduler to idle. An in-flight cycle is not interrupted; it completes with
// the configuration it captured and then finds nothing to re-arm against.
func (m *Monitor) Reset(ctx context.Context) error {
	if err := m.store.ResetAll(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.cfg = storage.MonitorConfig{}
	m.cancelTimerLocked()
	if m.state != StateRunning {
		m.state = StateIdle
	}
	m.lastRunAt = time.Time{}
	m.lastResult = RunResult{}
	m.mu.Unlock()

	m.log.Info("monitor reset")
	return nil
}

// SetInterval changes the pause between cycles. A pending timer is
// rescheduled from now with the new interval.
func (m *Monitor) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultInterval
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if d == m.interval {
		return
	}
	m.interval = d
	if m.state == StateArmed && m.timer != nil {
		m.cancelTimerLocked()
		m.scheduleLocked(d)
	}
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:      m.state,
		Config:     m.cfg,
		Interval:   m.interval,
		LastRunAt:  m.lastRunAt,
		LastResult: m.lastResult,
		NextRunAt:  m.nextRunAt,
	}
}

func (m *Monitor) spawnCycle(trigger string) {
	m.mu.Lock()
	sup := m.sup
	m.mu.Unlock()
	if sup == nil {
		return
	}
	sup.Go0("monitor.cycle."+trigger, func(ctx context.Context) {
		_, _ = m.runCycle(ctx, trigger)
	})
}

// runCycle claims the Running state, executes the pipeline, and re-arms.
// The claim is atomic, so concurrent triggers collapse to one cycle.
func (m *Monitor) runCycle(ctx context.Context, trigger string) (RunResult, error) {
	m.mu.Lock()
	if m.state != StateArmed || !m.cfg.Complete() {
		busy := m.state == StateRunning
		m.mu.Unlock()
		if busy {
			return RunResult{}, ErrBusy
		}
		return RunResult{}, ErrNotConfigured
	}
	m.cancelTimerLocked()
	m.state = StateRunning
	cfg := m.cfg
	m.mu.Unlock()

	m.log.Info("cycle started", logx.String("trigger", trigger), logx.String("realm", cfg.RealmID))
	dest := kit.ChatTarget{ChatID: cfg.ChatID, ThreadID: cfg.ThreadID}
	res := m.pipe.Run(ctx, dest, cfg.RealmID, cfg.ProgramID)

	m.mu.Lock()
	m.lastRunAt = time.Now()
	m.lastResult = res
	if m.state == StateRunning {
		if m.cfg.Complete() {
			m.state = StateArmed
			// Interval counts from completion, not from start.
			m.scheduleLocked(m.interval)
		} else {
			m.state = StateIdle
		}
	}
	next := m.nextRunAt
	m.mu.Unlock()

	m.log.Info("cycle finished",
		logx.String("trigger", trigger),
		logx.Int("checked", res.Checked),
		logx.Int("notified", res.Notified),
		logx.Time("next_run", next),
	)
	return res, nil
}

func (m *Monitor) scheduleLocked(d time.Duration) {
	m.timerVer++
	ver := m.timerVer
	m.nextRunAt = time.Now().Add(d)
	m.timer = time.AfterFunc(d, func() { m.onTimer(ver) })
}

func (m *Monitor) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerVer++
	m.nextRunAt = time.Time{}
}

func (m *Monitor) onTimer(ver uint64) {
	m.mu.Lock()
	if ver != m.timerVer || m.state != StateArmed {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.mu.Unlock()
	m.spawnCycle("timer")
}
