package engine

import (
	"context"
	"log/slog"
	"time"
)

// TriggerKind identifies the source of a rescan request.
type TriggerKind string

const (
	TriggerMutation    TriggerKind = "mutation"
	TriggerVisibility  TriggerKind = "visibility"
	TriggerFocus       TriggerKind = "focus"
	TriggerOnline      TriggerKind = "online"
	TriggerInteraction TriggerKind = "interaction"
	TriggerWake        TriggerKind = "wake"
)

// ParseTriggerKind maps a wire value to a TriggerKind.
func ParseTriggerKind(s string) (TriggerKind, bool) {
	switch TriggerKind(s) {
	case TriggerMutation, TriggerVisibility, TriggerFocus,
		TriggerOnline, TriggerInteraction, TriggerWake:
		return TriggerKind(s), true
	}
	return "", false
}

// debounce is the settle window per trigger kind. Mutation bursts settle
// longer than focus-class events, which should feel immediate.
func (k TriggerKind) debounce() time.Duration {
	switch k {
	case TriggerVisibility, TriggerFocus, TriggerOnline, TriggerWake:
		return 50 * time.Millisecond
	default:
		return 150 * time.Millisecond
	}
}

const (
	defaultHeartbeat = 20 * time.Second
	defaultWakeGap   = 60 * time.Second
)

// Watcher turns host events into debounced scan requests. A heartbeat
// detects suspend/resume: when the gap between ticks exceeds WakeGap despite
// the steady Heartbeat interval, the process was paused and a wake rescan is
// requested.
type Watcher struct {
	Heartbeat time.Duration
	WakeGap   time.Duration

	scan   func()
	logger *slog.Logger
	events chan TriggerKind
	now    func() time.Time
}

// NewWatcher constructs a Watcher invoking scan after each debounced
// request.
func NewWatcher(scan func(), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		Heartbeat: defaultHeartbeat,
		WakeGap:   defaultWakeGap,
		scan:      scan,
		logger:    logger,
		events:    make(chan TriggerKind, 16),
		now:       time.Now,
	}
}

// Notify records a host event. It never blocks; events beyond the buffer are
// dropped, which is harmless since any one of a burst triggers the rescan.
func (w *Watcher) Notify(k TriggerKind) {
	select {
	case w.events <- k:
	default:
	}
}

// Run processes events until ctx is done. Each event restarts the debounce
// timer with its kind's window; the scan callback fires once per settled
// burst.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Heartbeat)
	defer ticker.Stop()

	var pending *time.Timer
	var fire <-chan time.Time
	stopPending := func() {
		if pending != nil {
			pending.Stop()
			pending = nil
			fire = nil
		}
	}
	defer stopPending()

	schedule := func(k TriggerKind) {
		stopPending()
		pending = time.NewTimer(k.debounce())
		fire = pending.C
	}

	lastTick := w.now()
	for {
		select {
		case <-ctx.Done():
			return
		case k := <-w.events:
			schedule(k)
		case <-ticker.C:
			now := w.now()
			if now.Sub(lastTick) > w.WakeGap {
				w.logger.Debug("wake detected", "gap", now.Sub(lastTick))
				schedule(TriggerWake)
			}
			lastTick = now
		case <-fire:
			pending = nil
			fire = nil
			w.scan()
		}
	}
}
