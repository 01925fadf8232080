// Package cyclic transmits registered frames on repeating schedules, the
// way real CAN tooling generates cyclic traffic. Tickers and cron entries
// fire on their own goroutines, but every transmission is funneled onto the
// single goroutine running Start, so the bus only ever sees serial access.
package cyclic

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/cansim/cansim/internal/bus"
)

type entry struct {
	label   string
	msg     bus.Message
	src     *bus.Node
	everyMs int64
	expr    string
}

// Scheduler owns a set of cyclic frames bound to one bus.
type Scheduler struct {
	bus     *bus.Bus
	entries []*entry
	fires   chan *entry
}

// NewScheduler creates a scheduler for b with no entries armed.
func NewScheduler(b *bus.Bus) *Scheduler {
	return &Scheduler{
		bus:   b,
		fires: make(chan *entry, 16),
	}
}

// Add registers a cyclic frame transmitted from src. Exactly one of everyMs
// (interval in milliseconds) or cronExpr (seconds-field cron expression)
// must be set. Must be called before Start.
func (s *Scheduler) Add(label string, src *bus.Node, msg bus.Message, everyMs int64, cronExpr string) error {
	if src == nil {
		return bus.ErrNilNode
	}
	if (everyMs > 0) == (cronExpr != "") {
		return fmt.Errorf("cyclic: exactly one of interval or cron expression for %q", label)
	}
	if cronExpr != "" {
		parser := robfigcron.NewParser(
			robfigcron.Second | robfigcron.Minute | robfigcron.Hour |
				robfigcron.Dom | robfigcron.Month | robfigcron.Dow)
		if _, err := parser.Parse(cronExpr); err != nil {
			return fmt.Errorf("cyclic: bad cron expression %q: %w", cronExpr, err)
		}
	}
	s.entries = append(s.entries, &entry{
		label:   label,
		msg:     msg,
		src:     src,
		everyMs: everyMs,
		expr:    cronExpr,
	})
	return nil
}

// Len reports the number of registered entries.
func (s *Scheduler) Len() int { return len(s.entries) }

// Start arms every entry and transmits fires until ctx is cancelled.
// A fire that arrives while a transmission is still in flight is queued;
// when the queue is full the fire is dropped rather than delayed.
func (s *Scheduler) Start(ctx context.Context) error {
	c := robfigcron.New(robfigcron.WithSeconds())
	var tickers []*time.Ticker

	for _, e := range s.entries {
		e := e
		if e.expr != "" {
			if _, err := c.AddFunc(e.expr, func() { s.fire(e) }); err != nil {
				return fmt.Errorf("cyclic: arm %q: %w", e.label, err)
			}
			continue
		}
		tk := time.NewTicker(time.Duration(e.everyMs) * time.Millisecond)
		tickers = append(tickers, tk)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-tk.C:
					s.fire(e)
				}
			}
		}()
	}

	c.Start()
	slog.Info("cyclic: started", "entries", len(s.entries))
	defer func() {
		<-c.Stop().Done()
		for _, tk := range tickers {
			tk.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cyclic: stopped")
			return ctx.Err()
		case e := <-s.fires:
			if err := s.bus.Transmit(&e.msg, e.src); err != nil {
				slog.Error("cyclic: transmit failed", "frame", e.label, "err", err)
			}
		}
	}
}

func (s *Scheduler) fire(e *entry) {
	select {
	case s.fires <- e:
	default:
		slog.Warn("cyclic: fire dropped, queue full", "frame", e.label)
	}
}
