// Package trace records bus deliveries and renders them as candump-style
// lines. The core bus never logs; every observable report of bus activity
// goes through a Recorder owned by the harness.
package trace

import (
	"fmt"
	"log/slog"
	"time"
)

// Event is one delivery observed on the bus: node received message.
type Event struct {
	Time   time.Time
	Node   string // receiving node label
	NodeID uint32
	MsgID  uint32
	DLC    uint32 // count of valid payload bytes
	Data   []byte // the DLC valid bytes, copied out of the frame
}

// Sink receives every recorded event on the recording goroutine.
// Implementations must not block.
type Sink interface {
	Publish(ev Event)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Publish(ev Event) { f(ev) }

// Recorder keeps the events of one simulator run and fans each one out to
// its subscribers. It is not safe for concurrent use; the harness records
// from the single goroutine that drives the bus.
type Recorder struct {
	busName string
	events  []Event
	sinks   []Sink
}

// NewRecorder creates a Recorder. busName is the interface label used in
// rendered lines; empty defaults to "vcan0".
func NewRecorder(busName string) *Recorder {
	if busName == "" {
		busName = "vcan0"
	}
	return &Recorder{busName: busName}
}

// Subscribe adds a sink that will see every subsequent event.
func (r *Recorder) Subscribe(s Sink) {
	r.sinks = append(r.sinks, s)
}

// Record stamps ev (if unstamped), stores it, and forwards it to all sinks.
func (r *Recorder) Record(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	r.events = append(r.events, ev)
	for _, s := range r.sinks {
		s.Publish(ev)
	}
	slog.Debug("trace: delivery", "node", ev.Node, "msgId", ev.MsgID, "dlc", ev.DLC)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// BusName returns the interface label used in rendered lines.
func (r *Recorder) BusName() string { return r.busName }

// Render formats ev the way candump would, plus the receiving node:
//
//	vcan0  7FF   [4]  DE AD BE EF  ->  B
func (r *Recorder) Render(ev Event) string {
	return fmt.Sprintf("%s  %03X   [%d]  % X  ->  %s",
		r.busName, ev.MsgID, ev.DLC, ev.Data, ev.Node)
}
