package scenario

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cansim/cansim/internal/bus"
	"github.com/cansim/cansim/internal/trace"
)

// Runner binds a scenario to a bus and a trace recorder. It owns the node
// storage for the scenario's participants: nodes are created up front and
// stay alive and address-stable for the runner's whole lifetime, which is
// what the bus's lifetime contract requires.
type Runner struct {
	scn       *Scenario
	bus       *bus.Bus
	rec       *trace.Recorder
	nodes     map[string]*bus.Node
	delivered []string // labels delivered by the most recent transmit
}

// NewRunner builds a runner with one node per roster entry. Every node's
// callback records the delivery into rec and into the runner's per-transmit
// delivery list.
func NewRunner(scn *Scenario, b *bus.Bus, rec *trace.Recorder) *Runner {
	r := &Runner{
		scn:   scn,
		bus:   b,
		rec:   rec,
		nodes: make(map[string]*bus.Node, len(scn.Nodes)),
	}
	for _, nd := range scn.Nodes {
		label := nd.Label
		r.nodes[label] = &bus.Node{
			ID: nd.ID,
			OnReceive: func(n *bus.Node, m *bus.Message) {
				r.delivered = append(r.delivered, label)
				rec.Record(trace.Event{
					Node:   label,
					NodeID: n.ID,
					MsgID:  m.ID,
					DLC:    m.Len,
					Data:   append([]byte(nil), m.Data[:m.Len]...),
				})
			},
		}
	}
	return r
}

// Node returns the caller-owned node for label, or nil if the roster does
// not contain it.
func (r *Runner) Node(label string) *bus.Node {
	return r.nodes[label]
}

// AttachAll attaches every roster node in declaration order. Used by watch
// mode, where no attach steps run before the cyclic scheduler starts.
func (r *Runner) AttachAll() error {
	for _, nd := range r.scn.Nodes {
		if err := r.bus.Attach(r.nodes[nd.Label]); err != nil {
			return fmt.Errorf("attach %s: %w", nd.Label, err)
		}
	}
	return nil
}

// Run executes the scenario's steps in order, failing fast on the first
// step error or missed expectation.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("scenario: running", "name", r.scn.Name, "steps", len(r.scn.Steps))
	for i, st := range r.scn.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.step(st); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	slog.Info("scenario: done", "name", r.scn.Name, "deliveries", len(r.rec.Events()))
	return nil
}

func (r *Runner) step(st Step) error {
	switch {
	case st.Attach != "":
		return r.bus.Attach(r.nodes[st.Attach])

	case st.Detach != "":
		return r.bus.Detach(r.nodes[st.Detach])

	case st.Reset:
		return r.bus.Reset()

	case st.Transmit != nil:
		m, err := st.Transmit.Message()
		if err != nil {
			return err
		}
		var src *bus.Node
		if st.Transmit.Source != "" {
			src = r.nodes[st.Transmit.Source]
		}
		r.delivered = r.delivered[:0]
		return r.bus.Transmit(&m, src)

	case st.Expect != nil:
		if err := matchDelivered(r.delivered, st.Expect.Delivered); err != nil {
			return err
		}
		return nil
	}
	// Unreachable after Validate, kept for direct Step construction in tests.
	return fmt.Errorf("empty step")
}

func matchDelivered(got, want []string) error {
	if len(got) != len(want) {
		return fmt.Errorf("expected deliveries %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("expected deliveries %v, got %v", want, got)
		}
	}
	return nil
}
