// Package scenario loads and runs declarative bus scripts: a node roster,
// a sequence of steps exercising the bus, and optional cyclic frames.
package scenario

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cansim/cansim/internal/bus"
)

// NodeDef declares one participant in the scenario.
type NodeDef struct {
	Label string `yaml:"label"`
	ID    uint32 `yaml:"id"`
}

// Frame describes a message by CAN id and hex payload ("DEADBEEF" or
// "DE AD BE EF").
type Frame struct {
	ID   uint32 `yaml:"id"`
	Data string `yaml:"data"`
}

// Message decodes the frame into a bus message.
func (f Frame) Message() (bus.Message, error) {
	clean := strings.NewReplacer(" ", "", "\t", "").Replace(f.Data)
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return bus.Message{}, fmt.Errorf("bad payload %q: %w", f.Data, err)
	}
	if len(raw) > bus.MaxDataLen {
		return bus.Message{}, fmt.Errorf("payload is %d bytes, max is %d", len(raw), bus.MaxDataLen)
	}
	m := bus.Message{ID: f.ID, Len: uint32(len(raw))}
	copy(m.Data[:], raw)
	return m, nil
}

// TransmitStep broadcasts a frame; an empty Source delivers to every
// attached node.
type TransmitStep struct {
	Frame  `yaml:",inline"`
	Source string `yaml:"source,omitempty"`
}

// ExpectStep asserts that the previous transmit delivered to exactly these
// labels, in this order.
type ExpectStep struct {
	Delivered []string `yaml:"delivered"`
}

// Step is one scripted action. Exactly one field must be set.
type Step struct {
	Attach   string        `yaml:"attach,omitempty"`
	Detach   string        `yaml:"detach,omitempty"`
	Reset    bool          `yaml:"reset,omitempty"`
	Transmit *TransmitStep `yaml:"transmit,omitempty"`
	Expect   *ExpectStep   `yaml:"expect,omitempty"`
}

// CyclicDef schedules a repeating transmit, either every everyMs
// milliseconds or on a cron expression (seconds field enabled).
// Exactly one of the two must be set.
type CyclicDef struct {
	Source  string `yaml:"source"`
	EveryMs int64  `yaml:"everyMs,omitempty"`
	Cron    string `yaml:"cron,omitempty"`
	Frame   Frame  `yaml:"frame"`
}

// Scenario is a full script.
type Scenario struct {
	Name   string      `yaml:"name"`
	Nodes  []NodeDef   `yaml:"nodes"`
	Steps  []Step      `yaml:"steps"`
	Cyclic []CyclicDef `yaml:"cyclic,omitempty"`
}

// Load reads, parses, and validates the scenario file at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

// Validate checks roster uniqueness, step shape, label references, and
// frame payloads. Errors name the offending step.
func (s *Scenario) Validate() error {
	if len(s.Nodes) == 0 {
		return fmt.Errorf("no nodes declared")
	}
	if len(s.Nodes) > bus.MaxNodes {
		return fmt.Errorf("%d nodes declared, bus capacity is %d", len(s.Nodes), bus.MaxNodes)
	}
	known := make(map[string]bool, len(s.Nodes))
	for _, nd := range s.Nodes {
		if nd.Label == "" {
			return fmt.Errorf("node with empty label")
		}
		if known[nd.Label] {
			return fmt.Errorf("duplicate node label %q", nd.Label)
		}
		known[nd.Label] = true
	}

	for i, st := range s.Steps {
		if err := validateStep(st, known); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	for i, c := range s.Cyclic {
		if !known[c.Source] {
			return fmt.Errorf("cyclic %d: unknown source %q", i+1, c.Source)
		}
		if (c.EveryMs > 0) == (c.Cron != "") {
			return fmt.Errorf("cyclic %d: set exactly one of everyMs or cron", i+1)
		}
		if c.EveryMs < 0 {
			return fmt.Errorf("cyclic %d: negative everyMs", i+1)
		}
		if _, err := c.Frame.Message(); err != nil {
			return fmt.Errorf("cyclic %d: %w", i+1, err)
		}
	}
	return nil
}

func validateStep(st Step, known map[string]bool) error {
	actions := 0
	if st.Attach != "" {
		actions++
		if !known[st.Attach] {
			return fmt.Errorf("attach: unknown node %q", st.Attach)
		}
	}
	if st.Detach != "" {
		actions++
		if !known[st.Detach] {
			return fmt.Errorf("detach: unknown node %q", st.Detach)
		}
	}
	if st.Reset {
		actions++
	}
	if st.Transmit != nil {
		actions++
		if _, err := st.Transmit.Message(); err != nil {
			return fmt.Errorf("transmit: %w", err)
		}
		if st.Transmit.Source != "" && !known[st.Transmit.Source] {
			return fmt.Errorf("transmit: unknown source %q", st.Transmit.Source)
		}
	}
	if st.Expect != nil {
		actions++
		for _, l := range st.Expect.Delivered {
			if !known[l] {
				return fmt.Errorf("expect: unknown node %q", l)
			}
		}
	}
	if actions != 1 {
		return fmt.Errorf("exactly one action per step, found %d", actions)
	}
	return nil
}
