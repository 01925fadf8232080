package bus

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

// recorder collects delivery order and message copies across nodes.
type recorder struct {
	order []string
	msgs  []Message
}

// node builds a caller-owned node whose callback logs into rec under label.
func node(rec *recorder, label string) *Node {
	return &Node{
		OnReceive: func(n *Node, msg *Message) {
			rec.order = append(rec.order, label)
			rec.msgs = append(rec.msgs, *msg)
		},
	}
}

func msg(id uint32, data ...byte) *Message {
	m := &Message{ID: id, Len: uint32(len(data))}
	copy(m.Data[:], data)
	return m
}

func TestReset_NilBus(t *testing.T) {
	var b *Bus
	if err := b.Reset(); !errors.Is(err, ErrNilBus) {
		t.Fatalf("expected ErrNilBus, got %v", err)
	}
}

func TestReset_DropsAttachments(t *testing.T) {
	rec := &recorder{}
	b := New()
	if err := b.Attach(node(rec, "a")); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := b.Transmit(msg(1, 0xFF), nil); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	if err := b.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if b.Attached() != 0 {
		t.Errorf("expected 0 attached after reset, got %d", b.Attached())
	}
	if got := b.LastMessage(); got != (Message{}) {
		t.Errorf("expected zero last message after reset, got %+v", got)
	}
	// A reset bus is fully usable again.
	if err := b.Attach(node(rec, "a")); err != nil {
		t.Errorf("attach after reset: %v", err)
	}
}

func TestAttach_Validation(t *testing.T) {
	rec := &recorder{}
	var nilBus *Bus
	if err := nilBus.Attach(node(rec, "a")); !errors.Is(err, ErrNilBus) {
		t.Errorf("nil bus: expected ErrNilBus, got %v", err)
	}
	b := New()
	if err := b.Attach(nil); !errors.Is(err, ErrNilNode) {
		t.Errorf("nil node: expected ErrNilNode, got %v", err)
	}
	if err := b.Attach(&Node{}); !errors.Is(err, ErrNilCallback) {
		t.Errorf("no callback: expected ErrNilCallback, got %v", err)
	}
	if b.Attached() != 0 {
		t.Errorf("failed attaches must not change count, got %d", b.Attached())
	}
}

func TestAttach_Capacity(t *testing.T) {
	rec := &recorder{}
	b := New()
	for i := 0; i < MaxNodes; i++ {
		if err := b.Attach(node(rec, fmt.Sprintf("n%d", i))); err != nil {
			t.Fatalf("attach %d: %v", i, err)
		}
	}
	if err := b.Attach(node(rec, "overflow")); !errors.Is(err, ErrBusFull) {
		t.Fatalf("expected ErrBusFull, got %v", err)
	}
	if b.Attached() != MaxNodes {
		t.Errorf("count changed on failed attach: %d", b.Attached())
	}
}

func TestAttach_Duplicate(t *testing.T) {
	rec := &recorder{}
	b := New()
	n := node(rec, "a")
	if err := b.Attach(n); err != nil {
		t.Fatalf("first attach: %v", err)
	}
	if err := b.Attach(n); !errors.Is(err, ErrAlreadyAttached) {
		t.Fatalf("expected ErrAlreadyAttached, got %v", err)
	}
	if b.Attached() != 1 {
		t.Errorf("expected count 1 after duplicate attach, got %d", b.Attached())
	}
}

// Capacity is checked before the duplicate scan, so a duplicate attach on a
// full bus reports ErrBusFull.
func TestAttach_DuplicateOnFullBus(t *testing.T) {
	rec := &recorder{}
	b := New()
	first := node(rec, "first")
	if err := b.Attach(first); err != nil {
		t.Fatalf("attach: %v", err)
	}
	for i := 1; i < MaxNodes; i++ {
		if err := b.Attach(node(rec, fmt.Sprintf("n%d", i))); err != nil {
			t.Fatalf("attach %d: %v", i, err)
		}
	}
	if err := b.Attach(first); !errors.Is(err, ErrBusFull) {
		t.Fatalf("expected ErrBusFull on full bus, got %v", err)
	}
}

// Nodes are compared by pointer, never by contents: a second node with
// identical field values is a distinct participant.
func TestAttach_IdenticalContentDistinctNodes(t *testing.T) {
	rec := &recorder{}
	cb := func(n *Node, msg *Message) { rec.order = append(rec.order, "x") }
	n1 := &Node{ID: 7, OnReceive: cb}
	n2 := &Node{ID: 7, OnReceive: cb}
	b := New()
	if err := b.Attach(n1); err != nil {
		t.Fatalf("attach n1: %v", err)
	}
	if err := b.Attach(n2); err != nil {
		t.Fatalf("attach n2 (same contents, distinct pointer): %v", err)
	}
	if b.Attached() != 2 {
		t.Errorf("expected 2 attached, got %d", b.Attached())
	}
}

func TestDetach_Validation(t *testing.T) {
	rec := &recorder{}
	var nilBus *Bus
	if err := nilBus.Detach(node(rec, "a")); !errors.Is(err, ErrNilBus) {
		t.Errorf("nil bus: expected ErrNilBus, got %v", err)
	}
	b := New()
	if err := b.Detach(nil); !errors.Is(err, ErrNilNode) {
		t.Errorf("nil node: expected ErrNilNode, got %v", err)
	}
	if err := b.Detach(node(rec, "stranger")); !errors.Is(err, ErrNotAttached) {
		t.Errorf("expected ErrNotAttached, got %v", err)
	}
}

func TestDetach_NotAttachedLeavesOrder(t *testing.T) {
	rec := &recorder{}
	b := New()
	a, c := node(rec, "a"), node(rec, "c")
	for _, n := range []*Node{a, c} {
		if err := b.Attach(n); err != nil {
			t.Fatalf("attach: %v", err)
		}
	}
	if err := b.Detach(node(rec, "stranger")); !errors.Is(err, ErrNotAttached) {
		t.Fatalf("expected ErrNotAttached, got %v", err)
	}
	if err := b.Transmit(msg(1), nil); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	want := []string{"a", "c"}
	if len(rec.order) != 2 || rec.order[0] != want[0] || rec.order[1] != want[1] {
		t.Errorf("order disturbed by failed detach: %v", rec.order)
	}
}

func TestDetach_CompactsAndPreservesOrder(t *testing.T) {
	rec := &recorder{}
	b := New()
	a, bb, c, d := node(rec, "a"), node(rec, "b"), node(rec, "c"), node(rec, "d")
	for _, n := range []*Node{a, bb, c, d} {
		if err := b.Attach(n); err != nil {
			t.Fatalf("attach: %v", err)
		}
	}
	if err := b.Detach(bb); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if b.Attached() != 3 {
		t.Fatalf("expected 3 attached, got %d", b.Attached())
	}
	if err := b.Transmit(msg(1), nil); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	want := []string{"a", "c", "d"}
	if len(rec.order) != len(want) {
		t.Fatalf("delivery order %v, want %v", rec.order, want)
	}
	for i, w := range want {
		if rec.order[i] != w {
			t.Fatalf("delivery order %v, want %v", rec.order, want)
		}
	}
}

func TestDetach_NodeUntouched(t *testing.T) {
	rec := &recorder{}
	b := New()
	n := node(rec, "a")
	n.UserData = "kept"
	n.ID = 42
	if err := b.Attach(n); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := b.Detach(n); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if n.UserData != "kept" || n.ID != 42 || n.OnReceive == nil {
		t.Errorf("detach mutated the node: %+v", n)
	}
}

func TestTransmit_Validation(t *testing.T) {
	var nilBus *Bus
	if err := nilBus.Transmit(msg(1), nil); !errors.Is(err, ErrNilBus) {
		t.Errorf("nil bus: expected ErrNilBus, got %v", err)
	}
	b := New()
	if err := b.Transmit(nil, nil); !errors.Is(err, ErrNilMessage) {
		t.Errorf("nil message: expected ErrNilMessage, got %v", err)
	}
}

func TestTransmit_EmptyBus(t *testing.T) {
	b := New()
	m := msg(0x123, 0xDE, 0xAD)
	if err := b.Transmit(m, nil); err != nil {
		t.Fatalf("transmit on empty bus: %v", err)
	}
	if b.LastMessage() != *m {
		t.Errorf("last message not stored on empty-bus transmit")
	}
}

func TestTransmit_Scenario(t *testing.T) {
	rec := &recorder{}
	b := New()
	a, bb, c := node(rec, "A"), node(rec, "B"), node(rec, "C")
	for _, n := range []*Node{a, bb, c} {
		if err := b.Attach(n); err != nil {
			t.Fatalf("attach: %v", err)
		}
	}
	m := msg(0x7FF, 0xDE, 0xAD, 0xBE, 0xEF)

	// Source set: everyone but the source fires, in attachment order.
	if err := b.Transmit(m, a); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	if len(rec.order) != 2 || rec.order[0] != "B" || rec.order[1] != "C" {
		t.Fatalf("with source=A expected [B C], got %v", rec.order)
	}
	for i, got := range rec.msgs {
		if got != *m {
			t.Errorf("delivery %d: message mutated in flight: %+v", i, got)
		}
	}

	// No source: all three fire.
	rec.order, rec.msgs = nil, nil
	if err := b.Transmit(m, nil); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	if len(rec.order) != 3 || rec.order[0] != "A" || rec.order[1] != "B" || rec.order[2] != "C" {
		t.Fatalf("with no source expected [A B C], got %v", rec.order)
	}

	// Detach B, transmit from A: only C fires.
	rec.order = nil
	if err := b.Detach(bb); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if err := b.Transmit(m, a); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	if len(rec.order) != 1 || rec.order[0] != "C" {
		t.Fatalf("after detaching B expected [C], got %v", rec.order)
	}
}

// The message is copied into the bus exactly once; every callback sees the
// same stored copy, byte-for-byte identical to the input.
func TestTransmit_SingleCopyRoundTrip(t *testing.T) {
	b := New()
	var seen []*Message
	cb := func(n *Node, m *Message) { seen = append(seen, m) }
	if err := b.Attach(&Node{OnReceive: cb}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := b.Attach(&Node{OnReceive: cb}); err != nil {
		t.Fatalf("attach: %v", err)
	}

	m := &Message{ID: 0x1FFFFFFF, Len: MaxDataLen}
	for i := range m.Data {
		m.Data[i] = byte(i * 3)
	}
	if err := b.Transmit(m, nil); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(seen))
	}
	if seen[0] != seen[1] {
		t.Errorf("callbacks received different message copies")
	}
	if *seen[0] != *m {
		t.Errorf("delivered message differs from input")
	}
	if !bytes.Equal(seen[0].Data[:], m.Data[:]) {
		t.Errorf("payload bytes differ")
	}
	// Overwritten on every transmit: no history.
	m2 := msg(1, 0x01)
	if err := b.Transmit(m2, nil); err != nil {
		t.Fatalf("second transmit: %v", err)
	}
	if b.LastMessage() != *m2 {
		t.Errorf("last message not overwritten by second transmit")
	}
}

func TestTransmit_SourceNotAttached(t *testing.T) {
	rec := &recorder{}
	b := New()
	if err := b.Attach(node(rec, "a")); err != nil {
		t.Fatalf("attach: %v", err)
	}
	// A source that is not attached excludes nobody.
	if err := b.Transmit(msg(1), node(rec, "stranger")); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	if len(rec.order) != 1 || rec.order[0] != "a" {
		t.Errorf("expected [a], got %v", rec.order)
	}
}
