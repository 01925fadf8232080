// Package bus implements the virtual CAN bus core: a bounded registry of
// caller-owned nodes and a synchronous broadcast primitive.
//
// The bus holds non-owning pointers to nodes. It never allocates, frees, or
// writes through a node; the caller must keep every attached node alive and
// at a stable address until it is detached. All four operations run to
// completion on the caller's goroutine — there is no locking, no background
// work, and no reentrancy support: a callback that calls back into the same
// bus yields undefined behavior.
package bus

import "errors"

// Compile-time capacities. There is no runtime reconfiguration.
const (
	// MaxDataLen is the payload capacity of a Message in bytes.
	MaxDataLen = 64
	// MaxNodes is the maximum number of simultaneously attached nodes.
	MaxNodes = 32
)

// Operation results. A nil error means success. Every failing call leaves
// bus and node state exactly as it was before the call.
var (
	ErrNilBus          = errors.New("bus: nil bus")
	ErrNilMessage      = errors.New("bus: nil message")
	ErrNilNode         = errors.New("bus: nil node")
	ErrNilCallback     = errors.New("bus: node has no receive callback")
	ErrBusFull         = errors.New("bus: too many attached nodes")
	ErrNotAttached     = errors.New("bus: node not attached")
	ErrAlreadyAttached = errors.New("bus: node already attached")
)

// Message is a single frame on the bus. ID and Len are opaque to the bus:
// it copies the whole value verbatim and never inspects or validates Len
// against Data. Keeping Len ≤ MaxDataLen is the caller's responsibility.
type Message struct {
	ID   uint32
	Len  uint32
	Data [MaxDataLen]byte
}

// Node is a caller-owned bus participant. The bus records only its address;
// ID and UserData exist purely for the caller's correlation and are never
// read by the bus. Two nodes with identical fields are still distinct — all
// membership checks compare pointers, never contents.
type Node struct {
	// ID identifies the node to the caller. Unused by the bus.
	ID uint32
	// OnReceive is invoked synchronously for every transmitted message the
	// node is eligible to receive. It gets the node's own pointer and a
	// read-only view of the bus's stored message copy. Mandatory.
	OnReceive func(n *Node, msg *Message)
	// UserData is a free slot for the callback's own state.
	UserData any
}

// Bus is the shared registry and broadcaster. Attached node pointers occupy
// the prefix of nodes in attachment order. The zero value is ready to use;
// Reset returns an in-use bus to that state.
type Bus struct {
	nodes    [MaxNodes]*Node
	attached int
	lastMsg  Message
}

// New returns an empty, initialized bus.
func New() *Bus {
	return &Bus{}
}

// Reset returns the bus to the empty state: zero attached nodes, zeroed
// last message. Idempotent. Resetting an in-use bus silently drops all
// attachments without notifying the nodes.
func (b *Bus) Reset() error {
	if b == nil {
		return ErrNilBus
	}
	*b = Bus{}
	return nil
}

// Attach registers n for future deliveries, appending it after all currently
// attached nodes. Capacity is checked before the duplicate scan, so
// re-attaching an already-attached node to a full bus reports ErrBusFull.
func (b *Bus) Attach(n *Node) error {
	if b == nil {
		return ErrNilBus
	}
	if n == nil {
		return ErrNilNode
	}
	if n.OnReceive == nil {
		return ErrNilCallback
	}
	if b.attached >= MaxNodes {
		return ErrBusFull
	}
	for i := 0; i < b.attached; i++ {
		if b.nodes[i] == n {
			return ErrAlreadyAttached
		}
	}
	b.nodes[b.attached] = n
	b.attached++
	return nil
}

// Detach removes n from the bus, shifting later nodes one slot down so the
// attached prefix stays contiguous and in attachment order. The node itself
// is untouched and remains caller-owned.
func (b *Bus) Detach(n *Node) error {
	if b == nil {
		return ErrNilBus
	}
	if n == nil {
		return ErrNilNode
	}
	for i := 0; i < b.attached; i++ {
		if b.nodes[i] != n {
			continue
		}
		copy(b.nodes[i:b.attached-1], b.nodes[i+1:b.attached])
		b.attached--
		b.nodes[b.attached] = nil
		return nil
	}
	return ErrNotAttached
}

// Transmit broadcasts msg to every attached node except source, in
// attachment order. The message is copied into the bus's last-message slot
// exactly once; every eligible callback receives a pointer to that single
// copy and must not retain or mutate it. A nil source delivers to all.
// Transmit returns only after the last callback has returned. Transmitting
// on an empty bus succeeds and only overwrites the last-message slot.
//
// Callbacks must not attach, detach, reset, or transmit on this bus.
func (b *Bus) Transmit(msg *Message, source *Node) error {
	if b == nil {
		return ErrNilBus
	}
	if msg == nil {
		return ErrNilMessage
	}
	b.lastMsg = *msg
	for i := 0; i < b.attached; i++ {
		n := b.nodes[i]
		if n == source {
			continue
		}
		n.OnReceive(n, &b.lastMsg)
	}
	return nil
}

// Attached reports the number of currently attached nodes.
func (b *Bus) Attached() int {
	if b == nil {
		return 0
	}
	return b.attached
}

// LastMessage returns a copy of the most recently transmitted message.
// It is the zero Message until the first Transmit.
func (b *Bus) LastMessage() Message {
	if b == nil {
		return Message{}
	}
	return b.lastMsg
}
