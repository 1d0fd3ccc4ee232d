package buffer

import (
	"fmt"
	"sync"
)

// RangeError reports an id outside the buffer's currently valid range.
type RangeError struct {
	Op    string // "discard" or "getMessagesFrom"
	ID    uint64
	Floor uint64
	Next  uint64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("buffer: %s id %d out of range [%d, %d]", e.Op, e.ID, e.Floor, e.Next)
}

// record is a single tagged outbound message.
type record struct {
	id   uint64
	wire string
}

// MessageBuffer is a dense, id-ordered log of tagged outbound messages.
//
// IDs are consecutive non-negative integers rendered as uppercase,
// unpadded hexadecimal. The buffer holds a contiguous range
// [floorID, nextID) with no gaps; Discard moves the floor forward,
// GetMessagesFrom replays from any id still held.
type MessageBuffer struct {
	mu      sync.Mutex
	records []record
	floorID uint64
	nextID  uint64
}

// New returns an empty MessageBuffer.
func New() *MessageBuffer {
	return &MessageBuffer{}
}

// Write assigns the next id to payload, records it, and returns the
// wire-format string "<HEXID>|<payload>".
func (b *MessageBuffer) Write(payload string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	wire := fmt.Sprintf("%X|%s", id, payload)
	b.records = append(b.records, record{id: id, wire: wire})
	return wire
}

// Discard drops every record with id < firstUnseenID and returns the
// count dropped. firstUnseenID must lie in [floorID, nextID]; otherwise
// it has never been issued (too high) or already fell off the floor
// (too low), and a *RangeError is returned.
func (b *MessageBuffer) Discard(firstUnseenID uint64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if firstUnseenID > b.nextID || firstUnseenID < b.floorID {
		return 0, &RangeError{Op: "discard", ID: firstUnseenID, Floor: b.floorID, Next: b.nextID}
	}

	n := int(firstUnseenID - b.floorID)
	b.records = b.records[n:]
	b.floorID = firstUnseenID
	return n, nil
}

// GetMessagesFrom returns, in order, the wire messages with
// id >= firstUnseenID. firstUnseenID must lie in [floorID, nextID];
// otherwise a *RangeError is returned.
func (b *MessageBuffer) GetMessagesFrom(firstUnseenID uint64) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if firstUnseenID > b.nextID || firstUnseenID < b.floorID {
		return nil, &RangeError{Op: "getMessagesFrom", ID: firstUnseenID, Floor: b.floorID, Next: b.nextID}
	}

	start := int(firstUnseenID - b.floorID)
	out := make([]string, len(b.records)-start)
	for i, r := range b.records[start:] {
		out[i] = r.wire
	}
	return out, nil
}

// Len returns the number of records currently held.
func (b *MessageBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// NextID returns the id that the next Write will assign.
func (b *MessageBuffer) NextID() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextID
}
