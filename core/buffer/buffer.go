// File: core/buffer/buffer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frame buffer with consume/fill cursors and checkpoint/rollback used by the
// I/O loop for both directions of a connection.

package buffer

import "io"

// Buffer is a growable byte region holding staged-but-unconsumed bytes in
// memory[start:end]. Invariant: 0 <= start <= end <= len(memory).
//
// Buffer is owned by a single goroutine and is not safe for concurrent use.
type Buffer struct {
	memory []byte
	start  int
	end    int
}

// Checkpoint captures the fill cursor so a tentative write can be undone.
type Checkpoint struct {
	end int
}

// New allocates a buffer with the given capacity.
func New(capacity int) *Buffer {
	return &Buffer{memory: make([]byte, capacity)}
}

// Capacity returns the total size of the backing region.
func (b *Buffer) Capacity() int {
	return len(b.memory)
}

// AvailableData returns the number of unconsumed bytes.
func (b *Buffer) AvailableData() int {
	return b.end - b.start
}

// AvailableSpace returns the number of bytes that can still be filled.
func (b *Buffer) AvailableSpace() int {
	return len(b.memory) - b.end
}

// Data returns the unconsumed window. The slice is valid until the next
// mutating call.
func (b *Buffer) Data() []byte {
	return b.memory[b.start:b.end]
}

// Space returns the writable window following the unconsumed bytes.
func (b *Buffer) Space() []byte {
	return b.memory[b.end:]
}

// Consume marks n unconsumed bytes as processed.
func (b *Buffer) Consume(n int) int {
	if n > b.AvailableData() {
		n = b.AvailableData()
	}
	b.start += n
	if b.start == b.end {
		b.start, b.end = 0, 0
	}
	return n
}

// Fill marks n bytes of Space as holding data.
func (b *Buffer) Fill(n int) int {
	if n > b.AvailableSpace() {
		n = b.AvailableSpace()
	}
	b.end += n
	return n
}

// Compact moves unconsumed bytes to the front of the region so that the
// whole remaining capacity becomes available as Space.
func (b *Buffer) Compact() {
	if b.start == 0 {
		return
	}
	n := copy(b.memory, b.memory[b.start:b.end])
	b.start, b.end = 0, n
}

// Grow enlarges the buffer to capacity. It never shrinks.
func (b *Buffer) Grow(capacity int) bool {
	if capacity <= len(b.memory) {
		return false
	}
	memory := make([]byte, capacity)
	n := copy(memory, b.memory[b.start:b.end])
	b.memory, b.start, b.end = memory, 0, n
	return true
}

// WriteOnce performs a single write of the unconsumed bytes to w and returns
// the number of bytes accepted. Cursors are not moved; callers Consume the
// returned count. Errors from w are returned untouched.
func (b *Buffer) WriteOnce(w io.Writer) (int, error) {
	if b.AvailableData() == 0 {
		return 0, nil
	}
	return w.Write(b.Data())
}

// ReadOnce performs a single read from r into Space and returns the number
// of bytes read. Callers Fill the returned count. Errors from r are
// returned untouched.
func (b *Buffer) ReadOnce(r io.Reader) (int, error) {
	if b.AvailableSpace() == 0 {
		b.Compact()
	}
	if b.AvailableSpace() == 0 {
		return 0, nil
	}
	return r.Read(b.Space())
}

// Checkpoint saves the fill cursor.
func (b *Buffer) Checkpoint() Checkpoint {
	return Checkpoint{end: b.end}
}

// Rollback restores the fill cursor saved by cp, discarding anything filled
// since. The unconsumed window is byte-identical to its state at cp.
func (b *Buffer) Rollback(cp Checkpoint) {
	if cp.end < b.start {
		cp.end = b.start
	}
	if cp.end <= b.end {
		b.end = cp.end
	}
}
