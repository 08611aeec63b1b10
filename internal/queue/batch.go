package queue

import "errors"

// ErrRecordTooLarge is returned for a record that does not fit even an empty batch
var ErrRecordTooLarge = errors.New("record too large to fit in a batch")

// DefaultMaxBatchBytes bounds the combined body size of one batch
const DefaultMaxBatchBytes = 256 * 1024

// Batch accumulates message bodies up to a byte budget
type Batch struct {
	maxBytes int
	size     int
	bodies   [][]byte
}

func NewBatch(maxBytes int) *Batch {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBatchBytes
	}
	return &Batch{maxBytes: maxBytes}
}

// TryAdd appends body and reports whether it fit
func (b *Batch) TryAdd(body []byte) bool {
	if b.size+len(body) > b.maxBytes {
		return false
	}
	b.bodies = append(b.bodies, body)
	b.size += len(body)
	return true
}

func (b *Batch) Len() int {
	return len(b.bodies)
}

func (b *Batch) Size() int {
	return b.size
}

func (b *Batch) Bodies() [][]byte {
	return b.bodies
}
