package response

import "sync"

// Queue is an unbounded FIFO of [Chunk] values shared between the network
// receive goroutine (producer) and the character's polling tick (consumer).
// Insertion order is playback order; elements are consumed exactly once.
//
// All methods hold the mutex only for the append/remove itself, so neither
// side can block the other for longer than a bounded critical section.
type Queue struct {
	mu     sync.Mutex
	chunks []*Chunk
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends chunk to the queue. Nil chunks and chunks that carry no
// audio payload and are not end-of-response markers are silently dropped —
// the service emits such keep-alive frames and they are not an error.
func (q *Queue) Enqueue(chunk *Chunk) {
	if chunk == nil {
		return
	}
	if len(chunk.Audio) == 0 && !chunk.Final {
		return
	}

	q.mu.Lock()
	q.chunks = append(q.chunks, chunk)
	q.mu.Unlock()
}

// DrainOne removes and returns the oldest chunk. It never blocks; ok is
// false when the queue is empty.
func (q *Queue) DrainOne() (chunk *Chunk, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.chunks) == 0 {
		return nil, false
	}

	chunk = q.chunks[0]
	q.chunks[0] = nil // release for GC
	q.chunks = q.chunks[1:]

	// Reset the backing array once fully drained so a long session does not
	// pin the high-water-mark allocation.
	if len(q.chunks) == 0 {
		q.chunks = nil
	}
	return chunk, true
}

// Clear discards all pending chunks. Used on interruption so stale chunks
// never resurface in the next response cycle.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.chunks = nil
	q.mu.Unlock()
}

// Len reports the number of pending chunks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}
