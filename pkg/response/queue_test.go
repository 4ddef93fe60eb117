package response_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/tavernworks/parley/pkg/response"
)

// audioChunk builds a chunk with an opaque audio payload derived from id.
func audioChunk(id int) *response.Chunk {
	return &response.Chunk{
		Audio:      []byte(fmt.Sprintf("payload-%04d", id)),
		Transcript: fmt.Sprintf("transcript-%04d", id),
		SampleRate: 16000,
	}
}

func TestQueueFIFOOrder(t *testing.T) {
	t.Parallel()

	q := response.NewQueue()
	for i := range 10 {
		q.Enqueue(audioChunk(i))
	}

	for i := range 10 {
		chunk, ok := q.DrainOne()
		if !ok {
			t.Fatalf("DrainOne() empty at %d, want chunk", i)
		}
		want := fmt.Sprintf("transcript-%04d", i)
		if chunk.Transcript != want {
			t.Fatalf("chunk %d transcript = %q, want %q", i, chunk.Transcript, want)
		}
	}

	if _, ok := q.DrainOne(); ok {
		t.Fatal("DrainOne() on drained queue returned a chunk")
	}
}

func TestQueueDropsEmptyNonFinalChunks(t *testing.T) {
	t.Parallel()

	q := response.NewQueue()
	q.Enqueue(nil)
	q.Enqueue(&response.Chunk{Transcript: "no audio"})
	if q.Len() != 0 {
		t.Fatalf("Len() = %d after dropping-only enqueues, want 0", q.Len())
	}

	// A final marker without audio is kept — it terminates the cycle.
	q.Enqueue(&response.Chunk{Final: true})
	if q.Len() != 1 {
		t.Fatalf("Len() = %d after final enqueue, want 1", q.Len())
	}
	chunk, ok := q.DrainOne()
	if !ok || !chunk.Final {
		t.Fatalf("DrainOne() = (%+v, %v), want final chunk", chunk, ok)
	}
}

func TestQueueClear(t *testing.T) {
	t.Parallel()

	q := response.NewQueue()
	for i := range 5 {
		q.Enqueue(audioChunk(i))
	}
	q.Clear()

	if q.Len() != 0 {
		t.Fatalf("Len() = %d after Clear, want 0", q.Len())
	}
	if _, ok := q.DrainOne(); ok {
		t.Fatal("DrainOne() after Clear returned a chunk")
	}
}

// TestQueueConcurrentEnqueueDrain checks the FIFO invariant under a
// concurrent producer and consumer: drained ids from a single producer must
// be strictly increasing.
func TestQueueConcurrentEnqueueDrain(t *testing.T) {
	t.Parallel()

	const total = 1000
	q := response.NewQueue()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range total {
			q.Enqueue(audioChunk(i))
		}
	}()

	var drained []string
	for len(drained) < total {
		if chunk, ok := q.DrainOne(); ok {
			drained = append(drained, chunk.Transcript)
		}
	}
	wg.Wait()

	for i, transcript := range drained {
		want := fmt.Sprintf("transcript-%04d", i)
		if transcript != want {
			t.Fatalf("drained[%d] = %q, want %q (order violated)", i, transcript, want)
		}
	}
}
