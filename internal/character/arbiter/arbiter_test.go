package arbiter_test

import (
	"sync"
	"testing"

	"github.com/tavernworks/parley/internal/character/arbiter"
)

func TestArbiter_InitiallyNobodyActive(t *testing.T) {
	t.Parallel()

	a := arbiter.New()
	if got := a.Active(); got != "" {
		t.Errorf("Active() = %q; want empty", got)
	}
}

func TestArbiter_SetActiveNotifiesSubscribers(t *testing.T) {
	t.Parallel()

	a := arbiter.New()

	var mu sync.Mutex
	var seen []string
	a.Subscribe(func(active string) {
		mu.Lock()
		seen = append(seen, active)
		mu.Unlock()
	})

	a.SetActive("innkeeper")
	a.SetActive("guard")
	a.SetActive("")

	mu.Lock()
	defer mu.Unlock()
	want := []string{"innkeeper", "guard", ""}
	if len(seen) != len(want) {
		t.Fatalf("notifications = %v; want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("notification[%d] = %q; want %q", i, seen[i], want[i])
		}
	}
}

func TestArbiter_SetSameActiveIsNoOp(t *testing.T) {
	t.Parallel()

	a := arbiter.New()

	var mu sync.Mutex
	count := 0
	a.Subscribe(func(string) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	a.SetActive("innkeeper")
	a.SetActive("innkeeper")

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("subscriber invoked %d times; want 1", count)
	}
}

func TestArbiter_UnsubscribeStopsNotifications(t *testing.T) {
	t.Parallel()

	a := arbiter.New()

	var mu sync.Mutex
	count := 0
	token := a.Subscribe(func(string) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	a.SetActive("innkeeper")
	a.Unsubscribe(token)
	a.SetActive("guard")

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("subscriber invoked %d times after unsubscribe; want 1", count)
	}
}

func TestArbiter_SubscribersNotifiedInOrder(t *testing.T) {
	t.Parallel()

	a := arbiter.New()

	var mu sync.Mutex
	var order []int
	for i := range 3 {
		a.Subscribe(func(string) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	a.SetActive("innkeeper")

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Errorf("notification order = %v; want [0 1 2]", order)
	}
}

func TestArbiter_ConcurrentSetActive(t *testing.T) {
	t.Parallel()

	a := arbiter.New()
	a.Subscribe(func(string) {})

	var wg sync.WaitGroup
	ids := []string{"innkeeper", "guard", "merchant", ""}
	for _, id := range ids {
		wg.Go(func() {
			for range 50 {
				a.SetActive(id)
			}
		})
	}
	wg.Wait()

	// The final active speaker is whichever write landed last; it must be one
	// of the written values.
	got := a.Active()
	found := false
	for _, id := range ids {
		if got == id {
			found = true
		}
	}
	if !found {
		t.Errorf("Active() = %q; want one of %v", got, ids)
	}
}
