package hash

import (
	"sync"
	"testing"
	"time"
)

func TestAsyncReplicatorDeliversAllEvents(t *testing.T) {
	var (
		mu     sync.Mutex
		events []ExpiredField
	)
	r := NewAsyncReplicator(func(e ExpiredField) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	const producers = 4
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				r.FieldExpired(p, "key", "field", i%2 == 0)
			}
		}(p)
	}
	wg.Wait()

	// Close drains queued events before returning
	r.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(events) != producers*perProducer {
		t.Errorf("Expected %d events, got %d", producers*perProducer, len(events))
	}
}

func TestAsyncReplicatorSinkRunsOffCaller(t *testing.T) {
	delivered := make(chan ExpiredField, 1)
	r := NewAsyncReplicator(func(e ExpiredField) {
		delivered <- e
	})
	defer r.Close()

	// FieldExpired must return immediately even though nothing has read
	// from the sink yet
	r.FieldExpired(3, "session", "token", true)

	select {
	case e := <-delivered:
		if e.NS != 3 || e.Key != "session" || e.Field != "token" || !e.FromTimer {
			t.Errorf("Event is wrong: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("Event was never delivered")
	}
}

func TestAsyncReplicatorDropsAfterClose(t *testing.T) {
	var (
		mu    sync.Mutex
		count int
	)
	r := NewAsyncReplicator(func(ExpiredField) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	r.FieldExpired(0, "a", "b", false)
	r.Close()
	r.FieldExpired(0, "c", "d", false)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("Events after Close must be dropped, sink ran %d times", count)
	}
}
