package pdfjobs

import (
	"fmt"
	"sync"
	"testing"
)

func TestJobQueue_FIFO(t *testing.T) {
	t.Parallel()

	q := NewJobQueue()
	for i := range 3 {
		q.Enqueue(&Job{RequestID: fmt.Sprint(i)})
	}
	if q.Size() != 3 {
		t.Fatalf("Size() = %d, want 3", q.Size())
	}

	jobs := q.DrainAll()
	for i, j := range jobs {
		if j.RequestID != fmt.Sprint(i) {
			t.Errorf("job %d = %s, want %d", i, j.RequestID, i)
		}
	}
	if q.Size() != 0 {
		t.Errorf("Size() after DrainAll = %d, want 0", q.Size())
	}
	if got := q.DrainAll(); len(got) != 0 {
		t.Errorf("second DrainAll() = %d jobs, want 0", len(got))
	}
}

func TestJobQueue_ReadySignal(t *testing.T) {
	t.Parallel()

	q := NewJobQueue()
	select {
	case <-q.Ready():
		t.Fatal("Ready() signaled on an empty queue")
	default:
	}

	q.Enqueue(&Job{})
	q.Enqueue(&Job{})
	select {
	case <-q.Ready():
	default:
		t.Fatal("Ready() not signaled after Enqueue")
	}
}

// Every enqueued job is drained exactly once under concurrent producers.
func TestJobQueue_ConcurrentProducers(t *testing.T) {
	t.Parallel()

	q := NewJobQueue()
	const producers, perProducer = 8, 50

	var wg sync.WaitGroup
	seen := make(map[string]int)
	var mu sync.Mutex
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			jobs := q.DrainAll()
			mu.Lock()
			for _, j := range jobs {
				seen[j.RequestID]++
			}
			n := len(seen)
			mu.Unlock()
			if n == producers*perProducer {
				return
			}
			<-q.Ready()
		}
	}()

	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				q.Enqueue(&Job{RequestID: fmt.Sprintf("%d-%d", p, i)})
			}
		}()
	}
	wg.Wait()
	<-done

	for id, n := range seen {
		if n != 1 {
			t.Errorf("job %s drained %d times", id, n)
		}
	}
}
