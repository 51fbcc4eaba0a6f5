package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsJobs(t *testing.T) {
	p := New(2, 8)
	defer p.Close()

	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		if !p.Submit(func() {
			n.Add(1)
			wg.Done()
		}) {
			wg.Done()
		}
	}
	wg.Wait()
	if n.Load() != 10 {
		t.Errorf("ran %d jobs, want 10", n.Load())
	}
}

func TestSubmitNeverBlocksWhenFull(t *testing.T) {
	p := New(1, 1)
	defer p.Close()

	block := make(chan struct{})
	p.Submit(func() { <-block }) // occupies the worker
	p.Submit(func() {})          // fills the queue

	done := make(chan bool, 1)
	go func() {
		done <- p.Submit(func() {})
	}()
	select {
	case ok := <-done:
		if ok {
			t.Error("submit to a full queue should report the drop")
		}
	case <-time.After(time.Second):
		t.Fatal("submit blocked on a full queue")
	}
	close(block)
}

func TestJobPanicDoesNotKillWorker(t *testing.T) {
	p := New(1, 8)
	defer p.Close()

	p.Submit(func() { panic("boom") })

	ran := make(chan struct{})
	p.Submit(func() { close(ran) })
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("worker died after a panicking job")
	}
}

func TestSubmitAfterCloseIsRejected(t *testing.T) {
	p := New(1, 4)
	p.Close()

	// A straggler submitting during shutdown must be turned away, not
	// panic on the closed queue.
	if p.Submit(func() {}) {
		t.Error("submit after Close returned true")
	}
}

func TestCloseWaitsForInFlight(t *testing.T) {
	p := New(2, 8)
	var n atomic.Int32
	for i := 0; i < 5; i++ {
		p.Submit(func() {
			time.Sleep(10 * time.Millisecond)
			n.Add(1)
		})
	}
	p.Close()
	if n.Load() != 5 {
		t.Errorf("Close returned with %d of 5 jobs finished", n.Load())
	}
}
