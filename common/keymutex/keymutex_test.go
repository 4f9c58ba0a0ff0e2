package keymutex_test

import (
	"sync"
	"testing"
	"time"

	"github.com/haru-ai/haru/common/keymutex"
)

func TestLock_SerializesSameKey(t *testing.T) {
	km := keymutex.New()

	unlock := km.Lock("entry-1")

	acquired := make(chan struct{})
	go func() {
		u := km.Lock("entry-1")
		u()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock returned while first holder was active")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock never unblocked")
	}
}

func TestLock_ParallelAcrossKeys(t *testing.T) {
	km := keymutex.New()

	unlock := km.Lock("entry-1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		u := km.Lock("entry-2")
		u()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Lock on a different key blocked")
	}
}

func TestLock_CountsUnderContention(t *testing.T) {
	km := keymutex.New()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("shared")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}
}
