package joblock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLock_SerializesPerJob(t *testing.T) {
	r := New()

	var mu sync.Mutex
	counters := map[string]int{}
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := r.Lock("job1")
			defer unlock()
			mu.Lock()
			counters["job1"]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counters["job1"])
}

func TestLock_IndependentJobs(t *testing.T) {
	r := New()

	unlock1 := r.Lock("job1")
	defer unlock1()

	// A different job's lock is acquirable while job1 is held.
	done := make(chan struct{})
	go func() {
		unlock2 := r.Lock("job2")
		unlock2()
		close(done)
	}()
	<-done
}

func TestForget(t *testing.T) {
	r := New()
	unlock := r.Lock("job1")
	unlock()
	r.Forget("job1")

	// Locking after Forget creates a fresh mutex without deadlocking.
	unlock = r.Lock("job1")
	unlock()
}
