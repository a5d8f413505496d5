package chatlock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithLockExcludesConcurrentAccess(t *testing.T) {
	m := New()
	var active int32
	var maxObserved int32
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.WithLock(1, func() {
				n := atomic.AddInt32(&active, 1)
				mu.Lock()
				if n > maxObserved {
					maxObserved = n
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxObserved)
}

func TestDifferentChatsDoNotContend(t *testing.T) {
	m := New()
	start := make(chan struct{})
	var wg sync.WaitGroup
	done := make(chan struct{}, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		m.WithLock(1, func() {
			time.Sleep(20 * time.Millisecond)
			done <- struct{}{}
		})
	}()
	go func() {
		defer wg.Done()
		<-start
		m.WithLock(2, func() {
			done <- struct{}{}
		})
	}()

	close(start)
	wg.Wait()
	close(done)

	count := 0
	for range done {
		count++
	}
	assert.Equal(t, 2, count)
}

func TestLockUnlock(t *testing.T) {
	m := New()
	m.Lock(5)
	unlocked := make(chan struct{})
	go func() {
		m.Lock(5)
		m.Unlock(5)
		close(unlocked)
	}()

	select {
	case <-unlocked:
		t.Fatal("second Lock should block until Unlock")
	case <-time.After(20 * time.Millisecond):
	}

	m.Unlock(5)
	<-unlocked
}
