package core

import (
	"fmt"
	"runtime"
	"sync"
)

// forEach runs fn(i) for i in [0,n) on at most `workers` goroutines and
// waits for all of them. A panic in any call is re-raised on the caller's
// goroutine after the pool drains, so callers can recover it.
func forEach(workers, n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}
	if workers == 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	jobs := make(chan int)
	var (
		wg        sync.WaitGroup
		panicMu   sync.Mutex
		firstPanic any
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				func() {
					defer func() {
						if r := recover(); r != nil {
							panicMu.Lock()
							if firstPanic == nil {
								firstPanic = fmt.Errorf("worker panic on item %d: %v", i, r)
							}
							panicMu.Unlock()
						}
					}()
					fn(i)
				}()
			}
		}()
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if firstPanic != nil {
		panic(firstPanic)
	}
}
