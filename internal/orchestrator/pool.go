package orchestrator

import (
	"runtime"
	"sync"
)

// forEachParallel runs fn(i) for i in [0,n) across a fixed pool of workers.
// Results must be written to pre-sized slots by index so the output order
// is independent of scheduling.
func forEachParallel(workers, n int, fn func(i int)) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}
	if n == 0 {
		return
	}

	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}
