package concurrency

import "sync"

// TryMap runs fn over every element of items concurrently, bounded by a
// pool of workers workers wide, and short-circuits on the first error:
// once any call returns a non-nil error, no further calls to fn are
// started and TryMap returns that error once the already-running calls
// have finished; their results are discarded.
//
// workers <= 0 means unbounded: one goroutine per item.
//
// This is the verification-pipeline building block the accounts data
// cache uses to batch-verify signatures: reject the whole batch as soon
// as one entry is known bad, without starting the rest.
func TryMap[T any, R any](items []T, workers int, fn func(T) (R, error)) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if workers <= 0 || workers > len(items) {
		workers = len(items)
	}

	results := make([]R, len(items))

	var (
		mu      sync.Mutex
		firstErr error
	)
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}
	setErr := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	work := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for idx := range work {
				if failed() {
					continue
				}
				r, err := fn(items[idx])
				if err != nil {
					setErr(err)
					continue
				}
				results[idx] = r
			}
		}()
	}

	for i := range items {
		if failed() {
			break
		}
		work <- i
	}
	close(work)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
