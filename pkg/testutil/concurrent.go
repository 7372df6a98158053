// Package testutil holds helpers shared by concurrency tests.
package testutil

import (
	"errors"
	"sync"
)

// Outcome collects the results of one Race.
type Outcome struct {
	Successes int
	Errs      []error
}

// Matching counts errors that match target under errors.Is.
func (o Outcome) Matching(target error) int {
	n := 0
	for _, err := range o.Errs {
		if errors.Is(err, target) {
			n++
		}
	}
	return n
}

// Unexpected returns the errors matching none of expected.
func (o Outcome) Unexpected(expected ...error) []error {
	var out []error
outer:
	for _, err := range o.Errs {
		for _, want := range expected {
			if errors.Is(err, want) {
				continue outer
			}
		}
		out = append(out, err)
	}
	return out
}

// Race starts n goroutines, releases them at the same moment and waits for
// all of them to return.
func Race(n int, fn func(i int) error) Outcome {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		out   Outcome
		start = make(chan struct{})
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := fn(i)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				out.Successes++
				return
			}
			out.Errs = append(out.Errs, err)
		}()
	}
	close(start)
	wg.Wait()
	return out
}
