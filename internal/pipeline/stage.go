package pipeline

import (
	"context"
	"sync"
)

type task struct {
	name string
	run  func(context.Context) (StepReport, error)
}

// runStage executes tasks on up to jobs workers and hands every report to
// emit from a single goroutine. The first failure cancels the rest and is
// returned.
func runStage(parent context.Context, jobs int, tasks []task, emit func(StepReport) error) error {
	if jobs < 1 {
		jobs = 1
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	in := make(chan task)
	results := make(chan StepReport, jobs*2)

	// Workers
	var wg sync.WaitGroup
	wg.Add(jobs)
	for w := 0; w < jobs; w++ {
		go func() {
			defer wg.Done()
			for t := range in {
				rep, err := t.run(ctx)
				if err != nil {
					fail(err)
					continue
				}
				select {
				case results <- rep:
				case <-ctx.Done():
				}
			}
		}()
	}

	// Collector
	var cwg sync.WaitGroup
	cwg.Add(1)
	go func() {
		defer cwg.Done()
		for rep := range results {
			if emit == nil {
				continue
			}
			if err := emit(rep); err != nil {
				fail(err)
			}
		}
	}()

	// Feed work
feed:
	for _, t := range tasks {
		select {
		case <-ctx.Done():
			break feed
		case in <- t:
		}
	}

	close(in)
	wg.Wait()
	close(results)
	cwg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return parent.Err()
}
