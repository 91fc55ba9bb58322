package async

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNoOperations is returned by First when it is given nothing to race
	ErrNoOperations = errors.New("no operations to race")
	// ErrRaceExhausted is returned by First when every operation cancelled itself
	ErrRaceExhausted = errors.New("all raced operations were cancelled")
)

// Op is a blocking operation that can be raced by First
type Op[T any] func(ctx context.Context) (T, error)

type outcome[T any] struct {
	value T
	err   error
}

// First runs all ops concurrently and returns the outcome of the first one
// to complete. The remaining ops are cancelled and First waits for them to
// return before it does.
//
// An op that ends with context.Canceled while ctx is still live has been
// cancelled by someone else; it does not win and First keeps waiting on the
// others. If all ops end that way, First returns ErrRaceExhausted.
func First[T any](ctx context.Context, ops ...Op[T]) (T, error) {
	var zero T
	if len(ops) == 0 {
		return zero, ErrNoOperations
	}

	raceCtx, cancel := context.WithCancel(ctx)
	results := make(chan outcome[T], len(ops))

	var wg sync.WaitGroup
	for _, op := range ops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := op(raceCtx)
			results <- outcome[T]{value: v, err: err}
		}()
	}

	// Losers are joined before returning
	defer func() {
		cancel()
		wg.Wait()
	}()

	for range ops {
		r := <-results
		if errors.Is(r.err, context.Canceled) {
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			continue
		}
		return r.value, r.err
	}

	if err := ctx.Err(); err != nil {
		return zero, err
	}
	return zero, ErrRaceExhausted
}
