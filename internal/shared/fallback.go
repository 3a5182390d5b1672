package shared

import (
	"context"
	"errors"
	"fmt"
)

// Strategy is one candidate way of producing a T, tried by [FirstSuccess].
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// ErrEmptyResult lets a strategy report a well-formed but useless answer so the next one is tried.
var ErrEmptyResult = fmt.Errorf("empty result")

// FirstSuccess evaluates strategies in order and returns the first result without error.
//
// The name of the winning strategy is returned alongside. When every strategy fails the
// returned error wraps the last failure, and tried lists the names in evaluation order.
func FirstSuccess[T any](ctx context.Context, strategies ...Strategy[T]) (result T, winner string, tried []string, err error) {
	if len(strategies) == 0 {
		return result, "", nil, fmt.Errorf("%w: no strategies", ErrInvalidArgument)
	}

	for _, s := range strategies {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, "", tried, ctxErr
		}

		tried = append(tried, s.Name)
		out, runErr := s.Run(ctx)
		if runErr == nil {
			return out, s.Name, tried, nil
		}
		err = fmt.Errorf("%s: %w", s.Name, runErr)
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			return result, "", tried, err
		}
	}

	return result, "", tried, err
}
