package transformer

import (
	"context"
	"errors"
)

// OutcomeFunc observes every row that was rejected (err != nil) or kept with
// nulled fields. It runs on the worker goroutine before the row is freed or
// forwarded and must not retain r.
type OutcomeFunc func(r *Row, o Outcome, err error)

// TransformLoopRows applies t to pooled rows from in and forwards kept rows
// to out. Rejected rows are reported to onOutcome and freed.
//
// A fatal *CoercionError (FailJob policy) stops the loop and is returned so
// the caller's errgroup cancels the run. Several loops may share in and out.
// The caller closes out after all loops return.
func TransformLoopRows(
	ctx context.Context,
	t *Transformer,
	in <-chan *Row,
	out chan<- *Row,
	onOutcome OutcomeFunc,
) error {
	for r := range in {
		select {
		case <-ctx.Done():
			r.Free()
			return ctx.Err()
		default:
		}

		o, err := t.Apply(r)
		if err != nil {
			if onOutcome != nil {
				onOutcome(r, o, err)
			}
			r.Free()
			var ce *CoercionError
			if errors.As(err, &ce) && ce.Fatal {
				return err
			}
			continue
		}
		if len(o.Nulled) > 0 && onOutcome != nil {
			onOutcome(r, o, nil)
		}

		select {
		case out <- r:
		case <-ctx.Done():
			r.Free()
			return ctx.Err()
		}
	}
	return nil
}
