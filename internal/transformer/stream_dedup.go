package transformer

import (
	"context"

	"ecommetl/internal/transformer/builtin"
)

// DedupLoopRows forwards the first row seen for each event_id and drops later
// ones, reporting each drop to onDup. It runs between the reader and the
// transform workers so that "first" means first in read order.
//
// The loop never returns early: on cancellation it keeps draining in and
// freeing rows, so the upstream reader cannot block on a full channel. The
// caller closes out after it returns.
func DedupLoopRows(
	ctx context.Context,
	t *Transformer,
	d *builtin.DeDup,
	in <-chan *Row,
	out chan<- *Row,
	onDup func(r *Row),
) {
	for r := range in {
		if ctx.Err() != nil {
			r.Free()
			continue
		}
		if d.Seen(t.EventID(r)) {
			if onDup != nil {
				onDup(r)
			}
			r.Free()
			continue
		}
		select {
		case out <- r:
		case <-ctx.Done():
			r.Free()
		}
	}
}
