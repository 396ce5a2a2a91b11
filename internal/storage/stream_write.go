package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ecommetl/internal/transformer"
)

// WriteLoopRows drains transformed rows into w, returning each row to the
// pool once it has been added. It logs progress every logEvery rows and
// returns the number of rows added.
//
// Cancellation: returns (total, ctx.Err()) when canceled.
func WriteLoopRows(
	ctx context.Context,
	in <-chan *transformer.Row,
	w *Writer,
	logEvery int64,
	log *zap.Logger,
) (int64, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var (
		total     int64
		start     = time.Now()
		lastTS    = start
		lastTotal int64
	)
	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case r, ok := <-in:
			if !ok {
				log.Debug("writer: input closed", zap.Int64("total_rows", total))
				return total, nil
			}
			err := w.Add(r.Out, r.PartVals)
			r.Free()
			if err != nil {
				return total, err
			}
			total++
			if logEvery > 0 && total%logEvery == 0 {
				now := time.Now()
				since := now.Sub(lastTS)
				rps := float64(0)
				if since > 0 {
					rps = float64(total-lastTotal) / since.Seconds()
				}
				log.Info("writer progress",
					zap.Int64("rows", total),
					zap.Float64("rps", rps),
					zap.Duration("elapsed", now.Sub(start).Truncate(time.Millisecond)))
				lastTS, lastTotal = now, total
			}
		}
	}
}
