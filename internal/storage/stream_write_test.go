package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ecommetl/internal/transformer"
)

func TestWriteLoopRows(t *testing.T) {
	f := newFixture(t)
	w := f.writer(t, nil)

	in := make(chan *transformer.Row, 8)
	ts := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r := transformer.GetRow(0)
		r.Out = event("e", ts, 1, 1)
		r.PartVals = day5
		in <- r
	}
	close(in)

	n, err := WriteLoopRows(context.Background(), in, w, 2, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, int64(5), w.Records())
	w.Abort()
}

func TestWriteLoopRows_BadPartitionStops(t *testing.T) {
	f := newFixture(t)
	w := f.writer(t, nil)
	defer w.Abort()

	in := make(chan *transformer.Row, 1)
	r := transformer.GetRow(0)
	r.PartVals = []string{"2024"}
	in <- r
	close(in)

	_, err := WriteLoopRows(context.Background(), in, w, 0, nil)
	assert.Error(t, err)
}

func TestWriteLoopRows_Canceled(t *testing.T) {
	f := newFixture(t)
	w := f.writer(t, nil)
	defer w.Abort()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WriteLoopRows(ctx, make(chan *transformer.Row), w, 0, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
