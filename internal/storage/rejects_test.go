package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecommetl/internal/objstore/local"
)

func TestRejectsWriter(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	w := NewRejectsWriter(local.New(root), "run-1")

	loc, err := w.Flush(ctx)
	require.NoError(t, err)
	assert.Empty(t, loc, "nothing to write")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, w.Add(RejectRecord{
				Kind: KindRejected, Source: "a.json", Line: i + 1,
				Reasons: []string{"price: not a number"},
				Raw:     map[string]any{"price": "N/A"},
			}))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, w.Len())

	loc, err = w.Flush(ctx)
	require.NoError(t, err)
	assert.Contains(t, loc, "run_id=run-1/errors.json")

	fh, err := os.Open(filepath.Join(root, "run_id=run-1", "errors.json"))
	require.NoError(t, err)
	defer fh.Close()
	sc := bufio.NewScanner(fh)
	n := 0
	for sc.Scan() {
		var rec RejectRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		assert.Equal(t, KindRejected, rec.Kind)
		assert.Equal(t, "N/A", rec.Raw["price"])
		n++
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, 10, n)
}
