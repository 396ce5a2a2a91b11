package datadog

import (
	"errors"
	"testing"
	"time"

	"ecommetl/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	kind  string
	name  string
	value float64
	tags  []string
}

type fakeStatter struct {
	calls    []call
	closed   int
	closeErr error
}

func (f *fakeStatter) Count(name string, value int64, tags []string, _ float64) error {
	f.calls = append(f.calls, call{"count", name, float64(value), tags})
	return nil
}

func (f *fakeStatter) Histogram(name string, value float64, tags []string, _ float64) error {
	f.calls = append(f.calls, call{"histogram", name, value, tags})
	return nil
}

func (f *fakeStatter) Close() error {
	f.closed++
	return f.closeErr
}

func TestBackend_RecordsThroughMetricsPackage(t *testing.T) {
	fs := &fakeStatter{}
	metrics.SetBackend(&Backend{client: fs})
	t.Cleanup(func() { metrics.SetBackend(&Backend{client: &fakeStatter{}}) })

	metrics.RecordStep("jobA", "write", nil, 250*time.Millisecond)
	metrics.RecordRow("jobA", metrics.KindDeduped, 4)
	metrics.RecordFiles("jobA", 3, 0)

	require.Len(t, fs.calls, 4)
	assert.Equal(t, call{"count", metrics.StepTotal, 1, []string{"job:jobA", "status:success", "step:write"}}, fs.calls[0])
	assert.Equal(t, "histogram", fs.calls[1].kind)
	assert.InDelta(t, 0.25, fs.calls[1].value, 1e-9)
	assert.Equal(t, call{"count", metrics.RecordsTotal, 4, []string{"job:jobA", "kind:deduped"}}, fs.calls[2])
	assert.Equal(t, call{"count", metrics.FilesTotal, 3, []string{"job:jobA"}}, fs.calls[3])
}

func TestBackend_Flush(t *testing.T) {
	fs := &fakeStatter{closeErr: errors.New("closed twice")}
	b := &Backend{client: fs}

	err := b.Flush()
	require.Error(t, err)
	assert.Equal(t, 1, fs.closed)
}

func TestLabelsToTags(t *testing.T) {
	assert.Nil(t, labelsToTags(nil))
	assert.Equal(t, []string{"a:1", "b:2"}, labelsToTags(metrics.Labels{"b": "2", "a": "1"}))
}

func TestNewBackend_UDP(t *testing.T) {
	b, err := NewBackend(Config{Addr: "127.0.0.1:8125", Namespace: "ecommetl.", GlobalTags: []string{"env:test"}})
	require.NoError(t, err)
	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": "read"})
	require.NoError(t, b.Flush())
}
