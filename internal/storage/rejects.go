package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"ecommetl/internal/objstore"
)

// Reject kinds.
const (
	KindRejected = "rejected"
	KindNulled   = "nulled"
	KindParse    = "parse_error"
)

// RejectRecord is one line of the rejects file.
type RejectRecord struct {
	Kind    string         `json:"kind"`
	Source  string         `json:"source"`
	Line    int            `json:"line"`
	Reasons []string       `json:"reasons"`
	Raw     map[string]any `json:"raw,omitempty"`
}

// RejectsWriter collects data-quality records for one run and writes them as
// NDJSON to <errors_path>/run_id=<id>/errors.json. It is safe for concurrent
// use by transform workers.
type RejectsWriter struct {
	store objstore.Store
	key   string

	mu  sync.Mutex
	buf bytes.Buffer
	enc *json.Encoder
	n   int
}

// NewRejectsWriter returns a writer for runID under store.
func NewRejectsWriter(store objstore.Store, runID string) *RejectsWriter {
	w := &RejectsWriter{store: store, key: "run_id=" + runID + "/errors.json"}
	w.enc = json.NewEncoder(&w.buf)
	return w
}

// Add appends rec.
func (w *RejectsWriter) Add(rec RejectRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("rejects: encode: %w", err)
	}
	w.n++
	return nil
}

// Len returns how many records were added.
func (w *RejectsWriter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Flush writes the file when at least one record was added and returns its
// location, or "" when there was nothing to write.
func (w *RejectsWriter) Flush(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.n == 0 {
		return "", nil
	}
	if err := w.store.Put(ctx, w.key, bytes.NewReader(w.buf.Bytes()), int64(w.buf.Len())); err != nil {
		return "", fmt.Errorf("rejects: put: %w", err)
	}
	return w.store.URL(w.key), nil
}
