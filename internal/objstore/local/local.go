// Package local implements objstore.Store on the local filesystem. It
// registers the "file" scheme, which also serves bare paths.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ecommetl/internal/config"
	"ecommetl/internal/objstore"
)

func init() {
	objstore.Register("file", func(_ context.Context, loc objstore.Location, _ config.ObjStore) (objstore.Store, error) {
		return New(loc.Path), nil
	})
}

// Store is a directory-rooted object store. Keys map to paths under root.
// It is safe for concurrent use as long as callers do not write the same
// key concurrently.
type Store struct {
	root string
}

// New returns a Store rooted at dir. The directory need not exist yet.
func New(dir string) *Store { return &Store{root: filepath.Clean(dir)} }

func (s *Store) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// URL returns the filesystem path of key.
func (s *Store) URL(key string) string {
	p := filepath.ToSlash(s.path(key))
	if strings.HasSuffix(key, "/") && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// List walks root and returns regular files whose key has prefix. A missing
// root yields no objects.
func (s *Store) List(ctx context.Context, prefix string) ([]objstore.Object, error) {
	var out []objstore.Object
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == s.root {
				return filepath.SkipAll
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, objstore.Object{Key: key, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local: list %s: %w", s.root, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Open opens key for sequential reading.
//
// Behavior:
//   - If ctx is already done, Open returns the context error without
//     touching the filesystem.
//   - A missing key returns an error matching objstore.ErrNotFound.
//   - The kernel is told the file will be read sequentially (Linux only).
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := s.path(key)
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", p, objstore.ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	adviseSequential(f)
	return f, nil
}

// Put writes r to a temp file next to key and renames it into place, so
// readers never see a partial object.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("local: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-"+filepath.Base(p)+"-*")
	if err != nil {
		return fmt.Errorf("local: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	n, err := io.Copy(tmp, r)
	if err == nil && size >= 0 && n != size {
		err = fmt.Errorf("short write: %d of %d bytes", n, size)
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("local: put %s: %w", key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("local: put %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes every file under prefix. When prefix names a
// directory ("a/b/"), emptied directories are removed as well.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	objs, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, o := range objs {
		if err := os.Remove(s.path(o.Key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return n, fmt.Errorf("local: delete %s: %w", o.Key, err)
		}
		n++
	}
	if strings.HasSuffix(prefix, "/") {
		s.pruneEmptyDirs(s.path(prefix))
	}
	return n, nil
}

// pruneEmptyDirs removes dir and its empty subdirectories, stopping at
// anything that still holds files.
func (s *Store) pruneEmptyDirs(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			s.pruneEmptyDirs(filepath.Join(dir, e.Name()))
		}
	}
	_ = os.Remove(dir) // fails harmlessly when not empty
}
