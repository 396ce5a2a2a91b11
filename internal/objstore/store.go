// Package objstore is the object-storage abstraction the reader, writer and
// rejects file go through. Backends register a Factory per URL scheme from
// their init functions; importing ecommetl/internal/objstore/all enables the
// built-in ones.
//
// A Store is rooted at the location it was resolved from. Keys are
// slash-separated and relative to that root, so "year=2024/month=03/day=05/"
// means the same thing for a local directory and an S3 prefix.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"ecommetl/internal/config"
)

// ErrNotFound is returned by Open for a missing key.
var ErrNotFound = errors.New("objstore: object not found")

// Object describes one stored object.
type Object struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Store is a minimal object store rooted at one location.
type Store interface {
	// List returns every object whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]Object, error)
	// Open opens key for reading.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Put atomically replaces key with the contents of r. size is the
	// expected length, or -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	// DeletePrefix removes every object under prefix and returns how many
	// were removed. Deleting an empty prefix is not an error.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// URL renders key as a location string in the store's own scheme.
	URL(key string) string
}

// Location is a parsed storage URL. Scheme is "" for bare filesystem paths.
type Location struct {
	Scheme string
	Bucket string
	Path   string
}

// ParseLocation parses "s3://bucket/prefix/", "file:///abs/dir" or a bare
// path.
func ParseLocation(s string) (Location, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Location{}, errors.New("objstore: empty location")
	}
	if !strings.Contains(s, "://") {
		return Location{Path: s}, nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return Location{}, fmt.Errorf("objstore: parse location %q: %w", s, err)
	}
	switch u.Scheme {
	case "file":
		p := u.Path
		if u.Host != "" && u.Host != "localhost" {
			p = u.Host + p
		}
		return Location{Scheme: "file", Path: p}, nil
	default:
		if u.Host == "" {
			return Location{}, fmt.Errorf("objstore: location %q has no bucket", s)
		}
		return Location{Scheme: u.Scheme, Bucket: u.Host, Path: strings.TrimPrefix(u.Path, "/")}, nil
	}
}

// String renders l back to its URL form.
func (l Location) String() string {
	switch l.Scheme {
	case "":
		return l.Path
	case "file":
		return "file://" + l.Path
	default:
		if l.Path == "" {
			return l.Scheme + "://" + l.Bucket
		}
		return l.Scheme + "://" + l.Bucket + "/" + l.Path
	}
}

// Join returns l with key appended to its path.
func (l Location) Join(key string) Location {
	if key == "" {
		return l
	}
	p := l.Path
	if p != "" && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	l.Path = p + strings.TrimPrefix(key, "/")
	return l
}

// Factory opens a Store rooted at loc.
type Factory func(ctx context.Context, loc Location, cfg config.ObjStore) (Store, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register binds scheme to f. Bare paths use the "file" factory.
// Registering a scheme twice panics.
func Register(scheme string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := factories[scheme]; dup {
		panic("objstore: duplicate scheme " + scheme)
	}
	factories[scheme] = f
}

// Schemes returns the registered schemes, sorted.
func Schemes() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for s := range factories {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Resolve parses location and opens a Store rooted there.
func Resolve(ctx context.Context, location string, cfg config.ObjStore) (Store, error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}
	scheme := loc.Scheme
	if scheme == "" {
		scheme = "file"
	}
	regMu.RLock()
	f, ok := factories[scheme]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("objstore: no store registered for scheme %q (have %v)", scheme, Schemes())
	}
	return f(ctx, loc, cfg)
}

// DirPrefix returns the Hive-style directory prefix for keys and values,
// e.g. "year=2024/month=03/day=05/".
func DirPrefix(keys, values []string) string {
	var b strings.Builder
	for i, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		if i < len(values) {
			b.WriteString(values[i])
		}
		b.WriteByte('/')
	}
	return b.String()
}
