package meld

import (
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// Hasher computes content hashes,
// remembering recent results in a least-recently-used cache
// so that a file visited twice in one operation is read only once.
// A cached hash is reused only while the file's size and modification time are unchanged.
//
// A Hasher is meant to live for a single push or pull.
// It must not be shared across operations.
type Hasher struct {
	c *lru.Cache // path -> hashed
}

type hashed struct {
	size  int64
	mtime time.Time
	hash  string
}

// DefaultHashCacheSize is the cache size NewHasher uses when given a non-positive size.
const DefaultHashCacheSize = 4096

// NewHasher produces a new Hasher caching up to size results.
func NewHasher(size int) (*Hasher, error) {
	if size <= 0 {
		size = DefaultHashCacheSize
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "creating hash cache")
	}
	return &Hasher{c: c}, nil
}

// Contents is like HashContents but consults and fills the cache.
func (h *Hasher) Contents(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", &IOError{Op: "stat", Path: path, Err: err}
	}
	if info.IsDir() {
		return DirHash, nil
	}
	if got, ok := h.c.Get(path); ok {
		p := got.(hashed)
		if p.size == info.Size() && p.mtime.Equal(info.ModTime()) {
			return p.hash, nil
		}
	}
	hash, err := hashFile(path)
	if err != nil {
		return "", err
	}
	h.c.Add(path, hashed{size: info.Size(), mtime: info.ModTime(), hash: hash})
	return hash, nil
}

// Len tells how many results are cached.
func (h *Hasher) Len() int {
	return h.c.Len()
}
