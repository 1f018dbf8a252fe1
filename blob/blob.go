// Package blob implements the content area of a meld bin as a file hierarchy.
//
// Each blob lives at {identity}/{version} beneath the store's root.
// Blobs are written once and never modified.
package blob

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/meld-cfg/meld"
)

// Store is a file-based blob store.
type Store struct {
	fs afero.Fs
}

// New produces a new Store whose root is the root of fs.
// Use afero.NewBasePathFs to root it at a bin's blobs directory.
func New(fs afero.Fs) *Store {
	return &Store{fs: fs}
}

// NewDir produces a new Store rooted at dir on the OS filesystem.
func NewDir(dir string) *Store {
	return New(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

func blobdir(id string) string {
	return id
}

func blobpath(id string, ver uint32) string {
	return filepath.Join(blobdir(id), strconv.FormatUint(uint64(ver), 10))
}

// Has tells whether the blob for the given identity and version exists.
func (s *Store) Has(_ context.Context, id string, ver uint32) (bool, error) {
	_, err := s.fs.Stat(blobpath(id, ver))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, &meld.IOError{Op: "stat", Path: blobpath(id, ver), Err: err}
	}
	return true, nil
}

// Open opens the blob for the given identity and version.
// It returns meld.ErrBlobNotFound if there is none.
func (s *Store) Open(_ context.Context, id string, ver uint32) (io.ReadCloser, error) {
	path := blobpath(id, ver)
	f, err := s.fs.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(meld.ErrBlobNotFound, "%s version %d", id, ver)
	}
	if err != nil {
		return nil, &meld.IOError{Op: "open", Path: path, Err: err}
	}
	return f, nil
}

// Put writes the content read from r as the blob for the given identity and version.
//
// The content is written to a temporary file first and hashed on the way.
// Only if the hash equals wantHash,
// and the temporary file is intact on disk,
// is it renamed into place.
// So a blob at {identity}/{version} is always complete.
// A blob left over from an earlier, interrupted push is replaced.
func (s *Store) Put(_ context.Context, id string, ver uint32, r io.Reader, wantHash string) error {
	dir := blobdir(id)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return &meld.IOError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := afero.TempFile(s.fs, dir, ".put-")
	if err != nil {
		return &meld.IOError{Op: "create", Path: dir, Err: err}
	}
	tmpname := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			s.fs.Remove(tmpname)
		}
	}()

	var (
		h = sha512.New()
		w = io.MultiWriter(tmp, h)
	)
	n, err := io.Copy(w, r)
	if err != nil {
		tmp.Close()
		return &meld.IOError{Op: "write", Path: tmpname, Err: err}
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return &meld.IOError{Op: "sync", Path: tmpname, Err: err}
	}
	if err = tmp.Close(); err != nil {
		return &meld.IOError{Op: "close", Path: tmpname, Err: err}
	}

	if got := hex.EncodeToString(h.Sum(nil)); got != wantHash {
		return &meld.IOError{
			Op:   "verify",
			Path: tmpname,
			Err:  errors.Errorf("content hash %s does not match expected %s (changed while copying?)", got, wantHash),
		}
	}

	info, err := s.fs.Stat(tmpname)
	if err != nil {
		return &meld.IOError{Op: "verify", Path: tmpname, Err: err}
	}
	if info.Size() != n {
		return &meld.IOError{Op: "verify", Path: tmpname, Err: errors.Errorf("size on disk %d, wrote %d", info.Size(), n)}
	}

	path := blobpath(id, ver)
	if err = s.fs.Rename(tmpname, path); err != nil {
		return &meld.IOError{Op: "rename", Path: path, Err: err}
	}
	committed = true
	return nil
}

// PutFile is Put reading from the file at path on the OS filesystem.
func (s *Store) PutFile(ctx context.Context, id string, ver uint32, path, wantHash string) error {
	f, err := os.Open(path)
	if err != nil {
		return &meld.IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	return s.Put(ctx, id, ver, f, wantHash)
}
