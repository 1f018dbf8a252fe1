// Package manifest reads and writes directory-map manifests.
//
// A manifest is a plain text file named {mapIdentity}-{mapVersion}
// with one {memberIdentity}-{memberVersion} line per member of the tree,
// in walk order.
// It is the only record binding a set of member versions together
// as the state of a tree at one snapshot.
package manifest

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/meld-cfg/meld"
)

// Member is one line of a manifest.
type Member struct {
	Blob string
	Ver  uint32
}

func (m Member) String() string {
	return fmt.Sprintf("%s-%d", m.Blob, m.Ver)
}

// ParseMember parses a manifest line.
func ParseMember(line string) (Member, error) {
	i := strings.LastIndexByte(line, '-')
	if i <= 0 || i == len(line)-1 {
		return Member{}, errors.Errorf("malformed manifest line %q", line)
	}
	ver, err := strconv.ParseUint(line[i+1:], 10, 32)
	if err != nil {
		return Member{}, errors.Wrapf(err, "parsing version in manifest line %q", line)
	}
	if ver == 0 {
		return Member{}, errors.Errorf("zero version in manifest line %q", line)
	}
	return Member{Blob: line[:i], Ver: uint32(ver)}, nil
}

// Store holds manifests.
type Store struct {
	fs afero.Fs
}

// New produces a new Store whose root is the root of fs.
func New(fs afero.Fs) *Store {
	return &Store{fs: fs}
}

// NewDir produces a new Store rooted at dir on the OS filesystem.
func NewDir(dir string) *Store {
	return New(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

// Name is the file name of the manifest for the given map snapshot.
func Name(blob string, ver uint32) string {
	return fmt.Sprintf("%s-%d", blob, ver)
}

// Write writes the manifest for the given map snapshot.
// The manifest appears under its name only once it is complete.
func (s *Store) Write(_ context.Context, blob string, ver uint32, members []Member) error {
	name := Name(blob, ver)

	tmp, err := afero.TempFile(s.fs, ".", ".manifest-")
	if err != nil {
		return &meld.IOError{Op: "create", Path: name, Err: err}
	}
	tmpname := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			s.fs.Remove(tmpname)
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, m := range members {
		if _, err = fmt.Fprintln(w, m); err != nil {
			tmp.Close()
			return &meld.IOError{Op: "write", Path: tmpname, Err: err}
		}
	}
	if err = w.Flush(); err != nil {
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

	if err = s.fs.Rename(tmpname, name); err != nil {
		return &meld.IOError{Op: "rename", Path: name, Err: err}
	}
	committed = true
	return nil
}

// Read reads the manifest for the given map snapshot.
// A missing manifest is meld.ErrBlobNotFound;
// an unparseable one is meld.ErrInternal.
func (s *Store) Read(_ context.Context, blob string, ver uint32) ([]Member, error) {
	name := Name(blob, ver)
	f, err := s.fs.Open(name)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(meld.ErrBlobNotFound, "manifest %s", name)
	}
	if err != nil {
		return nil, &meld.IOError{Op: "open", Path: name, Err: err}
	}
	defer f.Close()

	var (
		result []Member
		sc     = bufio.NewScanner(f)
	)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		m, err := ParseMember(line)
		if err != nil {
			return nil, errors.Wrapf(meld.ErrInternal, "manifest %s: %s", name, err)
		}
		result = append(result, m)
	}
	if err = sc.Err(); err != nil {
		return nil, &meld.IOError{Op: "read", Path: name, Err: err}
	}
	return result, nil
}

// Exists tells whether the manifest for the given map snapshot exists.
func (s *Store) Exists(_ context.Context, blob string, ver uint32) (bool, error) {
	_, err := s.fs.Stat(Name(blob, ver))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, &meld.IOError{Op: "stat", Path: Name(blob, ver), Err: err}
	}
	return true, nil
}
