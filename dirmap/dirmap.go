// Package dirmap turns a directory tree into a candidate map snapshot.
package dirmap

import (
	"crypto/sha512"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/meld-cfg/meld"
	"github.com/meld-cfg/meld/mapper"
)

// Map is a walked directory tree, ready to push.
type Map struct {
	// Blob is the identity of the tree root.
	Blob string

	// Hash is the aggregate hash of the tree:
	// the SHA2-512 digest of the concatenated content hashes of Entries, in order.
	Hash string

	Tag string

	// Entries are the members of the tree in walk order.
	// The root itself is the first.
	Entries []*meld.Entry
}

// Build walks the tree at root and produces its Map.
//
// The walk is in lexical order and includes the root.
// Every entry becomes a member with its own identity,
// classified with the given subset, family and tag.
// Directories named in exclude are skipped along with everything beneath them;
// this keeps a bin inside a pushed tree out of the tree.
// Entries that are neither files, directories, nor symlinks are skipped,
// and so are symlinks to directories, which a pull could only recreate as real directories.
//
// A nil h means hashing without a cache.
func Build(root, subset, family, tag string, m mapper.Mapper, h *meld.Hasher, exclude ...string) (*Map, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "making %s absolute", root)
	}

	skip := make(map[string]bool)
	for _, ex := range exclude {
		abs, err := filepath.Abs(ex)
		if err != nil {
			return nil, errors.Wrapf(err, "making %s absolute", ex)
		}
		skip[abs] = true
	}

	var (
		entries []*meld.Entry
		agg     = sha512.New()
	)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return &meld.IOError{Op: "walk", Path: path, Err: err}
		}
		if skip[path] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		t := d.Type()
		if !t.IsRegular() && !t.IsDir() && t&fs.ModeSymlink == 0 {
			return nil
		}
		if t&fs.ModeSymlink != 0 && path != root {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				return nil
			}
		}

		mapPath, err := m.ToCanonical(path)
		if err != nil {
			return errors.Wrapf(err, "canonicalizing %s", path)
		}
		e, err := meld.NewEntry(path, mapPath, subset, family, tag, h)
		if err != nil {
			return err
		}
		entries = append(entries, e)
		agg.Write([]byte(e.Hash))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.Errorf("%s is excluded from its own walk", root)
	}

	return &Map{
		Blob:    entries[0].Blob,
		Hash:    hex.EncodeToString(agg.Sum(nil)),
		Tag:     tag,
		Entries: entries,
	}, nil
}
