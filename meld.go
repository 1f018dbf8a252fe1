package meld

import "fmt"

type (
	// Object is a tracked filesystem entry,
	// as recorded in the bin's "configs" relation.
	Object struct {
		// Blob is the object's identity: HashPath(MapPath).
		Blob string

		Subset string
		Family string

		// MapPath is the canonical path the identity is derived from.
		MapPath string
	}

	// Version is one content snapshot of an Object.
	Version struct {
		// DataHash is the content hash of this snapshot,
		// or DirHash if the object is a directory.
		DataHash string

		// Ver is 1 for the first snapshot of an owner
		// and increases by one with each content change.
		Ver uint32

		Tag string

		// Owner is the Blob of the Object this version belongs to.
		Owner string
	}

	// Map is one aggregate snapshot of a directory tree.
	Map struct {
		// Blob is HashPath of the tree root's canonical path.
		Blob string
		Ver  uint32

		// Hash is the aggregate hash over the tree's member content hashes.
		Hash string
		Tag  string
	}

	// Entry is a candidate for pushing:
	// an Object together with where it lives right now
	// and what its content hashes to.
	Entry struct {
		Object

		RealPath string
		Tag      string
		Hash     string
	}
)

// NewEntry produces an Entry for the file or directory at realPath,
// whose canonical form is mapPath.
// The content hash is computed with h, which may be nil.
func NewEntry(realPath, mapPath, subset, family, tag string, h *Hasher) (*Entry, error) {
	var (
		hash string
		err  error
	)
	if h != nil {
		hash, err = h.Contents(realPath)
	} else {
		hash, err = HashContents(realPath)
	}
	if err != nil {
		return nil, err
	}
	return &Entry{
		Object: Object{
			Blob:    HashPath(mapPath),
			Subset:  subset,
			Family:  family,
			MapPath: mapPath,
		},
		RealPath: realPath,
		Tag:      tag,
		Hash:     hash,
	}, nil
}

// IsDir tells whether the entry is a directory.
func (e *Entry) IsDir() bool {
	return e.Hash == DirHash
}

func (v Version) String() string {
	return fmt.Sprintf("%s %d %s", v.DataHash, v.Ver, v.Tag)
}
