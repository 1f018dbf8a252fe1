// Package push implements the write path of meld:
// creating and advancing the version history of files and directory trees.
package push

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/meld-cfg/meld"
	"github.com/meld-cfg/meld/bin"
	"github.com/meld-cfg/meld/dirmap"
	"github.com/meld-cfg/meld/manifest"
	"github.com/meld-cfg/meld/mapper"
	"github.com/meld-cfg/meld/meta"
)

// UpdateType tells what a push did.
type UpdateType int

const (
	// NoUpdate means content and tag were unchanged.
	NoUpdate UpdateType = iota

	// NewObject means the path had never been pushed; its version is 1.
	NewObject

	// ContentChanged means a new version was added.
	ContentChanged

	// TagChanged means only the tag of the current version was changed.
	TagChanged
)

func (u UpdateType) String() string {
	switch u {
	case NoUpdate:
		return "no update"
	case NewObject:
		return "new"
	case ContentChanged:
		return "content changed"
	case TagChanged:
		return "tag changed"
	}
	return fmt.Sprintf("UpdateType(%d)", int(u))
}

// Result is the outcome of a push.
type Result struct {
	// Ver is the current version after the push.
	// For a directory tree it is the version of the map snapshot.
	Ver  uint32
	Type UpdateType

	// Reclassified is true if the subset or family of the object was changed.
	Reclassified bool
}

// Options are the classification given to pushed objects.
type Options struct {
	Subset string
	Family string
	Tag    string
}

// Path pushes the file or directory at path.
// A file is pushed with Object.
// A directory is walked and pushed with Map;
// the bin itself is left out of the walk.
//
// A nil h means hashing without a cache.
func Path(ctx context.Context, b *bin.Bin, m mapper.Mapper, h *meld.Hasher, path string, opts Options) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, &meld.IOError{Op: "stat", Path: path, Err: err}
	}

	if info.IsDir() {
		dm, err := dirmap.Build(path, opts.Subset, opts.Family, opts.Tag, m, h, b.Path)
		if err != nil {
			return Result{}, errors.Wrapf(err, "walking %s", path)
		}
		return Map(ctx, b, dm)
	}

	mapPath, err := m.ToCanonical(path)
	if err != nil {
		return Result{}, errors.Wrapf(err, "canonicalizing %s", path)
	}
	e, err := meld.NewEntry(path, mapPath, opts.Subset, opts.Family, opts.Tag, h)
	if err != nil {
		return Result{}, err
	}
	return Object(ctx, b, e)
}

// Object pushes a single entry.
//
// If the entry's identity has no versions yet,
// its content becomes version 1 and its object row is added.
// Otherwise, if the content hash differs from the current version's,
// its content becomes the next version.
// Otherwise, if the tag differs,
// the current version's tag is changed in place.
// Otherwise nothing changes.
//
// Independently of all that,
// a non-empty subset or family that differs from the stored one
// reclassifies the object.
func Object(ctx context.Context, b *bin.Bin, e *meld.Entry) (Result, error) {
	log := b.Log.With(zap.String("path", e.MapPath), zap.String("blob", e.Blob))

	cur, err := b.Meta.CurrentVersion(ctx, e.Blob)
	if errors.Is(err, meta.ErrNotFound) {
		if err = commitVersion(ctx, b, e, 1); err != nil {
			return Result{}, err
		}
		if err = b.Meta.AddObject(ctx, e.Object); err != nil {
			return Result{}, err
		}
		log.Info("pushed", zap.Uint32("ver", 1), zap.Stringer("update", NewObject))
		return Result{Ver: 1, Type: NewObject}, nil
	}
	if err != nil {
		return Result{}, err
	}

	reclassified, err := ensureObject(ctx, b, e)
	if err != nil {
		return Result{}, err
	}

	res := Result{Ver: cur.Ver, Reclassified: reclassified}
	switch {
	case cur.DataHash != e.Hash:
		res.Ver = cur.Ver + 1
		if err = commitVersion(ctx, b, e, res.Ver); err != nil {
			return Result{}, err
		}
		res.Type = ContentChanged

	case cur.Tag != e.Tag:
		if err = b.Meta.UpdateVersionTag(ctx, cur, e.Tag); err != nil {
			return Result{}, err
		}
		res.Type = TagChanged

	default:
		res.Type = NoUpdate
	}

	if res.Type == NoUpdate {
		log.Debug("pushed", zap.Uint32("ver", res.Ver), zap.Stringer("update", res.Type))
	} else {
		log.Info("pushed", zap.Uint32("ver", res.Ver), zap.Stringer("update", res.Type))
	}
	return res, nil
}

// commitVersion stores the content of e as version ver and records it.
// The blob is written and verified before the version row is added,
// so a version row never refers to a missing blob.
// Directories have no blob.
func commitVersion(ctx context.Context, b *bin.Bin, e *meld.Entry, ver uint32) error {
	if !e.IsDir() {
		if err := b.Blobs.PutFile(ctx, e.Blob, ver, e.RealPath, e.Hash); err != nil {
			return errors.Wrapf(err, "storing %s version %d", e.MapPath, ver)
		}
	}
	return b.Meta.AddVersion(ctx, meld.Version{
		DataHash: e.Hash,
		Ver:      ver,
		Tag:      e.Tag,
		Owner:    e.Blob,
	})
}

// ensureObject makes sure the object row of e exists and is classified as e requests.
// A missing row means an earlier push was interrupted after adding a version;
// it is added now.
func ensureObject(ctx context.Context, b *bin.Bin, e *meld.Entry) (bool, error) {
	obj, err := b.Meta.GetObject(ctx, e.Blob)
	if errors.Is(err, meta.ErrNotFound) {
		b.Log.Warn("repairing missing object row", zap.String("path", e.MapPath))
		return false, b.Meta.AddObject(ctx, e.Object)
	}
	if err != nil {
		return false, err
	}

	var reclassified bool
	if e.Subset != "" && e.Subset != obj.Subset {
		if err = b.Meta.UpdateSubset(ctx, e.Blob, e.Subset); err != nil {
			return false, err
		}
		reclassified = true
	}
	if e.Family != "" && e.Family != obj.Family {
		if err = b.Meta.UpdateFamily(ctx, e.Blob, e.Family); err != nil {
			return false, err
		}
		reclassified = true
	}
	return reclassified, nil
}

// Map pushes a walked directory tree.
//
// Every member is pushed with Object.
// If the tree's aggregate hash differs from that of the current map snapshot
// (or there is none),
// a manifest recording the version of each member is written
// and a new snapshot is added.
// If only the tag differs,
// the current snapshot's tag is changed in place.
func Map(ctx context.Context, b *bin.Bin, dm *dirmap.Map) (Result, error) {
	var (
		log     = b.Log.With(zap.String("blob", dm.Blob))
		members = make([]manifest.Member, 0, len(dm.Entries))
	)
	if len(dm.Entries) > 0 {
		log = log.With(zap.String("path", dm.Entries[0].MapPath))
	}

	for _, e := range dm.Entries {
		res, err := Object(ctx, b, e)
		if err != nil {
			return Result{}, err
		}
		members = append(members, manifest.Member{Blob: e.Blob, Ver: res.Ver})
	}

	var res Result
	cur, err := b.Meta.CurrentMap(ctx, dm.Blob)
	switch {
	case errors.Is(err, meta.ErrNotFound):
		res = Result{Ver: 1, Type: NewObject}

	case err != nil:
		return Result{}, err

	case cur.Hash != dm.Hash:
		res = Result{Ver: cur.Ver + 1, Type: ContentChanged}

	case cur.Tag != dm.Tag:
		if err = b.Meta.UpdateMapTag(ctx, cur, dm.Tag); err != nil {
			return Result{}, err
		}
		log.Info("pushed map", zap.Uint32("ver", cur.Ver), zap.Stringer("update", TagChanged))
		return Result{Ver: cur.Ver, Type: TagChanged}, nil

	default:
		log.Debug("pushed map", zap.Uint32("ver", cur.Ver), zap.Stringer("update", NoUpdate))
		return Result{Ver: cur.Ver, Type: NoUpdate}, nil
	}

	if err = b.Manifests.Write(ctx, dm.Blob, res.Ver, members); err != nil {
		return Result{}, errors.Wrapf(err, "writing manifest for version %d", res.Ver)
	}
	err = b.Meta.AddMap(ctx, meld.Map{
		Blob: dm.Blob,
		Ver:  res.Ver,
		Hash: dm.Hash,
		Tag:  dm.Tag,
	})
	if err != nil {
		return Result{}, err
	}

	log.Info("pushed map", zap.Uint32("ver", res.Ver), zap.Stringer("update", res.Type), zap.Int("members", len(members)))
	return res, nil
}
