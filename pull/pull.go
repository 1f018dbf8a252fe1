// Package pull implements the read path of meld:
// selecting a stored version of a file or directory tree and restoring it.
package pull

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/meld-cfg/meld"
	"github.com/meld-cfg/meld/bin"
	"github.com/meld-cfg/meld/mapper"
	"github.com/meld-cfg/meld/meta"
)

// Request says which version to pull.
// The zero Request means the current version.
type Request struct {
	// Tag, if non-empty, selects the earliest version carrying it.
	Tag string

	// Version, if non-zero, selects that version number.
	Version uint32

	// Recent means falling back to the current version
	// when Tag or Version selects nothing.
	Recent bool
}

// Select chooses a version from vers according to req.
//
// Versions are considered in ascending order of version number.
// A version whose tag equals req.Tag wins;
// failing that, a version whose number equals req.Version wins;
// failing that, the highest version does,
// but only if nothing was asked for or req.Recent is set.
// Otherwise the result is meld.ErrTagNotFound if a tag was asked for,
// else meld.ErrVersionNotFound.
func Select(vers []meld.Version, req Request) (meld.Version, error) {
	if len(vers) == 0 {
		return meld.Version{}, meld.ErrFileNotFound
	}

	sorted := make([]meld.Version, len(vers))
	copy(sorted, vers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ver < sorted[j].Ver })

	if req.Tag != "" {
		for _, v := range sorted {
			if v.Tag == req.Tag {
				return v, nil
			}
		}
	}
	if req.Version != 0 {
		for _, v := range sorted {
			if v.Ver == req.Version {
				return v, nil
			}
		}
	}

	latest := sorted[len(sorted)-1]
	switch {
	case req.Recent:
		return latest, nil
	case req.Tag != "":
		return meld.Version{}, errors.Wrapf(meld.ErrTagNotFound, "tag %q", req.Tag)
	case req.Version != 0:
		return meld.Version{}, errors.Wrapf(meld.ErrVersionNotFound, "version %d", req.Version)
	}
	return latest, nil
}

// Result is the outcome of pulling one object.
type Result struct {
	Path    string
	Version meld.Version

	// Restored is false if the object already had the selected content.
	Restored bool
}

// Path pulls the file or directory tree whose real path is path.
// A directory pushed as a tree is replayed with Map;
// anything else is pulled with Object.
//
// A nil h means hashing without a cache.
func Path(ctx context.Context, b *bin.Bin, m mapper.Mapper, h *meld.Hasher, path string, req Request) ([]Result, error) {
	mapPath, err := m.ToCanonical(path)
	if err != nil {
		return nil, errors.Wrapf(err, "canonicalizing %s", path)
	}
	return Map(ctx, b, m, h, meld.HashPath(mapPath), req)
}

// Map replays a snapshot of the directory tree with the given identity.
//
// The snapshot is chosen from the tree's snapshot history
// by req, with the same rules as Select.
// Every member listed in its manifest is then pulled
// at exactly the version the manifest records;
// req has no say in which member versions are restored.
// Directory members are restored as empty directories,
// their contents being members in their own right.
//
// If the identity was never pushed as a tree,
// Map is the same as Object.
func Map(ctx context.Context, b *bin.Bin, m mapper.Mapper, h *meld.Hasher, blob string, req Request) ([]Result, error) {
	maps, err := b.Meta.ListMaps(ctx, blob)
	if err != nil {
		return nil, err
	}
	if len(maps) == 0 {
		res, err := Object(ctx, b, m, h, blob, req)
		if err != nil {
			return nil, err
		}
		return []Result{res}, nil
	}

	snapshots := make([]meld.Version, 0, len(maps))
	for _, mp := range maps {
		snapshots = append(snapshots, meld.Version{DataHash: mp.Hash, Ver: mp.Ver, Tag: mp.Tag, Owner: mp.Blob})
	}
	snap, err := Select(snapshots, req)
	if err != nil {
		return nil, errors.Wrap(err, "selecting map snapshot")
	}

	members, err := b.Manifests.Read(ctx, blob, snap.Ver)
	if err != nil {
		return nil, err
	}
	b.Log.Info("replaying map", zap.String("blob", blob), zap.Uint32("ver", snap.Ver), zap.Int("members", len(members)))

	// Resolve every member before touching the filesystem,
	// so a missing blob fails the pull with nothing restored.
	plans := make([]*plan, 0, len(members))
	for _, mem := range members {
		p, err := prepare(ctx, b, m, h, mem.Blob, Request{Version: mem.Ver})
		if err != nil {
			return nil, errors.Wrapf(err, "pulling map member %s", mem)
		}
		plans = append(plans, p)
	}

	results := make([]Result, 0, len(plans))
	for _, p := range plans {
		res, err := p.apply(ctx, b)
		if err != nil {
			return results, errors.Wrapf(err, "restoring %s", p.realPath)
		}
		results = append(results, res)
	}
	return results, nil
}

// Object pulls the object with the given identity.
//
// The version is chosen by req with Select
// from the object's versions after de-duplication by content.
// An explicitly requested version that was collapsed into a later one with the same content
// is still honored.
// If the object's real path already has the selected content, nothing is written.
// Otherwise the content is restored through a temporary sibling file,
// so a failed pull leaves the real path untouched.
func Object(ctx context.Context, b *bin.Bin, m mapper.Mapper, h *meld.Hasher, blob string, req Request) (Result, error) {
	p, err := prepare(ctx, b, m, h, blob, req)
	if err != nil {
		return Result{}, err
	}
	return p.apply(ctx, b)
}

// plan is a resolved pull of one object.
type plan struct {
	blob     string
	realPath string
	sel      meld.Version
	blobVer  uint32 // the blob holding sel's content
	current  bool   // realPath already has sel's content
}

func prepare(ctx context.Context, b *bin.Bin, m mapper.Mapper, h *meld.Hasher, blob string, req Request) (*plan, error) {
	byHash, err := b.Meta.Versions(ctx, blob)
	if err != nil {
		return nil, err
	}
	if len(byHash) == 0 {
		return nil, errors.Wrapf(meld.ErrFileNotFound, "identity %s", blob)
	}

	vers := make([]meld.Version, 0, len(byHash)+1)
	for _, v := range byHash {
		vers = append(vers, v)
	}
	if req.Version != 0 && !hasVer(vers, req.Version) {
		v, err := b.Meta.GetVersion(ctx, blob, req.Version)
		if err == nil {
			vers = append(vers, v)
		} else if !errors.Is(err, meta.ErrNotFound) {
			return nil, err
		}
	}

	mapPath, err := b.Meta.MappedPath(ctx, blob)
	if errors.Is(err, meta.ErrNotFound) {
		return nil, errors.Wrapf(meld.ErrFileNotFound, "no object row for identity %s", blob)
	}
	if err != nil {
		return nil, err
	}
	realPath, err := m.ToReal(mapPath)
	if err != nil {
		return nil, errors.Wrapf(err, "translating %s", mapPath)
	}

	sel, err := Select(vers, req)
	if err != nil {
		return nil, errors.Wrap(err, mapPath)
	}

	// Versions sharing content share a blob.
	survivor, ok := byHash[sel.DataHash]
	if !ok {
		return nil, errors.Wrapf(meld.ErrInternal, "selected version %d of %s vanished", sel.Ver, mapPath)
	}

	onDisk, err := currentHash(realPath, h)
	if err != nil {
		return nil, err
	}

	p := &plan{
		blob:     blob,
		realPath: realPath,
		sel:      sel,
		blobVer:  survivor.Ver,
		current:  onDisk == sel.DataHash,
	}
	if !p.current && sel.DataHash != meld.DirHash {
		ok, err := b.Blobs.Has(ctx, blob, p.blobVer)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.Wrapf(meld.ErrBlobNotFound, "%s version %d", mapPath, p.blobVer)
		}
	}
	return p, nil
}

func (p *plan) apply(ctx context.Context, b *bin.Bin) (Result, error) {
	res := Result{Path: p.realPath, Version: p.sel}
	log := b.Log.With(zap.String("path", p.realPath), zap.Stringer("version", p.sel))

	if p.current {
		log.Debug("already current")
		return res, nil
	}

	if p.sel.DataHash == meld.DirHash {
		if err := os.MkdirAll(p.realPath, 0755); err != nil {
			return Result{}, &meld.IOError{Op: "mkdir", Path: p.realPath, Err: err}
		}
	} else if err := restore(ctx, b, p.blob, p.blobVer, p.sel.DataHash, p.realPath); err != nil {
		return Result{}, err
	}

	log.Info("restored")
	res.Restored = true
	return res, nil
}

func hasVer(vers []meld.Version, ver uint32) bool {
	for _, v := range vers {
		if v.Ver == ver {
			return true
		}
	}
	return false
}

// currentHash is the content hash at path, or "" if nothing is there.
func currentHash(path string, h *meld.Hasher) (string, error) {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return "", nil
	}
	var (
		hash string
		err  error
	)
	if h != nil {
		hash, err = h.Contents(path)
	} else {
		hash, err = meld.HashContents(path)
	}
	var ioErr *meld.IOError
	if errors.As(err, &ioErr) && os.IsNotExist(ioErr.Err) {
		// Dangling symlink.
		return "", nil
	}
	return hash, err
}

func restore(ctx context.Context, b *bin.Bin, blob string, ver uint32, wantHash, realPath string) error {
	r, err := b.Blobs.Open(ctx, blob, ver)
	if err != nil {
		return err
	}
	defer r.Close()

	dir := filepath.Dir(realPath)
	if err = os.MkdirAll(dir, 0755); err != nil {
		return &meld.IOError{Op: "mkdir", Path: dir, Err: err}
	}

	mode := os.FileMode(0644)
	if info, err := os.Stat(realPath); err == nil && info.Mode().IsRegular() {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, ".meld-pull-")
	if err != nil {
		return &meld.IOError{Op: "create", Path: dir, Err: err}
	}
	tmpname := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpname)
		}
	}()

	hasher := sha512.New()
	if _, err = io.Copy(io.MultiWriter(tmp, hasher), r); err != nil {
		tmp.Close()
		return &meld.IOError{Op: "write", Path: tmpname, Err: err}
	}
	if err = tmp.Close(); err != nil {
		return &meld.IOError{Op: "close", Path: tmpname, Err: err}
	}
	if got := hex.EncodeToString(hasher.Sum(nil)); got != wantHash {
		return errors.Wrapf(meld.ErrInternal, "blob %s/%d has hash %s, want %s", blob, ver, got, wantHash)
	}
	if err = os.Chmod(tmpname, mode); err != nil {
		return &meld.IOError{Op: "chmod", Path: tmpname, Err: err}
	}
	if err = os.Rename(tmpname, realPath); err != nil {
		return &meld.IOError{Op: "rename", Path: realPath, Err: err}
	}
	committed = true
	return nil
}
