// Package meta describes the metadata store of a meld bin.
//
// The store holds three relations:
// tracked objects ("configs"),
// their version history ("versions"),
// and directory-map snapshots ("maps").
// None of them is enforced against the others;
// that versions.owner names a configs row is a logical invariant only.
package meta

import (
	"context"
	"errors"

	"github.com/meld-cfg/meld"
)

// Store is a metadata store.
// Every method reports backend failures as *meld.StoreError.
// Each mutation is a single statement,
// so a failed mutation changes nothing.
type Store interface {
	// CreateSchema creates the three relations.
	// It is meant to be called exactly once in the lifetime of a bin;
	// calling it against an existing schema fails.
	CreateSchema(context.Context) error

	// AddObject inserts an object row.
	// The caller must not insert the same identity twice.
	AddObject(context.Context, meld.Object) error

	// GetObject gets the object with the given identity,
	// or ErrNotFound.
	GetObject(ctx context.Context, blob string) (meld.Object, error)

	// ObjectExists looks up the identity of the given canonical path,
	// or ErrNotFound if it was never tracked.
	ObjectExists(ctx context.Context, mapPath string) (string, error)

	// MappedPath gets the canonical path of the given identity,
	// or ErrNotFound.
	MappedPath(ctx context.Context, blob string) (string, error)

	// UpdateSubset and UpdateFamily reclassify an object in place.
	UpdateSubset(ctx context.Context, blob, subset string) error
	UpdateFamily(ctx context.Context, blob, family string) error

	// ListObjects calls f for each object, in order of canonical path.
	ListObjects(ctx context.Context, f func(meld.Object) error) error

	// AddVersion inserts a version row.
	AddVersion(context.Context, meld.Version) error

	// CurrentVersion gets the owner's version with the highest ver,
	// or ErrNotFound if the owner was never pushed.
	CurrentVersion(ctx context.Context, owner string) (meld.Version, error)

	// GetVersion gets the owner's version numbered ver,
	// or ErrNotFound.
	GetVersion(ctx context.Context, owner string, ver uint32) (meld.Version, error)

	// Versions gets every version of the owner keyed by content hash.
	// Versions that share content collapse into one entry:
	// the one with the highest ver.
	Versions(ctx context.Context, owner string) (map[string]meld.Version, error)

	// ListVersions calls f for each version of the owner, in ascending ver order.
	ListVersions(ctx context.Context, owner string, f func(meld.Version) error) error

	// UpdateVersionTag changes the tag of v in place.
	UpdateVersionTag(ctx context.Context, v meld.Version, tag string) error

	// AddMap inserts a map snapshot row.
	AddMap(context.Context, meld.Map) error

	// CurrentMap gets the map snapshot with the highest ver,
	// or ErrNotFound.
	CurrentMap(ctx context.Context, blob string) (meld.Map, error)

	// ListMaps gets every snapshot of the map, in ascending ver order.
	ListMaps(ctx context.Context, blob string) ([]meld.Map, error)

	// UpdateMapTag changes the tag of m in place.
	UpdateMapTag(ctx context.Context, m meld.Map, tag string) error

	Close() error
}

// ErrNotFound is the error returned
// when a Store lookup finds no matching row.
var ErrNotFound = errors.New("not found")
