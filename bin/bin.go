// Package bin manages the on-disk root of a meld store.
//
// A bin is a directory holding
// a blobs directory (file content),
// a maps directory (directory-map manifests),
// and the metadata database.
package bin

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/meld-cfg/meld"
	"github.com/meld-cfg/meld/blob"
	"github.com/meld-cfg/meld/manifest"
	"github.com/meld-cfg/meld/meta"
	"github.com/meld-cfg/meld/meta/logging"
	"github.com/meld-cfg/meld/meta/sqlite3"
)

// Names of the entries inside a bin.
const (
	BlobsDir = "blobs"
	MapsDir  = "maps"
	DBFile   = "meld.db"
)

// Bin is an open bin.
type Bin struct {
	Path     string
	BlobsDir string
	MapsDir  string
	DBPath   string

	Meta      meta.Store
	Blobs     *blob.Store
	Manifests *manifest.Store
	Log       *zap.Logger
}

func paths(path string) (blobs, maps, db string) {
	return filepath.Join(path, BlobsDir), filepath.Join(path, MapsDir), filepath.Join(path, DBFile)
}

// Create creates a new bin at path and opens it.
//
// If something already exists at path,
// Create fails with meld.ErrBinAlreadyExists,
// unless force is true,
// in which case the existing tree is removed first.
// If the parent of path does not exist,
// Create fails with meld.ErrParentsDontExist,
// unless parents is true.
// Any other failure is meld.ErrInitFailed,
// and whatever Create had created is removed again.
//
// A nil log means no logging.
func Create(ctx context.Context, path string, parents, force bool, log *zap.Logger) (*Bin, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if _, err := os.Lstat(path); err == nil {
		if !force {
			return nil, errors.Wrap(meld.ErrBinAlreadyExists, path)
		}
		log.Info("removing existing bin", zap.String("path", path))
		if err = os.RemoveAll(path); err != nil {
			return nil, errors.Wrapf(meld.ErrInitFailed, "removing %s: %s", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(meld.ErrInitFailed, "checking %s: %s", path, err)
	}

	// Find out which ancestors Create will add, so a failure can remove them.
	top := path
	for {
		parent := filepath.Dir(top)
		if parent == top {
			break
		}
		if _, err := os.Stat(parent); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(meld.ErrInitFailed, "checking %s: %s", parent, err)
		}
		if !parents {
			return nil, errors.Wrap(meld.ErrParentsDontExist, path)
		}
		top = parent
	}

	b, err := create(ctx, path, parents, log)
	if err != nil {
		if rmErr := os.RemoveAll(top); rmErr != nil {
			log.Error("cleaning up after failed init", zap.String("path", top), zap.Error(rmErr))
		}
		return nil, err
	}
	return b, nil
}

func create(ctx context.Context, path string, parents bool, log *zap.Logger) (*Bin, error) {
	mkdir := os.Mkdir
	if parents {
		mkdir = os.MkdirAll
	}
	if err := mkdir(path, 0755); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(meld.ErrParentsDontExist, path)
		}
		return nil, errors.Wrapf(meld.ErrInitFailed, "creating %s: %s", path, err)
	}

	blobsDir, mapsDir, dbPath := paths(path)
	for _, dir := range []string{blobsDir, mapsDir} {
		if err := os.Mkdir(dir, 0755); err != nil {
			return nil, errors.Wrapf(meld.ErrInitFailed, "creating %s: %s", dir, err)
		}
	}

	m, err := sqlite3.Open(dbPath)
	if err != nil {
		return nil, errors.Wrapf(meld.ErrInitFailed, "opening %s: %s", dbPath, err)
	}
	if err = m.CreateSchema(ctx); err != nil {
		m.Close()
		return nil, errors.Wrapf(meld.ErrInitFailed, "creating schema: %s", err)
	}

	b := newBin(path, m, log)
	if !b.IsValid() {
		b.Close()
		return nil, errors.Wrapf(meld.ErrInitFailed, "%s is not a valid bin after init", path)
	}
	log.Info("created bin", zap.String("path", path))
	return b, nil
}

// Open opens the existing bin at path.
// It fails with meld.ErrInitFailed if path is not a valid bin.
// A nil log means no logging.
func Open(_ context.Context, path string, log *zap.Logger) (*Bin, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if !IsValid(path) {
		return nil, errors.Wrapf(meld.ErrInitFailed, "%s is not a valid bin (run init?)", path)
	}
	_, _, dbPath := paths(path)
	m, err := sqlite3.Open(dbPath)
	if err != nil {
		return nil, errors.Wrapf(meld.ErrInitFailed, "opening %s: %s", dbPath, err)
	}
	return newBin(path, m, log), nil
}

func newBin(path string, m meta.Store, log *zap.Logger) *Bin {
	blobsDir, mapsDir, dbPath := paths(path)
	return &Bin{
		Path:      path,
		BlobsDir:  blobsDir,
		MapsDir:   mapsDir,
		DBPath:    dbPath,
		Meta:      logging.New(m, log),
		Blobs:     blob.NewDir(blobsDir),
		Manifests: manifest.NewDir(mapsDir),
		Log:       log,
	}
}

// IsValid tells whether path and the three entries of a bin all exist.
func IsValid(path string) bool {
	blobsDir, mapsDir, dbPath := paths(path)
	for _, p := range []string{path, blobsDir, mapsDir, dbPath} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// IsValid tells whether b is still structurally intact.
func (b *Bin) IsValid() bool {
	return IsValid(b.Path)
}

// Close releases the metadata store.
func (b *Bin) Close() error {
	return b.Meta.Close()
}
