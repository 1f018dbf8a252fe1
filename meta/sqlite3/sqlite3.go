// Package sqlite3 implements a meld metadata store in a Sqlite database file.
package sqlite3

import (
	"context"
	"database/sql"
	stderrs "errors"

	"github.com/bobg/sqlutil"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 type for sql.Open

	"github.com/meld-cfg/meld"
	"github.com/meld-cfg/meld/meta"
)

var _ meta.Store = &Store{}

// Store is a Sqlite-based metadata store.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that CreateSchema executes.
// It deliberately lacks IF NOT EXISTS:
// creating the schema twice in one bin is an error.
const Schema = `
CREATE TABLE configs (
  id TEXT NOT NULL,
  subset TEXT NOT NULL,
  family TEXT NOT NULL,
  map_path TEXT NOT NULL
);

CREATE TABLE versions (
  id TEXT NOT NULL,
  ver INTEGER NOT NULL,
  tag TEXT NOT NULL,
  owner TEXT NOT NULL
);

CREATE INDEX versions_owner_idx ON versions (owner, ver);

CREATE TABLE maps (
  id TEXT NOT NULL,
  ver INTEGER NOT NULL,
  nhash TEXT NOT NULL,
  tag TEXT NOT NULL
);

CREATE INDEX maps_id_idx ON maps (id, ver);
`

// New produces a new Store using `db` for storage.
// It does not create the schema; see CreateSchema.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens the Sqlite database file at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, storeErr("opening "+path, err)
	}
	return New(db), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return storeErr("closing", s.db.Close())
}

// CreateSchema implements meta.Store.
func (s *Store) CreateSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return storeErr("creating schema", err)
}

// AddObject implements meta.Store.
func (s *Store) AddObject(ctx context.Context, obj meld.Object) error {
	const q = `INSERT INTO configs (id, subset, family, map_path) VALUES ($1, $2, $3, $4)`
	_, err := s.db.ExecContext(ctx, q, obj.Blob, obj.Subset, obj.Family, obj.MapPath)
	return storeErr("inserting config", err)
}

// GetObject implements meta.Store.
func (s *Store) GetObject(ctx context.Context, blob string) (meld.Object, error) {
	const q = `SELECT subset, family, map_path FROM configs WHERE id = $1 LIMIT 1`

	obj := meld.Object{Blob: blob}
	err := s.db.QueryRowContext(ctx, q, blob).Scan(&obj.Subset, &obj.Family, &obj.MapPath)
	if stderrs.Is(err, sql.ErrNoRows) {
		return meld.Object{}, meta.ErrNotFound
	}
	if err != nil {
		return meld.Object{}, storeErr("getting config", err)
	}
	return obj, nil
}

// ObjectExists implements meta.Store.
func (s *Store) ObjectExists(ctx context.Context, mapPath string) (string, error) {
	const q = `SELECT id FROM configs WHERE map_path = $1 LIMIT 1`

	var blob string
	err := s.db.QueryRowContext(ctx, q, mapPath).Scan(&blob)
	if stderrs.Is(err, sql.ErrNoRows) {
		return "", meta.ErrNotFound
	}
	return blob, storeErr("looking up config by path", err)
}

// MappedPath implements meta.Store.
func (s *Store) MappedPath(ctx context.Context, blob string) (string, error) {
	const q = `SELECT map_path FROM configs WHERE id = $1 LIMIT 1`

	var mapPath string
	err := s.db.QueryRowContext(ctx, q, blob).Scan(&mapPath)
	if stderrs.Is(err, sql.ErrNoRows) {
		return "", meta.ErrNotFound
	}
	return mapPath, storeErr("getting mapped path", err)
}

// UpdateSubset implements meta.Store.
func (s *Store) UpdateSubset(ctx context.Context, blob, subset string) error {
	const q = `UPDATE configs SET subset = $1 WHERE id = $2`
	_, err := s.db.ExecContext(ctx, q, subset, blob)
	return storeErr("updating subset", err)
}

// UpdateFamily implements meta.Store.
func (s *Store) UpdateFamily(ctx context.Context, blob, family string) error {
	const q = `UPDATE configs SET family = $1 WHERE id = $2`
	_, err := s.db.ExecContext(ctx, q, family, blob)
	return storeErr("updating family", err)
}

// ListObjects implements meta.Store.
func (s *Store) ListObjects(ctx context.Context, f func(meld.Object) error) error {
	const q = `SELECT id, subset, family, map_path FROM configs ORDER BY map_path`

	var cbErr error
	err := sqlutil.ForQueryRows(ctx, s.db, q, func(blob, subset, family, mapPath string) error {
		cbErr = f(meld.Object{Blob: blob, Subset: subset, Family: family, MapPath: mapPath})
		return cbErr
	})
	if cbErr != nil {
		return cbErr
	}
	return storeErr("listing configs", err)
}

// AddVersion implements meta.Store.
func (s *Store) AddVersion(ctx context.Context, v meld.Version) error {
	const q = `INSERT INTO versions (id, ver, tag, owner) VALUES ($1, $2, $3, $4)`
	_, err := s.db.ExecContext(ctx, q, v.DataHash, int64(v.Ver), v.Tag, v.Owner)
	return storeErr("inserting version", err)
}

// CurrentVersion implements meta.Store.
func (s *Store) CurrentVersion(ctx context.Context, owner string) (meld.Version, error) {
	const q = `SELECT id, ver, tag FROM versions WHERE owner = $1 ORDER BY ver DESC LIMIT 1`
	return s.queryVersion(ctx, "getting current version", q, owner)
}

// GetVersion implements meta.Store.
func (s *Store) GetVersion(ctx context.Context, owner string, ver uint32) (meld.Version, error) {
	const q = `SELECT id, ver, tag FROM versions WHERE owner = $1 AND ver = $2 LIMIT 1`
	return s.queryVersion(ctx, "getting version", q, owner, int64(ver))
}

func (s *Store) queryVersion(ctx context.Context, op, q, owner string, args ...interface{}) (meld.Version, error) {
	var (
		v   = meld.Version{Owner: owner}
		ver int64
	)
	err := s.db.QueryRowContext(ctx, q, append([]interface{}{owner}, args...)...).Scan(&v.DataHash, &ver, &v.Tag)
	if stderrs.Is(err, sql.ErrNoRows) {
		return meld.Version{}, meta.ErrNotFound
	}
	if err != nil {
		return meld.Version{}, storeErr(op, err)
	}
	v.Ver = uint32(ver)
	return v, nil
}

// Versions implements meta.Store.
func (s *Store) Versions(ctx context.Context, owner string) (map[string]meld.Version, error) {
	result := make(map[string]meld.Version)
	err := s.ListVersions(ctx, owner, func(v meld.Version) error {
		// Ascending order, so a later (higher) ver replaces an earlier one with the same content.
		result[v.DataHash] = v
		return nil
	})
	return result, err
}

// ListVersions implements meta.Store.
func (s *Store) ListVersions(ctx context.Context, owner string, f func(meld.Version) error) error {
	const q = `SELECT id, ver, tag FROM versions WHERE owner = $1 ORDER BY ver`

	var cbErr error
	err := sqlutil.ForQueryRows(ctx, s.db, q, owner, func(dataHash string, ver int64, tag string) error {
		cbErr = f(meld.Version{DataHash: dataHash, Ver: uint32(ver), Tag: tag, Owner: owner})
		return cbErr
	})
	if cbErr != nil {
		return cbErr
	}
	return storeErr("listing versions", err)
}

// UpdateVersionTag implements meta.Store.
func (s *Store) UpdateVersionTag(ctx context.Context, v meld.Version, tag string) error {
	const q = `UPDATE versions SET tag = $1 WHERE owner = $2 AND ver = $3`
	_, err := s.db.ExecContext(ctx, q, tag, v.Owner, int64(v.Ver))
	return storeErr("updating version tag", err)
}

// AddMap implements meta.Store.
func (s *Store) AddMap(ctx context.Context, m meld.Map) error {
	const q = `INSERT INTO maps (id, ver, nhash, tag) VALUES ($1, $2, $3, $4)`
	_, err := s.db.ExecContext(ctx, q, m.Blob, int64(m.Ver), m.Hash, m.Tag)
	return storeErr("inserting map", err)
}

// CurrentMap implements meta.Store.
func (s *Store) CurrentMap(ctx context.Context, blob string) (meld.Map, error) {
	const q = `SELECT ver, nhash, tag FROM maps WHERE id = $1 ORDER BY ver DESC LIMIT 1`

	var (
		m   = meld.Map{Blob: blob}
		ver int64
	)
	err := s.db.QueryRowContext(ctx, q, blob).Scan(&ver, &m.Hash, &m.Tag)
	if stderrs.Is(err, sql.ErrNoRows) {
		return meld.Map{}, meta.ErrNotFound
	}
	if err != nil {
		return meld.Map{}, storeErr("getting current map", err)
	}
	m.Ver = uint32(ver)
	return m, nil
}

// ListMaps implements meta.Store.
func (s *Store) ListMaps(ctx context.Context, blob string) ([]meld.Map, error) {
	const q = `SELECT ver, nhash, tag FROM maps WHERE id = $1 ORDER BY ver`

	var result []meld.Map
	err := sqlutil.ForQueryRows(ctx, s.db, q, blob, func(ver int64, hash, tag string) {
		result = append(result, meld.Map{Blob: blob, Ver: uint32(ver), Hash: hash, Tag: tag})
	})
	return result, storeErr("listing maps", err)
}

// UpdateMapTag implements meta.Store.
func (s *Store) UpdateMapTag(ctx context.Context, m meld.Map, tag string) error {
	const q = `UPDATE maps SET tag = $1 WHERE id = $2 AND ver = $3`
	_, err := s.db.ExecContext(ctx, q, tag, m.Blob, int64(m.Ver))
	return storeErr("updating map tag", err)
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &meld.StoreError{Op: op, Err: err}
}
