// Package logging implements a metadata store that delegates everything to a nested store,
// logging operations as they happen.
package logging

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/meld-cfg/meld"
	"github.com/meld-cfg/meld/meta"
)

var _ meta.Store = &Store{}

// Store logs each call to the nested store at debug level,
// and each failure at error level.
// Lookups that find nothing (meta.ErrNotFound) are not failures.
type Store struct {
	s   meta.Store
	log *zap.Logger
}

func New(s meta.Store, log *zap.Logger) *Store {
	return &Store{s: s, log: log.Named("meta")}
}

func (s *Store) done(op string, err error, fields ...zap.Field) {
	if errors.Is(err, meta.ErrNotFound) {
		fields = append(fields, zap.Bool("found", false))
	} else if err != nil {
		s.log.Error(op, append(fields, zap.Error(err))...)
		return
	}
	s.log.Debug(op, fields...)
}

// listDone is done for iterations.
// An error from the caller's callback ends the iteration early
// but is not a store failure.
func (s *Store) listDone(op string, err, cbErr error, fields ...zap.Field) {
	if cbErr != nil && errors.Is(err, cbErr) {
		s.log.Debug(op, append(fields, zap.NamedError("stopped", cbErr))...)
		return
	}
	s.done(op, err, fields...)
}

func (s *Store) CreateSchema(ctx context.Context) error {
	err := s.s.CreateSchema(ctx)
	s.done("CreateSchema", err)
	return err
}

func (s *Store) AddObject(ctx context.Context, obj meld.Object) error {
	err := s.s.AddObject(ctx, obj)
	s.done("AddObject", err, zap.String("blob", obj.Blob), zap.String("map_path", obj.MapPath))
	return err
}

func (s *Store) GetObject(ctx context.Context, blob string) (meld.Object, error) {
	obj, err := s.s.GetObject(ctx, blob)
	s.done("GetObject", err, zap.String("blob", blob))
	return obj, err
}

func (s *Store) ObjectExists(ctx context.Context, mapPath string) (string, error) {
	blob, err := s.s.ObjectExists(ctx, mapPath)
	s.done("ObjectExists", err, zap.String("map_path", mapPath))
	return blob, err
}

func (s *Store) MappedPath(ctx context.Context, blob string) (string, error) {
	mapPath, err := s.s.MappedPath(ctx, blob)
	s.done("MappedPath", err, zap.String("blob", blob), zap.String("map_path", mapPath))
	return mapPath, err
}

func (s *Store) UpdateSubset(ctx context.Context, blob, subset string) error {
	err := s.s.UpdateSubset(ctx, blob, subset)
	s.done("UpdateSubset", err, zap.String("blob", blob), zap.String("subset", subset))
	return err
}

func (s *Store) UpdateFamily(ctx context.Context, blob, family string) error {
	err := s.s.UpdateFamily(ctx, blob, family)
	s.done("UpdateFamily", err, zap.String("blob", blob), zap.String("family", family))
	return err
}

func (s *Store) ListObjects(ctx context.Context, f func(meld.Object) error) error {
	var (
		n     int
		cbErr error
	)
	err := s.s.ListObjects(ctx, func(obj meld.Object) error {
		n++
		cbErr = f(obj)
		return cbErr
	})
	s.listDone("ListObjects", err, cbErr, zap.Int("count", n))
	return err
}

func (s *Store) AddVersion(ctx context.Context, v meld.Version) error {
	err := s.s.AddVersion(ctx, v)
	s.done("AddVersion", err, versionFields(v)...)
	return err
}

func (s *Store) CurrentVersion(ctx context.Context, owner string) (meld.Version, error) {
	v, err := s.s.CurrentVersion(ctx, owner)
	s.done("CurrentVersion", err, zap.String("owner", owner), zap.Uint32("ver", v.Ver))
	return v, err
}

func (s *Store) GetVersion(ctx context.Context, owner string, ver uint32) (meld.Version, error) {
	v, err := s.s.GetVersion(ctx, owner, ver)
	s.done("GetVersion", err, zap.String("owner", owner), zap.Uint32("ver", ver))
	return v, err
}

func (s *Store) Versions(ctx context.Context, owner string) (map[string]meld.Version, error) {
	m, err := s.s.Versions(ctx, owner)
	s.done("Versions", err, zap.String("owner", owner), zap.Int("count", len(m)))
	return m, err
}

func (s *Store) ListVersions(ctx context.Context, owner string, f func(meld.Version) error) error {
	var (
		n     int
		cbErr error
	)
	err := s.s.ListVersions(ctx, owner, func(v meld.Version) error {
		n++
		cbErr = f(v)
		return cbErr
	})
	s.listDone("ListVersions", err, cbErr, zap.String("owner", owner), zap.Int("count", n))
	return err
}

func (s *Store) UpdateVersionTag(ctx context.Context, v meld.Version, tag string) error {
	err := s.s.UpdateVersionTag(ctx, v, tag)
	s.done("UpdateVersionTag", err, append(versionFields(v), zap.String("new_tag", tag))...)
	return err
}

func (s *Store) AddMap(ctx context.Context, m meld.Map) error {
	err := s.s.AddMap(ctx, m)
	s.done("AddMap", err, mapFields(m)...)
	return err
}

func (s *Store) CurrentMap(ctx context.Context, blob string) (meld.Map, error) {
	m, err := s.s.CurrentMap(ctx, blob)
	s.done("CurrentMap", err, zap.String("blob", blob), zap.Uint32("ver", m.Ver))
	return m, err
}

func (s *Store) ListMaps(ctx context.Context, blob string) ([]meld.Map, error) {
	maps, err := s.s.ListMaps(ctx, blob)
	s.done("ListMaps", err, zap.String("blob", blob), zap.Int("count", len(maps)))
	return maps, err
}

func (s *Store) UpdateMapTag(ctx context.Context, m meld.Map, tag string) error {
	err := s.s.UpdateMapTag(ctx, m, tag)
	s.done("UpdateMapTag", err, append(mapFields(m), zap.String("new_tag", tag))...)
	return err
}

func (s *Store) Close() error {
	err := s.s.Close()
	s.done("Close", err)
	return err
}

func versionFields(v meld.Version) []zap.Field {
	return []zap.Field{
		zap.String("owner", v.Owner),
		zap.Uint32("ver", v.Ver),
		zap.String("data_hash", v.DataHash),
		zap.String("tag", v.Tag),
	}
}

func mapFields(m meld.Map) []zap.Field {
	return []zap.Field{
		zap.String("blob", m.Blob),
		zap.Uint32("ver", m.Ver),
		zap.String("hash", m.Hash),
		zap.String("tag", m.Tag),
	}
}
