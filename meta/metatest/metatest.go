// Package metatest holds checks that any meta.Store must pass.
package metatest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/meld-cfg/meld"
	"github.com/meld-cfg/meld/meta"
)

// Objects tests adding, finding and reclassifying objects.
// The store must have a fresh schema.
func Objects(ctx context.Context, t *testing.T, store meta.Store) {
	var (
		o1 = meld.Object{Blob: meld.HashPath("/etc/b.conf"), Subset: "s", Family: "f", MapPath: "/etc/b.conf"}
		o2 = meld.Object{Blob: meld.HashPath("/etc/a.conf"), MapPath: "/etc/a.conf"}
	)

	for _, o := range []meld.Object{o1, o2} {
		if err := store.AddObject(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.ObjectExists(ctx, "/etc/b.conf")
	if err != nil {
		t.Fatal(err)
	}
	if got != o1.Blob {
		t.Errorf("got identity %s, want %s", got, o1.Blob)
	}
	if _, err = store.ObjectExists(ctx, "/etc/c.conf"); !errors.Is(err, meta.ErrNotFound) {
		t.Errorf("got error %v for untracked path, want meta.ErrNotFound", err)
	}

	mapPath, err := store.MappedPath(ctx, o2.Blob)
	if err != nil {
		t.Fatal(err)
	}
	if mapPath != o2.MapPath {
		t.Errorf("got mapped path %s, want %s", mapPath, o2.MapPath)
	}
	if _, err = store.MappedPath(ctx, meld.HashPath("nope")); !errors.Is(err, meta.ErrNotFound) {
		t.Errorf("got error %v for unknown identity, want meta.ErrNotFound", err)
	}

	if err = store.UpdateSubset(ctx, o1.Blob, "s2"); err != nil {
		t.Fatal(err)
	}
	if err = store.UpdateFamily(ctx, o1.Blob, "f2"); err != nil {
		t.Fatal(err)
	}
	obj, err := store.GetObject(ctx, o1.Blob)
	if err != nil {
		t.Fatal(err)
	}
	want := o1
	want.Subset, want.Family = "s2", "f2"
	if diff := cmp.Diff(want, obj); diff != "" {
		t.Errorf("mismatch after reclassification (-want +got):\n%s", diff)
	}

	var listed []meld.Object
	err = store.ListObjects(ctx, func(o meld.Object) error {
		listed = append(listed, o)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]meld.Object{o2, want}, listed); diff != "" {
		t.Errorf("ListObjects mismatch (-want +got):\n%s", diff)
	}
}

// Versions tests the version history of a single owner.
// The store must have a fresh schema.
func Versions(ctx context.Context, t *testing.T, store meta.Store) {
	owner := meld.HashPath("/etc/hosts")

	if _, err := store.CurrentVersion(ctx, owner); !errors.Is(err, meta.ErrNotFound) {
		t.Fatalf("got error %v for unpushed owner, want meta.ErrNotFound", err)
	}

	var (
		h1 = meld.HashPath("content 1")
		h2 = meld.HashPath("content 2")

		v1 = meld.Version{DataHash: h1, Ver: 1, Owner: owner}
		v2 = meld.Version{DataHash: h2, Ver: 2, Tag: "stable", Owner: owner}
		v3 = meld.Version{DataHash: h1, Ver: 3, Owner: owner}
	)
	for _, v := range []meld.Version{v1, v2, v3} {
		if err := store.AddVersion(ctx, v); err != nil {
			t.Fatal(err)
		}
	}

	cur, err := store.CurrentVersion(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(v3, cur); diff != "" {
		t.Errorf("current version mismatch (-want +got):\n%s", diff)
	}

	got, err := store.GetVersion(ctx, owner, 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(v2, got); diff != "" {
		t.Errorf("GetVersion mismatch (-want +got):\n%s", diff)
	}
	if _, err = store.GetVersion(ctx, owner, 9); !errors.Is(err, meta.ErrNotFound) {
		t.Errorf("got error %v for missing version, want meta.ErrNotFound", err)
	}

	// v1 and v3 share content; the higher ver survives.
	all, err := store.Versions(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]meld.Version{h1: v3, h2: v2}, all); diff != "" {
		t.Errorf("Versions mismatch (-want +got):\n%s", diff)
	}

	if err = store.UpdateVersionTag(ctx, v3, "latest"); err != nil {
		t.Fatal(err)
	}

	var listed []meld.Version
	err = store.ListVersions(ctx, owner, func(v meld.Version) error {
		listed = append(listed, v)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	v3.Tag = "latest"
	if diff := cmp.Diff([]meld.Version{v1, v2, v3}, listed); diff != "" {
		t.Errorf("ListVersions mismatch (-want +got):\n%s", diff)
	}

	stop := errors.New("stop")
	var n int
	err = store.ListVersions(ctx, owner, func(meld.Version) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("got error %v from ListVersions, want the callback's error", err)
	}
	if n != 1 {
		t.Errorf("callback called %d times after returning an error, want 1", n)
	}
}

// Maps tests directory-map snapshots.
// The store must have a fresh schema.
func Maps(ctx context.Context, t *testing.T, store meta.Store) {
	blob := meld.HashPath("/etc/nginx")

	if _, err := store.CurrentMap(ctx, blob); !errors.Is(err, meta.ErrNotFound) {
		t.Fatalf("got error %v for unknown map, want meta.ErrNotFound", err)
	}

	var want []meld.Map
	for i := 1; i <= 3; i++ {
		m := meld.Map{Blob: blob, Ver: uint32(i), Hash: meld.HashPath(fmt.Sprintf("tree %d", i))}
		if err := store.AddMap(ctx, m); err != nil {
			t.Fatal(err)
		}
		want = append(want, m)
	}

	cur, err := store.CurrentMap(ctx, blob)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want[2], cur); diff != "" {
		t.Errorf("current map mismatch (-want +got):\n%s", diff)
	}

	if err = store.UpdateMapTag(ctx, cur, "prod"); err != nil {
		t.Fatal(err)
	}
	want[2].Tag = "prod"

	got, err := store.ListMaps(ctx, blob)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListMaps mismatch (-want +got):\n%s", diff)
	}
}
