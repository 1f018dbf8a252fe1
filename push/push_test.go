package push

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/meld-cfg/meld"
	"github.com/meld-cfg/meld/bin"
	"github.com/meld-cfg/meld/manifest"
	"github.com/meld-cfg/meld/mapper"
)

func withBin(t *testing.T, f func(ctx context.Context, b *bin.Bin, work string)) {
	t.Helper()

	ctx := context.Background()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	b, err := bin.Create(ctx, filepath.Join(dir, "bin"), false, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	work := filepath.Join(dir, "work")
	if err = os.Mkdir(work, 0755); err != nil {
		t.Fatal(err)
	}
	f(ctx, b, work)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func versionsOf(ctx context.Context, t *testing.T, b *bin.Bin, path string) []meld.Version {
	t.Helper()
	var result []meld.Version
	err := b.Meta.ListVersions(ctx, meld.HashPath(path), func(v meld.Version) error {
		result = append(result, v)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func TestObject(t *testing.T) {
	withBin(t, func(ctx context.Context, b *bin.Bin, work string) {
		path := filepath.Join(work, "app.conf")

		cases := []struct {
			content, tag string
			want         Result
		}{
			{content: "a", want: Result{Ver: 1, Type: NewObject}},
			{content: "a", want: Result{Ver: 1, Type: NoUpdate}},
			{content: "b", want: Result{Ver: 2, Type: ContentChanged}},
			{content: "b", tag: "stable", want: Result{Ver: 2, Type: TagChanged}},
			{content: "b", tag: "stable", want: Result{Ver: 2, Type: NoUpdate}},
			{content: "c", tag: "stable", want: Result{Ver: 3, Type: ContentChanged}},
			{content: "a", want: Result{Ver: 4, Type: ContentChanged}},
		}

		for i, c := range cases {
			writeFile(t, path, c.content)
			got, err := Path(ctx, b, mapper.Default{}, nil, path, Options{Tag: c.tag})
			if err != nil {
				t.Fatalf("case %d: %s", i+1, err)
			}
			if got != c.want {
				t.Errorf("case %d: got %+v, want %+v", i+1, got, c.want)
			}
		}

		vers := versionsOf(ctx, t, b, path)
		want := []meld.Version{
			{DataHash: meld.HashPath("a"), Ver: 1, Owner: meld.HashPath(path)},
			{DataHash: meld.HashPath("b"), Ver: 2, Tag: "stable", Owner: meld.HashPath(path)},
			{DataHash: meld.HashPath("c"), Ver: 3, Tag: "stable", Owner: meld.HashPath(path)},
			{DataHash: meld.HashPath("a"), Ver: 4, Owner: meld.HashPath(path)},
		}
		if diff := cmp.Diff(want, vers); diff != "" {
			t.Errorf("versions mismatch (-want +got):\n%s", diff)
		}

		for _, v := range vers {
			ok, err := b.Blobs.Has(ctx, v.Owner, v.Ver)
			if err != nil {
				t.Fatal(err)
			}
			if !ok {
				t.Errorf("no blob for version %d", v.Ver)
			}
		}

		mapPath, err := b.Meta.MappedPath(ctx, meld.HashPath(path))
		if err != nil {
			t.Fatal(err)
		}
		if mapPath != path {
			t.Errorf("got mapped path %s, want %s", mapPath, path)
		}
	})
}

func TestReclassify(t *testing.T) {
	withBin(t, func(ctx context.Context, b *bin.Bin, work string) {
		path := filepath.Join(work, "app.conf")
		writeFile(t, path, "x")

		if _, err := Path(ctx, b, mapper.Default{}, nil, path, Options{Subset: "web", Family: "nginx"}); err != nil {
			t.Fatal(err)
		}

		res, err := Path(ctx, b, mapper.Default{}, nil, path, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if res.Reclassified {
			t.Error("push without classification reclassified")
		}

		res, err = Path(ctx, b, mapper.Default{}, nil, path, Options{Family: "apache"})
		if err != nil {
			t.Fatal(err)
		}
		if !res.Reclassified || res.Type != NoUpdate {
			t.Errorf("got %+v, want a reclassified NoUpdate", res)
		}

		obj, err := b.Meta.GetObject(ctx, meld.HashPath(path))
		if err != nil {
			t.Fatal(err)
		}
		want := meld.Object{Blob: meld.HashPath(path), Subset: "web", Family: "apache", MapPath: path}
		if obj != want {
			t.Errorf("got %+v, want %+v", obj, want)
		}
	})
}

func TestRepairObjectRow(t *testing.T) {
	withBin(t, func(ctx context.Context, b *bin.Bin, work string) {
		path := filepath.Join(work, "app.conf")
		writeFile(t, path, "x")

		err := b.Meta.AddVersion(ctx, meld.Version{DataHash: meld.HashPath("x"), Ver: 1, Owner: meld.HashPath(path)})
		if err != nil {
			t.Fatal(err)
		}

		res, err := Path(ctx, b, mapper.Default{}, nil, path, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if res.Type != NoUpdate {
			t.Errorf("got %v, want NoUpdate", res.Type)
		}
		if _, err = b.Meta.GetObject(ctx, meld.HashPath(path)); err != nil {
			t.Errorf("object row not repaired: %s", err)
		}
	})
}

func TestMap(t *testing.T) {
	withBin(t, func(ctx context.Context, b *bin.Bin, work string) {
		var (
			tree = filepath.Join(work, "etc")
			a    = filepath.Join(tree, "a.conf")
			c    = filepath.Join(tree, "sub", "c.conf")
			blob = meld.HashPath(tree)
		)
		writeFile(t, a, "a1")
		writeFile(t, c, "c1")

		res, err := Path(ctx, b, mapper.Default{}, nil, tree, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if want := (Result{Ver: 1, Type: NewObject}); res != want {
			t.Errorf("first push: got %+v, want %+v", res, want)
		}

		res, err = Path(ctx, b, mapper.Default{}, nil, tree, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if want := (Result{Ver: 1, Type: NoUpdate}); res != want {
			t.Errorf("unchanged push: got %+v, want %+v", res, want)
		}
		ok, err := b.Manifests.Exists(ctx, blob, 2)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Error("unchanged push wrote a manifest")
		}

		writeFile(t, c, "c2")
		res, err = Path(ctx, b, mapper.Default{}, nil, tree, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if want := (Result{Ver: 2, Type: ContentChanged}); res != want {
			t.Errorf("changed push: got %+v, want %+v", res, want)
		}

		got, err := b.Manifests.Read(ctx, blob, 2)
		if err != nil {
			t.Fatal(err)
		}
		want := []manifest.Member{
			{Blob: meld.HashPath(tree), Ver: 1},
			{Blob: meld.HashPath(a), Ver: 1},
			{Blob: meld.HashPath(filepath.Dir(c)), Ver: 1},
			{Blob: meld.HashPath(c), Ver: 2},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("manifest mismatch (-want +got):\n%s", diff)
		}

		res, err = Path(ctx, b, mapper.Default{}, nil, tree, Options{Tag: "good"})
		if err != nil {
			t.Fatal(err)
		}
		if want := (Result{Ver: 2, Type: TagChanged}); res != want {
			t.Errorf("tag push: got %+v, want %+v", res, want)
		}
		cur, err := b.Meta.CurrentMap(ctx, blob)
		if err != nil {
			t.Fatal(err)
		}
		if cur.Ver != 2 || cur.Tag != "good" {
			t.Errorf("got current map %+v, want version 2 tagged good", cur)
		}
	})
}

func TestMapExcludesBin(t *testing.T) {
	ctx := context.Background()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	b, err := bin.Create(ctx, filepath.Join(dir, ".meld"), false, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	writeFile(t, filepath.Join(dir, "x.conf"), "x")
	if _, err = Path(ctx, b, mapper.Default{}, nil, dir, Options{}); err != nil {
		t.Fatal(err)
	}

	got, err := b.Manifests.Read(ctx, meld.HashPath(dir), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %d manifest members, want 2 (root and x.conf)", len(got))
	}
}
