package pull

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/meld-cfg/meld"
	"github.com/meld-cfg/meld/bin"
	"github.com/meld-cfg/meld/mapper"
	"github.com/meld-cfg/meld/push"
)

func TestSelect(t *testing.T) {
	vers := []meld.Version{
		{Ver: 3, DataHash: "c"},
		{Ver: 1, DataHash: "a", Tag: "stable"},
		{Ver: 4, DataHash: "d", Tag: "stable"},
		{Ver: 2, DataHash: "b", Tag: "beta"},
	}

	cases := []struct {
		req     Request
		want    uint32
		wantErr error
	}{
		{req: Request{}, want: 4},
		{req: Request{Tag: "stable"}, want: 1},
		{req: Request{Tag: "beta"}, want: 2},
		{req: Request{Version: 3}, want: 3},
		{req: Request{Tag: "beta", Version: 3}, want: 2},
		{req: Request{Tag: "missing", Version: 3}, want: 3},
		{req: Request{Tag: "missing"}, wantErr: meld.ErrTagNotFound},
		{req: Request{Tag: "missing", Version: 9}, wantErr: meld.ErrTagNotFound},
		{req: Request{Version: 9}, wantErr: meld.ErrVersionNotFound},
		{req: Request{Tag: "missing", Recent: true}, want: 4},
		{req: Request{Version: 9, Recent: true}, want: 4},
		{req: Request{Recent: true}, want: 4},
	}

	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%02d", i+1), func(t *testing.T) {
			got, err := Select(vers, c.req)
			if c.wantErr != nil {
				if !errors.Is(err, c.wantErr) {
					t.Errorf("got error %v, want %v", err, c.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.Ver != c.want {
				t.Errorf("got version %d, want %d", got.Ver, c.want)
			}
		})
	}

	if _, err := Select(nil, Request{}); !errors.Is(err, meld.ErrFileNotFound) {
		t.Errorf("got error %v selecting from nothing, want meld.ErrFileNotFound", err)
	}
}

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

func checkFile(t *testing.T, path, want string) {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != want {
		t.Errorf("%s contains %q, want %q", path, got, want)
	}
}

func pushFile(ctx context.Context, t *testing.T, b *bin.Bin, path, content, tag string) {
	t.Helper()
	writeFile(t, path, content)
	if _, err := push.Path(ctx, b, mapper.Default{}, nil, path, push.Options{Tag: tag}); err != nil {
		t.Fatal(err)
	}
}

func TestRoundTrip(t *testing.T) {
	withBin(t, func(ctx context.Context, b *bin.Bin, work string) {
		path := filepath.Join(work, "f.conf")
		pushFile(ctx, t, b, path, "C1", "")
		pushFile(ctx, t, b, path, "C2", "")

		res, err := Path(ctx, b, mapper.Default{}, nil, path, Request{Version: 1})
		if err != nil {
			t.Fatal(err)
		}
		if len(res) != 1 || !res[0].Restored || res[0].Version.Ver != 1 {
			t.Errorf("got %+v, want version 1 restored", res)
		}
		checkFile(t, path, "C1")

		res, err = Path(ctx, b, mapper.Default{}, nil, path, Request{})
		if err != nil {
			t.Fatal(err)
		}
		if len(res) != 1 || res[0].Version.Ver != 2 {
			t.Errorf("got %+v, want version 2", res)
		}
		checkFile(t, path, "C2")

		res, err = Path(ctx, b, mapper.Default{}, nil, path, Request{})
		if err != nil {
			t.Fatal(err)
		}
		if res[0].Restored {
			t.Error("pull of current content restored anyway")
		}

		if err = os.Remove(path); err != nil {
			t.Fatal(err)
		}
		if _, err = Path(ctx, b, mapper.Default{}, nil, path, Request{}); err != nil {
			t.Fatal(err)
		}
		checkFile(t, path, "C2")
	})
}

func TestTagFallback(t *testing.T) {
	withBin(t, func(ctx context.Context, b *bin.Bin, work string) {
		path := filepath.Join(work, "f.conf")
		pushFile(ctx, t, b, path, "one", "")
		pushFile(ctx, t, b, path, "two", "stable")
		pushFile(ctx, t, b, path, "three", "")

		_, err := Path(ctx, b, mapper.Default{}, nil, path, Request{Tag: "missing"})
		if !errors.Is(err, meld.ErrTagNotFound) {
			t.Fatalf("got error %v, want meld.ErrTagNotFound", err)
		}
		checkFile(t, path, "three")

		if _, err = Path(ctx, b, mapper.Default{}, nil, path, Request{Tag: "stable"}); err != nil {
			t.Fatal(err)
		}
		checkFile(t, path, "two")

		res, err := Path(ctx, b, mapper.Default{}, nil, path, Request{Tag: "missing", Recent: true})
		if err != nil {
			t.Fatal(err)
		}
		if res[0].Version.Ver != 3 {
			t.Errorf("got version %d, want 3", res[0].Version.Ver)
		}
		checkFile(t, path, "three")
	})
}

func TestCollapsedVersion(t *testing.T) {
	withBin(t, func(ctx context.Context, b *bin.Bin, work string) {
		path := filepath.Join(work, "f.conf")
		pushFile(ctx, t, b, path, "same", "")
		pushFile(ctx, t, b, path, "other", "")
		pushFile(ctx, t, b, path, "same", "")

		res, err := Path(ctx, b, mapper.Default{}, nil, path, Request{Version: 1})
		if err != nil {
			t.Fatal(err)
		}
		if res[0].Version.Ver != 1 {
			t.Errorf("got version %d, want 1", res[0].Version.Ver)
		}
		checkFile(t, path, "same")
	})
}

func TestMissingBlob(t *testing.T) {
	withBin(t, func(ctx context.Context, b *bin.Bin, work string) {
		path := filepath.Join(work, "f.conf")
		pushFile(ctx, t, b, path, "C1", "")
		pushFile(ctx, t, b, path, "C2", "")

		if err := os.Remove(filepath.Join(b.BlobsDir, meld.HashPath(path), "1")); err != nil {
			t.Fatal(err)
		}
		_, err := Path(ctx, b, mapper.Default{}, nil, path, Request{Version: 1})
		if !errors.Is(err, meld.ErrBlobNotFound) {
			t.Fatalf("got error %v, want meld.ErrBlobNotFound", err)
		}
		checkFile(t, path, "C2")
	})
}

func TestFileNotFound(t *testing.T) {
	withBin(t, func(ctx context.Context, b *bin.Bin, work string) {
		_, err := Path(ctx, b, mapper.Default{}, nil, filepath.Join(work, "never-pushed"), Request{})
		if !errors.Is(err, meld.ErrFileNotFound) {
			t.Errorf("got error %v, want meld.ErrFileNotFound", err)
		}
	})
}

func TestMapReplay(t *testing.T) {
	withBin(t, func(ctx context.Context, b *bin.Bin, work string) {
		var (
			tree = filepath.Join(work, "etc")
			a    = filepath.Join(tree, "a.conf")
			c    = filepath.Join(tree, "sub", "c.conf")
		)
		writeFile(t, a, "a1")
		writeFile(t, c, "c1")
		if _, err := push.Path(ctx, b, mapper.Default{}, nil, tree, push.Options{Tag: "first"}); err != nil {
			t.Fatal(err)
		}

		writeFile(t, c, "c2")
		if _, err := push.Path(ctx, b, mapper.Default{}, nil, tree, push.Options{}); err != nil {
			t.Fatal(err)
		}

		// A standalone push of a member does not move the map.
		writeFile(t, a, "a-standalone")
		if _, err := push.Path(ctx, b, mapper.Default{}, nil, a, push.Options{}); err != nil {
			t.Fatal(err)
		}

		if err := os.RemoveAll(tree); err != nil {
			t.Fatal(err)
		}

		res, err := Path(ctx, b, mapper.Default{}, nil, tree, Request{})
		if err != nil {
			t.Fatal(err)
		}
		if len(res) != 4 {
			t.Errorf("got %d results, want 4", len(res))
		}
		checkFile(t, a, "a1")
		checkFile(t, c, "c2")

		if _, err = Path(ctx, b, mapper.Default{}, nil, tree, Request{Tag: "first"}); err != nil {
			t.Fatal(err)
		}
		checkFile(t, a, "a1")
		checkFile(t, c, "c1")

		_, err = Path(ctx, b, mapper.Default{}, nil, tree, Request{Tag: "nope"})
		if !errors.Is(err, meld.ErrTagNotFound) {
			t.Errorf("got error %v, want meld.ErrTagNotFound", err)
		}

		if _, err = Path(ctx, b, mapper.Default{}, nil, tree, Request{Version: 2}); err != nil {
			t.Fatal(err)
		}
		checkFile(t, c, "c2")

		if _, err = Path(ctx, b, mapper.Default{}, nil, a, Request{}); err != nil {
			t.Fatal(err)
		}
		checkFile(t, a, "a-standalone")
	})
}

func TestMapMissingBlobRestoresNothing(t *testing.T) {
	withBin(t, func(ctx context.Context, b *bin.Bin, work string) {
		var (
			tree = filepath.Join(work, "etc")
			a    = filepath.Join(tree, "a.conf")
			z    = filepath.Join(tree, "z.conf")
		)
		writeFile(t, a, "a1")
		writeFile(t, z, "z1")
		if _, err := push.Path(ctx, b, mapper.Default{}, nil, tree, push.Options{}); err != nil {
			t.Fatal(err)
		}

		if err := os.RemoveAll(filepath.Join(b.BlobsDir, meld.HashPath(z))); err != nil {
			t.Fatal(err)
		}
		if err := os.RemoveAll(tree); err != nil {
			t.Fatal(err)
		}

		_, err := Path(ctx, b, mapper.Default{}, nil, tree, Request{})
		if !errors.Is(err, meld.ErrBlobNotFound) {
			t.Fatalf("got error %v, want meld.ErrBlobNotFound", err)
		}
		if _, err = os.Stat(a); !os.IsNotExist(err) {
			t.Errorf("%s restored by a failed pull (stat error %v)", a, err)
		}
		if _, err = os.Stat(tree); !os.IsNotExist(err) {
			t.Errorf("%s created by a failed pull (stat error %v)", tree, err)
		}
	})
}
