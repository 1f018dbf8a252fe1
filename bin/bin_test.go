package bin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/meld-cfg/meld"
)

func TestCreateOpen(t *testing.T) {
	var (
		ctx  = context.Background()
		path = filepath.Join(t.TempDir(), "bin")
	)

	b, err := Create(ctx, path, false, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !b.IsValid() {
		t.Error("new bin is not valid")
	}
	for _, p := range []string{b.BlobsDir, b.MapsDir, b.DBPath} {
		if _, err = os.Stat(p); err != nil {
			t.Errorf("missing %s: %s", p, err)
		}
	}
	if err = b.Close(); err != nil {
		t.Fatal(err)
	}

	b, err = Open(ctx, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if _, err = b.Meta.CurrentVersion(ctx, meld.HashPath("/nothing")); err == nil {
		t.Error("found a version in a new bin")
	}
}

func TestCreateExisting(t *testing.T) {
	var (
		ctx  = context.Background()
		path = filepath.Join(t.TempDir(), "bin")
	)

	b, err := Create(ctx, path, false, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	b.Close()

	stray := filepath.Join(path, BlobsDir, "stray")
	if err = os.WriteFile(stray, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err = Create(ctx, path, false, false, nil)
	if !errors.Is(err, meld.ErrBinAlreadyExists) {
		t.Fatalf("got error %v, want meld.ErrBinAlreadyExists", err)
	}
	if _, err = os.Stat(stray); err != nil {
		t.Errorf("failed create disturbed the existing bin: %s", err)
	}

	b, err = Create(ctx, path, false, true, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if _, err = os.Stat(stray); !os.IsNotExist(err) {
		t.Errorf("forced create kept old content (stat error %v)", err)
	}
}

func TestCreateParents(t *testing.T) {
	var (
		ctx  = context.Background()
		top  = filepath.Join(t.TempDir(), "a")
		path = filepath.Join(top, "b", "bin")
	)

	_, err := Create(ctx, path, false, false, nil)
	if !errors.Is(err, meld.ErrParentsDontExist) {
		t.Fatalf("got error %v, want meld.ErrParentsDontExist", err)
	}
	if _, err = os.Stat(top); !os.IsNotExist(err) {
		t.Errorf("failed create left %s behind", top)
	}

	b, err := Create(ctx, path, true, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if !IsValid(path) {
		t.Error("bin created with parents is not valid")
	}
}

func TestOpenInvalid(t *testing.T) {
	var (
		ctx  = context.Background()
		path = filepath.Join(t.TempDir(), "bin")
	)

	_, err := Open(ctx, path, nil)
	if !errors.Is(err, meld.ErrInitFailed) {
		t.Fatalf("got error %v, want meld.ErrInitFailed", err)
	}

	b, err := Create(ctx, path, false, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	b.Close()

	if err = os.RemoveAll(filepath.Join(path, MapsDir)); err != nil {
		t.Fatal(err)
	}
	if IsValid(path) {
		t.Error("bin without a maps dir is valid")
	}
	_, err = Open(ctx, path, nil)
	if !errors.Is(err, meld.ErrInitFailed) {
		t.Errorf("got error %v, want meld.ErrInitFailed", err)
	}
}
