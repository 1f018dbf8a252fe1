package logging

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/meld-cfg/meld"
	"github.com/meld-cfg/meld/meta/metatest"
	"github.com/meld-cfg/meld/meta/sqlite3"
)

func TestVersions(t *testing.T) {
	ctx := context.Background()
	s, logs := newTestStore(ctx, t)
	defer s.Close()

	metatest.Versions(ctx, t, s)

	if n := logs.FilterMessage("AddVersion").Len(); n != 3 {
		t.Errorf("got %d AddVersion log entries, want 3", n)
	}
	if n := logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 0 {
		t.Errorf("got %d error-level entries, want 0", n)
	}
}

func TestObjects(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(ctx, t)
	defer s.Close()

	metatest.Objects(ctx, t, s)
}

func TestFailuresLogged(t *testing.T) {
	ctx := context.Background()
	s, logs := newTestStore(ctx, t)
	defer s.Close()

	if err := s.CreateSchema(ctx); err == nil {
		t.Fatal("second CreateSchema succeeded")
	}

	entries := logs.FilterLevelExact(zapcore.ErrorLevel).FilterMessage("CreateSchema").All()
	if len(entries) != 1 {
		t.Fatalf("got %d error entries for CreateSchema, want 1", len(entries))
	}

	// Not-found lookups are ordinary and logged at debug level.
	if _, err := s.CurrentVersion(ctx, meld.HashPath("nothing")); err == nil {
		t.Fatal("CurrentVersion found a version for an unknown owner")
	}
	entries = logs.FilterMessage("CurrentVersion").All()
	if len(entries) != 1 || entries[0].Level != zapcore.DebugLevel {
		t.Errorf("got %v, want one debug entry for CurrentVersion", entries)
	}
}

func TestCallbackErrorNotLoggedAsFailure(t *testing.T) {
	ctx := context.Background()
	s, logs := newTestStore(ctx, t)
	defer s.Close()

	obj := meld.Object{Blob: meld.HashPath("/etc/hosts"), MapPath: "/etc/hosts"}
	if err := s.AddObject(ctx, obj); err != nil {
		t.Fatal(err)
	}

	stop := errors.New("stop")
	err := s.ListObjects(ctx, func(meld.Object) error { return stop })
	if !errors.Is(err, stop) {
		t.Fatalf("got error %v, want the callback's error", err)
	}

	entries := logs.FilterMessage("ListObjects").All()
	if len(entries) != 1 || entries[0].Level != zapcore.DebugLevel {
		t.Errorf("got %v, want one debug entry for ListObjects", entries)
	}
}

func newTestStore(ctx context.Context, t *testing.T) (*Store, *observer.ObservedLogs) {
	nested, err := sqlite3.Open(filepath.Join(t.TempDir(), "meld.db"))
	if err != nil {
		t.Fatal(err)
	}
	core, logs := observer.New(zapcore.DebugLevel)
	s := New(nested, zap.New(core))
	if err = s.CreateSchema(ctx); err != nil {
		t.Fatal(err)
	}
	return s, logs
}
