package meld

import (
	"fmt"

	"github.com/pkg/errors"
)

// Errors returned by bin lifecycle operations.
var (
	ErrBinAlreadyExists = errors.New("bin already exists")
	ErrParentsDontExist = errors.New("bin's parent tree does not exist")
	ErrInitFailed       = errors.New("init failed")
)

// Errors returned when a referenced identity, version or tag is absent.
var (
	ErrFileNotFound    = errors.New("file not found in bin")
	ErrBlobNotFound    = errors.New("blob not found")
	ErrTagNotFound     = errors.New("tag not found")
	ErrVersionNotFound = errors.New("version not found")
)

// ErrInternal reports a broken invariant,
// such as a selected version vanishing before it could be used
// or a manifest line that cannot be parsed.
// It never results from ordinary user input.
var ErrInternal = errors.New("internal error")

// StoreError is a failure of the metadata backend.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("metadata store: %s: %s", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IOError is a filesystem failure.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
