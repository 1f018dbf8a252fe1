// Package mapper translates between real filesystem paths
// and the canonical paths that meld identities are derived from.
package mapper

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Mapper converts real paths to canonical paths and back.
// It must be deterministic:
// the same logical path on the same machine always maps to the same canonical path.
type Mapper interface {
	ToCanonical(realPath string) (string, error)
	ToReal(canonical string) (string, error)
}

// HomeAlias is the canonical prefix standing for the user's home directory.
const HomeAlias = "~"

// Default is the default Mapper.
//
// Canonical paths are absolute and cleaned,
// with symlinks in the parent directory chain resolved when that chain exists.
// The final element is never resolved,
// so a symlinked config file is tracked under its own name.
//
// If Home is non-empty,
// canonical paths under it are rewritten to begin with HomeAlias,
// which makes a bin portable between machines with different home directories.
type Default struct {
	Home string
}

var _ Mapper = Default{}

// New produces a Default mapper.
// If homeAlias is true, the current user's home directory is aliased.
func New(homeAlias bool) (Default, error) {
	if !homeAlias {
		return Default{}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Default{}, errors.Wrap(err, "getting home directory")
	}
	home, err = resolve(home)
	if err != nil {
		return Default{}, err
	}
	return Default{Home: home}, nil
}

func (m Default) ToCanonical(realPath string) (string, error) {
	if m.Home != "" && (realPath == HomeAlias || strings.HasPrefix(realPath, HomeAlias+"/")) {
		realPath = m.Home + realPath[len(HomeAlias):]
	}
	p, err := resolve(realPath)
	if err != nil {
		return "", err
	}
	if m.Home != "" {
		if p == m.Home {
			return HomeAlias, nil
		}
		if rest := strings.TrimPrefix(p, m.Home+"/"); rest != p {
			return HomeAlias + "/" + rest, nil
		}
	}
	return p, nil
}

func (m Default) ToReal(canonical string) (string, error) {
	if canonical == HomeAlias || strings.HasPrefix(canonical, HomeAlias+"/") {
		home := m.Home
		if home == "" {
			var err error
			home, err = os.UserHomeDir()
			if err != nil {
				return "", errors.Wrapf(err, "expanding %s", canonical)
			}
		}
		return filepath.Join(home, canonical[len(HomeAlias):]), nil
	}
	if !filepath.IsAbs(canonical) {
		return "", errors.Errorf("canonical path %s is not absolute", canonical)
	}
	return canonical, nil
}

// resolve makes p absolute and clean,
// resolving symlinks in its directory part if that directory exists.
func resolve(p string) (string, error) {
	p, err := filepath.Abs(p)
	if err != nil {
		return "", errors.Wrapf(err, "making %s absolute", p)
	}
	dir, base := filepath.Split(p)
	if base == "" {
		// p is the root
		return p, nil
	}
	if rdir, err := filepath.EvalSymlinks(dir); err == nil {
		dir = rdir
	}
	return filepath.Join(dir, base), nil
}
