package meld

import (
	"crypto/sha512"
	"encoding/hex"
	"io"
	"os"
)

// DirHash is the content hash of every directory.
// Directories have no bytes of their own;
// their members are tracked as separate objects.
const DirHash = "DIR"

// HashPath computes the identity of a canonical path:
// the lowercase hex SHA2-512 digest of its UTF-8 bytes.
func HashPath(path string) string {
	sum := sha512.Sum512([]byte(path))
	return hex.EncodeToString(sum[:])
}

// HashReader computes the lowercase hex SHA2-512 digest of everything read from r.
func HashReader(r io.Reader) (string, error) {
	h := sha512.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashContents computes the content hash of the file at path.
// If path is a directory
// (after following symlinks),
// the result is DirHash.
// Failures are reported as *IOError.
func HashContents(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", &IOError{Op: "stat", Path: path, Err: err}
	}
	if info.IsDir() {
		return DirHash, nil
	}
	return hashFile(path)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	hash, err := HashReader(f)
	if err != nil {
		return "", &IOError{Op: "read", Path: path, Err: err}
	}
	return hash, nil
}
