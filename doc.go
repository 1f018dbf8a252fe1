// Package meld is a local, versioned store for configuration files.
//
// A meld _bin_ tracks arbitrary files and directory trees.
// Every distinct revision of a tracked file is kept as an immutable blob,
// and metadata about it
// (its identity, classification, tags and version lineage)
// lives in a small relational store inside the bin.
//
// A tracked file’s identity is the SHA2-512 hash of its canonical path,
// not of its content.
// That means the identity stays the same as the file changes,
// and each change appends a new version,
// numbered 1, 2, 3 and so on,
// to that identity’s history.
// The content hash of each version is recorded alongside it
// so that unchanged content never produces a new version.
//
// Directory trees are tracked through a _map_:
// an aggregate hash over the content hashes of every member of the tree,
// plus a manifest file naming the exact version of each member
// at the moment the tree was pushed.
// A map gets a new snapshot only when something in the tree changed,
// while each member keeps its own independent version chain.
//
// Pushing a path creates or advances its history
// (see the push subpackage).
// Pulling a path restores a chosen revision:
// the latest one,
// a tagged one,
// or an explicit version number
// (see the pull subpackage).
//
// A bin is meant for one client process at a time,
// much like a working copy.
// Nothing in this module locks the bin,
// so callers that need concurrency must serialize access themselves.
package meld
