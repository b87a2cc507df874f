// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Edited by in 2025 olandr.
// Reworked for the WatchTower file-change notification core.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package watchtower

// WatchHandle is an opaque token returned by a changeSource when a watch is
// installed. It is the only thing the changeSource accepts when asked to
// uninstall that watch.
type WatchHandle uint64

// EventKind classifies a single RawEvent. The set is a superset of what any
// one backend needs; a Linux inotify backend and a hypothetical
// directory-change-notification backend both produce a subset of these.
type EventKind uint8

const (
	// EvAppended indicates a watched file's content grew or otherwise
	// changed without the object being replaced.
	EvAppended EventKind = iota
	// EvTruncated indicates a watched file was truncated.
	EvTruncated
	// EvAttribChanged indicates metadata (mode, times, ownership) changed.
	EvAttribChanged
	// EvRemoved indicates the watched object itself was deleted (the last
	// link to its inode was dropped) or moved: it is no longer reachable
	// under the name it was watched by.
	EvRemoved
	// EvEntryCreated indicates a new directory entry named Name appeared
	// under a watched directory.
	EvEntryCreated
	// EvEntryDeleted indicates a directory entry named Name was removed
	// from under a watched directory.
	EvEntryDeleted
	// EvRenamedFrom indicates the directory entry Name was the source of a
	// rename; it is paired with a later EvRenamedTo sharing Cookie when
	// both halves land in watched directories.
	EvRenamedFrom
	// EvRenamedTo indicates the directory entry Name is the destination of
	// a rename.
	EvRenamedTo
	// EvOverflow indicates the change source's internal event queue
	// overran; Handle and Name are meaningless and every WatchedItem must
	// be fully re-resolved.
	EvOverflow
)

// RawEvent is what a changeSource hands the event loop. Handle identifies
// which installed watch produced it; it is the zero value for EvOverflow,
// which is not tied to any one watch. Name and Cookie are populated only
// for directory-watch entry events; Cookie links a renamed-from/renamed-to
// pair produced by a single rename syscall.
type RawEvent struct {
	Handle WatchHandle
	Kind   EventKind
	Name   string
	Cookie uint32
}

// changeSource is the abstract kernel-facing primitive described in
// spec.md §4.A. It is the single OS-portability seam: a Linux implementation
// satisfies it with inotify; a Windows implementation would satisfy it with
// ReadDirectoryChangesW. WatchTower never talks to the kernel except through
// this interface.
type changeSource interface {
	// addFile installs a watch on an existing file, returning the handle
	// used to refer to it later. It must report at minimum: content
	// changed, truncated, removed, attribute-changed, and renamed-from.
	addFile(path string) (WatchHandle, error)

	// addDir installs a watch on an existing directory. It must report,
	// per entry: created, deleted, renamed-from(name), renamed-to(name),
	// and attribute-changed.
	addDir(path string) (WatchHandle, error)

	// addLink installs a watch on an existing symlink component itself
	// (not the object it points to), so that retargeting, deleting, or
	// otherwise changing the link is reported independently of whatever
	// it currently resolves to.
	addLink(path string) (WatchHandle, error)

	// remove uninstalls a watch. It is idempotent: removing a handle
	// already invalidated by the kernel (e.g. because its object was
	// deleted) is silently absorbed.
	remove(h WatchHandle)

	// poll blocks until at least one event is available, the source is
	// shut down, or wake is called, and returns the events read so far.
	// A nil slice with a nil error signals shutdown or a spurious wake.
	poll() ([]RawEvent, error)

	// wake causes a blocked poll to return promptly, without necessarily
	// producing any RawEvent, so the event loop can observe state changes
	// made by Register/Release.
	wake()

	// close shuts the source down. poll returns (nil, nil) to every
	// blocked and future caller afterwards.
	close() error
}
