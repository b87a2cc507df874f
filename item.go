// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Edited by in 2025 olandr.
// Reworked for the WatchTower file-change notification core.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package watchtower

import "path/filepath"

// itemState mirrors the WatchedItem state machine from spec.md §4.E.
type itemState int

const (
	stateMissing itemState = iota
	statePresent
)

// linkWatch is one symlink component's installed watch, per invariant I4.
type linkWatch struct {
	path   string
	handle WatchHandle
}

// WatchedItem is the per-user-path state described in spec.md §3: the
// symlink chain, the current target identity, the directory watch used to
// detect reappearance, and the set of subscribers interested in it.
type WatchedItem struct {
	path string

	state          itemState
	chain          SymlinkChain
	targetIdentity ObjectIdentity
	targetWatch    WatchHandle // zero when absent, per I2
	linkWatches    []linkWatch // per I4, one per existing symlink component
	dirWatch       WatchHandle
	dirPath        string
	basename       string // name of the entry awaited under dirPath, matched against directory events

	nextSubID   uint64
	subscribers map[uint64]*subscriber
}

func newWatchedItem(path string) *WatchedItem {
	return &WatchedItem{
		path:        path,
		subscribers: make(map[uint64]*subscriber),
	}
}

// addSubscriber registers callback against this item and returns the
// subscriber handle the Registration will later release.
func (it *WatchedItem) addSubscriber(callback func()) *subscriber {
	it.nextSubID++
	sub := newSubscriber(it.nextSubID, callback)
	it.subscribers[sub.id] = sub
	return sub
}

// removeSubscriber deletes a subscriber by id, returning whether the item
// now has no subscribers left.
func (it *WatchedItem) removeSubscriber(id uint64) (empty bool) {
	delete(it.subscribers, id)
	return len(it.subscribers) == 0
}

// bind resolves the item's path for the first time and installs the
// watches implied by spec.md invariants I2-I4. It must only be called
// while the registry mutex is held.
func (it *WatchedItem) bind(src changeSource) error {
	res, err := resolve(it.path)
	if err != nil {
		return err
	}
	return it.applyResolution(src, res)
}

// rebind recomputes the symlink chain and target and adjusts installed
// watches to match, reusing handles whose target is unchanged to avoid a
// rewatch storm during rapid changes, per spec.md §4.C.
func (it *WatchedItem) rebind(src changeSource) (identityChanged bool, err error) {
	res, err := resolve(it.path)
	if err != nil {
		return false, err
	}

	prevExists, prevIdentity := it.state == statePresent, it.targetIdentity
	if err := it.applyResolution(src, res); err != nil {
		return false, err
	}
	identityChanged = prevExists != res.targetExists ||
		(res.targetExists && prevIdentity != res.targetIdentity)
	return identityChanged, nil
}

// applyResolution installs/releases watches so the live set matches res,
// reusing any link or directory watch whose path is unchanged and any
// target watch whose ObjectIdentity is unchanged.
func (it *WatchedItem) applyResolution(src changeSource, res resolution) error {
	wantLinks := res.chain[:len(res.chain)-1]
	keepLinks := make([]linkWatch, 0, len(wantLinks))

	oldByPath := make(map[string]WatchHandle, len(it.linkWatches))
	for _, lw := range it.linkWatches {
		oldByPath[lw.path] = lw.handle
	}
	for _, p := range wantLinks {
		if h, ok := oldByPath[p]; ok {
			keepLinks = append(keepLinks, linkWatch{path: p, handle: h})
			delete(oldByPath, p)
			continue
		}
		h, err := src.addLink(p)
		if err != nil {
			// it.linkWatches reflects exactly what's installed so far;
			// the caller releases it (and whatever this attempt left in
			// it.dirWatch/it.targetWatch) against the reverse index, since
			// a handle here may still be shared with another WatchedItem.
			it.linkWatches = keepLinks
			return err
		}
		keepLinks = append(keepLinks, linkWatch{path: p, handle: h})
	}
	it.linkWatches = keepLinks

	if res.deepestExistingDir != it.dirPath || it.dirWatch == 0 {
		h, err := src.addDir(res.deepestExistingDir)
		if err != nil {
			return err
		}
		it.dirWatch = h
		it.dirPath = res.deepestExistingDir
	}

	final := res.chain[len(res.chain)-1]
	// The entry that will appear under the watched directory is the first
	// component below it: the final name itself when its parent exists,
	// otherwise the topmost missing directory on the way to it.
	entry := final
	for filepath.Dir(entry) != res.deepestExistingDir && filepath.Dir(entry) != entry {
		entry = filepath.Dir(entry)
	}
	it.basename = filepath.Base(entry)

	switch {
	case res.targetExists && it.state == statePresent && it.targetIdentity == res.targetIdentity:
		// Same object, nothing to do.
	case res.targetExists:
		h, err := src.addFile(final)
		if err != nil {
			return err
		}
		it.targetWatch = h
		it.targetIdentity = res.targetIdentity
		it.state = statePresent
	default:
		it.targetWatch = 0
		it.targetIdentity = ObjectIdentity{}
		it.state = stateMissing
	}

	it.chain = res.chain
	return nil
}

// dispatch invokes every live subscriber's callback exactly once. The
// registry mutex must not be held while this runs (§4.D concurrency
// contract), and it reads the subscriber set without that mutex, so it is
// only called on items already removed from the registry, whose subscriber
// set nothing else modifies. For live items, processBatch collects the
// subscribers under the lock and invokes them after releasing it.
func (it *WatchedItem) dispatch() {
	for _, sub := range it.subscribers {
		sub.invoke()
	}
}

// matchesBasename reports whether a directory-watch entry event, reported
// with the given name, concerns the entry this item awaits under its
// watched directory.
func (it *WatchedItem) matchesBasename(name string) bool {
	return name != "" && name == it.basename
}
