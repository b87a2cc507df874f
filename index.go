// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Edited by in 2025 olandr.
// Reworked for the WatchTower file-change notification core.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package watchtower

// itemHandles is a snapshot of the WatchHandles a WatchedItem currently
// holds, used to diff before/after a bind or rebind so the registry's
// reverse index (handle -> owning items) can be kept exactly in sync with
// invariant I5: the installed watch set equals the union implied by I2-I4
// across every item, with no orphans.
type itemHandles struct {
	target WatchHandle
	dir    WatchHandle
	links  []WatchHandle
}

func snapshotHandles(it *WatchedItem) itemHandles {
	links := make([]WatchHandle, len(it.linkWatches))
	for i, lw := range it.linkWatches {
		links[i] = lw.handle
	}
	return itemHandles{target: it.targetWatch, dir: it.dirWatch, links: links}
}

// reindex drops item's membership under its pre-bind handles (old) and adds
// it back under whatever handles it holds now. A single handle may end up
// owned by more than one item — e.g. two watched files in the same
// directory share a directory_watch handle — so each bucket is a slice.
// Any of old's handles item no longer holds are released, but only once no
// other item still owns them; this is what keeps a rebind or release of one
// WatchedItem from tearing down a kernel watch a sibling item depends on.
func (t *WatchTower) reindex(item *WatchedItem, old itemHandles) {
	t.unindexHandles(item, old)
	t.indexHandles(item)
	t.releaseUnowned(old)
}

// releaseUnowned calls src.remove on every handle in h that no WatchedItem
// is registered under anymore in any of the three reverse indices. It must
// be called after the indices have already been updated to reflect whatever
// change prompted the release, so the ownership check is accurate.
func (t *WatchTower) releaseUnowned(h itemHandles) {
	t.releaseHandle(h.target)
	t.releaseHandle(h.dir)
	for _, lh := range h.links {
		t.releaseHandle(lh)
	}
}

func (t *WatchTower) releaseHandle(h WatchHandle) {
	if h == 0 {
		return
	}
	if len(t.byTarget[h]) != 0 || len(t.byDir[h]) != 0 || len(t.byLink[h]) != 0 {
		return
	}
	t.src.remove(h)
}

func (t *WatchTower) indexHandles(it *WatchedItem) {
	if it.targetWatch != 0 {
		t.byTarget[it.targetWatch] = appendOwner(t.byTarget[it.targetWatch], it)
	}
	if it.dirWatch != 0 {
		t.byDir[it.dirWatch] = appendOwner(t.byDir[it.dirWatch], it)
	}
	for _, lw := range it.linkWatches {
		t.byLink[lw.handle] = appendOwner(t.byLink[lw.handle], it)
	}
}

func (t *WatchTower) unindexHandles(it *WatchedItem, old itemHandles) {
	if old.target != 0 {
		t.byTarget[old.target] = removeOwner(t.byTarget[old.target], it)
	}
	if old.dir != 0 {
		t.byDir[old.dir] = removeOwner(t.byDir[old.dir], it)
	}
	for _, h := range old.links {
		t.byLink[h] = removeOwner(t.byLink[h], it)
	}
}

func appendOwner(owners []*WatchedItem, it *WatchedItem) []*WatchedItem {
	for _, o := range owners {
		if o == it {
			return owners
		}
	}
	return append(owners, it)
}

func removeOwner(owners []*WatchedItem, it *WatchedItem) []*WatchedItem {
	for i, o := range owners {
		if o == it {
			return append(owners[:i], owners[i+1:]...)
		}
	}
	return owners
}
