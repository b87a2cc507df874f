// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Edited by in 2025 olandr.
// Reworked for the WatchTower file-change notification core.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package watchtower

import (
	"path/filepath"
	"sync"
)

// WatchTower is the registry described in spec.md §4.D: it maps user paths
// to WatchedItems, deduplicates concurrent registrations of the same path,
// and owns the changeSource and the single background event-loop worker.
//
// All registry mutations serialize on mu; mu is never held while a
// subscriber callback runs, and watch-installing operations call wake() on
// the change source after releasing mu so the event loop re-examines state
// promptly (§4.D concurrency contract).
type WatchTower struct {
	mu     sync.Mutex
	items  map[string]*WatchedItem
	src    changeSource
	closed bool

	// Reverse indices from an installed WatchHandle back to the item(s)
	// relying on it, kept in sync with every bind/rebind/release so the
	// event loop can resolve a RawEvent's handle without scanning items.
	byTarget map[WatchHandle][]*WatchedItem
	byDir    map[WatchHandle][]*WatchedItem
	byLink   map[WatchHandle][]*WatchedItem

	loopDone chan struct{}
}

// New constructs a WatchTower and starts its background event-loop worker.
// There are no parameters: tuning, if it is ever needed, is a functional
// option added later, not configuration carried by the core (spec.md §6).
func New() (*WatchTower, error) {
	src, err := newInotifySource()
	if err != nil {
		return nil, err
	}
	return newWatchTower(src), nil
}

// newWatchTower wires up a WatchTower around an already-constructed
// changeSource and starts its event-loop worker. Split out of New so tests
// can substitute a fakeSource for the real inotify backend.
func newWatchTower(src changeSource) *WatchTower {
	tower := &WatchTower{
		items:    make(map[string]*WatchedItem),
		src:      src,
		byTarget: make(map[WatchHandle][]*WatchedItem),
		byDir:    make(map[WatchHandle][]*WatchedItem),
		byLink:   make(map[WatchHandle][]*WatchedItem),
		loopDone: make(chan struct{}),
	}
	go tower.runEventLoop()
	return tower
}

// Register resolves path, creates its WatchedItem if none exists yet, or
// appends callback as an additional subscriber otherwise, and returns a
// scoped Registration. It succeeds even when path does not yet exist — in
// that case only the directory watch is installed — and never blocks on
// I/O longer than one resolve-and-watch-install (spec.md §4.D).
//
// Register surfaces AccessError, *LinkCycleError, and
// *ResourceExhaustedError to the caller (spec.md §7). AccessError is the
// one exception to "error means no Registration": per spec.md §4.E, a path
// that exists but whose target the kernel refuses to watch still gets a
// live Registration — its directory watch is in place and it will attempt
// to bind the target watch again when that directory watch reports the
// entry being created or renamed, or after a queue overflow — so Register
// returns both a non-nil *Registration and a non-nil error in that one
// case. A change to the file's permissions alone does not trigger a new
// attempt.
func (t *WatchTower) Register(path string, callback func()) (*Registration, error) {
	path = filepath.Clean(path)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrShutdown
	}

	item, existed := t.items[path]
	var bindErr error
	if !existed {
		item = newWatchedItem(path)
		bindErr = item.bind(t.src)
		switch bindErr.(type) {
		case nil, *AccessError:
			t.items[path] = item
			t.indexHandles(item)
		default:
			// bind may have installed some watches (e.g. a link in the
			// chain) before failing on a later one; release whatever it
			// managed to set up, since this item never joins the registry
			// and so was never indexed. A handle may still be shared with
			// an already-registered item (the real source dedups by
			// inode), so this goes through the same refcount guard as
			// every other release path rather than removing unconditionally.
			dbgprintf("bind %q failed: %v", path, bindErr)
			t.releaseUnowned(snapshotHandles(item))
			t.mu.Unlock()
			return nil, bindErr
		}
	}

	sub := item.addSubscriber(callback)
	dbgprintf("registered %q (new=%v, subscribers=%d)", path, !existed, len(item.subscribers))
	t.mu.Unlock()

	t.src.wake()

	reg := &Registration{tower: t, path: path, subID: sub.id, sub: sub}
	if bindErr != nil {
		return reg, bindErr
	}
	return reg, nil
}

// unregister removes the subscriber identified by subID from path's item.
// When it was the last subscriber, the item's watches are released and it
// is dropped from the registry. It is a safe no-op once the tower is
// closed, per spec.md §4.F.
func (t *WatchTower) unregister(path string, subID uint64) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	item, ok := t.items[path]
	if !ok {
		t.mu.Unlock()
		return
	}
	empty := item.removeSubscriber(subID)
	if empty {
		old := snapshotHandles(item)
		t.unindexHandles(item, old)
		t.releaseUnowned(old)
		delete(t.items, path)
		dbgprintf("unregistered %q: last subscriber left", path)
	}
	t.mu.Unlock()

	t.src.wake()
}

// Close stops the background worker, releases every installed watch, and
// invalidates all outstanding Registrations (their Release becomes a
// no-op). Any in-flight callback completes before Close returns.
func (t *WatchTower) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	err := t.src.close()
	<-t.loopDone

	t.mu.Lock()
	for path, item := range t.items {
		old := snapshotHandles(item)
		t.unindexHandles(item, old)
		t.releaseUnowned(old)
		delete(t.items, path)
	}
	t.mu.Unlock()

	dbgprint("registry closed")
	return err
}
