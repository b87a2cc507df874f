// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Edited by in 2025 olandr.
// Reworked for the WatchTower file-change notification core.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package watchtower

// runEventLoop is the single background worker described in spec.md §4.E.
// It is started by New and stopped by Close, which shuts down the change
// source so a blocked poll returns and the loop can exit.
func (t *WatchTower) runEventLoop() {
	defer close(t.loopDone)
	for {
		events, err := t.src.poll()
		if err != nil {
			t.handleFatalReadFailure()
			return
		}
		if len(events) == 0 {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if closed {
				return
			}
			// Spurious wake (registration/release activity, or the
			// directory-only half of a poll cycle); loop and poll again.
			continue
		}
		t.processBatch(events)
	}
}

// processBatch classifies every RawEvent from one poll() call and commits
// all of the resulting registry mutations under a single lock acquisition,
// then dispatches once per distinct WatchedItem affected, in the order
// each item was first touched — collapsing a single logical change (e.g. a
// rename touching both halves of a cookie pair) into one dispatch per
// item, per spec.md §4.E point 4 and the "tie-breaks and ordering" note.
func (t *WatchTower) processBatch(events []RawEvent) {
	var order []*WatchedItem
	seen := make(map[*WatchedItem]bool)
	mark := func(it *WatchedItem) {
		if it == nil || seen[it] {
			return
		}
		seen[it] = true
		order = append(order, it)
	}

	t.mu.Lock()
	for _, ev := range events {
		if ev.Kind == EvOverflow {
			t.handleOverflowLocked(mark)
			continue
		}
		t.handleEventLocked(ev, mark)
	}
	// Register and Release modify a live item's subscriber set under mu,
	// so the subscribers to call are collected before unlocking.
	var subs []*subscriber
	for _, it := range order {
		for _, sub := range it.subscribers {
			subs = append(subs, sub)
		}
	}
	t.mu.Unlock()

	for _, sub := range subs {
		sub.invoke()
	}
}

func (t *WatchTower) handleEventLocked(ev RawEvent, mark func(*WatchedItem)) {
	dbgprintf("event kind=%v handle=%v name=%q", ev.Kind, ev.Handle, ev.Name)
	for _, it := range copyOwners(t.byTarget[ev.Handle]) {
		t.handleTargetEventLocked(it, ev, mark)
	}
	for _, it := range copyOwners(t.byLink[ev.Handle]) {
		t.rebindLocked(it, mark)
		mark(it)
	}
	for _, it := range copyOwners(t.byDir[ev.Handle]) {
		t.handleDirEventLocked(it, ev, mark)
	}
}

func copyOwners(owners []*WatchedItem) []*WatchedItem {
	if len(owners) == 0 {
		return nil
	}
	return append([]*WatchedItem(nil), owners...)
}

func (t *WatchTower) handleTargetEventLocked(it *WatchedItem, ev RawEvent, mark func(*WatchedItem)) {
	switch ev.Kind {
	case EvAppended, EvTruncated, EvAttribChanged:
		mark(it)
	case EvRemoved:
		t.releaseTargetLocked(it)
		mark(it)
	}
}

func (t *WatchTower) handleDirEventLocked(it *WatchedItem, ev RawEvent, mark func(*WatchedItem)) {
	if !it.matchesBasename(ev.Name) {
		return
	}
	switch ev.Kind {
	case EvEntryCreated:
		if t.rebindLocked(it, mark) {
			mark(it)
		}
	case EvEntryDeleted:
		t.releaseTargetLocked(it)
		mark(it)
	case EvRenamedFrom, EvRenamedTo:
		t.rebindLocked(it, mark)
		mark(it)
	}
}

// handleOverflowLocked implements the Overflow row of spec.md §4.E's table:
// a queue overrun forces a full re-resolve of every WatchedItem, with a
// dispatch for each whose existence or ObjectIdentity changed as a result.
func (t *WatchTower) handleOverflowLocked(mark func(*WatchedItem)) {
	items := make([]*WatchedItem, 0, len(t.items))
	for _, it := range t.items {
		items = append(items, it)
	}
	for _, it := range items {
		if t.rebindLocked(it, mark) {
			mark(it)
		}
	}
}

// rebindLocked recomputes it's symlink chain and target, reindexes the
// registry's reverse handle maps to match, and reports whether the
// target's existence or identity changed. A resolution failure (e.g. a
// LinkCycleError introduced by a change made after registration, or a
// missing root ancestor) is fatal for this one item per spec.md §4.E.
func (t *WatchTower) rebindLocked(it *WatchedItem, mark func(*WatchedItem)) bool {
	old := snapshotHandles(it)
	changed, err := it.rebind(t.src)
	if err != nil {
		dbgprintf("rebind %q failed: %v", it.path, err)
		t.dropItemFatalLocked(it, old, mark)
		return false
	}
	t.reindex(it, old)
	return changed
}

func (t *WatchTower) releaseTargetLocked(it *WatchedItem) {
	if it.targetWatch == 0 {
		return
	}
	old := snapshotHandles(it)
	it.targetWatch = 0
	it.targetIdentity = ObjectIdentity{}
	it.state = stateMissing
	dbgprintf("release target watch for %q", it.path)
	t.reindex(it, old)
}

// dropItemFatalLocked implements spec.md §4.E's "fatal for that WatchedItem"
// clause: the subscriber set is notified once via a synthetic removal and
// the item is dropped from the registry entirely.
//
// preAttempt is the handle snapshot the reverse index was last built from
// (taken before whatever bind/rebind attempt just failed); it's own fields
// may hold a different, partially-mutated set left over from that attempt.
// Both are released against the index, so a handle shared with a surviving
// item — whether via the old binding or the abandoned new one — is kept.
func (t *WatchTower) dropItemFatalLocked(it *WatchedItem, preAttempt itemHandles, mark func(*WatchedItem)) {
	t.unindexHandles(it, preAttempt)
	t.releaseUnowned(preAttempt)
	t.releaseUnowned(snapshotHandles(it))
	delete(t.items, it.path)
	dbgprintf("dropped %q: resolve failed", it.path)
	mark(it)
}

// handleFatalReadFailure implements spec.md §7's propagation policy for a
// persistent ChangeSource read failure: the worker stops, and every live
// WatchedItem receives one synthetic removal dispatch so its subscribers
// do not hang waiting for a callback that will never come.
func (t *WatchTower) handleFatalReadFailure() {
	dbgprint("change source read failed, shutting down event loop")
	t.mu.Lock()
	items := make([]*WatchedItem, 0, len(t.items))
	for path, it := range t.items {
		old := snapshotHandles(it)
		t.unindexHandles(it, old)
		t.releaseUnowned(old)
		delete(t.items, path)
		items = append(items, it)
	}
	t.mu.Unlock()

	for _, it := range items {
		it.dispatch()
	}
}
