// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Edited by in 2025 olandr.
// Reworked for the WatchTower file-change notification core.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package watchtower

import "sync"

// Registration is a scoped, move-only subscriber token returned by
// (*WatchTower).Register. Release is the sole way to withdraw the watch it
// represents; it is safe to call multiple times and safe to call after the
// owning WatchTower has already been closed.
//
// Go's garbage collector retires the C++ original's weak_ptr-to-registry
// trick (spec.md §9): tower is an ordinary pointer, and what makes release
// safe after Close is that Close flips a closed flag under the registry
// mutex, which unregister checks before touching any WatchedItem state.
type Registration struct {
	once sync.Once

	tower *WatchTower
	path  string
	subID uint64
	sub   *subscriber
}

// Release withdraws the watch. When the subscriber it represents was the
// last one interested in its WatchedItem, all of that item's kernel watches
// are released and the item is dropped from the registry. Release never
// invokes the callback again once it returns (property P2).
func (r *Registration) Release() {
	r.once.Do(func() {
		// Mark the subscriber dead first so a dispatch already in
		// flight, snapshotted before this call acquired nothing, still
		// observes the release (invariant I6).
		r.sub.release()
		r.tower.unregister(r.path, r.subID)
	})
}
