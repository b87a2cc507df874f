// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Edited by in 2025 olandr.
// Reworked for the WatchTower file-change notification core.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package watchtower

import "sync/atomic"

// subscriber is one callback registered against a WatchedItem. It pairs the
// callback with a liveness probe: an atomically-checked flag that answers
// "has Release already run?" per spec.md §9. The event loop consults it
// immediately before every invocation so that a callback is never invoked
// after its Registration has been released (invariant I6 / property P2).
//
// id is unique per WatchedItem and is what a Registration carries back to
// the registry on release; it never collides with another subscriber's id
// even after that subscriber is gone, since it is minted from a
// monotonically increasing counter rather than reused from a freelist.
type subscriber struct {
	id       uint64
	callback func()
	released atomic.Bool
}

func newSubscriber(id uint64, callback func()) *subscriber {
	return &subscriber{id: id, callback: callback}
}

// release marks the subscriber dead. Calling it more than once is safe and
// has no additional effect.
func (s *subscriber) release() {
	s.released.Store(true)
}

// invoke runs the callback unless the subscriber has already been
// released, re-checking immediately before the call so a release that
// races with dispatch still wins per I6.
func (s *subscriber) invoke() {
	if s.released.Load() {
		return
	}
	s.callback()
}
