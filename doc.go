// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Edited by in 2025 olandr.
// Reworked for the WatchTower file-change notification core.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

// Package watchtower lets application code register interest in a set of
// filesystem paths and receive a callback whenever each path's observable
// contents or existence changes. It is the engine behind a log-tailing
// viewer: the paths it is asked to watch are frequently files that do not
// yet exist, are rotated, renamed, replaced via atomic-rename, or accessed
// through a chain of symbolic links.
//
// The package multiplexes an arbitrary number of path registrations over a
// small number of kernel-level watch handles, tracks paths whose backing
// file or parent directory does not (yet) exist and re-binds automatically
// when it reappears, and decomposes every registered path through its full
// symlink chain so that a change to any link along the way is detected.
//
// A registration is represented by a *Registration returned from
// (*WatchTower).Register. Its Release method is the only way to withdraw a
// watch; releasing it is safe even after the owning WatchTower has already
// been closed.
//
// WatchTower does not diff content, deliver changed bytes, or watch
// directory trees recursively: callbacks carry no payload, so consumers are
// expected to re-examine the file themselves.
package watchtower

// BUG(agordon): directory moves that rename an ancestor of a watched path,
// as opposed to the watched basename itself, do not trigger a callback.
//
// BUG(agordon): attribute-only changes (chmod) dispatch only when they land
// on the final target's watch; they are never dispatched for a directory
// watch.
