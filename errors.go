// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Edited by in 2025 olandr.
// Reworked for the WatchTower file-change notification core.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package watchtower

import "errors"

// AccessError is returned by Register, and recorded internally, when the
// kernel refused to install a watch on an object that does exist.
type AccessError struct {
	Path string
	Err  error
}

func (e *AccessError) Error() string {
	return "watchtower: access denied for " + e.Path + ": " + e.Err.Error()
}

func (e *AccessError) Unwrap() error { return e.Err }

// LinkCycleError is returned by the PathResolver when a symlink chain
// exceeds maxSymlinkChain without reaching a non-link component.
type LinkCycleError struct {
	Path string
}

func (e *LinkCycleError) Error() string {
	return "watchtower: symlink cycle resolving " + e.Path
}

// ResourceExhaustedError is returned when the change source reports that it
// cannot register any more watches.
type ResourceExhaustedError struct {
	Path string
	Err  error
}

func (e *ResourceExhaustedError) Error() string {
	return "watchtower: resource exhausted watching " + e.Path + ": " + e.Err.Error()
}

func (e *ResourceExhaustedError) Unwrap() error { return e.Err }

// ErrShutdown is returned by Register once the owning WatchTower has begun,
// or finished, tearing down.
var ErrShutdown = errors.New("watchtower: registry is shut down")

// errNoAncestor is fatal for a single WatchedItem: on a rooted filesystem
// it should be unreachable, since "/" always exists.
var errNoAncestor = errors.New("watchtower: no existing ancestor directory")
