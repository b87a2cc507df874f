// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Edited by in 2025 olandr.
// Reworked for the WatchTower file-change notification core.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

//go:build unix

package watchtower

import (
	"os"
	"syscall"
)

// ObjectIdentity is the (device, inode) tuple that names a filesystem
// object on the local host. It is used to decide whether a reappearing
// name refers to the same object the WatchedItem was already tracking, or
// to a different one entirely (e.g. after log rotation).
type ObjectIdentity struct {
	Device uint64
	Inode  uint64
}

// identityOf stats path and extracts its ObjectIdentity. path must already
// be known to exist; callers resolve existence separately so they can
// distinguish "missing" from "stat failed for another reason".
func identityOf(path string) (ObjectIdentity, error) {
	var st syscall.Stat_t
	if err := syscall.Stat(path, &st); err != nil {
		return ObjectIdentity{}, err
	}
	return identityFromStat(&st), nil
}

func identityFromFileInfo(fi os.FileInfo) (ObjectIdentity, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return ObjectIdentity{}, false
	}
	return identityFromStat(st), true
}

func identityFromStat(st *syscall.Stat_t) ObjectIdentity {
	return ObjectIdentity{
		Device: uint64(st.Dev),
		Inode:  uint64(st.Ino),
	}
}
