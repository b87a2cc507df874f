// File created by olandr (c) 2025.
// Contains code from Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package watchtower

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSymlinkAppendToTarget(t *testing.T) {
	dir := testdataDir(t)
	target := filepath.Join(dir, "target")
	touch(t, target)
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("Symlink()=%v", err)
	}

	tower, src := newTestTower()
	defer tower.Close()

	var c counter
	reg, err := tower.Register(link, c.callback)
	if err != nil {
		t.Fatalf("Register(%q)=%v", link, err)
	}
	defer reg.Release()

	th := src.handleFor(target)
	src.push(RawEvent{Handle: th, Kind: EvAppended})

	waitFor(t, func() bool { return c.count() == 1 })
}

func TestSymlinkRemovingLinkItselfRebindsAndDispatches(t *testing.T) {
	dir := testdataDir(t)
	target := filepath.Join(dir, "target")
	touch(t, target)
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("Symlink()=%v", err)
	}

	tower, src := newTestTower()
	defer tower.Close()

	var c counter
	reg, err := tower.Register(link, c.callback)
	if err != nil {
		t.Fatalf("Register(%q)=%v", link, err)
	}
	defer reg.Release()

	lh := src.handleFor(link)
	src.push(RawEvent{Handle: lh, Kind: EvRemoved})

	// A link-watch event always forces a rebind and a dispatch, per
	// spec.md §4.E, independent of whether the rebind's resolve() sees any
	// actual change (the link is still present on disk in this test).
	waitFor(t, func() bool { return c.count() == 1 })
}

func TestSymlinkReappearsWithNewTarget(t *testing.T) {
	dir := testdataDir(t)
	oldTarget := filepath.Join(dir, "old-target")
	touch(t, oldTarget)
	link := filepath.Join(dir, "link")
	if err := os.Symlink(oldTarget, link); err != nil {
		t.Fatalf("Symlink()=%v", err)
	}

	tower, src := newTestTower()
	defer tower.Close()

	var c counter
	reg, err := tower.Register(link, c.callback)
	if err != nil {
		t.Fatalf("Register(%q)=%v", link, err)
	}
	defer reg.Release()

	// Simulate the symlink being removed and recreated pointing at a
	// brand new target, the way log rotation replaces a symlink. The
	// link's own watch reports the removal first (forcing a rebind that
	// leaves the item tracking "link" as a missing directory entry),
	// then the directory watch reports the new entry once it exists.
	linkHandle := src.handleFor(link)
	if err := os.Remove(link); err != nil {
		t.Fatalf("Remove(%q)=%v", link, err)
	}
	src.push(RawEvent{Handle: linkHandle, Kind: EvRemoved})
	waitFor(t, func() bool { return c.count() == 1 })

	newTarget := filepath.Join(dir, "new-target")
	touch(t, newTarget)
	if err := os.Symlink(newTarget, link); err != nil {
		t.Fatalf("Symlink()=%v", err)
	}

	dh := src.handleFor(dir)
	src.push(RawEvent{Handle: dh, Kind: EvEntryCreated, Name: "link"})

	waitFor(t, func() bool { return c.count() == 2 })
}

func TestRegistrationOutlivesWatchTower(t *testing.T) {
	dir := testdataDir(t)
	path := filepath.Join(dir, "file")
	touch(t, path)

	tower, _ := newTestTower()

	var c counter
	reg, err := tower.Register(path, c.callback)
	if err != nil {
		t.Fatalf("Register(%q)=%v", path, err)
	}

	if err := tower.Close(); err != nil {
		t.Fatalf("Close()=%v", err)
	}

	// Release after the owning WatchTower is gone must not panic or block.
	reg.Release()
	reg.Release()
}
