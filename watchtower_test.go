// File created by olandr (c) 2025.
// Contains code from Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package watchtower

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// waitFor polls cond every few milliseconds until it returns true, failing
// the test if it never does before the timeout. Dispatch crosses goroutine
// boundaries, so tests observe its effect rather than call it synchronously.
func waitFor(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition never became true")
}

// counter is a goroutine-safe callback-invocation counter used as the
// callback argument to Register throughout these tests.
type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) callback() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *counter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func newTestTower() (*WatchTower, *fakeSource) {
	src := newFakeSource()
	return newWatchTower(src), src
}

func TestRegisterExistingFileThenAppend(t *testing.T) {
	dir := testdataDir(t)
	path := filepath.Join(dir, gofakeit.LetterN(8))
	touch(t, path)

	tower, src := newTestTower()
	defer tower.Close()

	var c counter
	reg, err := tower.Register(path, c.callback)
	if err != nil {
		t.Fatalf("Register(%q)=%v", path, err)
	}
	defer reg.Release()

	h := src.handleFor(path)
	src.push(RawEvent{Handle: h, Kind: EvAppended})

	waitFor(t, func() bool { return c.count() == 1 })
}

func TestRegisterMissingFileThenCreated(t *testing.T) {
	dir := testdataDir(t)
	path := filepath.Join(dir, gofakeit.LetterN(8))

	tower, src := newTestTower()
	defer tower.Close()

	var c counter
	reg, err := tower.Register(path, c.callback)
	if err != nil {
		t.Fatalf("Register(%q)=%v", path, err)
	}
	defer reg.Release()

	touch(t, path)

	dh := src.handleFor(dir)
	base := filepath.Base(path)
	src.push(RawEvent{Handle: dh, Kind: EvEntryCreated, Name: base})

	waitFor(t, func() bool { return c.count() == 1 })
}

func TestRemoveThenReappearDispatchesTwice(t *testing.T) {
	dir := testdataDir(t)
	path := filepath.Join(dir, gofakeit.LetterN(8))
	touch(t, path)

	tower, src := newTestTower()
	defer tower.Close()

	var c counter
	reg, err := tower.Register(path, c.callback)
	if err != nil {
		t.Fatalf("Register(%q)=%v", path, err)
	}
	defer reg.Release()

	th := src.handleFor(path)
	src.push(RawEvent{Handle: th, Kind: EvRemoved})
	waitFor(t, func() bool { return c.count() == 1 })

	dh := src.handleFor(dir)
	base := filepath.Base(path)
	src.push(RawEvent{Handle: dh, Kind: EvEntryCreated, Name: base})
	waitFor(t, func() bool { return c.count() == 2 })
}

func TestReleaseStopsFurtherDispatch(t *testing.T) {
	dir := testdataDir(t)
	path := filepath.Join(dir, gofakeit.LetterN(8))
	touch(t, path)

	tower, src := newTestTower()
	defer tower.Close()

	var c counter
	reg, err := tower.Register(path, c.callback)
	if err != nil {
		t.Fatalf("Register(%q)=%v", path, err)
	}

	reg.Release()

	h := src.handleFor(path)
	src.push(RawEvent{Handle: h, Kind: EvAppended})
	src.wake()

	time.Sleep(20 * time.Millisecond)
	if n := c.count(); n != 0 {
		t.Fatalf("count()=%d after Release; want 0", n)
	}
}

func TestTwoSubscribersSameFileBothFire(t *testing.T) {
	dir := testdataDir(t)
	path := filepath.Join(dir, gofakeit.LetterN(8))
	touch(t, path)

	tower, src := newTestTower()
	defer tower.Close()

	var c1, c2 counter
	reg1, err := tower.Register(path, c1.callback)
	if err != nil {
		t.Fatalf("Register(%q)=%v", path, err)
	}
	defer reg1.Release()
	reg2, err := tower.Register(path, c2.callback)
	if err != nil {
		t.Fatalf("Register(%q)=%v", path, err)
	}
	defer reg2.Release()

	h := src.handleFor(path)
	src.push(RawEvent{Handle: h, Kind: EvAppended})

	waitFor(t, func() bool { return c1.count() == 1 && c2.count() == 1 })
}

func TestRenameOutOfDirectory(t *testing.T) {
	dir := testdataDir(t)
	path := filepath.Join(dir, gofakeit.LetterN(8))
	touch(t, path)

	tower, src := newTestTower()
	defer tower.Close()

	var c counter
	reg, err := tower.Register(path, c.callback)
	if err != nil {
		t.Fatalf("Register(%q)=%v", path, err)
	}
	defer reg.Release()

	dh := src.handleFor(dir)
	base := filepath.Base(path)
	src.push(RawEvent{Handle: dh, Kind: EvRenamedFrom, Name: base, Cookie: 1})

	waitFor(t, func() bool { return c.count() == 1 })
}

func TestOverflowForcesResolve(t *testing.T) {
	dir := testdataDir(t)
	path := filepath.Join(dir, gofakeit.LetterN(8))
	touch(t, path)

	tower, src := newTestTower()
	defer tower.Close()

	var c counter
	reg, err := tower.Register(path, c.callback)
	if err != nil {
		t.Fatalf("Register(%q)=%v", path, err)
	}
	defer reg.Release()

	src.push(RawEvent{Kind: EvOverflow})

	// The file is unchanged, so overflow must not spuriously dispatch.
	time.Sleep(20 * time.Millisecond)
	if n := c.count(); n != 0 {
		t.Fatalf("count()=%d after no-op overflow; want 0", n)
	}
}

// TestReleaseOneOfTwoMissingFilesKeepsSharedDirWatch covers the repro from
// the registry's shared-handle invariant: two missing files in the same
// directory share one dirWatch handle. Releasing one registration must not
// uninstall the directory watch the other still depends on to notice its
// own file reappearing.
func TestReleaseOneOfTwoMissingFilesKeepsSharedDirWatch(t *testing.T) {
	dir := testdataDir(t)
	pathA := filepath.Join(dir, "a")
	pathB := filepath.Join(dir, "b")

	tower, src := newTestTower()
	defer tower.Close()

	var ca, cb counter
	regA, err := tower.Register(pathA, ca.callback)
	if err != nil {
		t.Fatalf("Register(%q)=%v", pathA, err)
	}
	regB, err := tower.Register(pathB, cb.callback)
	if err != nil {
		t.Fatalf("Register(%q)=%v", pathB, err)
	}
	defer regB.Release()

	dh := src.handleFor(dir)
	if dh == 0 {
		t.Fatalf("no dirWatch installed for %q", dir)
	}

	regA.Release()
	// Give unregister's wake a moment to be processed before asserting on
	// src state; unregister's registry mutation itself is synchronous.
	time.Sleep(10 * time.Millisecond)

	if got := src.handleFor(dir); got != dh {
		t.Fatalf("dirWatch handle for %q changed/removed after releasing sibling registration: got %v, want %v", dir, got, dh)
	}

	touch(t, pathB)
	src.push(RawEvent{Handle: dh, Kind: EvEntryCreated, Name: "b"})
	waitFor(t, func() bool { return cb.count() == 1 })

	if n := ca.count(); n != 0 {
		t.Fatalf("count()=%d for released registration; want 0", n)
	}
}

// TestReleaseDirectRegistrationKeepsSharedTargetWatch covers the same
// invariant for a target watch shared between a direct registration and one
// reached through a symlink pointing at the same file.
func TestReleaseDirectRegistrationKeepsSharedTargetWatch(t *testing.T) {
	dir := testdataDir(t)
	target := filepath.Join(dir, "target")
	touch(t, target)
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("Symlink()=%v", err)
	}

	tower, src := newTestTower()
	defer tower.Close()

	var cDirect, cLink counter
	regDirect, err := tower.Register(target, cDirect.callback)
	if err != nil {
		t.Fatalf("Register(%q)=%v", target, err)
	}
	regLink, err := tower.Register(link, cLink.callback)
	if err != nil {
		t.Fatalf("Register(%q)=%v", link, err)
	}
	defer regLink.Release()

	th := src.handleFor(target)
	if th == 0 {
		t.Fatalf("no targetWatch installed for %q", target)
	}

	regDirect.Release()
	time.Sleep(10 * time.Millisecond)

	if got := src.handleFor(target); got != th {
		t.Fatalf("targetWatch handle for %q changed/removed after releasing sibling registration: got %v, want %v", target, got, th)
	}

	src.push(RawEvent{Handle: th, Kind: EvAppended})
	waitFor(t, func() bool { return cLink.count() == 1 })

	if n := cDirect.count(); n != 0 {
		t.Fatalf("count()=%d for released registration; want 0", n)
	}
}

func TestCloseStopsEventLoop(t *testing.T) {
	tower, _ := newTestTower()
	if err := tower.Close(); err != nil {
		t.Fatalf("Close()=%v", err)
	}
	select {
	case <-tower.loopDone:
	case <-time.After(time.Second):
		t.Fatalf("event loop did not stop after Close")
	}
}

func TestRegisterAfterCloseReturnsErrShutdown(t *testing.T) {
	dir := testdataDir(t)
	path := filepath.Join(dir, gofakeit.LetterN(8))
	touch(t, path)

	tower, _ := newTestTower()
	if err := tower.Close(); err != nil {
		t.Fatalf("Close()=%v", err)
	}

	if _, err := tower.Register(path, func() {}); err != ErrShutdown {
		t.Fatalf("Register()=%v; want ErrShutdown", err)
	}
}
