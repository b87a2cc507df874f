// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Edited by in 2025 olandr.
// Reworked for the WatchTower file-change notification core.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package watchtower

import (
	"os"
	"path/filepath"
)

// maxSymlinkChain bounds symlink resolution the same way the kernel does;
// exceeding it is reported as a LinkCycleError rather than looping forever.
const maxSymlinkChain = 40

// SymlinkChain is the ordered list of link names from the user-visible path
// down to the first non-link or missing component. Link[0] is always the
// user-visible path itself, whether or not it happens to be a symlink.
type SymlinkChain []string

// resolution is the result of resolving a single user path.
type resolution struct {
	chain              SymlinkChain
	targetExists       bool
	targetIdentity     ObjectIdentity
	deepestExistingDir string
}

// resolve decomposes path through any number of intermediate symbolic
// links. It performs no I/O beyond the act of resolution itself and is
// idempotent under a stable filesystem, per spec.md §4.B.
//
// If any component is missing, the chain ends at the last successfully
// read link, targetExists is false, and deepestExistingDir is the deepest
// directory that does exist along the remaining path.
func resolve(path string) (resolution, error) {
	path = filepath.Clean(path)
	chain := SymlinkChain{path}
	current := path

	for i := 0; i < maxSymlinkChain; i++ {
		fi, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				dir, derr := deepestExistingAncestor(current)
				if derr != nil {
					return resolution{}, derr
				}
				return resolution{
					chain:              chain,
					targetExists:       false,
					deepestExistingDir: dir,
				}, nil
			}
			return resolution{}, err
		}

		if fi.Mode()&os.ModeSymlink == 0 {
			// current is the final, non-link target and it exists.
			identity, ok := identityFromFileInfo(fi)
			if !ok {
				var statErr error
				identity, statErr = identityOf(current)
				if statErr != nil {
					return resolution{}, statErr
				}
			}
			return resolution{
				chain:              chain,
				targetExists:       true,
				targetIdentity:     identity,
				deepestExistingDir: filepath.Dir(current),
			}, nil
		}

		link, err := os.Readlink(current)
		if err != nil {
			return resolution{}, err
		}
		if !filepath.IsAbs(link) {
			link = filepath.Join(filepath.Dir(current), link)
		}
		link = filepath.Clean(link)
		current = link
		chain = append(chain, current)
	}

	return resolution{}, &LinkCycleError{Path: path}
}

// deepestExistingAncestor walks up from path (which is known not to exist)
// to find the deepest directory that does exist. On a rooted filesystem
// this always terminates at "/" at the latest.
func deepestExistingAncestor(path string) (string, error) {
	dir := filepath.Dir(path)
	for {
		fi, err := os.Stat(dir)
		if err == nil {
			if !fi.IsDir() {
				// A non-directory component shadows a deeper path
				// element; its parent is the real ancestor.
				dir = filepath.Dir(dir)
				continue
			}
			return dir, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached the root without finding it; should be
			// unreachable on a rooted filesystem.
			return "", errNoAncestor
		}
		dir = parent
	}
}
