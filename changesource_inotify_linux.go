// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Edited by in 2025 olandr.
// Reworked for the WatchTower file-change notification core.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

//go:build linux
// +build linux

package watchtower

import (
	"bytes"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// inotifyMask is what every watch — file or directory — is installed with.
// WatchedItem classification (§4.E) decides what a given raw mask bit means
// for a given handle, so the source itself asks for everything it might
// ever need to report and lets the event loop filter.
const inotifyMask = unix.IN_MODIFY | unix.IN_ATTRIB | unix.IN_CLOSE_WRITE |
	unix.IN_MOVE_SELF | unix.IN_DELETE_SELF | unix.IN_CREATE | unix.IN_DELETE |
	unix.IN_MOVED_FROM | unix.IN_MOVED_TO

// inotifySource is the Linux changeSource, built directly on
// golang.org/x/sys/unix the way olandr-notify/event_inotify.go does,
// plus a self-pipe so wake() can interrupt a blocked poll().
type inotifySource struct {
	fd int

	mu         sync.Mutex
	byWd       map[int32]WatchHandle
	wdByHandle map[WatchHandle]int32
	nextID     uint64
	closed     bool
	wakeR      int
	wakeW      int
}

func newInotifySource() (*inotifySource, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("watchtower: inotify_init1: %w", err)
	}
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("watchtower: pipe2: %w", err)
	}
	return &inotifySource{
		fd:         fd,
		byWd:       make(map[int32]WatchHandle),
		wdByHandle: make(map[WatchHandle]int32),
		nextID:     1,
		wakeR:      fds[0],
		wakeW:      fds[1],
	}, nil
}

func (s *inotifySource) addFile(path string) (WatchHandle, error) { return s.add(path, inotifyMask) }
func (s *inotifySource) addDir(path string) (WatchHandle, error)  { return s.add(path, inotifyMask) }

// addLink watches the symlink component itself rather than whatever it
// points to: IN_DONT_FOLLOW makes inotify_add_watch stat the link, not its
// target, which is essential here since the target already gets its own
// watch installed separately and symlink retargeting must be observable
// independently of content changes at either end of the chain.
func (s *inotifySource) addLink(path string) (WatchHandle, error) {
	return s.add(path, inotifyMask|unix.IN_DONT_FOLLOW)
}

func (s *inotifySource) add(path string, mask uint32) (WatchHandle, error) {
	wd, err := unix.InotifyAddWatch(s.fd, path, mask)
	if err != nil {
		if err == unix.ENOSPC {
			return 0, &ResourceExhaustedError{Path: path, Err: err}
		}
		return 0, &AccessError{Path: path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.byWd[int32(wd)]; ok {
		// inotify_add_watch on an already-watched inode returns the same
		// wd and merges the mask; reuse the handle we already minted.
		return h, nil
	}
	h := WatchHandle(s.nextID)
	s.nextID++
	s.byWd[int32(wd)] = h
	s.wdByHandle[h] = int32(wd)
	return h, nil
}

func (s *inotifySource) remove(h WatchHandle) {
	s.mu.Lock()
	wd, ok := s.wdByHandle[h]
	if ok {
		delete(s.wdByHandle, h)
		delete(s.byWd, wd)
	}
	s.mu.Unlock()
	if ok {
		// A handle already invalidated by the kernel (its inode is gone,
		// which drops the watch automatically and delivers IN_IGNORED)
		// makes this call return EINVAL; that is expected and absorbed.
		unix.InotifyRmWatch(s.fd, uint32(wd))
	}
}

func (s *inotifySource) wake() {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	var b [1]byte
	unix.Write(s.wakeW, b[:])
}

func (s *inotifySource) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	unix.Close(s.wakeW)
	unix.Close(s.wakeR)
	return unix.Close(s.fd)
}

// poll reads from both the inotify fd and the self-pipe via poll(2); it
// returns (nil, nil) once close has been called, or when only the wake
// pipe fired, leaving the caller to re-examine state and poll again.
func (s *inotifySource) poll() ([]RawEvent, error) {
	pfds := []unix.PollFd{
		{Fd: int32(s.fd), Events: unix.POLLIN},
		{Fd: int32(s.wakeR), Events: unix.POLLIN},
	}

	for {
		_, err := unix.Poll(pfds, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, err
		}

		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil, nil
		}

		if pfds[1].Revents&unix.POLLIN != 0 {
			var buf [64]byte
			for {
				if _, err := unix.Read(s.wakeR, buf[:]); err != nil {
					break
				}
			}
		}

		if pfds[0].Revents&unix.POLLIN == 0 {
			return nil, nil
		}

		return s.readEvents()
	}
}

func (s *inotifySource) readEvents() ([]RawEvent, error) {
	var buf [64 * 1024]byte
	n, err := unix.Read(s.fd, buf[:])
	if err != nil {
		if err == unix.EINTR || err == unix.EAGAIN {
			return nil, nil
		}
		return nil, err
	}

	var events []RawEvent
	offset := 0
	for offset+unix.SizeofInotifyEvent <= n {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		nameLen := int(raw.Len)
		var name string
		if nameLen > 0 {
			start := offset + unix.SizeofInotifyEvent
			name = cInotifyName(buf[start : start+nameLen])
		}
		mask := raw.Mask
		cookie := raw.Cookie

		s.mu.Lock()
		handle, known := s.byWd[raw.Wd]
		s.mu.Unlock()

		switch {
		case mask&unix.IN_Q_OVERFLOW != 0:
			events = append(events, RawEvent{Kind: EvOverflow})
		case known:
			for _, ev := range translateMask(mask, name, cookie) {
				ev.Handle = handle
				events = append(events, ev)
			}
		}

		if mask&unix.IN_IGNORED != 0 && known {
			s.mu.Lock()
			delete(s.wdByHandle, handle)
			delete(s.byWd, raw.Wd)
			s.mu.Unlock()
		}

		offset += unix.SizeofInotifyEvent + nameLen
	}
	return events, nil
}

// cInotifyName trims the trailing NUL padding inotify uses to align each
// name onto a 4-byte boundary.
func cInotifyName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func translateMask(mask uint32, name string, cookie uint32) []RawEvent {
	var out []RawEvent
	if mask&(unix.IN_MODIFY|unix.IN_CLOSE_WRITE) != 0 {
		out = append(out, RawEvent{Kind: EvAppended, Name: name})
	}
	if mask&unix.IN_ATTRIB != 0 {
		out = append(out, RawEvent{Kind: EvAttribChanged, Name: name})
	}
	if mask&(unix.IN_DELETE_SELF|unix.IN_MOVE_SELF) != 0 {
		out = append(out, RawEvent{Kind: EvRemoved, Name: name})
	}
	if mask&unix.IN_CREATE != 0 {
		out = append(out, RawEvent{Kind: EvEntryCreated, Name: name})
	}
	if mask&unix.IN_DELETE != 0 {
		out = append(out, RawEvent{Kind: EvEntryDeleted, Name: name})
	}
	if mask&unix.IN_MOVED_FROM != 0 {
		out = append(out, RawEvent{Kind: EvRenamedFrom, Name: name, Cookie: cookie})
	}
	if mask&unix.IN_MOVED_TO != 0 {
		out = append(out, RawEvent{Kind: EvRenamedTo, Name: name, Cookie: cookie})
	}
	return out
}
