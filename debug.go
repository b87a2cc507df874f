// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Edited by in 2025 olandr.
// Reworked for the WatchTower file-change notification core.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package watchtower

import (
	"fmt"
	"log"
	"os"
)

// debug is nil unless WATCHTOWER_DEBUG is set, mirroring the teacher's
// NOTIFY_DEBUG-gated dbgprintf/dbgprint helpers.
var debug *log.Logger

func init() {
	if os.Getenv("WATCHTOWER_DEBUG") != "" {
		debug = log.New(os.Stderr, "watchtower: ", log.Lmicroseconds|log.Lshortfile)
	}
}

func dbgprintf(format string, v ...interface{}) {
	if debug == nil {
		return
	}
	debug.Output(2, fmt.Sprintf(format, v...))
}

func dbgprint(v ...interface{}) {
	if debug == nil {
		return
	}
	debug.Output(2, fmt.Sprint(v...))
}
