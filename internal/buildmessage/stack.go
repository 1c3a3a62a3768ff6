/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package buildmessage

import (
	"runtime"
	"sync"
)

// boundaryFuncs holds the fully-qualified names of functions wrapped by
// MarkBoundary. captureStack truncates a parsed trace at the first frame
// whose function is one of these, hiding this package's own call frames
// from reported diagnostics.
var (
	boundaryMu    sync.RWMutex
	boundaryFuncs = map[string]bool{}
)

// MarkBoundary tags fn so capturing a stack trace from inside it (directly
// or transitively) stops at fn's frame, the way markBottom does in the
// collaborator contract. The wrapped function is registered
// by name the first time it runs, since Go cannot name a closure before
// it is called.
func MarkBoundary(fn func()) func() {
	return func() {
		pc, _, _, ok := runtime.Caller(0)
		if ok {
			if f := runtime.FuncForPC(pc); f != nil {
				boundaryMu.Lock()
				boundaryFuncs[f.Name()] = true
				boundaryMu.Unlock()
			}
		}
		fn()
	}
}

// captureStack walks the caller's stack (skipping skip frames beyond this
// function itself) into a Frame slice, truncated at the first recognised
// boundary frame.
func captureStack(skip int) []Frame {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])

	boundaryMu.RLock()
	defer boundaryMu.RUnlock()

	var out []Frame
	for {
		f, more := frames.Next()
		if boundaryFuncs[f.Function] {
			break
		}
		out = append(out, Frame{
			Func:   f.Function,
			File:   f.File,
			Line:   f.Line,
			Column: 0,
		})
		if !more {
			break
		}
	}
	return out
}
