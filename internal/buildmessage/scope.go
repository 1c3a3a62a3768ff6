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
	"sync"

	"github.com/petermattis/goid"
)

// scope holds the four dynamically-scoped values a build job tracks:
// the active MessageSet, the active Job, the nesting level, and the
// active progress tracker.
type scope struct {
	messageSet *MessageSet
	job        *Job
	level      int
	progress   *ProgressTracker
}

var (
	scopeMu    sync.Mutex
	scopeStack = map[int64][]*scope{}
)

// currentGoroutineID identifies the logical task scope is keyed to. Each
// goroutine gets an independent scope stack, the Go analogue of
// fiber-local storage.
func currentGoroutineID() int64 {
	return goid.Get()
}

// current returns the innermost scope for this goroutine, or the zero
// scope if none has been pushed.
func current() scope {
	id := currentGoroutineID()
	scopeMu.Lock()
	defer scopeMu.Unlock()
	stack := scopeStack[id]
	if len(stack) == 0 {
		return scope{}
	}
	return *stack[len(stack)-1]
}

// pushScope installs next as the current scope for this goroutine and
// returns a restorer that pops it. Callers must defer the restorer
// immediately so it runs on every exit path, including panics.
func pushScope(next scope) func() {
	id := currentGoroutineID()
	scopeMu.Lock()
	scopeStack[id] = append(scopeStack[id], &next)
	scopeMu.Unlock()

	return func() {
		scopeMu.Lock()
		defer scopeMu.Unlock()
		stack := scopeStack[id]
		if len(stack) == 0 {
			return
		}
		stack = stack[:len(stack)-1]
		if len(stack) == 0 {
			delete(scopeStack, id)
		} else {
			scopeStack[id] = stack
		}
	}
}

// ProgressTracker is a node in the process-wide progress tree: a title, a current state, and subtasks created by nested jobs.
type ProgressTracker struct {
	Title string
	State string

	mu       sync.Mutex
	children []*ProgressTracker
	done     bool
}

// NewProgressTracker returns a root tracker.
func NewProgressTracker(title string) *ProgressTracker {
	return &ProgressTracker{Title: title, State: "pending"}
}

// Subtask creates and attaches a child tracker.
func (p *ProgressTracker) Subtask(title string) *ProgressTracker {
	child := &ProgressTracker{Title: title, State: "pending"}
	p.mu.Lock()
	p.children = append(p.children, child)
	p.mu.Unlock()
	return child
}

// Done marks the tracker complete. Safe to call more than once.
func (p *ProgressTracker) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = true
	p.State = "done"
}

// IsDone reports whether Done has been called.
func (p *ProgressTracker) IsDone() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}
