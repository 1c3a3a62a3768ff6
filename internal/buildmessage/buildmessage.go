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
	"os"
	"strings"
	"unicode"

	"bennypowers.dev/cem/internal/logging"
)

// debugBuild reports whether METEOR_DEBUG_BUILD is set.
func debugBuild() bool {
	return os.Getenv("METEOR_DEBUG_BUILD") != ""
}

// CaptureOptions configures Capture's root job, if any.
type CaptureOptions struct {
	Title    string
	RootPath string
}

// Capture creates a fresh MessageSet, optionally a root Job from options,
// installs both as current for this goroutine, runs fn, and restores the
// prior scope on every exit path (including panics) before returning the
// populated MessageSet. A panic inside fn propagates after cleanup.
func Capture(opts CaptureOptions, fn func()) *MessageSet {
	ms := NewMessageSet()
	prior := current()

	var job *Job
	if opts.Title != "" {
		job = newJob(JobOptions{Title: opts.Title, RootPath: opts.RootPath})
		ms.addJob(job)
	}

	tracker := prior.progress
	if tracker == nil {
		tracker = NewProgressTracker(opts.Title)
	} else if opts.Title != "" {
		tracker = tracker.Subtask(opts.Title)
	}

	if debugBuild() {
		logging.Debug("buildmessage: capture start %q", opts.Title)
	}

	pop := pushScope(scope{messageSet: ms, job: job, level: prior.level + 1, progress: tracker})
	defer func() {
		tracker.Done()
		pop()
		if debugBuild() {
			logging.Debug("buildmessage: capture done %q", opts.Title)
		}
	}()

	fn()
	return ms
}

// EnterJob runs fn inside a new child Job of the current job (if any). If
// no MessageSet is active, fn runs directly and only a progress subtask is
// managed. The job, once created, is attached as a child of the
// current Job and appended to the current MessageSet before fn runs, and
// installed as current for the duration.
func EnterJob[T any](opts JobOptions, fn func() (T, error)) (T, error) {
	prior := current()

	tracker := prior.progress
	if tracker != nil {
		tracker = tracker.Subtask(opts.Title)
	}

	if debugBuild() {
		logging.Debug("buildmessage: enterJob start %q", opts.Title)
	}
	defer func() {
		if tracker != nil {
			tracker.Done()
		}
		if debugBuild() {
			logging.Debug("buildmessage: enterJob done %q", opts.Title)
		}
	}()

	if prior.messageSet == nil {
		var zero T
		pop := pushScope(scope{messageSet: nil, job: nil, level: prior.level + 1, progress: tracker})
		defer pop()
		result, err := fn()
		if err != nil {
			return zero, err
		}
		return result, nil
	}

	job := newJob(opts)
	if prior.job != nil {
		prior.job.addChild(job)
	}
	prior.messageSet.addJob(job)

	pop := pushScope(scope{messageSet: prior.messageSet, job: job, level: prior.level + 1, progress: tracker})
	defer pop()

	return fn()
}

// ErrorOptions configures Error's behaviour.
type ErrorOptions struct {
	File         string
	Line         int
	Column       int
	Func         string
	Secondary    bool
	Downcase     bool
	UseMyCaller  bool
	SkipMyCaller int
}

// Error appends a diagnostic message to the current Job. Panics wrapped
// in ErrNoJob if no Job is active.
func Error(message string, opts ErrorOptions) {
	s := current()
	if s.job == nil {
		panic(WrapNoJobError("buildmessage.Error"))
	}

	if opts.Secondary && s.job.HasMessages() {
		return
	}

	if opts.Downcase && message != "" {
		r := []rune(message)
		r[0] = unicode.ToLower(r[0])
		message = string(r)
	}

	m := Message{
		Text:   message,
		File:   opts.File,
		Line:   opts.Line,
		Column: opts.Column,
		Func:   opts.Func,
	}

	if opts.UseMyCaller {
		skip := 1 + opts.SkipMyCaller
		frames := captureStack(skip)
		if len(frames) > 0 {
			top := frames[0]
			m.File = top.File
			m.Line = top.Line
			m.Column = top.Column
			m.Func = top.Func
		}
		m.Stack = frames
	}

	s.job.addMessage(m)
}

// Exception reports err to the current Job, extracting a source location
// when err is (or wraps) a *ParseError. If no Job is active, err is
// re-panicked.
func Exception(err error) {
	s := current()
	if s.job == nil {
		panic(err)
	}

	m := Message{Text: err.Error(), Stack: captureStack(1)}
	if pe, ok := asParseError(err); ok {
		m.Line = pe.LineNumber
		m.Column = pe.Column
		m.Text = pe.Message
	}
	s.job.addMessage(m)
}

func asParseError(err error) (*ParseError, bool) {
	var pe *ParseError
	for err != nil {
		if p, ok := err.(*ParseError); ok {
			pe = p
			break
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	return pe, pe != nil
}

// JobHasMessages reports whether the current Job (or a descendant)
// carries a message.
func JobHasMessages() bool {
	s := current()
	return s.job != nil && s.job.HasMessages()
}

// AssertInJob panics with ErrNoJob if no Job is active.
func AssertInJob() {
	if current().job == nil {
		panic(WrapNoJobError("buildmessage.AssertInJob"))
	}
}

// AssertInCapture panics with ErrNoJob if no MessageSet is active.
func AssertInCapture() {
	if current().messageSet == nil {
		panic(WrapNoJobError("buildmessage.AssertInCapture"))
	}
}

// MergeMessagesIntoCurrentJob folds other's root jobs into the current
// Job's MessageSet as additional sibling jobs — used when a sub-build
// (e.g. assigned-global analysis) ran inside its own Capture and needs
// its findings surfaced to the caller's Capture.
func MergeMessagesIntoCurrentJob(other *MessageSet) {
	s := current()
	if s.messageSet == nil {
		panic(WrapNoJobError("buildmessage.MergeMessagesIntoCurrentJob"))
	}
	s.messageSet.Merge(other)
}

// titleOrDefault renders a job's "While <title>:" header fragment,
// falling back to a generic label when a job carries no title.
func titleOrDefault(title string) string {
	if strings.TrimSpace(title) == "" {
		return "build"
	}
	return title
}
