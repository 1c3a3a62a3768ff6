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

import "sync"

// ForkJoinOptions configures ForkJoin. Parallel defaults to true — set it
// false explicitly to force serial execution.
type ForkJoinOptions struct {
	Title    string
	Parallel *bool
}

func (o ForkJoinOptions) isParallel() bool {
	if o.Parallel == nil {
		return true
	}
	return *o.Parallel
}

// ForkJoin wraps items in a parent Job with one child Job per element,
// running fn over each. In parallel mode (the default) every element
// runs on its own goroutine, each inheriting an independent scope
// fork of the parent's so its own enterJob calls nest correctly; errors
// from siblings are collected rather than cancelling the others. In
// serial mode elements run one at a time, in order. Either way, results
// come back in input order; if any element errored, the first error by
// collection order is returned (and the result slice is nil).
func ForkJoin[I any, T any](opts ForkJoinOptions, items []I, fn func(I) (T, error)) ([]T, error) {
	n := len(items)
	results := make([]T, n)
	var errMu sync.Mutex
	var firstErr error

	parentScope := current()
	parentJob := newJob(JobOptions{Title: opts.Title})
	if parentScope.job != nil {
		parentScope.job.addChild(parentJob)
	}
	if parentScope.messageSet != nil {
		parentScope.messageSet.addJob(parentJob)
	}

	runOne := func(i int) {
		childJob := newJob(JobOptions{})
		parentJob.addChild(childJob)

		pop := pushScope(scope{
			messageSet: parentScope.messageSet,
			job:        childJob,
			level:      parentScope.level + 1,
			progress:   parentScope.progress,
		})
		defer pop()

		result, err := fn(items[i])
		results[i] = result
		if err != nil {
			errMu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			errMu.Unlock()
		}
	}

	if opts.isParallel() {
		var wg sync.WaitGroup
		wg.Add(n)
		for i := range items {
			go func(i int) {
				defer wg.Done()
				runOne(i)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range items {
			runOne(i)
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
