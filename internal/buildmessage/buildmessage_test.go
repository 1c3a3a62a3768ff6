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
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureReturnsMessageSet(t *testing.T) {
	ms := Capture(CaptureOptions{Title: "test"}, func() {
		Error("something went wrong", ErrorOptions{File: "a.js", Line: 1, Column: 2})
	})
	require.Len(t, ms.Jobs(), 1)
	msgs := ms.Jobs()[0].Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "something went wrong", msgs[0].Text)
}

func TestErrorOutsideJobPanicsNoJob(t *testing.T) {
	assert.Panics(t, func() {
		Error("oops", ErrorOptions{})
	})
}

func TestEnterJobNestsUnderCurrentJob(t *testing.T) {
	ms := Capture(CaptureOptions{Title: "outer"}, func() {
		_, _ = EnterJob(JobOptions{Title: "inner"}, func() (any, error) {
			Error("nested error", ErrorOptions{})
			return nil, nil
		})
	})
	root := ms.Jobs()[0]
	require.Len(t, root.Children(), 1)
	child := root.Children()[0]
	assert.Equal(t, "inner", child.Title)
	assert.Len(t, child.Messages(), 1)
}

func TestEnterJobWithoutCaptureRunsDirectly(t *testing.T) {
	result, err := EnterJob(JobOptions{Title: "standalone"}, func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestErrorSecondarySuppressed(t *testing.T) {
	ms := Capture(CaptureOptions{Title: "t"}, func() {
		Error("first", ErrorOptions{})
		Error("second", ErrorOptions{Secondary: true})
	})
	msgs := ms.Jobs()[0].Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "first", msgs[0].Text)
}

func TestErrorDowncasesFirstCharacter(t *testing.T) {
	ms := Capture(CaptureOptions{Title: "t"}, func() {
		Error("Capitalized message", ErrorOptions{Downcase: true})
	})
	msgs := ms.Jobs()[0].Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "capitalized message", msgs[0].Text)
}

func TestJobHasMessages(t *testing.T) {
	Capture(CaptureOptions{Title: "t"}, func() {
		assert.False(t, JobHasMessages())
		Error("x", ErrorOptions{})
		assert.True(t, JobHasMessages())
	})
}

func TestExceptionOutsideJobRepanics(t *testing.T) {
	sentinel := errors.New("boom")
	assert.PanicsWithError(t, "boom", func() {
		Exception(sentinel)
	})
}

func TestExceptionExtractsParseErrorLocation(t *testing.T) {
	ms := Capture(CaptureOptions{Title: "t"}, func() {
		Exception(&ParseError{LineNumber: 5, Column: 3, Message: "unexpected token"})
	})
	msgs := ms.Jobs()[0].Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, 5, msgs[0].Line)
	assert.Equal(t, 3, msgs[0].Column)
	assert.Equal(t, "unexpected token", msgs[0].Text)
}

func TestForkJoinParallelPreservesResultOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	results, err := ForkJoin(ForkJoinOptions{Title: "fj"}, items, func(i int) (int, error) {
		return i * i, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 9, 16, 25}, results)
}

func TestForkJoinSerialPreservesOrder(t *testing.T) {
	serial := false
	items := []int{1, 2, 3}
	var order []int
	_, err := ForkJoin(ForkJoinOptions{Title: "fj", Parallel: &serial}, items, func(i int) (int, error) {
		order = append(order, i)
		return i, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestForkJoinCollectsFirstErrorWithoutCancellingSiblings(t *testing.T) {
	items := []int{1, 2, 3}
	var ran atomic.Int32
	results, err := ForkJoin(ForkJoinOptions{Title: "fj"}, items, func(i int) (int, error) {
		ran.Add(1)
		if i == 2 {
			return 0, errors.New("bad item")
		}
		return i, nil
	})
	assert.Nil(t, results)
	require.Error(t, err)
	assert.Equal(t, "bad item", err.Error())
	assert.Equal(t, int32(3), ran.Load())
}

func TestMarkBoundaryRegistersAndTruncatesStack(t *testing.T) {
	var msgs []Message
	wrapped := MarkBoundary(func() {
		msgs = Capture(CaptureOptions{Title: "t"}, func() {
			Error("x", ErrorOptions{UseMyCaller: true})
		}).Jobs()[0].Messages()
	})
	wrapped()
	require.Len(t, msgs, 1)
	for _, f := range msgs[0].Stack {
		assert.NotContains(t, f.Func, "testing.tRunner")
	}
}

func TestFormatMessagesRendersWhileBlockAndDedupes(t *testing.T) {
	ms := Capture(CaptureOptions{Title: "linking package foo"}, func() {
		Error("bad thing", ErrorOptions{File: "a.js", Line: 1, Column: 2})
		Error("bad thing", ErrorOptions{File: "a.js", Line: 1, Column: 2})
	})
	out := ms.FormatMessages()
	assert.Contains(t, out, "While linking package foo:")
	assert.Equal(t, 1, countOccurrences(out, "a.js:1:2: bad thing"))
}

func countOccurrences(haystack, needle string) int {
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			count++
		}
	}
	return count
}
