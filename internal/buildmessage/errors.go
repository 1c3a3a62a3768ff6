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
	"fmt"
)

// Sentinel error kinds. Callers match with errors.Is.
var (
	ErrNoJob             = errors.New("buildmessage: diagnostic API used outside a job")
	ErrRuntimeRequired   = errors.New("buildmessage: package requires a runtime but declared none")
	ErrUnrecognisedChunk = errors.New("buildmessage: internal invariant breach in CombinedFile")
)

// WrapNoJobError wraps ErrNoJob with the calling API name for context.
func WrapNoJobError(api string) error {
	return fmt.Errorf("%s: %w", api, ErrNoJob)
}

// WrapRuntimeRequiredError wraps ErrRuntimeRequired with the package name.
func WrapRuntimeRequiredError(packageName string) error {
	return fmt.Errorf("package %q: %w", packageName, ErrRuntimeRequired)
}

// WrapUnrecognisedChunkError wraps ErrUnrecognisedChunk with the offending kind.
func WrapUnrecognisedChunkError(kind string) error {
	return fmt.Errorf("chunk kind %q: %w", kind, ErrUnrecognisedChunk)
}

// ParseError is the structured parse-error kind collaborators
// return: a dedicated kind bearing line, column, and message.
type ParseError struct {
	LineNumber int
	Column     int
	Message    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.LineNumber, e.Column, e.Message)
}
