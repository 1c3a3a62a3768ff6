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

package linker

import (
	"regexp"
	"strings"

	"github.com/gosimple/slug"
)

// unsafeSourceNameChar matches anything a source-map "sources" entry
// shouldn't carry verbatim once the colon substitution has
// already run: control characters, backslashes, and other characters a
// filesystem or a source-map consumer could trip on.
var unsafeSourceNameChar = regexp.MustCompile(`[^A-Za-z0-9._/\-]`)

// sanitizeSourceName derives a CombinedFile chunk's sourceName from a
// serve path: colons become "-", and any other filesystem-unsafe
// character falls back to gosimple/slug's
// slugging (applied per path segment, so "/" still separates directories).
func sanitizeSourceName(servePath string) string {
	colonSubstituted := strings.ReplaceAll(servePath, ":", "-")
	if !unsafeSourceNameChar.MatchString(colonSubstituted) {
		return colonSubstituted
	}

	segments := strings.Split(colonSubstituted, "/")
	for i, seg := range segments {
		if seg == "" || !unsafeSourceNameChar.MatchString(seg) {
			continue
		}
		segments[i] = slug.Make(seg)
	}
	return strings.Join(segments, "/")
}
