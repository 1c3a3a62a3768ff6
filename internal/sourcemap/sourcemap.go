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

// Package sourcemap implements the source-map v3 composition engine
// CombinedFile needs: a Map value type matching the
// standard {version, sources, sourcesContent, names, mappings} shape,
// and a Builder that folds several chunks' maps (or synthesises empty
// ones) into a single composed map, mirroring the reference allocator's
// addVLQMap/addEmptyMap/toVLQ contract.
package sourcemap

import (
	"encoding/json"
	"sort"
	"strings"
)

// Map is the standard version-3 source map.
type Map struct {
	Version        int      `json:"version"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// ToJSON serialises the map. Field order matches the struct tag order
// above so two builds of the same inputs produce byte-identical output.
func (m *Map) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PrependEmptyLines returns mappings with n empty ';'-groups prepended,
// shifting every generated-line position down by n lines without
// re-tokenising a single VLQ digit. This is the biased strategy's core
// trick: offsetting a lone chunk's map by the
// header/prefix line count it was concatenated after.
func PrependEmptyLines(mappings string, n int) string {
	if n <= 0 {
		return mappings
	}
	return strings.Repeat(";", n) + mappings
}

// chunk is one mapped or unmapped span folded into a Builder.
type chunk struct {
	offsetLines int
	sourceMap   *Map // nil for an empty (unmapped) chunk
	name        string
	lineCount   int // number of generated lines, for an empty chunk
}

// Builder composes several chunks' source maps into one, using a VLQ
// strategy: every mapped chunk is folded at its
// recorded line offset, re-basing its source/name indices into the
// builder's shared tables; every unmapped chunk contributes a
// straight-line-through empty map covering its generated line span.
type Builder struct {
	chunks []chunk
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddVLQMap folds m's mappings into the composition, offset by
// offsetLines generated lines from the start of the combined output.
func (b *Builder) AddVLQMap(m *Map, offsetLines int) {
	if m == nil {
		return
	}
	b.chunks = append(b.chunks, chunk{offsetLines: offsetLines, sourceMap: m})
}

// AddEmptyMap records lineCount lines of generated code with no upstream
// map, attributed to name (used as the source entry; no sourcesContent
// is recorded) starting at offsetLines.
func (b *Builder) AddEmptyMap(name string, lineCount int, offsetLines int) {
	b.chunks = append(b.chunks, chunk{offsetLines: offsetLines, name: name, lineCount: lineCount})
}

// Build assembles the composed Map. Source and name tables are built in
// first-use order across chunks, in the order they were added, so two
// builders fed the same chunks in the same order produce byte-identical
// output.
func (b *Builder) Build() (*Map, error) {
	result := &Map{Version: 3}

	sourceIndex := make(map[string]int)
	nameIndex := make(map[string]int)

	internSource := func(s string) int {
		if idx, ok := sourceIndex[s]; ok {
			return idx
		}
		idx := len(result.Sources)
		result.Sources = append(result.Sources, s)
		sourceIndex[s] = idx
		return idx
	}
	internName := func(s string) int {
		if idx, ok := nameIndex[s]; ok {
			return idx
		}
		idx := len(result.Names)
		result.Names = append(result.Names, s)
		nameIndex[s] = idx
		return idx
	}

	var lines [][][]int
	ensureLine := func(n int) {
		for len(lines) <= n {
			lines = append(lines, nil)
		}
	}

	for _, c := range b.chunks {
		if c.sourceMap == nil {
			srcIdx := internSource(c.name)
			for i := 0; i < max(c.lineCount, 1); i++ {
				ensureLine(c.offsetLines + i)
				lines[c.offsetLines+i] = [][]int{{0, srcIdx, i, 0}}
			}
			continue
		}

		localSourceIdx := make([]int, len(c.sourceMap.Sources))
		for i, s := range c.sourceMap.Sources {
			localSourceIdx[i] = internSource(s)
		}
		localNameIdx := make([]int, len(c.sourceMap.Names))
		for i, n := range c.sourceMap.Names {
			localNameIdx[i] = internName(n)
		}

		decodedLines, err := decodeVLQMappings(c.sourceMap.Mappings)
		if err != nil {
			return nil, err
		}
		rebasedLines := make([][][]int, len(decodedLines))
		for li, segs := range decodedLines {
			rebased := make([][]int, 0, len(segs))
			for _, seg := range segs {
				out := make([]int, len(seg))
				copy(out, seg)
				if len(out) >= 4 {
					out[1] = localSourceIdx[seg[1]]
				}
				if len(out) == 5 {
					out[4] = localNameIdx[seg[4]]
				}
				rebased = append(rebased, out)
			}
			rebasedLines[li] = rebased
		}
		for li, segs := range rebasedLines {
			genLine := c.offsetLines + li
			ensureLine(genLine)
			if len(segs) == 0 {
				continue
			}
			lines[genLine] = segs
		}
	}

	result.Mappings = encodeVLQMappings(lines)
	if result.Sources == nil {
		result.Sources = []string{}
	}
	if result.Names == nil {
		result.Names = []string{}
	}
	return result, nil
}

// FindPosition maps a one-based generated line and zero-based generated
// column through m to the source position that produced it, binary
// searching the decoded mapping segments on that generated line for the
// last one starting at or before genCol. It returns false if m is nil,
// the generated line has no mapping, or the nearest segment is an
// unmapped (genCol-only) one.
func FindPosition(m *Map, genLine, genCol int) (file string, srcLine, srcCol int, ok bool) {
	if m == nil || genLine < 1 {
		return "", 0, 0, false
	}
	decoded, err := decodeVLQMappings(m.Mappings)
	if err != nil || genLine-1 >= len(decoded) {
		return "", 0, 0, false
	}
	segs := decoded[genLine-1]
	if len(segs) == 0 {
		return "", 0, 0, false
	}
	i := sort.Search(len(segs), func(i int) bool { return segs[i][0] > genCol })
	if i == 0 {
		return "", 0, 0, false
	}
	seg := segs[i-1]
	if len(seg) < 4 {
		return "", 0, 0, false
	}
	srcIdx := seg[1]
	if srcIdx < 0 || srcIdx >= len(m.Sources) {
		return "", 0, 0, false
	}
	return m.Sources[srcIdx], seg[2] + 1, seg[3], true
}
