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
	"strings"

	"bennypowers.dev/cem/internal/sourcemap"
)

type chunkKind int

const (
	chunkGenerated chunkKind = iota
	chunkMapped
)

// chunk is one piece of a CombinedFile's output, in one of three
// variants: a raw generated string, a blank-line run (represented
// here as generated text of "\n"s), or a mapped {code, map?, sourceName,
// lineOffset, lineCount} chunk.
type chunk struct {
	kind chunkKind

	text string // chunkGenerated

	sourceName string // chunkMapped
	code       string
	srcMap     *sourcemap.Map
	lineOffset int
	lineCount  int
}

// CombinedFile incrementally assembles a bundle body and composes its
// source map. lineOffset always records how many '\n'
// characters precede the next chunk in the final output.
type CombinedFile struct {
	chunks     []chunk
	lineOffset int
}

// NewCombinedFile returns an empty builder.
func NewCombinedFile() *CombinedFile {
	return &CombinedFile{}
}

// AddEmptyLines appends n newlines and advances the line offset.
func (c *CombinedFile) AddEmptyLines(n int) {
	if n <= 0 {
		return
	}
	c.chunks = append(c.chunks, chunk{kind: chunkGenerated, text: strings.Repeat("\n", n)})
	c.lineOffset += n
}

// AddGeneratedCode appends text verbatim and advances the line offset by
// its newline count.
func (c *CombinedFile) AddGeneratedCode(text string) {
	if text == "" {
		return
	}
	c.chunks = append(c.chunks, chunk{kind: chunkGenerated, text: text})
	c.lineOffset += strings.Count(text, "\n")
}

// AddCodeWithMap records a mapped chunk at the current offset and
// advances the line offset by code's newline count. m may be nil when
// the source file carried no upstream map.
func (c *CombinedFile) AddCodeWithMap(sourceName, code string, m *sourcemap.Map) {
	lineCount := strings.Count(code, "\n")
	c.chunks = append(c.chunks, chunk{
		kind:       chunkMapped,
		sourceName: sourceName,
		code:       code,
		srcMap:     m,
		lineOffset: c.lineOffset,
		lineCount:  lineCount,
	})
	c.lineOffset += lineCount
}

// LineOffset returns the builder's current running line offset.
func (c *CombinedFile) LineOffset() int { return c.lineOffset }

// Finalize yields {source, sourceMap} via one of two strategies: biased
// (≤1 mapped chunk, a pure string-offset trick) or VLQ (≥2 mapped
// chunks, a full composition). Both emit a version-3 map.
func (c *CombinedFile) Finalize() (string, *sourcemap.Map, error) {
	var src strings.Builder
	var mappedCount int
	for _, ch := range c.chunks {
		if ch.kind == chunkGenerated {
			src.WriteString(ch.text)
		} else {
			src.WriteString(ch.code)
			mappedCount++
		}
	}
	source := src.String()

	if mappedCount <= 1 {
		m, err := c.finalizeBiased()
		return source, m, err
	}
	m, err := c.finalizeVLQ()
	return source, m, err
}

// finalizeBiased is the single-chunk fast path: if the lone mapped chunk
// has its own map, shift it by prepending one empty
// ';' group per offset line rather than re-tokenising the VLQ; otherwise
// synthesise a straight-line empty map spanning the chunk.
func (c *CombinedFile) finalizeBiased() (*sourcemap.Map, error) {
	var mapped *chunk
	for i := range c.chunks {
		if c.chunks[i].kind == chunkMapped {
			mapped = &c.chunks[i]
			break
		}
	}
	if mapped == nil {
		return &sourcemap.Map{Version: 3, Sources: []string{}, Names: []string{}, Mappings: ""}, nil
	}

	if mapped.srcMap != nil {
		shifted := sourcemap.PrependEmptyLines(mapped.srcMap.Mappings, mapped.lineOffset)
		return &sourcemap.Map{
			Version:        3,
			Sources:        mapped.srcMap.Sources,
			SourcesContent: mapped.srcMap.SourcesContent,
			Names:          mapped.srcMap.Names,
			Mappings:       shifted,
		}, nil
	}

	b := sourcemap.NewBuilder()
	b.AddEmptyMap(mapped.sourceName, mapped.lineCount, mapped.lineOffset)
	return b.Build()
}

// finalizeVLQ implements the ≥2-mapped-chunk path: allocate a fresh
// builder and fold or synthesise every mapped chunk into it.
func (c *CombinedFile) finalizeVLQ() (*sourcemap.Map, error) {
	b := sourcemap.NewBuilder()
	for _, ch := range c.chunks {
		if ch.kind != chunkMapped {
			continue
		}
		if ch.srcMap != nil {
			b.AddVLQMap(ch.srcMap, ch.lineOffset)
		} else {
			b.AddEmptyMap(ch.sourceName, ch.lineCount, ch.lineOffset)
		}
	}
	return b.Build()
}
