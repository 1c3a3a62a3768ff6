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
package sourcemap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrependEmptyLines(t *testing.T) {
	t.Run("no offset returns mappings unchanged", func(t *testing.T) {
		assert.Equal(t, "AAAA", PrependEmptyLines("AAAA", 0))
	})

	t.Run("biased strategy round-trip property", func(t *testing.T) {
		// spec property 8: biased-strategy output has
		// map.mappings = ";".repeat(headerLines) + originalMappings
		original := "AAAA;CACA"
		shifted := PrependEmptyLines(original, 3)
		assert.Equal(t, ";;;"+original, shifted)
		assert.Equal(t, strings.Count(shifted, ";"), 3+strings.Count(original, ";"))
	})
}

func TestBuilderEmptyMapsOnly(t *testing.T) {
	b := NewBuilder()
	b.AddEmptyMap("a.js", 2, 0)
	b.AddEmptyMap("b.js", 1, 2)

	m, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, 3, m.Version)
	assert.Equal(t, []string{"a.js", "b.js"}, m.Sources)
	assert.Equal(t, []string{}, m.Names)

	lines := strings.Split(m.Mappings, ";")
	require.Len(t, lines, 3)

	segs, err := decodeVLQSegments(lines[0])
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, 0, segs[0][1]) // points at a.js

	segs, err = decodeVLQSegments(lines[2])
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, 1, segs[0][1]) // points at b.js
}

func TestBuilderFoldsUpstreamMap(t *testing.T) {
	upstream := &Map{
		Version: 3,
		Sources: []string{"orig.ts"},
		Names:   []string{"foo"},
	}
	upstream.Mappings = encodeVLQSegments([][]int{{0, 0, 0, 0, 0}})

	b := NewBuilder()
	b.AddEmptyMap("header.js", 2, 0)
	b.AddVLQMap(upstream, 2)

	m, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"header.js", "orig.ts"}, m.Sources)
	assert.Equal(t, []string{"foo"}, m.Names)

	lines := strings.Split(m.Mappings, ";")
	require.GreaterOrEqual(t, len(lines), 3)

	segs, err := decodeVLQSegments(lines[2])
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, 1, segs[0][1]) // rebased to orig.ts's new index
	assert.Equal(t, 0, segs[0][4]) // rebased name index (only one name)
}

func TestBuilderRebasesMultipleUpstreamSources(t *testing.T) {
	upstreamA := &Map{Version: 3, Sources: []string{"a.ts"}}
	upstreamA.Mappings = encodeVLQSegments([][]int{{0, 0, 0, 0}})
	upstreamB := &Map{Version: 3, Sources: []string{"b.ts"}}
	upstreamB.Mappings = encodeVLQSegments([][]int{{0, 0, 0, 0}})

	b := NewBuilder()
	b.AddVLQMap(upstreamA, 0)
	b.AddVLQMap(upstreamB, 1)

	m, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.ts", "b.ts"}, m.Sources)

	lines := strings.Split(m.Mappings, ";")
	require.Len(t, lines, 2)

	segs0, err := decodeVLQSegments(lines[0])
	require.NoError(t, err)
	assert.Equal(t, 0, segs0[0][1])

	segs1, err := decodeVLQSegments(lines[1])
	require.NoError(t, err)
	assert.Equal(t, 1, segs1[0][1])
}

func TestBuilderCarriesSourcePositionAcrossMultipleLinesOfUpstreamMap(t *testing.T) {
	// A realistic multi-line upstream map: source line/column are
	// cumulative deltas across the whole mapping (only the generated
	// column resets per line), so line 1's encoded delta (+3) is taken
	// relative to line 0's ending srcLine (5), not relative to zero.
	upstream := &Map{Version: 3, Sources: []string{"multi.ts"}}
	upstream.Mappings = encodeVLQMappings([][][]int{
		{{0, 0, 5, 0}},
		{{0, 0, 8, 2}},
		{{0, 0, 8, 9}},
	})

	b := NewBuilder()
	b.AddVLQMap(upstream, 0)

	m, err := b.Build()
	require.NoError(t, err)

	decoded, err := decodeVLQMappings(m.Mappings)
	require.NoError(t, err)
	require.Len(t, decoded, 3)
	assert.Equal(t, 5, decoded[0][0][2]) // srcLine 5 on line 0
	assert.Equal(t, 8, decoded[1][0][2]) // carries forward to 8, not reset to 3
	assert.Equal(t, 2, decoded[1][0][3])
	assert.Equal(t, 8, decoded[2][0][2]) // still 8 two lines later
	assert.Equal(t, 9, decoded[2][0][3]) // srcCol carries forward too
}

func TestMapToJSON(t *testing.T) {
	m := &Map{Version: 3, Sources: []string{"x.ts"}, Names: []string{}, Mappings: "AAAA"}
	data, err := m.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version":3`)
	assert.Contains(t, string(data), `"mappings":"AAAA"`)
}
