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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/cem/internal/sourcemap"
)

func TestCombinedFileEmpty(t *testing.T) {
	c := NewCombinedFile()
	source, m, err := c.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "", source)
	assert.Equal(t, 3, m.Version)
	assert.Equal(t, "", m.Mappings)
}

func TestCombinedFileSingleUnmappedChunkSynthesizesEmptyMap(t *testing.T) {
	c := NewCombinedFile()
	c.AddGeneratedCode("// header\n")
	c.AddCodeWithMap("a.js", "exports.x = 1;\n", nil)
	c.AddGeneratedCode("// footer\n")

	source, m, err := c.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "// header\nexports.x = 1;\n// footer\n", source)
	assert.Equal(t, 3, m.Version)
	assert.Contains(t, m.Sources, "a.js")
}

func TestCombinedFileBiasedStrategyRoundTrip(t *testing.T) {
	// Biased-strategy invariant: map.mappings =
	// ";".repeat(headerLines) + originalMappings.
	upstream := &sourcemap.Map{Version: 3, Sources: []string{"orig.ts"}, Names: []string{}, Mappings: "AAAA;CACA"}

	c := NewCombinedFile()
	c.AddEmptyLines(2)
	c.AddCodeWithMap("orig.ts", "var x = 1;\nvar y = 2;\n", upstream)

	_, m, err := c.Finalize()
	require.NoError(t, err)
	assert.Equal(t, ";;AAAA;CACA", m.Mappings)
}

func TestCombinedFileVLQStrategyWithMultipleMappedChunks(t *testing.T) {
	mapA := &sourcemap.Map{Version: 3, Sources: []string{"a.ts"}, Mappings: "AAAA"}
	mapB := &sourcemap.Map{Version: 3, Sources: []string{"b.ts"}, Mappings: "AAAA"}

	c := NewCombinedFile()
	c.AddCodeWithMap("a.ts", "one();\n", mapA)
	c.AddCodeWithMap("b.ts", "two();\n", mapB)

	source, m, err := c.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "one();\ntwo();\n", source)
	assert.Equal(t, []string{"a.ts", "b.ts"}, m.Sources)

	lines := strings.Split(m.Mappings, ";")
	require.Len(t, lines, 2)
}

func TestCombinedFileLineOffsetTracksNewlines(t *testing.T) {
	c := NewCombinedFile()
	c.AddEmptyLines(3)
	assert.Equal(t, 3, c.LineOffset())
	c.AddGeneratedCode("a\nb\nc\n")
	assert.Equal(t, 6, c.LineOffset())
	c.AddCodeWithMap("x.js", "d\ne\n", nil)
	assert.Equal(t, 8, c.LineOffset())
}
