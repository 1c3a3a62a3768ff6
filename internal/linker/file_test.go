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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/cem/internal/buildmessage"
)

func TestFileIsDynamicInvariant(t *testing.T) {
	cases := []struct {
		name     string
		lazy     bool
		imported ImportKind
		want     bool
	}{
		{"lazy+dynamic", true, ImportedDynamic, true},
		{"lazy+static", true, ImportedStatic, false},
		{"not lazy", false, ImportedDynamic, false},
		{"not imported", true, ImportedNone, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := NewFile(&InputFile{Lazy: c.lazy, Imported: c.imported}, "web.browser")
			assert.Equal(t, c.want, f.IsDynamic())
		})
	}
}

func TestFileHashDerivedWhenAbsent(t *testing.T) {
	f := NewFile(&InputFile{Source: []byte("exports.x = 1;\n")}, "web.browser")
	assert.Len(t, f.Hash(), 40) // hex-encoded sha1
}

func TestFileHashPrecomputedIsPreserved(t *testing.T) {
	f := NewFile(&InputFile{Source: []byte("x"), Hash: "deadbeef"}, "web.browser")
	assert.Equal(t, "deadbeef", f.Hash())
}

func TestFileDepsExcludesDynamic(t *testing.T) {
	f := NewFile(&InputFile{
		Deps: map[string]DepInfo{
			"/static.js":  {Dynamic: false},
			"/dynamic.js": {Dynamic: true},
		},
	}, "web.browser")
	assert.ElementsMatch(t, []string{"/static.js"}, f.Deps())
}

func TestGetPrelinkedOutputFastBareFile(t *testing.T) {
	f := NewFile(&InputFile{Source: []byte(""), Bare: true, ServePath: "/client.js"}, "web.browser")
	out := f.GetPrelinkedOutputFast()
	assert.Equal(t, "", out.Footer)
	assert.Contains(t, out.Header, "/client.js")
}

func TestGetPrelinkedOutputFastWithInstallOptions(t *testing.T) {
	opts := &InstallOptions{}
	f := NewFile(&InputFile{
		Source:         []byte("exports.x = require('y');\n"),
		InstallOptions: opts,
		ServePath:      "/a.js",
	}, "web.browser")
	out := f.GetPrelinkedOutputFast()
	assert.Contains(t, out.Header, "function (require, exports)")
	assert.Equal(t, "}", out.Footer)
}

func TestGetPrelinkedOutputFastWithoutInstallOptions(t *testing.T) {
	f := NewFile(&InputFile{
		Source:    []byte("var x = 1;\n"),
		ServePath: "/a.js",
	}, "web.browser")
	out := f.GetPrelinkedOutputFast()
	assert.Contains(t, out.Header, "(function(){")
	assert.Equal(t, "}).call(this);\n", out.Footer)
}

func TestComputeAssignedVariablesReportsParseErrorAndEmptiesSource(t *testing.T) {
	f := NewFile(&InputFile{Source: []byte("function ("), SourcePath: "broken.js"}, "web.browser")

	ms := buildmessage.Capture(buildmessage.CaptureOptions{Title: "test"}, func() {
		globals := f.ComputeAssignedVariables()
		assert.Empty(t, globals)
	})
	require.Len(t, ms.Jobs(), 1)
	assert.NotEmpty(t, ms.Jobs()[0].Messages())
	assert.Nil(t, f.Source())
}

func TestComputeAssignedVariablesFindsTopLevelAssignment(t *testing.T) {
	f := NewFile(&InputFile{Source: []byte("foo = 1;\n"), SourcePath: "ok.js"}, "web.browser")
	globals := f.ComputeAssignedVariables()
	assert.True(t, globals.Has("foo"))
}

func TestGetPrelinkedOutputCachesAcrossCalls(t *testing.T) {
	f := NewFile(&InputFile{Source: []byte("exports.x = 1;\n"), ServePath: "/cached.js", Hash: "fixed-hash"}, "web.browser")

	first := f.GetPrelinkedOutput(false)
	// mutate the backing source after the first call; a cache hit must
	// still return the original output rather than recomputing.
	f.SetSource([]byte("exports.x = 2;\n"))
	second := f.GetPrelinkedOutput(false)

	assert.Equal(t, first, second)
}

func TestGetPrelinkedOutputDisableCacheAlwaysRecomputes(t *testing.T) {
	f := NewFile(&InputFile{Source: []byte("exports.x = 1;\n"), ServePath: "/uncached.js", Hash: "another-hash"}, "web.browser")

	first := f.GetPrelinkedOutput(true)
	f.SetSource([]byte("exports.x = 2;\n"))
	second := f.GetPrelinkedOutput(true)

	assert.NotEqual(t, first.Code, second.Code)
}
