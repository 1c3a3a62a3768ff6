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

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/cem/internal/buildmessage"
	"bennypowers.dev/cem/internal/sourcemap"
)

func runFullLink(t *testing.T, in FullLinkInput) ([]OutputFile, *buildmessage.MessageSet) {
	t.Helper()
	var outputs []OutputFile
	var linkErr error
	ms := buildmessage.Capture(buildmessage.CaptureOptions{Title: "link"}, func() {
		_, err := buildmessage.EnterJob(buildmessage.JobOptions{Title: "full link"}, func() (any, error) {
			outputs, linkErr = FullLink(in)
			return nil, linkErr
		})
		_ = err
	})
	require.NoError(t, linkErr)
	return outputs, ms
}

// TestFullLinkEmptyModuleProducesBareRuntimelessBundle covers scenario S1:
// no files, no deps -- no runtime is required, and the output is just the
// bare IIFE wrapper around an empty body.
func TestFullLinkEmptyModuleProducesBareRuntimelessBundle(t *testing.T) {
	outputs, _ := runFullLink(t, FullLinkInput{
		CombinedServePath: "/app.js",
		Name:              "app",
	})
	require.Len(t, outputs, 1)
	assert.Contains(t, outputs[0].Source, "(function() {")
	assert.Contains(t, outputs[0].Source, "})();")
	assert.Equal(t, "/app.js", outputs[0].ServePath)
}

// TestFullLinkMissingRuntimeWithEagerModuleFails covers the
// RuntimeRequired fatal error: a package with an eager module but no
// ordered dependency has no runtime to install itself into.
func TestFullLinkMissingRuntimeWithEagerModuleFails(t *testing.T) {
	opts := &InstallOptions{Data: map[string]any{"name": "pkg"}}
	in := FullLinkInput{
		InputFiles: []*InputFile{{
			Source:         []byte("exports.x = 1;\n"),
			AbsModuleId:    strPtr("/a.js"),
			Imported:       ImportedStatic,
			InstallOptions: opts,
			MainModule:     true,
		}},
		Name: "pkg",
	}

	var linkErr error
	buildmessage.Capture(buildmessage.CaptureOptions{Title: "link"}, func() {
		_, _ = buildmessage.EnterJob(buildmessage.JobOptions{Title: "full link"}, func() (any, error) {
			_, linkErr = FullLink(in)
			return nil, linkErr
		})
	})
	require.Error(t, linkErr)
	assert.ErrorIs(t, linkErr, buildmessage.ErrRuntimeRequired)
}

// TestFullLinkWithRuntimeWrapsInPackageQueue covers the runtime-available
// path: header becomes Package["core-runtime"].queue(...), footer returns
// an object carrying require/eagerModulePaths/mainModulePath.
func TestFullLinkWithRuntimeWrapsInPackageQueue(t *testing.T) {
	opts := &InstallOptions{Data: map[string]any{"name": "pkg"}}
	in := FullLinkInput{
		InputFiles: []*InputFile{{
			Source:         []byte("exports.x = 1;\n"),
			AbsModuleId:    strPtr("/a.js"),
			ServePath:      "/a.js",
			Imported:       ImportedStatic,
			InstallOptions: opts,
			MainModule:     true,
		}},
		Name:            "pkg",
		DeclaredExports: []string{"x"},
		Deps:            []DepEntry{{Package: "core-runtime"}},
	}

	outputs, _ := runFullLink(t, in)
	require.Len(t, outputs, 1)
	src := outputs[0].Source
	assert.Contains(t, src, `Package["core-runtime"].queue("pkg"`)
	assert.Contains(t, src, "var require = meteorInstall(")
	assert.Contains(t, src, `mainModulePath: "/a.js"`)
	assert.Contains(t, src, "require: require")
	assert.Contains(t, src, "});")
}

// TestFullLinkParseErrorRecoveryYieldsEmptyPackage covers scenario S6: a
// package whose only file fails to parse during assigned-global analysis
// reports the error and the link returns no output (recovery, not panic).
func TestFullLinkParseErrorRecoveryYieldsEmptyPackage(t *testing.T) {
	opts := &InstallOptions{Data: map[string]any{"name": "broken"}}
	in := FullLinkInput{
		InputFiles: []*InputFile{{
			Source:         []byte("function ("),
			SourcePath:     "broken.js",
			AbsModuleId:    strPtr("/broken.js"),
			ServePath:      "/broken.js",
			Imported:       ImportedStatic,
			InstallOptions: opts,
		}},
		IsApp:           false,
		Name:            "broken",
		DeclaredExports: nil,
		Deps:            []DepEntry{{Package: "core-runtime"}},
	}

	outputs, ms := runFullLink(t, in)
	assert.Nil(t, outputs)

	var sawMessage bool
	for _, j := range ms.Jobs() {
		if j.HasMessages() {
			sawMessage = true
		}
		for _, c := range j.Children() {
			if c.HasMessages() {
				sawMessage = true
			}
		}
	}
	assert.True(t, sawMessage)
}

// TestPackageAccessorConvertsName covers the identifier-vs-bracket
// package accessor rule.
func TestPackageAccessorConvertsName(t *testing.T) {
	assert.Equal(t, "Package.foo", packageAccessor("foo"))
	assert.Equal(t, "Package['foo-bar']", packageAccessor("foo-bar"))
}

// TestBuildImportsBlockNestsDottedNames covers the symbol-tree construction
// from dotted import names.
func TestBuildImportsBlockNestsDottedNames(t *testing.T) {
	out := buildImportsBlock(map[string]string{"Foo.bar": "Package.x.Foo.bar"}, false)
	assert.Contains(t, out, "var Foo = {bar: Package.x.Foo.bar};")
}

func TestBuildImportsBlockOmitsVarForApp(t *testing.T) {
	out := buildImportsBlock(map[string]string{"Foo": "Package.x.Foo"}, true)
	assert.NotContains(t, out, "var ")
	assert.Contains(t, out, "Foo = Package.x.Foo;")
}

// multiFileLinkInput builds a fresh FullLinkInput with two mapped files
// each call, so two calls never share a single
// *InputFile/*InstallOptions pointer — a determinism test over this must
// rely entirely on content, not accidental identity reuse.
func multiFileLinkInput() FullLinkInput {
	opts := &InstallOptions{Data: map[string]any{"name": "pkg"}}
	return FullLinkInput{
		InputFiles: []*InputFile{
			{
				Source:         []byte("exports.a = 1;\n"),
				AbsModuleId:    strPtr("/a.js"),
				ServePath:      "/a.js",
				SourcePath:     "a.ts",
				Imported:       ImportedStatic,
				InstallOptions: opts,
				MainModule:     true,
				SourceMap:      &sourcemap.Map{Version: 3, Sources: []string{"a.ts"}, Names: []string{}, Mappings: "AAAA"},
			},
			{
				Source:         []byte("exports.b = 2;\n"),
				AbsModuleId:    strPtr("/b.js"),
				ServePath:      "/b.js",
				SourcePath:     "b.ts",
				Imported:       ImportedStatic,
				InstallOptions: opts,
				SourceMap:      &sourcemap.Map{Version: 3, Sources: []string{"b.ts"}, Names: []string{}, Mappings: "AAAA"},
			},
		},
		Name:            "pkg",
		DeclaredExports: []string{"a", "b"},
		Deps:            []DepEntry{{Package: "core-runtime"}},
	}
}

// TestFullLinkIsDeterministicAcrossRepeatedCalls covers the determinism
// property: two independently-built-but-equivalent FullLinkInput values,
// linked in two separate Capture/EnterJob scopes, must produce
// byte-identical source and source maps.
func TestFullLinkIsDeterministicAcrossRepeatedCalls(t *testing.T) {
	first, _ := runFullLink(t, multiFileLinkInput())
	second, _ := runFullLink(t, multiFileLinkInput())

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Source, second[0].Source)
	if diff := cmp.Diff(first[0].SourceMap, second[0].SourceMap); diff != "" {
		t.Errorf("source map differs across repeated FullLink calls (-first +second):\n%s", diff)
	}
}
