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

package prelink

import (
	"encoding/json"
	"fmt"

	"github.com/evanw/esbuild/pkg/api"

	"bennypowers.dev/cem/internal/sourcemap"
)

// TransformedFile is a bare source file lowered to plain JS, plus whatever
// source map the lowering produced.
type TransformedFile struct {
	Code string
	Map  *sourcemap.Map
}

// TransformBareFile lowers one not-yet-compiled file (TypeScript, JSX, or
// a newer ECMAScript target) to plain JS using esbuild's single-file
// Transform API. The linker itself only ever consumes already-compiled
// InputFiles; this exists so `cem-link link --transform` and
// fixture-generating tests have something to hand the linker besides
// hand-written plain JS, standing in for the package compiler plugin a
// real build pipeline would run first.
func TransformBareFile(source, sourcefile string) (TransformedFile, error) {
	result := api.Transform(source, api.TransformOptions{
		Sourcefile: sourcefile,
		Loader:     loaderFor(sourcefile),
		Sourcemap:  api.SourceMapExternal,
		Target:     api.ES2018,
	})

	if len(result.Errors) > 0 {
		msgs := api.FormatMessages(result.Errors, api.FormatMessagesOptions{Color: false})
		return TransformedFile{}, fmt.Errorf("prelink: transforming %s: %s", sourcefile, joinLines(msgs))
	}

	out := TransformedFile{Code: string(result.Code)}
	if len(result.Map) > 0 {
		var m sourcemap.Map
		if err := json.Unmarshal(result.Map, &m); err == nil {
			out.Map = &m
		}
	}
	return out, nil
}

func loaderFor(sourcefile string) api.Loader {
	switch {
	case hasSuffix(sourcefile, ".tsx"):
		return api.LoaderTSX
	case hasSuffix(sourcefile, ".ts"):
		return api.LoaderTS
	case hasSuffix(sourcefile, ".jsx"):
		return api.LoaderJSX
	default:
		return api.LoaderJS
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func joinLines(msgs []string) string {
	out := ""
	for i, m := range msgs {
		if i > 0 {
			out += "; "
		}
		out += m
	}
	return out
}
