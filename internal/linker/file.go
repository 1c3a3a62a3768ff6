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
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"bennypowers.dev/cem/internal/buildmessage"
	"bennypowers.dev/cem/internal/prelink"
	"bennypowers.dev/cem/internal/sourcemap"
	"bennypowers.dev/cem/internal/staticanalysis"
	"bennypowers.dev/cem/set"
)

// closureParams is the ordered identifier list File.getPrelinkedOutputFast
// scans the source for: the header's parameter list is a
// prefix of this long enough to cover whichever occurs latest.
var closureParams = []string{"require", "exports", "module", "__filename", "__dirname"}

// File owns a hashed snapshot of one InputFile, adapted for one target
// architecture.
type File struct {
	input *InputFile
	arch  string

	hash string
	deps []string // non-dynamic dependency ids
}

// NewFile constructs a File from input for arch, deriving its hash via
// sha1 when input didn't precompute one, and dropping dynamic entries
// from its dependency list.
func NewFile(input *InputFile, arch string) *File {
	f := &File{input: input, arch: arch}

	if input.Hash != "" {
		f.hash = input.Hash
	} else {
		sum := sha1.Sum(input.Source)
		f.hash = hex.EncodeToString(sum[:])
	}

	for id, dep := range input.Deps {
		if !dep.Dynamic {
			f.deps = append(f.deps, id)
		}
	}
	return f
}

// Hash returns the content hash that uniquely identifies this file's source.
func (f *File) Hash() string { return f.hash }

// Arch returns the target bundle architecture this File was built for.
func (f *File) Arch() string { return f.arch }

// Deps returns the non-dynamic dependency ids.
func (f *File) Deps() []string { return f.deps }

// AbsModuleId returns the file's absolute module id, or nil.
func (f *File) AbsModuleId() *string { return f.input.AbsModuleId }

// AliasId returns the file's alias target, or nil.
func (f *File) AliasId() *string { return f.input.AliasId }

// ServePath returns the file's bundle-relative serve path.
func (f *File) ServePath() string { return f.input.ServePath }

// SourcePath returns the file's project-relative source path.
func (f *File) SourcePath() string { return f.input.SourcePath }

// InstallOptions returns the file's install-options object, or nil.
func (f *File) InstallOptions() *InstallOptions { return f.input.InstallOptions }

// Lazy reports the file's lazy flag.
func (f *File) Lazy() bool { return f.input.Lazy }

// Imported reports the file's import classification.
func (f *File) Imported() ImportKind { return f.input.Imported }

// Bare reports whether the file is emitted unwrapped, outside the module system.
func (f *File) Bare() bool { return f.input.Bare }

// MainModule reports whether this is the package's designated main module.
func (f *File) MainModule() bool { return f.input.MainModule }

// JSONData returns the file's parsed package.json-like payload, or nil.
func (f *File) JSONData() map[string]any { return f.input.JSONData }

// SourceMap returns the file's upstream source map, or nil.
func (f *File) SourceMap() *sourcemap.Map { return f.input.SourceMap }

// Source returns the file's raw source text.
func (f *File) Source() []byte { return f.input.Source }

// SetSource overwrites the file's source — used by parse-error recovery
// to substitute an empty source after reporting the error.
func (f *File) SetSource(src []byte) { f.input.Source = src }

// IsDynamic reports the invariant isDynamic ⇔ lazy ∧ imported = dynamic.
func (f *File) IsDynamic() bool {
	return f.input.Lazy && f.input.Imported == ImportedDynamic
}

// ComputeAssignedVariables returns the set of top-level identifiers
// assigned without a prior declaration, delegating to the static-analysis
// collaborator. On a parse error, it reports the error to
// the current Job (mapped through the upstream source map if present),
// substitutes an empty source, and returns an empty set — the standard
// parse-error recovery path.
func (f *File) ComputeAssignedVariables() set.Set[string] {
	globals, err := staticanalysis.FindAssignedGlobals(f.input.Source, f.hash)
	if err == nil {
		return globals
	}

	pe, ok := err.(*staticanalysis.ParseError)
	if !ok {
		buildmessage.Error(err.Error(), buildmessage.ErrorOptions{File: f.input.SourcePath})
		f.input.Source = nil
		return set.NewSet[string]()
	}

	file, line, col := f.input.SourcePath, pe.LineNumber, pe.Column
	if f.input.SourceMap != nil {
		if mappedFile, mappedLine, mappedCol, ok := mapPosition(f.input.SourceMap, line, col); ok {
			file, line, col = mappedFile, mappedLine, mappedCol
		}
	}

	buildmessage.Error(pe.Message, buildmessage.ErrorOptions{
		File:   file,
		Line:   line,
		Column: col,
	})
	f.input.Source = nil
	return set.NewSet[string]()
}

// mapPosition maps a parse error's (one-based line, zero-based column)
// position through sm, a chunk's upstream source map, to the source
// file and position that produced the generated code at that point. It
// reports ok = false when sm has no mapping covering the position, in
// which case the caller should keep the original file and position.
func mapPosition(sm *sourcemap.Map, line, col int) (string, int, int, bool) {
	return sourcemap.FindPosition(sm, line, col)
}

// GetPrelinkedOutputFast builds this file's prelinked {header, code, map,
// footer}.
func (f *File) GetPrelinkedOutputFast() PrelinkedOutput {
	banner := f.banner()

	if f.input.Bare {
		return PrelinkedOutput{
			Header: banner,
			Code:   ensureTrailingNewline(string(f.input.Source)),
			Map:    f.input.SourceMap,
			Footer: "",
		}
	}

	var header, footer string
	if f.input.InstallOptions != nil {
		header = banner + "function (" + f.headerParams() + ") {\n"
		footer = "}"
	} else {
		header = banner + "(function(){"
		footer = "}).call(this);\n"
	}

	return PrelinkedOutput{
		Header: header,
		Code:   ensureTrailingNewline(string(f.input.Source)),
		Map:    f.input.SourceMap,
		Footer: footer,
	}
}

// optionsIdentity renders a stable token for an *InstallOptions pointer
// (or the empty string for nil), used as the cache key's options
// component: two options values are "the same" only by identity (see
// InstallOptions's doc comment), so pointer identity is what the cache
// key must capture too.
func optionsIdentity(opts *InstallOptions) string {
	if opts == nil {
		return ""
	}
	return fmt.Sprintf("%p", opts)
}

// GetPrelinkedOutput wraps GetPrelinkedOutputFast with the process-wide
// APP_PRELINK_CACHE, keyed by {hash, arch, bare, servePath,
// options}. disableCache bypasses both lookup and storage.
func (f *File) GetPrelinkedOutput(disableCache bool) PrelinkedOutput {
	key := prelink.Key{
		Hash:      f.hash,
		Arch:      f.arch,
		Bare:      f.input.Bare,
		ServePath: f.input.ServePath,
		Options:   optionsIdentity(f.input.InstallOptions),
	}
	cache := prelink.GetAppPrelinkCache()

	if entry, ok := cache.Get(key, disableCache); ok {
		if out, ok := decodePrelinkedOutput(entry); ok {
			return out
		}
	}

	out := f.GetPrelinkedOutputFast()
	if entry, ok := encodePrelinkedOutput(out); ok {
		cache.Set(key, entry, disableCache)
	}
	return out
}

func encodePrelinkedOutput(out PrelinkedOutput) (prelink.Entry, bool) {
	data, err := json.Marshal(out)
	if err != nil {
		return prelink.Entry{}, false
	}
	return prelink.Entry{Source: string(data)}, true
}

func decodePrelinkedOutput(entry prelink.Entry) (PrelinkedOutput, bool) {
	var out PrelinkedOutput
	if err := json.Unmarshal([]byte(entry.Source), &out); err != nil {
		return PrelinkedOutput{}, false
	}
	return out, true
}

// headerParams scans the source by substring match for the latest
// closureParams identifier it contains, and returns the comma-joined
// prefix up through it.
func (f *File) headerParams() string {
	src := string(f.input.Source)
	lastIdx := -1
	for i, name := range closureParams {
		if strings.Contains(src, name) {
			lastIdx = i
		}
	}
	if lastIdx < 0 {
		return ""
	}
	return strings.Join(closureParams[:lastIdx+1], ", ")
}

// banner is the "//"-framed box naming the serve path, noting bare mode
// when applicable, prepended to the start of header.
func (f *File) banner() string {
	width := len(f.input.ServePath) + 4
	if width < 10 {
		width = 10
	}
	bar := strings.Repeat("/", width)
	var sb strings.Builder
	sb.WriteString(bar + "\n")
	fmt.Fprintf(&sb, "// %s\n", f.input.ServePath)
	if f.input.Bare {
		sb.WriteString("// (this file is included without module wrapping)\n")
	}
	sb.WriteString(bar + "\n")
	return sb.String()
}

func ensureTrailingNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
