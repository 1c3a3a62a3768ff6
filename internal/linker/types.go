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

// Package linker implements the module linker: it takes a
// set of already-compiled InputFiles belonging to one package or app and
// produces a single concatenated bundle plus a composed source map. File
// wraps one InputFile with its prelinked output; CombinedFile incrementally
// assembles the bundle body and its map; the module-tree builder groups
// files by install options into the nested literal the in-bundle loader
// walks at runtime; FullLink is the top-level orchestrator.
package linker

import "bennypowers.dev/cem/internal/sourcemap"

// ImportKind is InputFile.Imported's three-state flag.
type ImportKind int

const (
	ImportedNone ImportKind = iota
	ImportedStatic
	ImportedDynamic
)

// DepInfo is one entry of InputFile.Deps: whether the dependency is
// resolved dynamically (and thus excluded from File.Deps).
type DepInfo struct {
	Dynamic bool
}

// InstallOptions is the opaque per-file object governing how the runtime
// loader installs a module. Two options are "the same"
// iff they are the same *InstallOptions pointer — Go pointer identity
// gives us identity-keyed comparison for free, so trees are keyed
// directly by this pointer type.
type InstallOptions struct {
	Data map[string]any
}

// InputFile is the immutable descriptor supplied to the linker. Fields mirror the external collaborator contract exactly.
type InputFile struct {
	Source         []byte
	Hash           string // optional precomputed hash; derived if empty
	SourcePath     string
	ServePath      string
	AbsModuleId    *string
	AliasId        *string
	SourceMap      *sourcemap.Map
	Deps           map[string]DepInfo
	Lazy           bool
	Imported       ImportKind
	MainModule     bool
	Bare           bool
	JSONData       map[string]any // parsed package.json-like payload
	InstallOptions *InstallOptions
}

// PrelinkedOutput is what File.GetPrelinkedOutputFast returns.
type PrelinkedOutput struct {
	Header string
	Code   string
	Map    *sourcemap.Map
	Footer string
}

// OutputFile is one entry of the linker's output list.
type OutputFile struct {
	Source     string
	SourceMap  *sourcemap.Map
	ServePath  string
	SourcePath string
	Dynamic    bool
}
