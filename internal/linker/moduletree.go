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

	"bennypowers.dev/cem/internal/prelink"
)

// treeNode is one node of a ModuleTree. Exactly one of the
// fields below is meaningful, selected by kind.
type treeNode struct {
	kind     treeNodeKind
	file     *File
	alias    string
	depArray []any // dynamic-import stub: dep ids, plus an optional trailing json-stub map
	children *orderedTree
}

type treeNodeKind int

const (
	nodeBranch treeNodeKind = iota // nested mapping, see children
	nodeFile                       // File leaf (static module)
	nodeAlias                      // string leaf (alias to another module id)
	nodeArray                      // dynamic-import stub
	nodeFalse                      // literal false leaf (empty function)
)

// orderedTree preserves path-segment insertion order, so two builds from
// the same File list in the same order walk identically.
type orderedTree struct {
	keys []string
	m    map[string]*treeNode
}

func newOrderedTree() *orderedTree {
	return &orderedTree{m: make(map[string]*treeNode)}
}

func (t *orderedTree) get(key string) (*treeNode, bool) {
	n, ok := t.m[key]
	return n, ok
}

func (t *orderedTree) set(key string, n *treeNode) {
	if _, exists := t.m[key]; !exists {
		t.keys = append(t.keys, key)
	}
	t.m[key] = n
}

// moduleTrees groups per-install-options trees, preserving the order each
// options identity was first seen.
type moduleTrees struct {
	order []*InstallOptions
	byOpt map[*InstallOptions]*orderedTree
}

func newModuleTrees() *moduleTrees {
	return &moduleTrees{byOpt: make(map[*InstallOptions]*orderedTree)}
}

func (mt *moduleTrees) treeFor(opts *InstallOptions) *orderedTree {
	if t, ok := mt.byOpt[opts]; ok {
		return t
	}
	t := newOrderedTree()
	mt.byOpt[opts] = t
	mt.order = append(mt.order, opts)
	return t
}

// splitModuleId splits an absolute module id on '/', skipping empty
// leading segments.
func splitModuleId(id string) []string {
	parts := strings.Split(id, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// insertIntoTree walks/creates branch nodes for segments[:len-1] and attaches leaf
// at the final segment, reusing existing subtrees so siblings share
// parents.
func insertIntoTree(root *orderedTree, segments []string, leaf *treeNode) {
	cur := root
	for i, seg := range segments {
		if i == len(segments)-1 {
			cur.set(seg, leaf)
			return
		}
		child, ok := cur.get(seg)
		if !ok || child.kind != nodeBranch {
			child = &treeNode{kind: nodeBranch, children: newOrderedTree()}
			cur.set(seg, child)
		}
		cur = child.children
	}
}

// buildResult is buildModuleTrees' output.
type buildResult struct {
	trees          *moduleTrees
	bareFiles      []*File
	usedFiles      []*File
	dynamicOutputs []OutputFile
}

// buildModuleTrees groups Files into per-install-options module trees:
// it skips uninstalled lazy files, defers bare files for post-tree emission, and
// inserts every other file into its install-options tree at the path
// obtained by splitting its absolute module id.
func buildModuleTrees(files []*File, disableCache bool) *buildResult {
	result := &buildResult{trees: newModuleTrees()}

	for _, f := range files {
		if f.Lazy() && f.Imported() == ImportedNone {
			continue // uninstalled: lazy and never imported
		}

		if f.Bare() {
			result.usedFiles = append(result.usedFiles, f)
			result.bareFiles = append(result.bareFiles, f)
			continue
		}

		absId := f.AbsModuleId()
		if absId == nil {
			continue
		}
		segments := splitModuleId(*absId)
		tree := result.trees.treeFor(f.InstallOptions())

		switch {
		case f.AliasId() != nil:
			insertIntoTree(tree, segments, &treeNode{kind: nodeAlias, alias: *f.AliasId()})
			result.usedFiles = append(result.usedFiles, f)

		case f.IsDynamic():
			depArray := make([]any, len(f.Deps()))
			for i, d := range f.Deps() {
				depArray[i] = d
			}
			if stub := packageJSONStub(f.JSONData()); stub != nil {
				depArray = append(depArray, stub)
			}
			insertIntoTree(tree, segments, &treeNode{kind: nodeArray, depArray: depArray})
			result.usedFiles = append(result.usedFiles, f)

			servePath := "dynamic/" + *absId
			out := getCachedDynamicOutput(f, servePath, disableCache)
			result.dynamicOutputs = append(result.dynamicOutputs, OutputFile{
				Source:     out.Source,
				SourceMap:  out.SourceMap,
				ServePath:  servePath,
				SourcePath: f.SourcePath(),
				Dynamic:    true,
			})

		default:
			insertIntoTree(tree, segments, &treeNode{kind: nodeFile, file: f})
			result.usedFiles = append(result.usedFiles, f)
		}
	}

	return result
}

// getCachedDynamicOutput wraps a dynamic File's combined prelinked output
// with the process-wide DYNAMIC_PRELINKED_OUTPUT_CACHE, keyed by {hash, arch, bare, servePath, dynamic}.
func getCachedDynamicOutput(f *File, servePath string, disableCache bool) prelink.Entry {
	if disableCache {
		out := f.GetPrelinkedOutputFast()
		return prelink.Entry{Source: out.Header + out.Code + out.Footer, SourceMap: out.Map}
	}

	key := prelink.DynamicKey{Hash: f.Hash(), Arch: f.Arch(), Bare: f.Bare(), ServePath: servePath, Dynamic: true}
	cache := prelink.GetDynamicOutputCache()
	if entry, ok := cache.Get(key); ok {
		return entry
	}

	out := f.GetPrelinkedOutputFast()
	entry := prelink.Entry{Source: out.Header + out.Code + out.Footer, SourceMap: out.Map}
	cache.Set(key, entry)
	return entry
}

// packageJSONStub extracts whichever of browser/module/main exist in a
// package.json-like payload and are string-or-object valued.
func packageJSONStub(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	stub := make(map[string]any)
	for _, key := range []string{"browser", "module", "main"} {
		v, ok := data[key]
		if !ok {
			continue
		}
		switch v.(type) {
		case string, map[string]any:
			stub[key] = v
		}
	}
	if len(stub) == 0 {
		return nil
	}
	return stub
}
