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
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/pretty"

	"bennypowers.dev/cem/internal/buildmessage"
)

// hasDynamicEntry reports whether any leaf under node is a dynamic-import
// stub, used to decide whether an install-options group needs the eval
// escape hatch.
func hasDynamicEntry(t *orderedTree) bool {
	for _, k := range t.keys {
		n := t.m[k]
		switch n.kind {
		case nodeArray:
			return true
		case nodeBranch:
			if hasDynamicEntry(n.children) {
				return true
			}
		}
	}
	return false
}

// chunkifyModuleTrees walks trees in insertion order and emits one
// `meteorInstall(tree, options)` call per install-options group into cf,
// preceded by `var require = ` when the tree set is non-empty.
func chunkifyModuleTrees(cf *CombinedFile, trees *moduleTrees, isApp, disableCache bool) error {
	if len(trees.order) == 0 {
		return nil
	}

	cf.AddGeneratedCode("var require = ")
	for _, opts := range trees.order {
		tree := trees.byOpt[opts]
		cf.AddGeneratedCode("meteorInstall(")
		if err := emitTreeNode(cf, &treeNode{kind: nodeBranch, children: tree}, disableCache); err != nil {
			return err
		}
		cf.AddGeneratedCode(", " + serializeInstallOptions(opts, isApp, hasDynamicEntry(tree)) + ");\n")
	}
	return nil
}

// emitTreeNode serialises one tree node into cf per the module tree's
// literal rules: branches become `{"key": …, …}`, arrays/strings/false as
// JSON, and File leaves expand to their prelinked header+code+footer with
// code emitted via AddCodeWithMap to preserve its mapping.
func emitTreeNode(cf *CombinedFile, n *treeNode, disableCache bool) error {
	switch n.kind {
	case nodeBranch:
		cf.AddGeneratedCode("{")
		for i, key := range n.children.keys {
			if i > 0 {
				cf.AddGeneratedCode(",")
			}
			cf.AddGeneratedCode(jsonString(key) + ":")
			if err := emitTreeNode(cf, n.children.m[key], disableCache); err != nil {
				return err
			}
		}
		cf.AddGeneratedCode("}")
		return nil

	case nodeAlias:
		cf.AddGeneratedCode(jsonString(n.alias))
		return nil

	case nodeArray:
		data, err := json.Marshal(n.depArray)
		if err != nil {
			return err
		}
		cf.AddGeneratedCode(string(data))
		return nil

	case nodeFalse:
		cf.AddGeneratedCode("function(){}")
		return nil

	case nodeFile:
		out := n.file.GetPrelinkedOutput(disableCache)
		cf.AddGeneratedCode(out.Header)
		cf.AddCodeWithMap(sanitizeSourceName(n.file.ServePath()), out.Code, out.Map)
		cf.AddGeneratedCode(out.Footer)
		return nil

	default:
		return buildmessage.WrapUnrecognisedChunkError(strconv.Itoa(int(n.kind)))
	}
}

func jsonString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

// serializeInstallOptions pretty-prints opts and, for package (non-app)
// groups containing a dynamic file, splices in the `eval` escape hatch
// before the closing brace so dynamically loaded modules
// can reach package-scope variables by string evaluation.
func serializeInstallOptions(opts *InstallOptions, isApp, hasDynamic bool) string {
	data := map[string]any{}
	if opts != nil {
		data = opts.Data
	}
	raw, _ := json.Marshal(data)
	formatted := pretty.Pretty(raw)
	result := strings.TrimRight(string(formatted), "\n")

	if !isApp && hasDynamic {
		evalProp := `"eval": function () { return eval(arguments[0]); }`
		trimmed := strings.TrimRight(result, "\n \t")
		if strings.HasSuffix(strings.TrimSpace(trimmed), "{}") {
			result = "{\n  " + evalProp + "\n}"
		} else {
			idx := strings.LastIndex(trimmed, "}")
			result = trimmed[:idx] + ",\n  " + evalProp + "\n}"
		}
	}
	return result
}
