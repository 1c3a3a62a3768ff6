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
	"fmt"
	"regexp"
	"sort"
	"strings"

	"bennypowers.dev/cem/internal/buildmessage"
	"bennypowers.dev/cem/internal/sourcemap"
	"bennypowers.dev/cem/set"
)

// DepEntry is one of fullLink's runtime-dependency descriptors: a package name and whether the dependency is unordered (runtime
// is available iff at least one dependency is NOT unordered).
type DepEntry struct {
	Package   string
	Unordered bool
}

// FullLinkInput is fullLink's input record.
type FullLinkInput struct {
	InputFiles                   []*InputFile
	IsApp                        bool
	BundleArch                   string
	CombinedServePath            string
	Name                         string
	DeclaredExports              []string
	Imports                      map[string]string // dotted symbol -> "Package.x.Foo.bar" accessor
	IncludeSourceMapInstructions bool
	Deps                         []DepEntry
	// DisableCache bypasses the prelink caches entirely for this call.
	DisableCache bool
}

// sourceMapBanner is the fixed multi-line comment prepended to the header
// when IncludeSourceMapInstructions is set.
const sourceMapBanner = "" +
	"//////////////////////////////////////////////////\n" +
	"// This bundle includes a source map for debugging.\n" +
	"// See the accompanying .map file for original sources.\n" +
	"//////////////////////////////////////////////////\n"

// FullLink is the top-level orchestrator: it builds Files
// from the input, composes the main bundle (module trees or flat
// concatenation), runs assigned-global analysis for packages, wraps the
// result in a runtime-aware header/footer, and returns the full output
// file list alongside any dynamic-module outputs.
func FullLink(in FullLinkInput) ([]OutputFile, error) {
	buildmessage.AssertInJob()

	files := make([]*File, len(in.InputFiles))
	hasModules := false
	for i, ifile := range in.InputFiles {
		files[i] = NewFile(ifile, in.BundleArch)
		if ifile.InstallOptions != nil {
			hasModules = true
		}
	}

	cf := NewCombinedFile()
	var mainModulePath string
	var eagerModulePaths []string
	var dynamicOutputs []OutputFile

	if hasModules {
		result := buildModuleTrees(files, in.DisableCache)
		if err := chunkifyModuleTrees(cf, result.trees, in.IsApp, in.DisableCache); err != nil {
			return nil, err
		}
		for _, f := range result.bareFiles {
			cf.AddEmptyLines(1)
			emitFileChunk(cf, f, in.DisableCache)
		}
		dynamicOutputs = result.dynamicOutputs

		for _, f := range files {
			if f.Lazy() && f.Imported() == ImportedNone {
				continue
			}
			if id := f.AbsModuleId(); id != nil {
				if f.MainModule() && mainModulePath == "" {
					mainModulePath = *id
				}
				if !f.Lazy() && !f.Bare() {
					eagerModulePaths = append(eagerModulePaths, *id)
				}
			}
		}
	} else {
		first := true
		for _, f := range files {
			if f.Lazy() {
				continue
			}
			if !first {
				cf.AddEmptyLines(6)
			}
			first = false
			emitFileChunk(cf, f, in.DisableCache)

			if id := f.AbsModuleId(); id != nil {
				if f.MainModule() && mainModulePath == "" {
					mainModulePath = *id
				}
				if !f.Bare() {
					eagerModulePaths = append(eagerModulePaths, *id)
				}
			}
		}
	}

	hasRuntime := false
	for _, d := range in.Deps {
		if !d.Unordered {
			hasRuntime = true
			break
		}
	}
	if !hasRuntime && (len(in.DeclaredExports) > 0 || mainModulePath != "" || len(eagerModulePaths) > 0) {
		return nil, buildmessage.WrapRuntimeRequiredError(in.Name)
	}

	packageVars := set.NewSet[string]()
	if !in.IsApp {
		_, err := buildmessage.EnterJob(buildmessage.JobOptions{Title: fmt.Sprintf("linking package %q", in.Name)}, func() (any, error) {
			for _, f := range files {
				if f.Lazy() && f.Imported() == ImportedNone {
					continue
				}
				packageVars.Add(f.ComputeAssignedVariables().Members()...)
			}
			return nil, nil
		})
		if err != nil {
			return nil, err
		}
		if buildmessage.JobHasMessages() {
			return nil, nil
		}
	}

	mainSource, mainMap, err := cf.Finalize()
	if err != nil {
		return nil, err
	}

	imports := in.Imports
	if mainSource == "" {
		imports = pruneToExports(imports, in.DeclaredExports)
	}

	header := buildHeader(in, hasRuntime, imports, packageVars)
	footer := buildFooter(in, hasRuntime, hasModules, mainModulePath, eagerModulePaths)

	headerLines := strings.Count(header, "\n")
	wrappedMap := mainMap
	if mainMap != nil && headerLines > 0 {
		wrappedMap = &sourcemap.Map{
			Version:        mainMap.Version,
			Sources:        mainMap.Sources,
			SourcesContent: mainMap.SourcesContent,
			Names:          mainMap.Names,
			Mappings:       sourcemap.PrependEmptyLines(mainMap.Mappings, headerLines),
		}
	}

	outputs := []OutputFile{{
		Source:    header + mainSource + footer,
		SourceMap: wrappedMap,
		ServePath: in.CombinedServePath,
	}}
	outputs = append(outputs, dynamicOutputs...)
	return outputs, nil
}

func emitFileChunk(cf *CombinedFile, f *File, disableCache bool) {
	out := f.GetPrelinkedOutput(disableCache)
	cf.AddGeneratedCode(out.Header)
	cf.AddCodeWithMap(sanitizeSourceName(f.ServePath()), out.Code, out.Map)
	cf.AddGeneratedCode(out.Footer)
}

func pruneToExports(imports map[string]string, declared []string) map[string]string {
	if len(imports) == 0 {
		return imports
	}
	allowed := set.NewSet(declared...)
	out := make(map[string]string)
	for k, v := range imports {
		if allowed.Has(k) {
			out[k] = v
		}
	}
	return out
}

var validBareIdentifier = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)

// packageAccessor converts a package name into its runtime accessor
// expression.
func packageAccessor(name string) string {
	if validBareIdentifier.MatchString(name) {
		return "Package." + name
	}
	return "Package['" + name + "']"
}

// buildHeader composes the runtime queue call (or bare IIFE opener),
// the imports symbol-tree block, and the package-scope variable
// declaration.
func buildHeader(in FullLinkInput, hasRuntime bool, imports map[string]string, packageVars set.Set[string]) string {
	var sb strings.Builder
	if in.IncludeSourceMapInstructions {
		sb.WriteString(sourceMapBanner)
	}

	if !hasRuntime {
		sb.WriteString("(function() {\n\n")
		return sb.String()
	}

	depNames := make([]string, len(in.Deps))
	for i, d := range in.Deps {
		depNames[i] = d.Package
	}
	depJSON, _ := json.Marshal(depNames)

	fmt.Fprintf(&sb, "Package[\"core-runtime\"].queue(%q, %s, function () {\n", in.Name, depJSON)
	sb.WriteString(buildImportsBlock(imports, in.IsApp))
	sb.WriteString(buildPackageVarsDecl(packageVars, imports))
	return sb.String()
}

// buildImportsBlock builds one nested symbol tree per dotted import name
// (e.g. "Foo.bar" -> {Foo: {bar: accessor}}), emitting one `var K = {…}`
// per root key — omitting `var` for app bundles, which put symbols
// directly on the global namespace.
func buildImportsBlock(imports map[string]string, isApp bool) string {
	if len(imports) == 0 {
		return ""
	}

	top := map[string]any{}
	for dotted, accessor := range imports {
		insertSymbolPath(top, strings.Split(dotted, "."), accessor)
	}

	rootOrder := make([]string, 0, len(top))
	for root := range top {
		rootOrder = append(rootOrder, root)
	}
	sort.Strings(rootOrder)

	var sb strings.Builder
	prefix := "var "
	if isApp {
		prefix = ""
	}
	for _, root := range rootOrder {
		fmt.Fprintf(&sb, "%s%s = %s;\n", prefix, root, renderSymbolValue(top[root]))
	}
	return sb.String()
}

// insertSymbolPath attaches accessor at the leaf named by path's last
// segment, creating intermediate nested maps for every segment before it.
func insertSymbolPath(tree map[string]any, path []string, accessor string) {
	if len(path) == 1 {
		tree[path[0]] = accessor
		return
	}
	sub, ok := tree[path[0]].(map[string]any)
	if !ok {
		sub = map[string]any{}
		tree[path[0]] = sub
	}
	insertSymbolPath(sub, path[1:], accessor)
}

func renderSymbolValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s: %s", k, renderSymbolValue(t[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return ""
	}
}

// buildPackageVarsDecl declares package-scope variables: declared exports
// plus discovered globals, minus any imported root symbol name.
func buildPackageVarsDecl(packageVars set.Set[string], imports map[string]string) string {
	imported := set.NewSet[string]()
	for dotted := range imports {
		imported.Add(strings.Split(dotted, ".")[0])
	}

	names := make([]string, 0, len(packageVars))
	for v := range packageVars {
		if !imported.Has(v) {
			names = append(names, v)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return "var " + strings.Join(names, ", ") + ";\n"
}

// buildFooter composes the closing `});` with an optional export/require/
// eagerModulePaths/mainModulePath return object. The `require: require`
// property is only valid when chunkifyModuleTrees actually declared
// `var require = meteorInstall(...)` in the body, i.e. hasModules is true
// -- a flat/no-install-options bundle has no such declaration even when
// it has a runtime dependency.
func buildFooter(in FullLinkInput, hasRuntime, hasModules bool, mainModulePath string, eagerModulePaths []string) string {
	if !hasRuntime {
		return "\n})();\n"
	}

	var props []string
	if len(in.DeclaredExports) > 0 {
		exported := make([]string, len(in.DeclaredExports))
		for i, name := range in.DeclaredExports {
			exported[i] = fmt.Sprintf("%s: %s", jsonKey(name), name)
		}
		props = append(props, fmt.Sprintf("export: function () { return {%s}; }", strings.Join(exported, ", ")))
	}
	if hasModules {
		props = append(props, "require: require")
	}
	if len(eagerModulePaths) > 0 {
		data, _ := json.Marshal(eagerModulePaths)
		props = append(props, fmt.Sprintf("eagerModulePaths: %s", data))
	}
	if mainModulePath != "" {
		props = append(props, fmt.Sprintf("mainModulePath: %s", jsonKey(mainModulePath)))
	}

	return fmt.Sprintf("\nreturn { %s };});\n", strings.Join(props, ", "))
}

func jsonKey(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}
