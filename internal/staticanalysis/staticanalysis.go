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

// Package staticanalysis implements the linker's static-analysis
// collaborator: FindAssignedGlobals discovers identifiers assigned at
// module top level without a preceding declaration, and FindImports
// extracts the raw import specifiers a module references. Both are
// tree-sitter based, built on the queries package's parser pool and
// query manager.
package staticanalysis

import (
	"fmt"

	"bennypowers.dev/cem/queries"
	"bennypowers.dev/cem/set"

	ts "github.com/tree-sitter/go-tree-sitter"
)

// ParseError is the static-analysis service's dedicated parse-error
// kind, bearing enough position information for buildmessage.Error to
// attach a diagnostic.
type ParseError struct {
	LineNumber int
	Column     int
	Message    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.LineNumber, e.Column, e.Message)
}

// FindAssignedGlobals parses source and returns the set of identifiers
// assigned at top level (module scope) without a preceding declaration
// in any enclosing scope. contentHash is accepted to satisfy the
// documented collaborator signature for callers that key
// a memoization layer on it; this implementation does not itself cache.
func FindAssignedGlobals(source []byte, contentHash string) (set.Set[string], error) {
	_ = contentHash

	qm, err := queries.GetGlobalQueryManager()
	if err != nil {
		return nil, fmt.Errorf("static analysis unavailable: %w", err)
	}

	parser := queries.RetrieveTypeScriptParser()
	defer queries.PutTypeScriptParser(parser)

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, &ParseError{LineNumber: 1, Column: 0, Message: "failed to parse source"}
	}
	defer tree.Close()

	root := tree.RootNode()
	if errNode := findFirstErrorNode(root); errNode != nil {
		pos := queries.ByteOffsetToPosition(source, errNode.StartByte())
		return nil, &ParseError{
			LineNumber: int(pos.Line) + 1,
			Column:     int(pos.Character),
			Message:    "syntax error",
		}
	}

	matcher, err := queries.NewQueryMatcher(qm, queries.QueryAssignedGlobals)
	if err != nil {
		return nil, fmt.Errorf("build assigned-globals matcher: %w", err)
	}
	defer matcher.Close()

	globals := set.NewSet[string]()
	for captures := range matcher.ParentCaptures(root, source, "assign.expr") {
		names, ok := captures["assign.name"]
		if !ok || len(names) == 0 {
			continue
		}
		exprNodes, ok := captures["assign.expr"]
		if !ok || len(exprNodes) == 0 {
			continue
		}
		node := queries.GetDescendantById(root, exprNodes[0].NodeId)
		if node == nil || !queries.IsTopLevelAssignment(node) {
			continue
		}
		globals.Add(names[0].Text)
	}
	return globals, nil
}

// FindImports parses source and returns the raw import specifiers
// (the string between quotes in `import ... from "spec"` and
// re-export statements) in source order, duplicates included.
func FindImports(source []byte) ([]string, error) {
	qm, err := queries.GetGlobalQueryManager()
	if err != nil {
		return nil, fmt.Errorf("static analysis unavailable: %w", err)
	}

	parser := queries.RetrieveTypeScriptParser()
	defer queries.PutTypeScriptParser(parser)

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, &ParseError{LineNumber: 1, Column: 0, Message: "failed to parse source"}
	}
	defer tree.Close()

	matcher, err := queries.NewQueryMatcher(qm, queries.QueryImports)
	if err != nil {
		return nil, fmt.Errorf("build imports matcher: %w", err)
	}
	defer matcher.Close()

	var specs []string
	for captures := range matcher.ParentCaptures(tree.RootNode(), source, "import.stmt") {
		if srcs, ok := captures["import.source"]; ok {
			for _, s := range srcs {
				specs = append(specs, s.Text)
			}
		}
	}
	return specs, nil
}

// findFirstErrorNode walks node's subtree depth-first and returns the
// first ERROR node tree-sitter produced, or nil if the parse is clean.
func findFirstErrorNode(node *ts.Node) *ts.Node {
	if node.IsError() {
		return node
	}
	for i := range node.ChildCount() {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if found := findFirstErrorNode(child); found != nil {
			return found
		}
	}
	return nil
}
