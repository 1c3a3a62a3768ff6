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

// Package queries wraps tree-sitter TypeScript parsing and query
// matching behind a small pool-backed manager. It is the substrate the
// static-analysis collaborator and the module dependency
// extractor build on: a parser pool (parsing is not thread-safe per
// instance), a compiled-query cache, and a ParentCaptures iterator that
// groups captures by an enclosing node.
//
// Query text lives inline as Go string constants rather than embedded
// .scm files: the original per-language query set (classes, slots,
// parts, jsdoc) covered the custom-elements domain; this package only
// needs two small TypeScript queries, so they are kept next to the
// code that consumes them.
package queries

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	ts "github.com/tree-sitter/go-tree-sitter"
	tsTypescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

var ErrNoQueryManager = errors.New("QueryManager is nil")

// NoCaptureError reports that a query produced no nodes for a named capture.
type NoCaptureError struct {
	Capture string
	Query   string
}

func (e *NoCaptureError) Error() string {
	return fmt.Sprintf("no nodes for capture %s in query %s", e.Capture, e.Query)
}

var typescriptLanguage = ts.NewLanguage(tsTypescript.LanguageTypescript())

var typescriptParserPool = sync.Pool{
	New: func() any {
		parser := ts.NewParser()
		if err := parser.SetLanguage(typescriptLanguage); err != nil {
			panic(fmt.Sprintf("queries: failed to set typescript language: %v", err))
		}
		return parser
	},
}

// RetrieveTypeScriptParser borrows a parser from the pool. Callers must
// return it with PutTypeScriptParser when done.
func RetrieveTypeScriptParser() *ts.Parser {
	return typescriptParserPool.Get().(*ts.Parser)
}

// PutTypeScriptParser returns a parser to the pool.
func PutTypeScriptParser(parser *ts.Parser) {
	typescriptParserPool.Put(parser)
}

// Named query sources. Each is compiled once per QueryManager and reused
// across every matcher built against it.
const (
	// assignedGlobalsQuery captures every plain assignment's left-hand
	// identifier. Scoping (whether an assignment is actually top-level)
	// is resolved in Go by walking ancestors, since tree-sitter query
	// syntax cannot express "no enclosing function" directly.
	assignedGlobalsQuery = `
(assignment_expression
  left: (identifier) @assign.name) @assign.expr
`

	// importsQuery captures the source string of import and re-export
	// statements, plus bare "import './x'" side-effect imports.
	importsQuery = `
(import_statement
  source: (string (string_fragment) @import.source)) @import.stmt

(export_statement
  source: (string (string_fragment) @import.source)) @import.stmt
`
)

// QueryName identifies one of the compiled queries above.
type QueryName string

const (
	QueryAssignedGlobals QueryName = "assignedGlobals"
	QueryImports         QueryName = "imports"
)

var querySources = map[QueryName]string{
	QueryAssignedGlobals: assignedGlobalsQuery,
	QueryImports:         importsQuery,
}

// QueryManager owns the compiled tree-sitter queries for TypeScript
// source analysis. It is safe for concurrent read access once built;
// callers share one instance across worker goroutines.
type QueryManager struct {
	queries map[QueryName]*ts.Query
}

// NewQueryManager compiles the requested queries.
func NewQueryManager(names ...QueryName) (*QueryManager, error) {
	if len(names) == 0 {
		names = []QueryName{QueryAssignedGlobals, QueryImports}
	}
	qm := &QueryManager{queries: make(map[QueryName]*ts.Query, len(names))}
	for _, name := range names {
		src, ok := querySources[name]
		if !ok {
			qm.Close()
			return nil, fmt.Errorf("unknown query %q", name)
		}
		query, err := ts.NewQuery(typescriptLanguage, src)
		if err != nil {
			qm.Close()
			return nil, fmt.Errorf("compile query %q: %w", name, err)
		}
		qm.queries[name] = query
	}
	return qm, nil
}

func (qm *QueryManager) Close() {
	for _, q := range qm.queries {
		q.Close()
	}
}

func (qm *QueryManager) getQuery(name QueryName) (*ts.Query, error) {
	q, ok := qm.queries[name]
	if !ok {
		return nil, fmt.Errorf("query %q was not loaded by this manager", name)
	}
	return q, nil
}

var (
	globalQueryManager     *QueryManager
	globalQueryManagerOnce sync.Once
	globalQueryManagerErr  error
)

// GetGlobalQueryManager returns a process-wide QueryManager loaded with
// every query this package knows about, built once and reused.
func GetGlobalQueryManager() (*QueryManager, error) {
	globalQueryManagerOnce.Do(func() {
		globalQueryManager, globalQueryManagerErr = NewQueryManager(QueryAssignedGlobals, QueryImports)
	})
	return globalQueryManager, globalQueryManagerErr
}

// CaptureInfo is one captured node's text and byte span.
type CaptureInfo struct {
	NodeId    int
	Text      string
	StartByte uint
	EndByte   uint
}

// CaptureMap groups CaptureInfo values by capture name.
type CaptureMap = map[string][]CaptureInfo

// QueryMatcher runs one compiled query against a syntax tree.
type QueryMatcher struct {
	name   QueryName
	query  *ts.Query
	cursor *ts.QueryCursor
}

// NewQueryMatcher builds a matcher for the named query. The manager
// retains ownership of the compiled query; Close releases only the
// matcher's cursor.
func NewQueryMatcher(manager *QueryManager, name QueryName) (*QueryMatcher, error) {
	if manager == nil {
		return nil, ErrNoQueryManager
	}
	query, err := manager.getQuery(name)
	if err != nil {
		return nil, err
	}
	return &QueryMatcher{name: name, query: query, cursor: ts.NewQueryCursor()}, nil
}

func (q *QueryMatcher) Close() {
	q.cursor.Close()
}

func (q *QueryMatcher) GetCaptureIndexForName(name string) (uint, bool) {
	return q.query.CaptureIndexForName(name)
}

// AllQueryMatches iterates every raw match for this matcher's query.
func (q *QueryMatcher) AllQueryMatches(node *ts.Node, text []byte) iter.Seq[*ts.QueryMatch] {
	matches := q.cursor.Matches(q.query, node, text)
	return func(yield func(*ts.QueryMatch) bool) {
		for {
			m := matches.Next()
			if m == nil {
				return
			}
			if !yield(m) {
				return
			}
		}
	}
}

// ParentCaptures groups every match's captures by the node bound to
// parentCaptureName, so captures belonging to the same statement (e.g.
// one assignment, one import) arrive together, ordered by source
// position.
func (q *QueryMatcher) ParentCaptures(root *ts.Node, code []byte, parentCaptureName string) iter.Seq[CaptureMap] {
	names := q.query.CaptureNames()

	type pgroup struct {
		capMap    CaptureMap
		startByte uint
	}

	parentGroups := make(map[int]pgroup)
	order := make([]int, 0)

	for match := range q.AllQueryMatches(root, code) {
		var parentNode *ts.Node
		for _, cap := range match.Captures {
			if names[cap.Index] == parentCaptureName {
				parentNode = &cap.Node
				break
			}
		}
		if parentNode == nil {
			continue
		}
		pid := int(parentNode.Id())
		if _, ok := parentGroups[pid]; !ok {
			parentGroups[pid] = pgroup{make(CaptureMap), parentNode.StartByte()}
			order = append(order, pid)
		}
		group := parentGroups[pid]
		for _, cap := range match.Captures {
			name := names[cap.Index]
			ci := CaptureInfo{
				NodeId:    int(cap.Node.Id()),
				Text:      cap.Node.Utf8Text(code),
				StartByte: cap.Node.StartByte(),
				EndByte:   cap.Node.EndByte(),
			}
			if !slices.ContainsFunc(group.capMap[name], func(m CaptureInfo) bool { return m.NodeId == ci.NodeId }) {
				group.capMap[name] = append(group.capMap[name], ci)
			}
		}
		parentGroups[pid] = group
	}

	slices.SortStableFunc(order, func(a, b int) int {
		return int(parentGroups[a].startByte) - int(parentGroups[b].startByte)
	})

	return func(yield func(CaptureMap) bool) {
		for _, pid := range order {
			if !yield(parentGroups[pid].capMap) {
				return
			}
		}
	}
}

// GetDescendantById walks root's subtree looking for the node whose Id
// matches id. Query captures only carry a node id plus text/byte span;
// callers that need the live *ts.Node back (to walk its ancestors) use
// this to resolve it.
func GetDescendantById(root *ts.Node, id int) *ts.Node {
	if int(root.Id()) == id {
		return root
	}
	for i := range root.ChildCount() {
		child := root.Child(i)
		if child == nil {
			continue
		}
		if found := GetDescendantById(child, id); found != nil {
			return found
		}
	}
	return nil
}

// Position is a 0-based line/character pair.
type Position struct {
	Line      uint32
	Character uint32
}

// byteOffsetToPosition converts a byte offset to a line/character
// position by scanning preceding newlines. Used to turn tree-sitter
// byte offsets into the line/column pairs buildmessage diagnostics want.
func byteOffsetToPosition(content []byte, offset uint) Position {
	var line, char uint32
	for i, b := range content {
		if uint(i) >= offset {
			break
		}
		if b == '\n' {
			line++
			char = 0
		} else {
			char++
		}
	}
	return Position{Line: line, Character: char}
}

// ByteOffsetToPosition exposes byteOffsetToPosition to other packages.
func ByteOffsetToPosition(content []byte, offset uint) Position {
	return byteOffsetToPosition(content, offset)
}

// IsTopLevelAssignment walks from node up to root and reports whether
// no ancestor is a function/method/arrow body, i.e. whether an
// assignment at this node is a true top-level (module-scope) statement.
func IsTopLevelAssignment(node *ts.Node) bool {
	for p := node.Parent(); p != nil; p = p.Parent() {
		switch p.Kind() {
		case "function_declaration", "function_expression", "arrow_function",
			"method_definition", "generator_function", "generator_function_declaration",
			"class_static_block":
			return false
		}
	}
	return true
}
