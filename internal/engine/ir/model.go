package ir

import (
	"bytes"
	"iter"
	"strings"

	"pyscan/internal/core/errors"
)

type FunctionDescriptor struct {
	Name string
	// QualifiedName is Class.method for methods and Name otherwise.
	QualifiedName string
	Class         string
	Params        []string
	ParamSpecs    []Param
	ReturnType    string
	Decorators    []string
	Docstring     string
	Complexity    int
	Async         bool
	Span          Span
	// Node is the FunctionDef node inside the owning Model's tree.
	Node *Node
	// Enclosing is set for functions defined inside another function.
	Enclosing *FunctionDescriptor
}

// Length is the number of lines the definition spans after its header line.
func (f *FunctionDescriptor) Length() int {
	return f.Span.EndLine - f.Span.Line
}

func (f *FunctionDescriptor) Body() []*Node {
	if f.Node == nil {
		return nil
	}
	return f.Node.Body
}

func (f *FunctionDescriptor) IsMethod() bool { return f.Class != "" }

type ClassDescriptor struct {
	Name       string
	Bases      []string
	Methods    []*FunctionDescriptor
	Attributes []string
	Span       Span
	Node       *Node
}

type ImportKind int

const (
	ImportDirect ImportKind = iota
	ImportFromModule
)

func (k ImportKind) String() string {
	if k == ImportFromModule {
		return "from"
	}
	return "direct"
}

type ImportRecord struct {
	Kind    ImportKind
	Module  string
	Names   []string
	Aliases []Alias
	Level   int
	Line    int
}

// VarSite is one occurrence of a plain name.
type VarSite struct {
	Name   string
	Line   int
	Column int
	Ctx    Context
	// Scope is the innermost FunctionDef or Lambda containing the site, or
	// the Module root.
	Scope *Node
	Node  *Node
}

// Model is a parsed file plus the indices derived from it. A Model is never
// mutated after Build returns and may be read from many goroutines.
type Model struct {
	Path       string
	Source     []byte
	Root       *Node
	TotalLines int

	Functions []*FunctionDescriptor
	Classes   []*ClassDescriptor
	Imports   []ImportRecord
	// Variables maps each name to every site it occurs at, in source order.
	Variables map[string][]VarSite

	parents     map[*Node]*Node
	scopes      map[*Node]*Node
	functionFor map[*Node]*FunctionDescriptor
	classByName map[string]*ClassDescriptor
	lines       [][]byte
}

// Build computes every index of the model in a single traversal of root.
func Build(root *Node, path string, source []byte) (*Model, error) {
	if root == nil {
		return nil, errors.ParseError(path, "empty syntax tree", 1, 1)
	}
	if root.Kind != KindModule {
		return nil, errors.ParseError(path, "root node is "+root.Kind.String()+", want Module", root.Span.Line, root.Span.Column)
	}

	m := &Model{
		Path:        path,
		Source:      source,
		Root:        root,
		TotalLines:  bytes.Count(source, []byte("\n")) + 1,
		Variables:   make(map[string][]VarSite),
		parents:     make(map[*Node]*Node),
		scopes:      make(map[*Node]*Node),
		functionFor: make(map[*Node]*FunctionDescriptor),
		classByName: make(map[string]*ClassDescriptor),
		lines:       bytes.Split(source, []byte("\n")),
	}

	b := &builder{model: m}
	b.visit(root, nil, root, nil)
	return m, nil
}

type builder struct {
	model *Model
}

func (b *builder) visit(n, parent, scope *Node, enclosing *FunctionDescriptor) {
	m := b.model
	if parent != nil {
		m.parents[n] = parent
	}
	m.scopes[n] = scope

	switch n.Kind {
	case KindFunctionDef:
		fd := b.function(n, parent, enclosing)
		m.Functions = append(m.Functions, fd)
		m.functionFor[n] = fd
		enclosing = fd
		scope = n
	case KindLambda:
		scope = n
	case KindClassDef:
		cd := &ClassDescriptor{Name: n.Name, Span: n.Span, Node: n}
		for _, base := range n.Bases {
			cd.Bases = append(cd.Bases, base.Text)
		}
		for _, stmt := range n.Body {
			switch stmt.Kind {
			case KindAssign, KindAnnAssign:
				for _, t := range stmt.Targets {
					if t.IsName() {
						cd.Attributes = append(cd.Attributes, t.Name)
					}
				}
			}
		}
		m.Classes = append(m.Classes, cd)
		if _, seen := m.classByName[n.Name]; !seen {
			m.classByName[n.Name] = cd
		}
	case KindImport:
		for _, alias := range n.Names {
			m.Imports = append(m.Imports, ImportRecord{
				Kind:    ImportDirect,
				Module:  alias.Name,
				Names:   []string{alias.Name},
				Aliases: []Alias{alias},
				Line:    n.Span.Line,
			})
		}
	case KindImportFrom:
		rec := ImportRecord{Kind: ImportFromModule, Module: n.Module, Level: n.Level, Line: n.Span.Line}
		for _, alias := range n.Names {
			rec.Names = append(rec.Names, alias.Name)
			rec.Aliases = append(rec.Aliases, alias)
		}
		m.Imports = append(m.Imports, rec)
	case KindName:
		m.Variables[n.Name] = append(m.Variables[n.Name], VarSite{
			Name:   n.Name,
			Line:   n.Span.Line,
			Column: n.Span.Column,
			Ctx:    n.Ctx,
			Scope:  scope,
			Node:   n,
		})
	}

	for _, child := range n.Children() {
		b.visit(child, n, scope, enclosing)
	}

	if n.Kind == KindFunctionDef && parent != nil && parent.Kind == KindClassDef {
		if cd := m.classByNode(parent); cd != nil {
			cd.Methods = append(cd.Methods, m.functionFor[n])
		}
	}
}

func (b *builder) function(n, parent *Node, enclosing *FunctionDescriptor) *FunctionDescriptor {
	fd := &FunctionDescriptor{
		Name:          n.Name,
		QualifiedName: n.Name,
		ParamSpecs:    n.Params,
		Async:         n.Async,
		Span:          n.Span,
		Node:          n,
		Enclosing:     enclosing,
		Complexity:    CyclomaticComplexity(n),
	}
	if parent != nil && parent.Kind == KindClassDef {
		fd.Class = parent.Name
		fd.QualifiedName = parent.Name + "." + n.Name
	}
	for _, p := range n.Params {
		fd.Params = append(fd.Params, p.Name)
	}
	if n.Returns != nil {
		fd.ReturnType = n.Returns.Text
	}
	for _, d := range n.Decorators {
		fd.Decorators = append(fd.Decorators, d.Text)
	}
	fd.Docstring = docstring(n.Body)
	return fd
}

func (m *Model) classByNode(n *Node) *ClassDescriptor {
	for i := len(m.Classes) - 1; i >= 0; i-- {
		if m.Classes[i].Node == n {
			return m.Classes[i]
		}
	}
	return nil
}

func docstring(body []*Node) string {
	if len(body) == 0 {
		return ""
	}
	first := body[0]
	if first.Kind != KindExpr || first.Value == nil || first.Value.Kind != KindConstant {
		return ""
	}
	if c := first.Value.Const; c != nil && c.Kind == ConstString {
		return strings.TrimSpace(c.Str)
	}
	return ""
}

// Walk yields every node in pre-order. Each call starts a fresh traversal
// from the root.
func (m *Model) Walk() iter.Seq[*Node] {
	return WalkFrom(m.Root)
}

// WalkFrom yields n and all its descendants in pre-order.
func WalkFrom(n *Node) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		walk(n, yield)
	}
}

func walk(n *Node, yield func(*Node) bool) bool {
	if n == nil {
		return true
	}
	if !yield(n) {
		return false
	}
	for _, c := range n.Children() {
		if !walk(c, yield) {
			return false
		}
	}
	return true
}

// Parent returns the node that owns n, or nil for the root and for nodes
// outside this model.
func (m *Model) Parent(n *Node) *Node {
	return m.parents[n]
}

// Ancestors yields the parents of n from innermost to the root.
func (m *Model) Ancestors(n *Node) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for p := m.parents[n]; p != nil; p = m.parents[p] {
			if !yield(p) {
				return
			}
		}
	}
}

// Scope returns the innermost FunctionDef or Lambda containing n, or the
// Module root.
func (m *Model) Scope(n *Node) *Node {
	if s, ok := m.scopes[n]; ok {
		return s
	}
	return m.Root
}

// FunctionFor returns the descriptor of a FunctionDef node.
func (m *Model) FunctionFor(n *Node) *FunctionDescriptor {
	return m.functionFor[n]
}

// EnclosingFunction returns the innermost function containing n.
func (m *Model) EnclosingFunction(n *Node) *FunctionDescriptor {
	for p := m.parents[n]; p != nil; p = m.parents[p] {
		if fd, ok := m.functionFor[p]; ok {
			return fd
		}
	}
	return nil
}

// FunctionByName looks a function up by plain or qualified name. When a
// name is defined more than once the last definition wins, as at runtime.
func (m *Model) FunctionByName(name string) *FunctionDescriptor {
	for i := len(m.Functions) - 1; i >= 0; i-- {
		fd := m.Functions[i]
		if fd.QualifiedName == name || (fd.Class == "" && fd.Name == name) {
			return fd
		}
	}
	return nil
}

func (m *Model) ClassByName(name string) *ClassDescriptor {
	return m.classByName[name]
}

// LineText returns the trimmed source of a 1-based line.
func (m *Model) LineText(line int) string {
	if line < 1 || line > len(m.lines) {
		return ""
	}
	return strings.TrimSpace(string(m.lines[line-1]))
}

// ValidLine reports whether line addresses a real line of the file, or is
// the whole-function marker 0.
func (m *Model) ValidLine(line int) bool {
	return line >= 0 && line <= m.TotalLines
}
