// Package parser turns Python source into the ir tree using the
// tree-sitter Python grammar.
package parser

import (
	"fmt"
	"os"
	"unicode/utf8"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"pyscan/internal/core/errors"
	"pyscan/internal/engine/ir"
)

type Parser struct {
	pool *pythonPool
	// MaxTextLen caps the source snippet stored on each node.
	MaxTextLen int
}

func PythonLanguage() *sitter.Language {
	return sitter.NewLanguage(tree_sitter_python.Language())
}

func New() *Parser {
	return &Parser{
		pool:       newPythonPool(PythonLanguage()),
		MaxTextLen: 160,
	}
}

// ParseFile reads and parses one file from disk.
func (p *Parser) ParseFile(path string) (*ir.Model, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "read source"), errors.CtxPath, path)
	}
	return p.Parse(path, content)
}

// Parse builds the model for content. Syntax errors are reported as a
// PARSE_ERROR carrying the position of the first broken node.
func (p *Parser) Parse(path string, content []byte) (*ir.Model, error) {
	sp := p.pool.borrow()
	defer p.pool.giveBack(sp)

	tree := sp.Parse(content, nil)
	if tree == nil {
		return nil, errors.ParseError(path, "parser returned no tree", 1, 1)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, errors.ParseError(path, "parser returned no root", 1, 1)
	}
	if root.HasError() {
		return nil, syntaxError(path, content, root)
	}

	c := &converter{src: content, maxText: p.MaxTextLen}
	module, err := c.module(root)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxPath, path)
	}
	return ir.Build(module, path, content)
}

// syntaxError locates the first ERROR or MISSING node in document order.
func syntaxError(path string, content []byte, root *sitter.Node) error {
	bad := firstBroken(root)
	if bad == nil {
		return errors.ParseError(path, "invalid syntax", 1, 1)
	}
	pos := bad.StartPosition()
	line, col := int(pos.Row)+1, int(pos.Column)+1
	if bad.IsMissing() {
		return errors.ParseError(path, fmt.Sprintf("missing %q", bad.Kind()), line, col)
	}
	snippet := clip(string(content[bad.StartByte():bad.EndByte()]), 40)
	return errors.ParseError(path, fmt.Sprintf("invalid syntax near %q", snippet), line, col)
}

// clip keeps at most n runes of s.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func firstBroken(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.IsError() || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		if found := firstBroken(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}
