package parser

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"pyscan/internal/core/errors"
	"pyscan/internal/engine/ir"
)

// converter maps tree-sitter Python nodes onto ir nodes. It holds no state
// besides the source, so one converter handles exactly one file.
type converter struct {
	src     []byte
	maxText int
}

func (c *converter) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(c.src[n.StartByte():n.EndByte()])
}

// snippet is the node text trimmed to one line and maxText runes.
func (c *converter) snippet(n *sitter.Node, firstLineOnly bool) string {
	s := c.text(n)
	if firstLineOnly {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[:i]
		}
	}
	s = strings.TrimSpace(s)
	if c.maxText > 0 {
		s = clip(s, c.maxText)
	}
	return s
}

func (c *converter) span(n *sitter.Node) ir.Span {
	start, end := n.StartPosition(), n.EndPosition()
	return ir.Span{
		Line:      int(start.Row) + 1,
		Column:    int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndColumn: int(end.Column) + 1,
	}
}

func (c *converter) stmt(kind ir.Kind, n *sitter.Node) *ir.Node {
	return &ir.Node{Kind: kind, Span: c.span(n), Text: c.snippet(n, true)}
}

// namedChildren skips anonymous tokens and comments.
func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	var out []*sitter.Node
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child == nil || !child.IsNamed() || child.Kind() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}

func hasToken(n *sitter.Node, token string) bool {
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child != nil && !child.IsNamed() && child.Kind() == token {
			return true
		}
	}
	return false
}

func (c *converter) module(root *sitter.Node) (*ir.Node, error) {
	if root.Kind() != "module" {
		pos := root.StartPosition()
		return nil, errors.ParseError("", "unexpected root "+root.Kind(), int(pos.Row)+1, int(pos.Column)+1)
	}
	mod := &ir.Node{Kind: ir.KindModule, Span: c.span(root)}
	mod.Span.Line = 1
	mod.Span.Column = 1
	mod.Body = c.block(root)
	return mod, nil
}

// block converts the statements directly under n, which is a module or a
// block node.
func (c *converter) block(n *sitter.Node) []*ir.Node {
	var out []*ir.Node
	for _, child := range namedChildren(n) {
		out = append(out, c.statement(child)...)
	}
	return out
}

func (c *converter) statement(n *sitter.Node) []*ir.Node {
	switch n.Kind() {
	case "expression_statement":
		return c.expressionStatement(n)
	case "return_statement":
		node := c.stmt(ir.KindReturn, n)
		node.Value = c.firstExpr(n)
		return []*ir.Node{node}
	case "pass_statement":
		return []*ir.Node{c.stmt(ir.KindPass, n)}
	case "break_statement":
		return []*ir.Node{c.stmt(ir.KindBreak, n)}
	case "continue_statement":
		return []*ir.Node{c.stmt(ir.KindContinue, n)}
	case "raise_statement":
		node := c.stmt(ir.KindRaise, n)
		node.Value = c.firstExpr(n)
		if cause := n.ChildByFieldName("cause"); cause != nil {
			node.Right = c.expr(cause)
		}
		return []*ir.Node{node}
	case "delete_statement":
		node := c.stmt(ir.KindDelete, n)
		for _, child := range namedChildren(n) {
			node.Targets = append(node.Targets, c.targets(child, ir.Del)...)
		}
		return []*ir.Node{node}
	case "assert_statement":
		node := c.stmt(ir.KindAssert, n)
		children := namedChildren(n)
		if len(children) > 0 {
			node.Test = c.expr(children[0])
		}
		if len(children) > 1 {
			node.Value = c.expr(children[1])
		}
		return []*ir.Node{node}
	case "global_statement", "nonlocal_statement":
		node := c.stmt(ir.KindGlobal, n)
		node.Op = strings.TrimSuffix(n.Kind(), "_statement")
		for _, child := range namedChildren(n) {
			node.Identifiers = append(node.Identifiers, c.text(child))
		}
		return []*ir.Node{node}
	case "import_statement":
		return []*ir.Node{c.importStatement(n)}
	case "import_from_statement", "future_import_statement":
		return []*ir.Node{c.importFrom(n)}
	case "if_statement":
		return []*ir.Node{c.ifStatement(n)}
	case "for_statement":
		return []*ir.Node{c.forStatement(n)}
	case "while_statement":
		node := c.stmt(ir.KindWhile, n)
		node.Test = c.expr(n.ChildByFieldName("condition"))
		node.Body = c.block(n.ChildByFieldName("body"))
		node.Orelse = c.elseBody(n.ChildByFieldName("alternative"))
		return []*ir.Node{node}
	case "try_statement":
		return []*ir.Node{c.tryStatement(n)}
	case "with_statement":
		return []*ir.Node{c.withStatement(n)}
	case "function_definition":
		return []*ir.Node{c.functionDef(n, nil)}
	case "class_definition":
		return []*ir.Node{c.classDef(n, nil)}
	case "decorated_definition":
		return []*ir.Node{c.decorated(n)}
	case "match_statement":
		return []*ir.Node{c.matchStatement(n)}
	case "block":
		return c.block(n)
	}
	other := c.stmt(ir.KindOther, n)
	other.Op = n.Kind()
	return []*ir.Node{other}
}

func (c *converter) firstExpr(n *sitter.Node) *ir.Node {
	children := namedChildren(n)
	if len(children) == 0 {
		return nil
	}
	return c.expr(children[0])
}

func (c *converter) expressionStatement(n *sitter.Node) []*ir.Node {
	var out []*ir.Node
	children := namedChildren(n)
	for _, child := range children {
		switch child.Kind() {
		case "assignment":
			out = append(out, c.assignment(child))
		case "augmented_assignment":
			node := c.stmt(ir.KindAugAssign, child)
			node.Targets = c.targets(child.ChildByFieldName("left"), ir.Store)
			node.Op = strings.TrimSuffix(c.text(child.ChildByFieldName("operator")), "=")
			node.Value = c.expr(child.ChildByFieldName("right"))
			out = append(out, node)
		default:
			node := c.stmt(ir.KindExpr, child)
			node.Value = c.expr(child)
			out = append(out, node)
		}
	}
	// A bare tuple statement "a, b" arrives as several expressions.
	if len(out) > 1 && len(children) == len(out) && allExpr(out) {
		tuple := &ir.Node{Kind: ir.KindCollection, Op: "tuple", Span: c.span(n), Text: c.snippet(n, false)}
		for _, e := range out {
			tuple.Values = append(tuple.Values, e.Value)
		}
		stmt := c.stmt(ir.KindExpr, n)
		stmt.Value = tuple
		return []*ir.Node{stmt}
	}
	return out
}

func allExpr(nodes []*ir.Node) bool {
	for _, n := range nodes {
		if n.Kind != ir.KindExpr {
			return false
		}
	}
	return true
}

// assignment flattens "a = b = value" into one Assign with two targets.
// Annotated assignments become AnnAssign.
func (c *converter) assignment(n *sitter.Node) *ir.Node {
	var targets []*ir.Node
	cur := n
	for {
		targets = append(targets, c.targets(cur.ChildByFieldName("left"), ir.Store)...)
		right := cur.ChildByFieldName("right")
		if right != nil && right.Kind() == "assignment" && right.ChildByFieldName("type") == nil {
			cur = right
			continue
		}
		kind := ir.KindAssign
		var annotation *ir.Node
		if typ := cur.ChildByFieldName("type"); typ != nil {
			kind = ir.KindAnnAssign
			annotation = c.typeExpr(typ)
		}
		node := c.stmt(kind, n)
		node.Targets = targets
		node.Annotation = annotation
		if right != nil {
			node.Value = c.expr(right)
		}
		return node
	}
}

func (c *converter) importStatement(n *sitter.Node) *ir.Node {
	node := c.stmt(ir.KindImport, n)
	for _, child := range namedChildren(n) {
		if alias, ok := c.alias(child); ok {
			node.Names = append(node.Names, alias)
		}
	}
	return node
}

func (c *converter) alias(n *sitter.Node) (ir.Alias, bool) {
	switch n.Kind() {
	case "dotted_name", "identifier":
		return ir.Alias{Name: c.text(n)}, true
	case "aliased_import":
		return ir.Alias{
			Name:   c.text(n.ChildByFieldName("name")),
			AsName: c.text(n.ChildByFieldName("alias")),
		}, true
	case "wildcard_import":
		return ir.Alias{Name: "*"}, true
	}
	return ir.Alias{}, false
}

func (c *converter) importFrom(n *sitter.Node) *ir.Node {
	node := c.stmt(ir.KindImportFrom, n)
	moduleNode := n.ChildByFieldName("module_name")
	if n.Kind() == "future_import_statement" {
		node.Module = "__future__"
	} else if moduleNode != nil {
		raw := c.text(moduleNode)
		trimmed := strings.TrimLeft(raw, ".")
		node.Level = len(raw) - len(trimmed)
		node.Module = trimmed
	}
	for _, child := range namedChildren(n) {
		if moduleNode != nil && child.StartByte() == moduleNode.StartByte() && child.EndByte() == moduleNode.EndByte() {
			continue
		}
		if alias, ok := c.alias(child); ok {
			node.Names = append(node.Names, alias)
		}
	}
	return node
}

// ifStatement represents each elif as an If nested in the Orelse of the
// previous branch.
func (c *converter) ifStatement(n *sitter.Node) *ir.Node {
	root := c.stmt(ir.KindIf, n)
	root.Test = c.expr(n.ChildByFieldName("condition"))
	root.Body = c.block(n.ChildByFieldName("consequence"))

	cur := root
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		switch child.Kind() {
		case "elif_clause":
			elif := c.stmt(ir.KindIf, child)
			elif.Test = c.expr(child.ChildByFieldName("condition"))
			elif.Body = c.block(child.ChildByFieldName("consequence"))
			cur.Orelse = []*ir.Node{elif}
			cur = elif
		case "else_clause":
			cur.Orelse = c.elseBody(child)
		}
	}
	return root
}

func (c *converter) elseBody(n *sitter.Node) []*ir.Node {
	if n == nil {
		return nil
	}
	if body := n.ChildByFieldName("body"); body != nil {
		return c.block(body)
	}
	for _, child := range namedChildren(n) {
		if child.Kind() == "block" {
			return c.block(child)
		}
	}
	return nil
}

func (c *converter) forStatement(n *sitter.Node) *ir.Node {
	node := c.stmt(ir.KindFor, n)
	node.Async = hasToken(n, "async")
	node.Target = c.target(n.ChildByFieldName("left"), ir.Store)
	node.Iter = c.expr(n.ChildByFieldName("right"))
	node.Body = c.block(n.ChildByFieldName("body"))
	node.Orelse = c.elseBody(n.ChildByFieldName("alternative"))
	return node
}

func (c *converter) tryStatement(n *sitter.Node) *ir.Node {
	node := c.stmt(ir.KindTry, n)
	node.Body = c.block(n.ChildByFieldName("body"))
	for _, child := range namedChildren(n) {
		switch child.Kind() {
		case "except_clause", "except_group_clause":
			node.Handlers = append(node.Handlers, c.exceptClause(child))
		case "else_clause":
			node.Orelse = c.elseBody(child)
		case "finally_clause":
			node.Finalbody = c.elseBody(child)
		}
	}
	return node
}

func (c *converter) exceptClause(n *sitter.Node) *ir.Node {
	handler := c.stmt(ir.KindExceptHandler, n)
	var exprs []*sitter.Node
	for _, child := range namedChildren(n) {
		if child.Kind() == "block" {
			handler.Body = c.block(child)
			continue
		}
		exprs = append(exprs, child)
	}
	if len(exprs) == 1 && exprs[0].Kind() == "as_pattern" {
		pattern := exprs[0]
		parts := namedChildren(pattern)
		if len(parts) > 0 {
			handler.Test = c.expr(parts[0])
		}
		if alias := pattern.ChildByFieldName("alias"); alias != nil {
			handler.Name = strings.TrimSpace(c.text(alias))
		}
		return handler
	}
	if len(exprs) > 0 {
		handler.Test = c.expr(exprs[0])
	}
	if len(exprs) > 1 {
		handler.Name = c.text(exprs[1])
	}
	return handler
}

func (c *converter) withStatement(n *sitter.Node) *ir.Node {
	node := c.stmt(ir.KindWith, n)
	node.Async = hasToken(n, "async")
	node.Body = c.block(n.ChildByFieldName("body"))
	for _, child := range namedChildren(n) {
		if child.Kind() != "with_clause" {
			continue
		}
		for _, item := range namedChildren(child) {
			if item.Kind() != "with_item" {
				continue
			}
			node.Items = append(node.Items, c.withItem(item))
		}
	}
	return node
}

func (c *converter) withItem(n *sitter.Node) *ir.Node {
	item := &ir.Node{Kind: ir.KindWithItem, Span: c.span(n), Text: c.snippet(n, false)}
	value := n.ChildByFieldName("value")
	if value == nil {
		if children := namedChildren(n); len(children) > 0 {
			value = children[0]
		}
	}
	if value != nil && value.Kind() == "as_pattern" {
		parts := namedChildren(value)
		if len(parts) > 0 {
			item.Value = c.expr(parts[0])
		}
		if alias := value.ChildByFieldName("alias"); alias != nil {
			item.Target = c.target(alias, ir.Store)
		}
		return item
	}
	item.Value = c.expr(value)
	return item
}

func (c *converter) decorated(n *sitter.Node) *ir.Node {
	var decorators []*ir.Node
	for _, child := range namedChildren(n) {
		if child.Kind() == "decorator" {
			if inner := namedChildren(child); len(inner) > 0 {
				decorators = append(decorators, c.expr(inner[0]))
			}
		}
	}
	def := n.ChildByFieldName("definition")
	if def == nil {
		other := c.stmt(ir.KindOther, n)
		other.Decorators = decorators
		return other
	}
	if def.Kind() == "class_definition" {
		return c.classDef(def, decorators)
	}
	return c.functionDef(def, decorators)
}

func (c *converter) functionDef(n *sitter.Node, decorators []*ir.Node) *ir.Node {
	node := c.stmt(ir.KindFunctionDef, n)
	node.Name = c.text(n.ChildByFieldName("name"))
	node.Async = hasToken(n, "async")
	node.Decorators = decorators
	node.Params = c.parameters(n.ChildByFieldName("parameters"))
	if ret := n.ChildByFieldName("return_type"); ret != nil {
		node.Returns = c.typeExpr(ret)
	}
	node.Body = c.block(n.ChildByFieldName("body"))
	return node
}

func (c *converter) classDef(n *sitter.Node, decorators []*ir.Node) *ir.Node {
	node := c.stmt(ir.KindClassDef, n)
	node.Name = c.text(n.ChildByFieldName("name"))
	node.Decorators = decorators
	if supers := n.ChildByFieldName("superclasses"); supers != nil {
		for _, arg := range namedChildren(supers) {
			if arg.Kind() == "keyword_argument" {
				node.Keywords = append(node.Keywords, c.expr(arg))
				continue
			}
			node.Bases = append(node.Bases, c.expr(arg))
		}
	}
	node.Body = c.block(n.ChildByFieldName("body"))
	return node
}

func (c *converter) parameters(n *sitter.Node) []ir.Param {
	if n == nil {
		return nil
	}
	var params []ir.Param
	keywordOnly := false
	for _, child := range namedChildren(n) {
		p := ir.Param{Span: c.span(child)}
		if keywordOnly {
			p.Kind = ir.ParamKeywordOnly
		}
		switch child.Kind() {
		case "identifier":
			p.Name = c.text(child)
		case "typed_parameter":
			for _, part := range namedChildren(child) {
				if part.Kind() == "type" {
					continue
				}
				p.Name, p.Kind = c.splatName(part, p.Kind)
				break
			}
			if typ := child.ChildByFieldName("type"); typ != nil {
				p.Annotation = c.typeExpr(typ)
			}
		case "default_parameter", "typed_default_parameter":
			p.Name = c.text(child.ChildByFieldName("name"))
			if typ := child.ChildByFieldName("type"); typ != nil {
				p.Annotation = c.typeExpr(typ)
			}
			p.Default = c.expr(child.ChildByFieldName("value"))
		case "list_splat_pattern", "dictionary_splat_pattern":
			p.Name, p.Kind = c.splatName(child, p.Kind)
		case "keyword_separator":
			keywordOnly = true
			continue
		default:
			continue
		}
		if p.Kind == ir.ParamVarArgs {
			keywordOnly = true
		}
		if p.Name != "" {
			params = append(params, p)
		}
	}
	return params
}

func (c *converter) splatName(n *sitter.Node, kind ir.ParamKind) (string, ir.ParamKind) {
	switch n.Kind() {
	case "list_splat_pattern":
		return strings.TrimLeft(c.text(n), "*"), ir.ParamVarArgs
	case "dictionary_splat_pattern":
		return strings.TrimLeft(c.text(n), "*"), ir.ParamVarKeywords
	}
	return c.text(n), kind
}

func (c *converter) typeExpr(n *sitter.Node) *ir.Node {
	if n == nil {
		return nil
	}
	if n.Kind() == "type" {
		if inner := namedChildren(n); len(inner) == 1 {
			return c.expr(inner[0])
		}
		return &ir.Node{Kind: ir.KindOther, Op: "type", Span: c.span(n), Text: c.snippet(n, false)}
	}
	return c.expr(n)
}

func (c *converter) matchStatement(n *sitter.Node) *ir.Node {
	node := c.stmt(ir.KindMatch, n)
	if subject := n.ChildByFieldName("subject"); subject != nil {
		node.Value = c.expr(subject)
	}
	body := n.ChildByFieldName("body")
	if body == nil {
		body = n
	}
	for _, child := range namedChildren(body) {
		if child.Kind() != "case_clause" {
			continue
		}
		arm := c.stmt(ir.KindMatchCase, child)
		for _, part := range namedChildren(child) {
			switch part.Kind() {
			case "block":
				arm.Body = c.block(part)
			case "if_clause":
				arm.Test = c.expr(firstNamed(part))
			case "case_pattern":
				arm.Text = c.snippet(part, true)
			}
		}
		if cons := child.ChildByFieldName("consequence"); cons != nil && arm.Body == nil {
			arm.Body = c.block(cons)
		}
		node.Cases = append(node.Cases, arm)
	}
	return node
}

func firstNamed(n *sitter.Node) *sitter.Node {
	children := namedChildren(n)
	if len(children) == 0 {
		return nil
	}
	return children[0]
}
