package parser

import (
	"strconv"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"pyscan/internal/engine/ir"
)

func (c *converter) exprNode(kind ir.Kind, n *sitter.Node) *ir.Node {
	return &ir.Node{Kind: kind, Span: c.span(n), Text: c.snippet(n, false)}
}

// expr converts an expression. Unknown shapes become KindOther so that a
// grammar addition never breaks the conversion of the surrounding file.
func (c *converter) expr(n *sitter.Node) *ir.Node {
	if n == nil {
		return nil
	}
	switch n.Kind() {
	case "identifier":
		node := c.exprNode(ir.KindName, n)
		node.Name = c.text(n)
		return node
	case "integer":
		return c.integer(n)
	case "float":
		return c.float(n)
	case "string", "concatenated_string":
		return c.str(n)
	case "true", "false":
		node := c.exprNode(ir.KindConstant, n)
		node.Const = &ir.Constant{Kind: ir.ConstBool, Raw: c.text(n), Bool: n.Kind() == "true", Exact: true}
		return node
	case "none":
		node := c.exprNode(ir.KindConstant, n)
		node.Const = &ir.Constant{Kind: ir.ConstNone, Raw: "None", Exact: true}
		return node
	case "ellipsis":
		node := c.exprNode(ir.KindConstant, n)
		node.Const = &ir.Constant{Kind: ir.ConstEllipsis, Raw: "...", Exact: true}
		return node
	case "parenthesized_expression":
		if inner := firstNamed(n); inner != nil {
			return c.expr(inner)
		}
	case "binary_operator":
		node := c.exprNode(ir.KindBinaryOp, n)
		node.Left = c.expr(n.ChildByFieldName("left"))
		node.Op = c.text(n.ChildByFieldName("operator"))
		node.Right = c.expr(n.ChildByFieldName("right"))
		return node
	case "unary_operator":
		node := c.exprNode(ir.KindUnaryOp, n)
		node.Op = c.text(n.ChildByFieldName("operator"))
		node.Value = c.expr(n.ChildByFieldName("argument"))
		return node
	case "not_operator":
		node := c.exprNode(ir.KindUnaryOp, n)
		node.Op = "not"
		node.Value = c.expr(n.ChildByFieldName("argument"))
		return node
	case "boolean_operator":
		return c.boolOp(n)
	case "comparison_operator":
		return c.compare(n)
	case "call":
		return c.call(n)
	case "attribute":
		node := c.exprNode(ir.KindAttribute, n)
		node.Value = c.expr(n.ChildByFieldName("object"))
		node.Name = c.text(n.ChildByFieldName("attribute"))
		return node
	case "subscript":
		node := c.exprNode(ir.KindSubscript, n)
		node.Value = c.expr(n.ChildByFieldName("value"))
		node.Index = c.subscriptIndex(n)
		return node
	case "list", "tuple", "set", "expression_list", "pattern_list", "tuple_pattern", "list_pattern":
		node := c.exprNode(ir.KindCollection, n)
		node.Op = collectionKind(n.Kind())
		for _, child := range namedChildren(n) {
			node.Values = append(node.Values, c.expr(child))
		}
		return node
	case "dictionary":
		node := c.exprNode(ir.KindCollection, n)
		node.Op = "dict"
		for _, child := range namedChildren(n) {
			if child.Kind() == "pair" {
				node.Values = append(node.Values, c.expr(child.ChildByFieldName("key")), c.expr(child.ChildByFieldName("value")))
				continue
			}
			node.Values = append(node.Values, c.expr(child))
		}
		return node
	case "list_comprehension", "set_comprehension", "generator_expression", "dictionary_comprehension":
		return c.comprehension(n)
	case "lambda":
		node := c.exprNode(ir.KindLambda, n)
		node.Params = c.parameters(n.ChildByFieldName("parameters"))
		node.Value = c.expr(n.ChildByFieldName("body"))
		return node
	case "conditional_expression":
		node := c.exprNode(ir.KindConditional, n)
		parts := namedChildren(n)
		if len(parts) == 3 {
			node.Left = c.expr(parts[0])
			node.Test = c.expr(parts[1])
			node.Right = c.expr(parts[2])
		}
		return node
	case "keyword_argument":
		node := c.exprNode(ir.KindKeyword, n)
		node.Name = c.text(n.ChildByFieldName("name"))
		node.Value = c.expr(n.ChildByFieldName("value"))
		return node
	case "named_expression":
		node := c.exprNode(ir.KindAssign, n)
		node.Op = ":="
		node.Targets = []*ir.Node{c.target(n.ChildByFieldName("name"), ir.Store)}
		node.Value = c.expr(n.ChildByFieldName("value"))
		return node
	case "await", "list_splat", "dictionary_splat", "type":
		node := c.exprNode(ir.KindOther, n)
		node.Op = n.Kind()
		node.Value = c.expr(firstNamed(n))
		return node
	}
	node := c.exprNode(ir.KindOther, n)
	node.Op = n.Kind()
	for _, child := range namedChildren(n) {
		node.Values = append(node.Values, c.expr(child))
	}
	return node
}

func collectionKind(kind string) string {
	switch kind {
	case "list", "list_pattern":
		return "list"
	case "set":
		return "set"
	}
	return "tuple"
}

// boolOp flattens a left-nested chain of the same operator into one node,
// so "a and b and c" has three values.
func (c *converter) boolOp(n *sitter.Node) *ir.Node {
	node := c.exprNode(ir.KindBoolOp, n)
	node.Op = c.text(n.ChildByFieldName("operator"))
	var collect func(*sitter.Node)
	collect = func(cur *sitter.Node) {
		if cur != nil && cur.Kind() == "boolean_operator" && c.text(cur.ChildByFieldName("operator")) == node.Op {
			collect(cur.ChildByFieldName("left"))
			collect(cur.ChildByFieldName("right"))
			return
		}
		node.Values = append(node.Values, c.expr(cur))
	}
	collect(n.ChildByFieldName("left"))
	collect(n.ChildByFieldName("right"))
	return node
}

// compare walks operands and operators in order. Multi-token operators
// ("not in", "is not") arrive either as one aliased token or as two.
func (c *converter) compare(n *sitter.Node) *ir.Node {
	node := c.exprNode(ir.KindCompare, n)
	var operands []*ir.Node
	pending := ""
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child == nil || child.Kind() == "comment" {
			continue
		}
		if child.IsNamed() {
			if pending != "" {
				node.Ops = append(node.Ops, pending)
				pending = ""
			}
			operands = append(operands, c.expr(child))
			continue
		}
		tok := strings.Join(strings.Fields(c.text(child)), " ")
		if pending != "" {
			pending += " " + tok
		} else {
			pending = tok
		}
	}
	if len(operands) > 0 {
		node.Left = operands[0]
		node.Comparators = operands[1:]
	}
	return node
}

func (c *converter) call(n *sitter.Node) *ir.Node {
	node := c.exprNode(ir.KindCall, n)
	node.Func = c.expr(n.ChildByFieldName("function"))
	args := n.ChildByFieldName("arguments")
	if args == nil {
		return node
	}
	if args.Kind() == "generator_expression" {
		node.Args = []*ir.Node{c.comprehension(args)}
		return node
	}
	for _, arg := range namedChildren(args) {
		converted := c.expr(arg)
		if converted.Kind == ir.KindKeyword {
			node.Keywords = append(node.Keywords, converted)
			continue
		}
		node.Args = append(node.Args, converted)
	}
	return node
}

func (c *converter) subscriptIndex(n *sitter.Node) *ir.Node {
	value := n.ChildByFieldName("value")
	var parts []*ir.Node
	for _, child := range namedChildren(n) {
		if value != nil && child.StartByte() == value.StartByte() && child.EndByte() == value.EndByte() {
			continue
		}
		parts = append(parts, c.expr(child))
	}
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	}
	tuple := &ir.Node{Kind: ir.KindCollection, Op: "tuple", Span: parts[0].Span, Values: parts}
	return tuple
}

func (c *converter) comprehension(n *sitter.Node) *ir.Node {
	node := c.exprNode(ir.KindListComp, n)
	node.Op = strings.TrimSuffix(strings.TrimSuffix(n.Kind(), "_comprehension"), "_expression")
	if body := n.ChildByFieldName("body"); body != nil {
		if body.Kind() == "pair" {
			pair := c.exprNode(ir.KindCollection, body)
			pair.Op = "tuple"
			pair.Values = []*ir.Node{c.expr(body.ChildByFieldName("key")), c.expr(body.ChildByFieldName("value"))}
			node.Value = pair
		} else {
			node.Value = c.expr(body)
		}
	}
	var current *ir.Node
	for _, child := range namedChildren(n) {
		switch child.Kind() {
		case "for_in_clause":
			current = c.exprNode(ir.KindComprehension, child)
			current.Async = hasToken(child, "async")
			current.Target = c.target(child.ChildByFieldName("left"), ir.Store)
			current.Iter = c.expr(child.ChildByFieldName("right"))
			node.Generators = append(node.Generators, current)
		case "if_clause":
			if current != nil {
				current.Ifs = append(current.Ifs, c.expr(firstNamed(child)))
			}
		}
	}
	return node
}

// target converts an assignment target and marks every name in it with ctx.
func (c *converter) target(n *sitter.Node, ctx ir.Context) *ir.Node {
	if n == nil {
		return nil
	}
	switch n.Kind() {
	case "as_pattern_target":
		if inner := firstNamed(n); inner != nil {
			return c.target(inner, ctx)
		}
	case "parenthesized_expression":
		if inner := firstNamed(n); inner != nil {
			return c.target(inner, ctx)
		}
	case "list_splat_pattern", "list_splat":
		if inner := firstNamed(n); inner != nil {
			return c.target(inner, ctx)
		}
	}
	node := c.expr(n)
	setContext(node, ctx)
	return node
}

// targets expands the left side of an assignment. Tuple unpacking stays a
// single Collection target, matching how Python represents it.
func (c *converter) targets(n *sitter.Node, ctx ir.Context) []*ir.Node {
	if n == nil {
		return nil
	}
	if t := c.target(n, ctx); t != nil {
		return []*ir.Node{t}
	}
	return nil
}

func setContext(n *ir.Node, ctx ir.Context) {
	if n == nil {
		return
	}
	switch n.Kind {
	case ir.KindName, ir.KindAttribute, ir.KindSubscript:
		n.Ctx = ctx
	case ir.KindCollection:
		n.Ctx = ctx
		for _, v := range n.Values {
			setContext(v, ctx)
		}
	case ir.KindOther:
		if n.Op == "list_splat" || n.Op == "list_splat_pattern" {
			setContext(n.Value, ctx)
			for _, v := range n.Values {
				setContext(v, ctx)
			}
		}
	}
}

func (c *converter) integer(n *sitter.Node) *ir.Node {
	node := c.exprNode(ir.KindConstant, n)
	raw := c.text(n)
	cst := &ir.Constant{Kind: ir.ConstInt, Raw: raw}
	clean := strings.ReplaceAll(raw, "_", "")
	lower := strings.ToLower(clean)
	if strings.HasSuffix(lower, "j") {
		cst.Kind = ir.ConstFloat
		node.Const = cst
		return node
	}
	if strings.HasSuffix(lower, "l") {
		clean = clean[:len(clean)-1]
	}
	if v, err := strconv.ParseInt(clean, 0, 64); err == nil {
		cst.Int = v
		cst.Float = float64(v)
		cst.Exact = true
	} else if f, ferr := strconv.ParseFloat(clean, 64); ferr == nil {
		cst.Float = f
	}
	node.Const = cst
	return node
}

func (c *converter) float(n *sitter.Node) *ir.Node {
	node := c.exprNode(ir.KindConstant, n)
	raw := c.text(n)
	cst := &ir.Constant{Kind: ir.ConstFloat, Raw: raw}
	clean := strings.ReplaceAll(raw, "_", "")
	if !strings.HasSuffix(strings.ToLower(clean), "j") {
		if v, err := strconv.ParseFloat(clean, 64); err == nil {
			cst.Float = v
			cst.Exact = true
		}
	}
	node.Const = cst
	return node
}

func (c *converter) str(n *sitter.Node) *ir.Node {
	node := c.exprNode(ir.KindConstant, n)
	raw := c.text(n)
	cst := &ir.Constant{Kind: ir.ConstString, Raw: raw, Exact: true}
	if n.Kind() == "concatenated_string" {
		var b strings.Builder
		for _, part := range namedChildren(n) {
			value, prefix := stringLiteral(c.text(part))
			b.WriteString(value)
			if strings.ContainsAny(prefix, "bB") {
				cst.Kind = ir.ConstBytes
			}
			if strings.ContainsAny(prefix, "fF") {
				node.Op = "f"
			}
		}
		cst.Str = b.String()
	} else {
		value, prefix := stringLiteral(raw)
		cst.Str = value
		if strings.ContainsAny(prefix, "bB") {
			cst.Kind = ir.ConstBytes
		}
		if strings.ContainsAny(prefix, "fF") {
			node.Op = "f"
		}
	}
	// Interpolated strings keep their expressions visible to detectors.
	if node.Op == "f" {
		for sub := range interpolations(n) {
			node.Values = append(node.Values, c.expr(sub))
		}
	}
	node.Const = cst
	return node
}

func interpolations(n *sitter.Node) func(func(*sitter.Node) bool) {
	return func(yield func(*sitter.Node) bool) {
		var visit func(*sitter.Node) bool
		visit = func(cur *sitter.Node) bool {
			for _, child := range namedChildren(cur) {
				if child.Kind() == "interpolation" {
					if expr := child.ChildByFieldName("expression"); expr != nil {
						if !yield(expr) {
							return false
						}
					} else if inner := firstNamed(child); inner != nil {
						if !yield(inner) {
							return false
						}
					}
					continue
				}
				if !visit(child) {
					return false
				}
			}
			return true
		}
		visit(n)
	}
}

// stringLiteral strips the prefix and quotes of a single string token and
// returns its body without escape processing.
func stringLiteral(raw string) (value, prefix string) {
	i := 0
	for i < len(raw) && raw[i] != '\'' && raw[i] != '"' {
		i++
	}
	prefix = raw[:i]
	body := raw[i:]
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(body) >= 2*len(q) && strings.HasPrefix(body, q) && strings.HasSuffix(body, q) {
			return body[len(q) : len(body)-len(q)], prefix
		}
	}
	return body, prefix
}
