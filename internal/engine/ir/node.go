// Package ir defines the normalized tree the analyzers operate on. Every
// parsed Python file becomes one Model: a Module node owning all other
// nodes, plus indices computed once when the model is built.
package ir

import "strconv"

type Kind int

const (
	KindModule Kind = iota
	KindFunctionDef
	KindClassDef
	KindIf
	KindWhile
	KindFor
	KindTry
	KindExceptHandler
	KindWith
	KindWithItem
	KindMatch
	KindMatchCase
	KindReturn
	KindAssign
	KindAugAssign
	KindAnnAssign
	KindExpr
	KindImport
	KindImportFrom
	KindPass
	KindBreak
	KindContinue
	KindRaise
	KindDelete
	KindAssert
	KindGlobal
	KindCall
	KindKeyword
	KindBinaryOp
	KindCompare
	KindBoolOp
	KindUnaryOp
	KindConstant
	KindName
	KindAttribute
	KindSubscript
	KindListComp
	KindComprehension
	KindLambda
	KindCollection
	KindConditional
	KindOther
)

var kindNames = [...]string{
	KindModule:        "Module",
	KindFunctionDef:   "FunctionDef",
	KindClassDef:      "ClassDef",
	KindIf:            "If",
	KindWhile:         "While",
	KindFor:           "For",
	KindTry:           "Try",
	KindExceptHandler: "ExceptHandler",
	KindWith:          "With",
	KindWithItem:      "WithItem",
	KindMatch:         "Match",
	KindMatchCase:     "MatchCase",
	KindReturn:        "Return",
	KindAssign:        "Assign",
	KindAugAssign:     "AugAssign",
	KindAnnAssign:     "AnnAssign",
	KindExpr:          "Expr",
	KindImport:        "Import",
	KindImportFrom:    "ImportFrom",
	KindPass:          "Pass",
	KindBreak:         "Break",
	KindContinue:      "Continue",
	KindRaise:         "Raise",
	KindDelete:        "Delete",
	KindAssert:        "Assert",
	KindGlobal:        "Global",
	KindCall:          "Call",
	KindKeyword:       "Keyword",
	KindBinaryOp:      "BinaryOp",
	KindCompare:       "Compare",
	KindBoolOp:        "BoolOp",
	KindUnaryOp:       "UnaryOp",
	KindConstant:      "Constant",
	KindName:          "Name",
	KindAttribute:     "Attribute",
	KindSubscript:     "Subscript",
	KindListComp:      "ListComp",
	KindComprehension: "Comprehension",
	KindLambda:        "Lambda",
	KindCollection:    "Collection",
	KindConditional:   "Conditional",
	KindOther:         "Other",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// IsStatement reports whether nodes of this kind appear in statement lists.
func (k Kind) IsStatement() bool {
	switch k {
	case KindFunctionDef, KindClassDef, KindIf, KindWhile, KindFor, KindTry, KindWith,
		KindMatch, KindReturn, KindAssign, KindAugAssign, KindAnnAssign, KindExpr,
		KindImport, KindImportFrom, KindPass, KindBreak, KindContinue, KindRaise,
		KindDelete, KindAssert, KindGlobal:
		return true
	}
	return false
}

// Span is a 1-based source range. Columns count bytes.
type Span struct {
	Line      int
	Column    int
	EndLine   int
	EndColumn int
}

// Context distinguishes reads from writes for Name, Attribute and Subscript.
type Context int

const (
	Load Context = iota
	Store
	Del
)

func (c Context) String() string {
	switch c {
	case Store:
		return "Store"
	case Del:
		return "Del"
	default:
		return "Load"
	}
}

type ConstKind int

const (
	ConstNone ConstKind = iota
	ConstBool
	ConstInt
	ConstFloat
	ConstString
	ConstBytes
	ConstEllipsis
)

// Constant is a literal value. Raw keeps the source text; the typed field
// matching Kind is populated when the literal fits.
type Constant struct {
	Kind  ConstKind
	Raw   string
	Bool  bool
	Int   int64
	Float float64
	Str   string
	// Exact is false when an integer literal overflows int64.
	Exact bool
}

type ParamKind int

const (
	ParamPositional ParamKind = iota
	ParamVarArgs
	ParamKeywordOnly
	ParamVarKeywords
)

type Param struct {
	Name       string
	Kind       ParamKind
	Annotation *Node
	Default    *Node
	Span       Span
}

type Alias struct {
	Name   string
	AsName string
}

// Bound returns the name the alias introduces into the importing scope.
func (a Alias) Bound() string {
	if a.AsName != "" {
		return a.AsName
	}
	return a.Name
}

// Node is a tagged variant. Kind decides which slots are meaningful:
//
//	Module, ClassDef, FunctionDef  Body (+ Name, Params, Returns, Decorators, Bases)
//	If, While                      Test, Body, Orelse (elif is a nested If in Orelse)
//	For                            Target, Iter, Body, Orelse
//	Try                            Body, Handlers, Orelse, Finalbody
//	ExceptHandler                  Test (exception type), Name, Body
//	With                           Items (WithItem: Value, Target), Body
//	Match                          Value (subject), Cases (MatchCase: Test, Body)
//	Assign                         Targets, Value
//	AugAssign                      Targets[0], Op, Value
//	AnnAssign                      Targets[0], Annotation, Value
//	Return, Expr, Raise            Value
//	Import, ImportFrom             Names, Module, Level
//	Call                           Func, Args, Keywords (Keyword: Name, Value)
//	BinaryOp                       Left, Op, Right
//	UnaryOp                        Op, Value
//	BoolOp                         Op, Values
//	Compare                        Left, Ops, Comparators
//	Attribute                      Value, Name, Ctx
//	Subscript                      Value, Index, Ctx
//	Name                           Name, Ctx
//	Constant                       Const
//	ListComp                       Value (element), Generators (Comprehension: Target, Iter, Ifs)
//	Lambda                         Params, Value
//	Collection                     Op ("list", "tuple", "set", "dict"), Values
//	Conditional                    Test, Left (then), Right (else)
//	Global, Delete                 Identifiers / Targets
type Node struct {
	Kind Kind
	Span Span

	Name  string
	Op    string
	Ctx   Context
	Const *Constant
	Async bool

	Test        *Node
	Body        []*Node
	Orelse      []*Node
	Handlers    []*Node
	Finalbody   []*Node
	Items       []*Node
	Cases       []*Node
	Targets     []*Node
	Target      *Node
	Iter        *Node
	Value       *Node
	Annotation  *Node
	Left        *Node
	Right       *Node
	Index       *Node
	Func        *Node
	Args        []*Node
	Keywords    []*Node
	Values      []*Node
	Ops         []string
	Comparators []*Node
	Generators  []*Node
	Ifs         []*Node

	Params     []Param
	Returns    *Node
	Decorators []*Node
	Bases      []*Node

	Names       []Alias
	Module      string
	Level       int
	Identifiers []string

	// Text is the source snippet of expression nodes and the first line of
	// statements, used for defect context.
	Text string
}

// Children returns the direct child nodes in source order.
func (n *Node) Children() []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	add := func(nodes ...*Node) {
		for _, c := range nodes {
			if c != nil {
				out = append(out, c)
			}
		}
	}

	add(n.Decorators...)
	for _, p := range n.Params {
		add(p.Annotation, p.Default)
	}
	add(n.Bases...)
	add(n.Returns)

	switch n.Kind {
	case KindFor, KindComprehension:
		add(n.Target, n.Iter)
	case KindAssign, KindAugAssign, KindAnnAssign:
		add(n.Targets...)
		add(n.Annotation)
	case KindWithItem:
		add(n.Value, n.Target)
		return out
	case KindConditional:
		add(n.Left, n.Test, n.Right)
		return out
	case KindListComp:
		add(n.Value)
		add(n.Generators...)
		return out
	case KindDelete:
		add(n.Targets...)
	}

	add(n.Test, n.Left)
	add(n.Func)
	add(n.Args...)
	add(n.Keywords...)
	add(n.Value)
	add(n.Index, n.Right)
	add(n.Values...)
	add(n.Comparators...)
	add(n.Items...)
	add(n.Ifs...)
	add(n.Body...)
	add(n.Handlers...)
	add(n.Cases...)
	add(n.Orelse...)
	add(n.Finalbody...)
	return out
}

// IsNone reports whether n is the literal None.
func (n *Node) IsNone() bool {
	return n != nil && n.Kind == KindConstant && n.Const != nil && n.Const.Kind == ConstNone
}

// IsName reports whether n is a Name node, optionally with the given identifier.
func (n *Node) IsName(name ...string) bool {
	if n == nil || n.Kind != KindName {
		return false
	}
	if len(name) == 0 {
		return true
	}
	for _, want := range name {
		if n.Name == want {
			return true
		}
	}
	return false
}

// CallName returns the dotted callee of a Call node ("open", "os.system",
// "self.run"). Callees that are not names or attribute chains yield "".
func (n *Node) CallName() string {
	if n == nil || n.Kind != KindCall {
		return ""
	}
	return DottedName(n.Func)
}

// DottedName flattens a Name/Attribute chain into "a.b.c".
func DottedName(n *Node) string {
	if n == nil {
		return ""
	}
	switch n.Kind {
	case KindName:
		return n.Name
	case KindAttribute:
		base := DottedName(n.Value)
		if base == "" {
			return ""
		}
		return base + "." + n.Name
	}
	return ""
}

// Line is shorthand for n.Span.Line with a nil guard.
func (n *Node) Line() int {
	if n == nil {
		return 0
	}
	return n.Span.Line
}
