package parser

import (
	"sync"
	"sync/atomic"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// pythonPool hands out tree-sitter parsers configured for Python. A parser
// is not safe for concurrent use, so each Parse call borrows its own.
type pythonPool struct {
	lang   *sitter.Language
	idle   sync.Pool
	inUse  atomic.Int64
	minted atomic.Int64
}

func newPythonPool(lang *sitter.Language) *pythonPool {
	pp := &pythonPool{lang: lang}
	pp.idle.New = func() any {
		pp.minted.Add(1)
		sp := sitter.NewParser()
		_ = sp.SetLanguage(lang)
		return sp
	}
	return pp
}

func (pp *pythonPool) borrow() *sitter.Parser {
	sp := pp.idle.Get().(*sitter.Parser)
	pp.inUse.Add(1)
	return sp
}

// giveBack drops any state from the previous parse before reuse.
func (pp *pythonPool) giveBack(sp *sitter.Parser) {
	if sp == nil {
		return
	}
	pp.inUse.Add(-1)
	sp.Reset()
	pp.idle.Put(sp)
}

// Borrowed reports how many parsers are checked out right now.
func (pp *pythonPool) Borrowed() int { return int(pp.inUse.Load()) }

// Minted reports how many parsers were ever created.
func (pp *pythonPool) Minted() int { return int(pp.minted.Load()) }
