// Copyright 2026 The Rpmspec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpmspec // import "github.com/shaba/rpmspec"

import (
	"go/token"

	"modernc.org/mathutil"
)

const parserBudget = 1e7

// parser assembles the token stream of a session into the CST. It performs
// no delimiter counting itself; boundary tokens arrive from the scanner
// already decided and the parser only folds matched pairs into macro nodes.
type parser struct {
	path string
	se   *session
	toks []Token
	errs errList

	budget int
	ix     int
	maxIx  int
	backs  int

	isClosed bool
}

func newParser(path string, se *session) *parser {
	return &parser{
		path:   path,
		se:     se,
		toks:   se.toks,
		budget: parserBudget,
	}
}

func (p *parser) c() Ch { return p.peek(0) }

func (p *parser) peek(n int) Ch {
	if p.isClosed || p.budget <= 0 || p.ix+n >= len(p.toks) {
		return EOF
	}

	p.maxIx = mathutil.Max(p.maxIx, p.ix+n)
	return p.toks[p.ix+n].Ch
}

func (p *parser) cur() Token {
	if p.ix < len(p.toks) {
		return p.toks[p.ix]
	}

	return p.se.eof
}

func (p *parser) errPosition() token.Position { return p.cur().Position() }

func (p *parser) consume() (r Token) {
	if p.ix >= len(p.toks) {
		return p.se.eof
	}

	r = p.toks[p.ix]
	p.ix++
	p.budget--
	return r
}

func (p *parser) accept(c Ch) (r Token, _ bool) {
	if p.c() == c {
		return p.consume(), true
	}

	return r, false
}

func (p *parser) expect(c Ch) (r Token) {
	var ok bool
	if r, ok = p.accept(c); !ok {
		p.err(p.cur().off, "expected %s", c)
		p.isClosed = true
	}
	return r
}

func (p *parser) back(ix int) {
	if p.isClosed {
		return
	}

	p.backs += p.ix - ix
	p.ix = ix
}

// err records a parse diagnostic. Parse errors are kept apart from the
// session's scan errors; a reparse regenerates them from scratch while scan
// errors of the unedited prefix survive in the session.
func (p *parser) err(off int32, msg string, args ...interface{}) {
	p.errs.err(off, 1, msg, args...)
}

// condWord reports the conditional keyword of t without the leading percent.
func condWord(t Token) string {
	src := t.Src()
	if len(src) == 0 || src[0] != '%' {
		return ""
	}

	return string(src[1:])
}

func isCondOpener(w string) bool {
	switch w {
	case "if", "ifarch", "ifnarch", "ifos", "ifnos":
		return true
	}
	return false
}

func isCondCloser(w string) bool {
	switch w {
	case "elif", "elifarch", "elifos", "else", "endif":
		return true
	}
	return false
}

func (p *parser) parse() (items []Node) {
	items = p.items(nil)
	if p.budget <= 0 {
		p.err(p.cur().off, "resources exhausted")
	}
	return items
}

// items parses a run of line-level productions. stop is consulted at item
// boundaries only; nil parses to end of file.
func (p *parser) items(stop func(*parser) bool) (r []Node) {
	for {
		if p.c() == EOF || p.isClosed || p.budget <= 0 {
			return r
		}

		if stop != nil && stop(p) {
			return r
		}

		if n := p.item(stop); n != nil {
			r = append(r, n)
		}
	}
}

func (p *parser) item(stop func(*parser) bool) Node {
	switch p.c() {
	case NL:
		// Blank line.
		p.consume()
		return nil
	case COMMENT:
		n := &CommentLine{Comment: p.consume()}
		n.NL, _ = p.accept(NL)
		return n
	case TAG:
		if p.peek(1) == Ch(':') {
			return p.tagLine()
		}

		return p.rawLine()
	case DEFINE:
		return p.macroDef()
	case SECTION:
		return p.section(stop)
	case CONDITION:
		if isCondOpener(condWord(p.cur())) {
			return p.conditional()
		}

		t := p.cur()
		p.err(t.off, "unexpected %s", t.Src())
		return p.rawLine()
	default:
		return p.rawLine()
	}
}

func (p *parser) tagLine() *TagLine {
	n := &TagLine{Tag: p.consume()}
	n.Colon = p.expect(Ch(':'))
	n.Value = p.content(0, true)
	n.NL, _ = p.accept(NL)
	return n
}

func (p *parser) macroDef() *MacroDef {
	n := &MacroDef{Directive: p.consume()}
	if tok, ok := p.accept(TEXT); ok {
		n.Name = tok
	} else if tok, ok := p.accept(MACRO); ok {
		// %undefine %foo style.
		n.Name = tok
	} else {
		p.err(p.cur().off, "expected macro name after %s", n.Directive.Src())
	}
	n.Body = p.content(0, true)
	n.NL, _ = p.accept(NL)
	return n
}

func (p *parser) section(stop func(*parser) bool) *Section {
	hdr := &SectionHeader{Keyword: p.consume()}
	hdr.Args = p.content(0, true)
	hdr.NL, _ = p.accept(NL)
	n := &Section{Header: hdr}
	n.Body = p.items(func(p *parser) bool {
		if p.c() == SECTION {
			return true
		}

		return stop != nil && stop(p)
	})
	return n
}

func condClauseStop(p *parser) bool {
	return p.c() == CONDITION && isCondCloser(condWord(p.cur()))
}

func (p *parser) condClause() *CondClause {
	n := &CondClause{Directive: p.consume()}
	n.Expr = p.content(0, true)
	n.NL, _ = p.accept(NL)
	n.Body = p.items(condClauseStop)
	return n
}

func (p *parser) conditional() *Conditional {
	n := &Conditional{If: p.condClause()}
	for p.c() == CONDITION {
		switch w := condWord(p.cur()); w {
		case "elif", "elifarch", "elifos":
			n.Elifs = append(n.Elifs, p.condClause())
			continue
		case "else":
			if n.Else != nil {
				p.err(p.cur().off, "duplicate %%else")
			}
			n.Else = p.condClause()
			continue
		case "endif":
			n.Endif = p.consume()
			n.NL, _ = p.accept(NL)
			return n
		}
		break
	}
	p.err(n.If.Directive.off, "unterminated conditional, missing %%endif")
	return n
}

func (p *parser) rawLine() *RawLine {
	n := &RawLine{Toks: p.content(0, true)}
	n.NL, _ = p.accept(NL)
	if len(n.Toks) == 0 && !n.NL.IsValid() {
		// Guarantee progress on an unexpected token.
		n.Toks = append(n.Toks, p.consume())
	}
	return n
}

// content parses interior and value content: plain tokens interleaved with
// macro construct nodes. It stops at end of file, at stopCh if non-zero and,
// when atNL is set, at end of line. Newlines inside an open construct are
// interior content, which is how multi line %(...) bodies parse.
func (p *parser) content(stopCh Ch, atNL bool) (r []Node) {
	for {
		switch c := p.c(); {
		case c == EOF || p.isClosed:
			return r
		case stopCh != 0 && c == stopCh:
			return r
		case atNL && c == NL:
			return r
		}
		switch p.c() {
		case MACRO_LBRACE:
			r = append(r, p.macroExpansion())
		case MACRO_LBRACK:
			r = append(r, p.macroBracket())
		case MACRO_LSHELL:
			r = append(r, p.macroShell())
		default:
			r = append(r, p.consume())
		}
	}
}

func (p *parser) macroExpansion() *MacroExpansion {
	n := &MacroExpansion{Lbrace: p.consume()}
	n.Interior = p.content(MACRO_RBRACE, false)
	n.Rbrace, _ = p.accept(MACRO_RBRACE)
	return n
}

func (p *parser) macroBracket() *MacroBracket {
	n := &MacroBracket{Lbrack: p.consume()}
	n.Interior = p.content(MACRO_RBRACK, false)
	n.Rbrack, _ = p.accept(MACRO_RBRACK)
	return n
}

func (p *parser) macroShell() *MacroShell {
	n := &MacroShell{Lshell: p.consume()}
	n.Interior = p.content(MACRO_RSHELL, false)
	n.Rshell, _ = p.accept(MACRO_RSHELL)
	return n
}
