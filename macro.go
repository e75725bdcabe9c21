// Copyright 2026 The Rpmspec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpmspec // import "github.com/shaba/rpmspec"

import (
	"encoding/binary"
	"math"
)

// MacroKind enumerates the delimited macro construct forms of RPM spec
// syntax.
type MacroKind byte

const (
	// BraceMacro is a %{...} expansion.
	BraceMacro MacroKind = iota
	// BracketExpr is a %[...] expression.
	BracketExpr
	// ShellMacro is a %(...) shell expansion.
	ShellMacro

	maxMacroKind
)

// String implements fmt.Stringer.
func (k MacroKind) String() string {
	switch k {
	case BraceMacro:
		return "%{"
	case BracketExpr:
		return "%["
	case ShellMacro:
		return "%("
	default:
		return "MacroKind(" + string('0'+byte(k)) + ")"
	}
}

func (k MacroKind) delimiters() (open, close byte) {
	switch k {
	case BraceMacro:
		return '{', '}'
	case BracketExpr:
		return '[', ']'
	case ShellMacro:
		return '(', ')'
	}
	return 0, 0
}

func (k MacroKind) startToken() Ch {
	switch k {
	case BraceMacro:
		return MACRO_LBRACE
	case BracketExpr:
		return MACRO_LBRACK
	default:
		return MACRO_LSHELL
	}
}

func (k MacroKind) endToken() Ch {
	switch k {
	case BraceMacro:
		return MACRO_RBRACE
	case BracketExpr:
		return MACRO_RBRACK
	default:
		return MACRO_RSHELL
	}
}

// KindSet is a set of macro construct kinds the driver is willing to accept
// at a particular position. It is passed by value at every ScanStart call
// site; grammars differ in which start forms are legal in a given syntactic
// position, e.g. bracket expressions are only legal inside %if conditions.
type KindSet byte

const (
	// AcceptBrace admits %{ starts.
	AcceptBrace KindSet = 1 << iota
	// AcceptBracket admits %[ starts.
	AcceptBracket
	// AcceptShell admits %( starts.
	AcceptShell

	// AcceptDefault is the accept set outside conditional expressions.
	AcceptDefault = AcceptBrace | AcceptShell
	// AcceptAll admits every start form.
	AcceptAll = AcceptBrace | AcceptBracket | AcceptShell
)

// Has reports whether k is in the set.
func (s KindSet) Has(k MacroKind) bool {
	return s&(1<<k) != 0
}

// LiteralContext is one open, not yet closed macro construct. The top of the
// context stack owns delimiter counting for its own open/close pair only; a
// stray closing character of a different pair is never consumed here and
// remains ordinary interior text.
type LiteralContext struct {
	Kind  MacroKind
	Open  byte
	Close byte
	// Depth counts unmatched Open occurrences seen since this context was
	// opened, including the one that opened it. Always >= 1 while the
	// context is on the stack.
	Depth int32
	// Off is the byte offset of the opening marker, used to anchor
	// unterminated construct errors.
	Off int32
	// AllowsInterpolation reports whether macro expansions may start inside
	// this context. True for all current kinds; a future plain-string kind
	// would set it false.
	AllowsInterpolation bool
}

// MacroScanner decides, byte by byte, where macro constructs begin and end.
// It owns a stack of open literal contexts and is consulted by the
// tokenizer whenever the grammar alone cannot disambiguate a position. A
// MacroScanner is bound to a single scanning session; it is not safe for
// concurrent use.
type MacroScanner struct {
	stack []LiteralContext
}

func newMacroScanner() *MacroScanner { return &MacroScanner{} }

// Len reports the number of open contexts.
func (m *MacroScanner) Len() int { return len(m.stack) }

// Open returns a copy of the open contexts, outermost first.
func (m *MacroScanner) Open() []LiteralContext {
	r := make([]LiteralContext, len(m.stack))
	copy(r, m.stack)
	return r
}

func (m *MacroScanner) top() *LiteralContext {
	if len(m.stack) == 0 {
		return nil
	}

	return &m.stack[len(m.stack)-1]
}

func (m *MacroScanner) push(k MacroKind, off int32) {
	open, close := k.delimiters()
	m.stack = append(m.stack, LiteralContext{
		Kind:                k,
		Open:                open,
		Close:               close,
		Depth:               1,
		Off:                 off,
		AllowsInterpolation: true,
	})
}

func (m *MacroScanner) reset() { m.stack = m.stack[:0] }

// ScanStart decides whether a macro construct starts at offset off. c0 is
// the byte at off and c1 the byte following it, zero at end of input. It
// returns the boundary token and the number of bytes belonging to the
// opening marker, or (0, 0) when it defers; deferring never consumes input,
// the grammar retries its own tokenization at the same position.
func (m *MacroScanner) ScanStart(c0, c1 byte, off int32, accept KindSet) (Ch, int) {
	if c0 != '%' {
		return 0, 0
	}

	var k MacroKind
	switch c1 {
	case '%':
		// Escape sequence for a literal percent sign. The literal text
		// rule owns both bytes.
		return 0, 0
	case '{':
		k = BraceMacro
	case '[':
		k = BracketExpr
	case '(':
		k = ShellMacro
	default:
		return 0, 0
	}
	if !accept.Has(k) {
		return 0, 0
	}

	m.push(k, off)
	return k.startToken(), 2
}

// ScanEnd examines one byte against the top context. It must be called only
// while the stack is non-empty. The outcomes are
//
//	(tok, 1) the byte closed the top context, which was popped;
//	(0, 1)   the byte was consumed as interior content, adjusting Depth;
//	(0, 0)   the byte is none of the pair, ordinary interior tokenization
//	         proceeds without consuming it here.
func (m *MacroScanner) ScanEnd(c byte) (Ch, int) {
	t := m.top()
	if t == nil {
		return 0, 0
	}

	switch c {
	case t.Open:
		t.Depth++
		return 0, 1
	case t.Close:
		t.Depth--
		if t.Depth > 0 {
			return 0, 1
		}

		k := t.Kind
		m.stack = m.stack[:len(m.stack)-1]
		return k.endToken(), 1
	}
	return 0, 0
}

// Serialized state layout, private to the scanner:
//
//	magic version uvarint(len) { kind uvarint(depth) uvarint(off) }*
const (
	macroStateMagic   = 0xa5
	macroStateVersion = 1
)

// Serialize exports the full context stack as an opaque byte sequence.
func (m *MacroScanner) Serialize() []byte {
	b := make([]byte, 2, 2+8*len(m.stack))
	b[0] = macroStateMagic
	b[1] = macroStateVersion
	b = binary.AppendUvarint(b, uint64(len(m.stack)))
	for _, ctx := range m.stack {
		b = append(b, byte(ctx.Kind))
		b = binary.AppendUvarint(b, uint64(ctx.Depth))
		b = binary.AppendUvarint(b, uint64(ctx.Off))
	}
	return b
}

// Deserialize restores a stack previously exported by Serialize. A corrupt
// snapshot is rejected with an error and leaves the stack empty; the caller
// must then fall back to a full rescan rather than resume with a silently
// wrong state.
func (m *MacroScanner) Deserialize(b []byte) error {
	m.reset()
	if len(b) < 2 || b[0] != macroStateMagic {
		return errorf("macro scanner state: bad magic")
	}

	if b[1] != macroStateVersion {
		return errorf("macro scanner state: unsupported version %d", b[1])
	}

	b = b[2:]
	n, sz := binary.Uvarint(b)
	if sz <= 0 {
		return errorf("macro scanner state: truncated")
	}

	b = b[sz:]
	for i := uint64(0); i < n; i++ {
		if len(b) == 0 {
			m.reset()
			return errorf("macro scanner state: truncated")
		}

		k := MacroKind(b[0])
		if k >= maxMacroKind {
			m.reset()
			return errorf("macro scanner state: invalid context kind %d", b[0])
		}

		b = b[1:]
		depth, sz := binary.Uvarint(b)
		if sz <= 0 || depth == 0 || depth > math.MaxInt32 {
			m.reset()
			return errorf("macro scanner state: invalid nesting depth")
		}

		b = b[sz:]
		off, sz := binary.Uvarint(b)
		if sz <= 0 || off > math.MaxInt32 {
			m.reset()
			return errorf("macro scanner state: invalid context offset")
		}

		b = b[sz:]
		m.push(k, int32(off))
		m.top().Depth = int32(depth)
	}
	if len(b) != 0 {
		m.reset()
		return errorf("macro scanner state: %d trailing bytes", len(b))
	}

	return nil
}
