// Copyright 2026 The Rpmspec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpmspec // import "github.com/shaba/rpmspec"

import (
	"fmt"
	"go/token"
	"strings"

	mtoken "modernc.org/token"
)

type errItem struct {
	off int32
	err error

	// atEOF marks errors produced by reaching end of input with open
	// contexts. They are anchored at the construct's opening offset and
	// must not survive an edit that resumes scanning before that end.
	atEOF bool
}

func (n errItem) position(s *source) token.Position {
	return token.Position(s.file.PositionFor(mtoken.Pos(n.off+1), true))
}

type errList []errItem

func (e errList) Err(s *source) error {
	if len(e) == 0 {
		return nil
	}

	w := 0
	prev := errItem{off: -1}
	for _, v := range e {
		if v.off != prev.off || v.err.Error() != prev.err.Error() {
			e[w] = v
			w++
			prev = v
		}
	}

	var a []string
	for _, v := range e[:w] {
		a = append(a, fmt.Sprintf("%v: %v", token.Position(s.file.PositionFor(mtoken.Pos(v.off+1), true)), v.err))
	}
	return errorf("%s", strings.Join(a, "\n"))
}

func (e *errList) err(off int32, skip int, msg string, args ...interface{}) {
	errs := *e
	msg = fmt.Sprintf(msg, args...)
	*e = append(errs, errItem{off: off, err: fmt.Errorf("%s (%v:)", msg, origin(skip+2))})
}

// Ch represents the lexical value of a Token. Single character tokens use
// their byte value.
type Ch rune

const (
	beforeTokens Ch = iota + 0xe000

	COMMENT      // '# ...'
	CONDITION    // %if %ifarch %ifnarch %ifos %ifnos %elif %elifarch %elifos %else %endif
	DEFINE       // %define %global %undefine
	EOF          // end of file
	MACRO        // %name %?name %!?name %* %# %0 .. %9
	MACRO_LBRACE // %{
	MACRO_LBRACK // %[
	MACRO_LSHELL // %(
	MACRO_RBRACE // }
	MACRO_RBRACK // ]
	MACRO_RSHELL // )
	NL           // '\n'
	SECTION      // %package %description %prep %build ... %changelog
	TAG          // Name Version Release ... at the start of a 'Tag: value' line
	TEXT         // any other run of content characters

	afterTokens
)

var chNames = map[Ch]string{
	COMMENT:      "COMMENT",
	CONDITION:    "CONDITION",
	DEFINE:       "DEFINE",
	EOF:          "EOF",
	MACRO:        "MACRO",
	MACRO_LBRACE: "MACRO_LBRACE",
	MACRO_LBRACK: "MACRO_LBRACK",
	MACRO_LSHELL: "MACRO_LSHELL",
	MACRO_RBRACE: "MACRO_RBRACE",
	MACRO_RBRACK: "MACRO_RBRACK",
	MACRO_RSHELL: "MACRO_RSHELL",
	NL:           "NL",
	SECTION:      "SECTION",
	TAG:          "TAG",
	TEXT:         "TEXT",
}

// String implements fmt.Stringer.
func (c Ch) String() string {
	if s, ok := chNames[c]; ok {
		return s
	}

	return fmt.Sprintf("%q", rune(c))
}

var (
	_ Node = (*Token)(nil)

	sectionKeywords = map[string]struct{}{
		"build":                 {},
		"changelog":             {},
		"check":                 {},
		"clean":                 {},
		"conf":                  {},
		"description":           {},
		"files":                 {},
		"generate_buildrequires": {},
		"install":               {},
		"package":               {},
		"patchlist":             {},
		"prep":                  {},
		"sourcelist":            {},
	}

	conditionKeywords = map[string]struct{}{
		"elif":     {},
		"elifarch": {},
		"elifos":   {},
		"else":     {},
		"endif":    {},
		"if":       {},
		"ifarch":   {},
		"ifnarch":  {},
		"ifnos":    {},
		"ifos":     {},
	}

	defineKeywords = map[string]struct{}{
		"define":   {},
		"global":   {},
		"undefine": {},
	}
)

// Node is an item of the CST tree.
type Node interface {
	Position() token.Position
}

// Token is the product of Scanner.Scan and a terminal node of the complete
// syntax tree.
type Token struct { // 24 bytes on 64 bit arch
	source *source

	Ch
	next   int32
	off    int32
	sepOff int32
}

// Position implements Node.
func (n Token) Position() (r token.Position) {
	if n.IsValid() {
		return token.Position(n.source.file.PositionFor(mtoken.Pos(n.off+1), true))
	}

	return r
}

// Offset reports the starting offset of n, in bytes, within the source
// buffer.
func (n *Token) Offset() int { return int(n.off) }

// SepOffset reports the starting offset of n's preceding white space, if
// any, in bytes, within the source buffer.
func (n *Token) SepOffset() int { return int(n.sepOff) }

// String pretty formats n.
func (n *Token) String() string {
	if n.Ch <= beforeTokens || n.Ch >= afterTokens {
		return fmt.Sprintf("%v: %q %#U", n.Position(), n.Src(), rune(n.Ch))
	}

	return fmt.Sprintf("%v: %q %s", n.Position(), n.Src(), n.Ch)
}

// IsValid reports the validity of n. Tokens not present in some nodes will
// report false.
func (n *Token) IsValid() bool { return n.source != nil }

// Sep returns the whitespace preceding n, if any. The result is read only.
func (n *Token) Sep() []byte { return n.source.buf[n.sepOff:n.off] }

// Src returns the original textual form of n. The result is read only.
func (n *Token) Src() []byte { return n.source.buf[n.off:n.next] }

type source struct {
	buf  []byte
	file *mtoken.File
}

// Scanner provides lexical analysis of its buffer. It tokenizes the
// declarative surface of a spec file conventionally and consults its
// MacroScanner at every position the grammar alone cannot decide: whether a
// '%' opens a macro construct, escapes a literal percent, or is plain text,
// and where a nested construct closes.
type Scanner struct {
	*source
	// Tok is the current token. It is valid after first call to Scan. The
	// value is read only.
	Tok    Token
	errs   errList
	macros *MacroScanner
	accept KindSet

	cnt int32
	off int32 // Index into source.buf.

	c byte // Lookahead byte.

	allErrors bool
	isClosed  bool
}

// NewScanner returns a newly created scanner that will tokenize buf.
// Positions are reported as if buf is coming from a file named name. The
// buffer becomes owned by the scanner and must not be modified after calling
// NewScanner.
//
// The scanner normally stops scanning after some number of errors. Passing
// allErrors == true overrides that.
func NewScanner(buf []byte, name string, allErrors bool) (*Scanner, error) {
	r := &Scanner{
		source:    &source{buf: buf, file: mtoken.NewFile(name, len(buf))},
		macros:    newMacroScanner(),
		accept:    AcceptDefault,
		allErrors: allErrors,
	}
	if len(buf) != 0 {
		r.c = buf[0]
		if r.c == '\n' {
			r.file.AddLine(int(r.off) + 1)
		}
	}
	return r, nil
}

// SetAccept installs the macro construct kinds the driver will accept at the
// positions scanned next. The set is consulted only when a construct could
// start; it never affects closing of already open contexts.
func (s *Scanner) SetAccept(ks KindSet) { s.accept = ks }

// Macros exposes the delimiter scanner owned by s.
func (s *Scanner) Macros() *MacroScanner { return s.macros }

func (s *Scanner) position() token.Position {
	return token.Position(s.source.file.PositionFor(mtoken.Pos(s.off+1), true))
}

// Err reports any errors the scanner encountered during .Scan() invocations.
func (s *Scanner) Err() error { return s.errs.Err(s.source) }

func (s *Scanner) err(off int32, skip int, msg string, args ...interface{}) {
	if len(s.errs) == 10 && !s.allErrors {
		s.close()
		return
	}

	s.errs.err(off, skip+1, msg, args...)
}

func (s *Scanner) close() {
	if s.isClosed {
		return
	}

	s.Tok.Ch = EOF
	s.Tok.next = s.off
	s.Tok.off = s.off
	s.Tok.source = s.source
	s.isClosed = true
}

func isIDFirst(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c == '_'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isIDNext(c byte) bool { return isIDFirst(c) || isDigit(c) }

func (s *Scanner) next() {
	if int(s.off) < len(s.buf) {
		s.off++
	}
	s.Tok.next = s.off
	if int(s.off) == len(s.buf) {
		s.c = 0
		return
	}

	s.c = s.buf[s.off]
	if s.c == '\n' {
		s.file.AddLine(int(s.off) + 1)
	}
}

func (s *Scanner) nextN(n int) {
	for i := 0; i < n; i++ {
		s.next()
	}
}

// peekByte returns the byte delta positions past the cursor or zero at end
// of input.
func (s *Scanner) peekByte(delta int) byte {
	if i := int(s.off) + delta; i < len(s.buf) {
		return s.buf[i]
	}

	return 0
}

// lineStart reports whether the current token, including its preceding
// separator, begins a line.
func (s *Scanner) lineStart() bool {
	return s.Tok.sepOff == 0 || s.buf[s.Tok.sepOff-1] == '\n'
}

// Scan moves to the next token and returns true if not at end of file.
// Usage example:
//
//	s, _ = NewScanner(buf, name, false)
//	for s.Scan() {
//		...
//	}
//	if err := s.Err(); err != nil {
//		...
//	}
func (s *Scanner) Scan() bool {
	if s.isClosed {
		return false
	}

	s.cnt++
	s.Tok.sepOff = s.off
	s.Tok.source = s.source
again:
	s.Tok.off = s.off
	s.Tok.next = s.off
	// An open context gets first look at the byte. Only its own delimiter
	// pair is ever consumed here; anything else falls through to ordinary
	// tokenization.
	if s.macros.Len() != 0 && s.c != 0 {
		switch ch, n := s.macros.ScanEnd(s.c); {
		case ch != 0:
			s.nextN(n)
			s.Tok.Ch = ch
			return true
		case n != 0:
			// Same kind opener inside the construct. The byte is interior
			// content and the recorded depth keeps the next close from
			// terminating prematurely.
			s.nextN(n)
			return s.text()
		}
	}
	switch s.c {
	case ' ', '\t', '\r':
		s.next()
		goto again
	case '\n':
		s.next()
		s.Tok.Ch = NL
		return true
	case 0:
		if s.macros.Len() != 0 {
			// Unterminated constructs, innermost first.
			open := s.macros.Open()
			for i := len(open) - 1; i >= 0; i-- {
				s.err(open[i].Off, 0, "unterminated %s macro construct", open[i].Kind)
				if n := len(s.errs); n != 0 && s.errs[n-1].off == open[i].Off {
					s.errs[n-1].atEOF = true
				}
			}
			s.macros.reset()
		}
		s.close()
		return false
	case '#':
		if s.lineStart() && s.macros.Len() == 0 {
			for s.c != '\n' && s.c != 0 {
				s.next()
			}
			s.Tok.Ch = COMMENT
			return true
		}

		s.next()
		return s.text()
	case '%':
		return s.percent()
	case ':':
		s.next()
		s.Tok.Ch = Ch(':')
		return true
	default:
		if s.lineStart() && s.macros.Len() == 0 && isIDFirst(s.c) {
			return s.tagOrText()
		}

		s.next()
		return s.text()
	}
}

// tagOrText recognizes the tag of a 'Tag: value' line. Anything else at line
// start degrades to plain text.
func (s *Scanner) tagOrText() bool {
	i := int(s.off)
	for i < len(s.buf) && (isIDNext(s.buf[i]) || s.buf[i] == '-') {
		i++
	}
	if i < len(s.buf) && s.buf[i] == ':' {
		s.nextN(i - int(s.off))
		s.Tok.Ch = TAG
		return true
	}

	s.next()
	return s.text()
}

// percent is called with the cursor at '%'. The macro scanner decides the
// delimited forms; keywords and simple macros are decided here.
func (s *Scanner) percent() bool {
	if t := s.macros.top(); t != nil && !t.AllowsInterpolation {
		s.next()
		return s.text()
	}

	if ch, n := s.macros.ScanStart(s.c, s.peekByte(1), s.off, s.accept); ch != 0 {
		s.nextN(n)
		s.Tok.Ch = ch
		return true
	}

	if s.peekByte(1) == '%' {
		// Literal percent escape, owned by the text rule.
		s.nextN(2)
		return s.text()
	}

	if s.lineStart() && s.macros.Len() == 0 && isIDFirst(s.peekByte(1)) {
		if ch, n, ok := s.keyword(); ok {
			s.nextN(n)
			s.Tok.Ch = ch
			return true
		}
	}

	return s.simpleMacro()
}

// keyword matches %word at line start against the section, conditional and
// define keyword tables without consuming input.
func (s *Scanner) keyword() (ch Ch, n int, ok bool) {
	i := int(s.off) + 1
	for i < len(s.buf) && isIDNext(s.buf[i]) {
		i++
	}
	word := string(s.buf[int(s.off)+1 : i])
	n = i - int(s.off)
	if _, ok := sectionKeywords[word]; ok {
		return SECTION, n, true
	}

	if _, ok := conditionKeywords[word]; ok {
		return CONDITION, n, true
	}

	if _, ok := defineKeywords[word]; ok {
		return DEFINE, n, true
	}

	return 0, 0, false
}

// simpleMacro scans the undelimited macro forms: %name, %?name, %!?name,
// %name*, %#, %*, %**, %0 .. %9. A '%' followed by none of these is a
// literal percent and becomes text.
func (s *Scanner) simpleMacro() bool {
	i := int(s.off) + 1
	if i < len(s.buf) && s.buf[i] == '!' {
		i++
	}
	if i < len(s.buf) && s.buf[i] == '?' {
		i++
	}
	j := i
	switch {
	case j < len(s.buf) && s.buf[j] == '#':
		j++
	case j < len(s.buf) && s.buf[j] == '*':
		j++
		if j < len(s.buf) && s.buf[j] == '*' {
			j++
		}
	case j < len(s.buf) && isDigit(s.buf[j]):
		for j < len(s.buf) && isDigit(s.buf[j]) {
			j++
		}
	case j < len(s.buf) && isIDFirst(s.buf[j]):
		for j < len(s.buf) && isIDNext(s.buf[j]) {
			j++
		}
		// Trailing star form, e.g. %name*.
		if j < len(s.buf) && s.buf[j] == '*' {
			j++
		}
	default:
		j = i - 1 // No valid macro body.
	}
	if j < i {
		s.next()
		return s.text()
	}

	s.nextN(j - int(s.off))
	s.Tok.Ch = MACRO
	return true
}

// text consumes a run of content bytes. The run breaks at blanks, end of
// line, end of input, a possible macro start, and, while a context is open,
// at that context's own delimiter pair. Blanks between runs become the next
// token's separator.
func (s *Scanner) text() bool {
	for {
		switch s.c {
		case 0, ' ', '\t', '\r', '\n', '%':
			s.Tok.Ch = TEXT
			return true
		default:
			if t := s.macros.top(); t != nil && (s.c == t.Open || s.c == t.Close) {
				s.Tok.Ch = TEXT
				return true
			}

			s.next()
		}
	}
}
