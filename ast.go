// Copyright 2026 The Rpmspec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpmspec // import "github.com/shaba/rpmspec"

import (
	"go/token"
	"reflect"

	"modernc.org/strutil"
)

var (
	_ = []Node{
		(*CommentLine)(nil),
		(*CondClause)(nil),
		(*Conditional)(nil),
		(*MacroBracket)(nil),
		(*MacroDef)(nil),
		(*MacroExpansion)(nil),
		(*MacroShell)(nil),
		(*RawLine)(nil),
		(*Section)(nil),
		(*SectionHeader)(nil),
		(*SpecFile)(nil),
		(*TagLine)(nil),
	}
)

// SpecFile represents a parsed RPM spec file.
//
//	SpecFile = { CommentLine | TagLine | MacroDef | Section | Conditional | RawLine } .
type SpecFile struct {
	Items []Node
	EOF   Token

	name    string
	sum     string
	session *session
	errs    errList
}

// Position implements Node.
func (n *SpecFile) Position() (r token.Position) {
	if len(n.Items) != 0 {
		return n.Items[0].Position()
	}

	return n.EOF.Position()
}

// Name reports the file name the spec was parsed as.
func (n *SpecFile) Name() string { return n.name }

// Err reports any scanning and parsing errors, positioned, or nil.
func (n *SpecFile) Err() error {
	if n.session == nil {
		return nil
	}

	return n.errs.Err(n.session.src)
}

// String returns a pretty printed form of the tree.
func (n *SpecFile) String() string { return dump(n) }

// CommentLine represents a '#' comment occupying a whole line.
type CommentLine struct {
	Comment Token
	NL      Token
}

// Position implements Node.
func (n *CommentLine) Position() token.Position { return n.Comment.Position() }

// TagLine represents a preamble tag, e.g.
//
//	Version: 1.2.%{minor}
type TagLine struct {
	Tag   Token
	Colon Token
	Value []Node
	NL    Token
}

// Position implements Node.
func (n *TagLine) Position() token.Position { return n.Tag.Position() }

// MacroDef represents a %define, %global or %undefine line.
type MacroDef struct {
	Directive Token
	Name      Token
	Body      []Node
	NL        Token
}

// Position implements Node.
func (n *MacroDef) Position() token.Position { return n.Directive.Position() }

// SectionHeader represents a section keyword and its argument line, e.g.
//
//	%package -n libfoo
type SectionHeader struct {
	Keyword Token
	Args    []Node
	NL      Token
}

// Position implements Node.
func (n *SectionHeader) Position() token.Position { return n.Keyword.Position() }

// Name reports the section keyword without the leading percent.
func (n *SectionHeader) Name() string {
	if !n.Keyword.IsValid() {
		return ""
	}

	return string(n.Keyword.Src()[1:])
}

// Section represents a section header and its body, which extends to the
// next section or end of file.
type Section struct {
	Header *SectionHeader
	Body   []Node
}

// Position implements Node.
func (n *Section) Position() token.Position { return n.Header.Position() }

// CondClause represents one arm of a conditional: %if, %ifarch, %ifos and
// their %elif/%else forms, together with the arm's body.
type CondClause struct {
	Directive Token
	Expr      []Node
	NL        Token
	Body      []Node
}

// Position implements Node.
func (n *CondClause) Position() token.Position { return n.Directive.Position() }

// Conditional represents a whole %if ... %endif block.
//
//	Conditional = IfClause { ElifClause } [ ElseClause ] "%endif" .
type Conditional struct {
	If    *CondClause
	Elifs []*CondClause
	Else  *CondClause
	Endif Token
	NL    Token
}

// Position implements Node.
func (n *Conditional) Position() token.Position { return n.If.Position() }

// RawLine represents a line the grammar treats as opaque content: scriptlet
// commands, description prose, file lists and changelog entries. Macro
// constructs inside it are still delimited and appear as child nodes.
type RawLine struct {
	Toks []Node
	NL   Token
}

// Position implements Node.
func (n *RawLine) Position() token.Position {
	if len(n.Toks) != 0 {
		return n.Toks[0].Position()
	}

	return n.NL.Position()
}

// MacroExpansion represents a %{...} construct.
type MacroExpansion struct {
	Lbrace   Token
	Interior []Node
	Rbrace   Token
}

// Position implements Node.
func (n *MacroExpansion) Position() token.Position { return n.Lbrace.Position() }

// MacroShell represents a %(...) shell expansion construct.
type MacroShell struct {
	Lshell   Token
	Interior []Node
	Rshell   Token
}

// Position implements Node.
func (n *MacroShell) Position() token.Position { return n.Lshell.Position() }

// MacroBracket represents a %[...] expression construct.
type MacroBracket struct {
	Lbrack   Token
	Interior []Node
	Rbrack   Token
}

// Position implements Node.
func (n *MacroBracket) Position() token.Position { return n.Lbrack.Position() }

var prettyPrintHooks = strutil.PrettyPrintHooks{
	reflect.TypeOf(Token{}): func(f strutil.Formatter, v interface{}, prefix, suffix string) {
		t := v.(Token)
		if !t.IsValid() {
			return
		}

		f.Format(prefix)
		f.Format("%v: %q %s", t.Position(), t.Src(), t.Ch)
		f.Format(suffix)
	},
}

func dump(n Node) string {
	return strutil.PrettyString(n, "", "", prettyPrintHooks)
}
