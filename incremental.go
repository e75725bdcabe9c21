// Copyright 2026 The Rpmspec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpmspec // import "github.com/shaba/rpmspec"

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"

	mtoken "modernc.org/token"
)

// snapStride bounds the token distance between consecutive snapshots when
// the macro scanner state does not change.
const snapStride = 32

// snapshot captures everything needed to resume scanning at a committed
// token boundary: the number of tokens already produced, the byte offset to
// resume at, the accept set the driver had installed, and the serialized
// macro scanner state.
type snapshot struct {
	n      int
	off    int32
	accept KindSet
	state  []byte
}

// session owns one tokenized buffer, its snapshot table and the scan
// diagnostics. Edits resume from the nearest snapshot at or before the
// damaged region instead of rescanning the unedited prefix.
type session struct {
	name  string
	buf   []byte
	src   *source
	toks  []Token
	snaps []snapshot
	eof   Token
	errs  errList

	allErrors bool
}

func newSession(name string, buf []byte, allErrors bool) (*session, error) {
	r := &session{name: name, buf: buf, allErrors: allErrors}
	if err := r.scanAll(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *session) scanAll() error {
	s, err := NewScanner(r.buf, r.name, r.allErrors)
	if err != nil {
		return err
	}

	r.src = s.source
	r.toks = r.toks[:0]
	r.snaps = r.snaps[:0]
	r.errs = r.errs[:0]
	r.scanFrom(s, AcceptDefault)
	return nil
}

func (r *session) scanFrom(s *Scanner, accept KindSet) {
	s.SetAccept(accept)
	last := s.macros.Serialize()
	since := 0
	for s.Scan() {
		r.toks = append(r.toks, s.Tok)
		accept = nextAccept(accept, &s.Tok)
		s.SetAccept(accept)
		since++
		state := s.macros.Serialize()
		if since >= snapStride || !bytes.Equal(state, last) {
			r.snaps = append(r.snaps, snapshot{
				n:      len(r.toks),
				off:    s.Tok.next,
				accept: accept,
				state:  state,
			})
			last = state
			since = 0
		}
	}
	r.eof = s.Tok
	r.errs = append(r.errs, s.errs...)
}

// nextAccept is the driver side accept policy: bracket expressions are legal
// only in %if and %elif condition position, which extends to the end of the
// directive line.
func nextAccept(cur KindSet, tok *Token) KindSet {
	switch tok.Ch {
	case CONDITION:
		switch string(tok.Src()) {
		case "%if", "%elif":
			return AcceptAll
		}
	case NL:
		return AcceptDefault
	}
	return cur
}

// edit replaces buf[start:end] with replacement and retokenizes from the
// nearest snapshot at or before start. A snapshot that fails to deserialize
// forces a full rescan from the start of the buffer.
func (r *session) edit(start, end int, replacement []byte) error {
	if start < 0 || start > end || end > len(r.buf) {
		return errorf("%s: invalid edit range [%d, %d)", r.name, start, end)
	}

	nbuf := make([]byte, 0, len(r.buf)-(end-start)+len(replacement))
	nbuf = append(nbuf, r.buf[:start]...)
	nbuf = append(nbuf, replacement...)
	nbuf = append(nbuf, r.buf[end:]...)
	// Strictly before start: the token committed at a snapshot boundary may
	// have been classified by peeking at the byte at the boundary itself,
	// which the edit can change.
	i := sort.Search(len(r.snaps), func(i int) bool { return int(r.snaps[i].off) >= start }) - 1
	snap := snapshot{accept: AcceptDefault, state: newMacroScanner().Serialize()}
	if i >= 0 {
		snap = r.snaps[i]
	}

	s, err := resumeScanner(nbuf, r.name, snap, r.allErrors)
	if err != nil {
		r.buf = nbuf
		return r.scanAll()
	}

	r.buf = nbuf
	r.src = s.source
	r.toks = r.toks[:snap.n]
	r.snaps = r.snaps[:i+1]
	w := 0
	for _, v := range r.errs {
		if v.off < snap.off && !v.atEOF {
			r.errs[w] = v
			w++
		}
	}
	r.errs = r.errs[:w]
	r.scanFrom(s, snap.accept)
	return nil
}

// resumeScanner reconstructs a scanner positioned at snap.off over buf, with
// the macro context stack restored from the snapshot. Line offsets of the
// skipped prefix are registered so resumed tokens report the same positions
// a from-scratch scan would.
func resumeScanner(buf []byte, name string, snap snapshot, allErrors bool) (*Scanner, error) {
	ms := newMacroScanner()
	if err := ms.Deserialize(snap.state); err != nil {
		return nil, err
	}

	if int(snap.off) > len(buf) {
		return nil, errorf("%s: snapshot offset %d beyond buffer", name, snap.off)
	}

	src := &source{buf: buf, file: mtoken.NewFile(name, len(buf))}
	s := &Scanner{
		source:    src,
		macros:    ms,
		accept:    snap.accept,
		allErrors: allErrors,
		off:       snap.off,
	}
	for i := 0; i < int(snap.off); i++ {
		if buf[i] == '\n' {
			src.file.AddLine(i + 1)
		}
	}
	if int(snap.off) < len(buf) {
		s.c = buf[snap.off]
		if s.c == '\n' {
			src.file.AddLine(int(snap.off) + 1)
		}
	}
	return s, nil
}

// Reparse applies an edit to the spec source, retokenizes from the nearest
// scanner snapshot before the edit and rebuilds the tree. The token stream
// is identical to what parsing the edited source from scratch would produce.
func (n *SpecFile) Reparse(start, end int, replacement []byte) error {
	if n.session == nil {
		return errorf("%s: spec was not parsed from source", n.name)
	}

	if err := n.session.edit(start, end, replacement); err != nil {
		return err
	}

	p := newParser(n.name, n.session)
	items := p.parse()
	n.Items = items
	n.EOF = n.session.eof
	n.errs = append(append(errList(nil), n.session.errs...), p.errs...)
	n.sum = fmt.Sprintf("%x", sha256.Sum256(n.session.buf))
	return nil
}
