// Copyright 2026 The Rpmspec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpmspec // import "github.com/shaba/rpmspec"

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func helloSpec(t testing.TB) []byte {
	b, err := os.ReadFile(filepath.FromSlash("testdata/hello.spec"))
	if err != nil {
		t.Fatal(err)
	}

	return b
}

// checkEquivalent verifies that se tokenized identically to a from-scratch
// scan of the same bytes.
func checkEquivalent(t *testing.T, se *session) {
	t.Helper()
	fresh, err := newSession(se.name, append([]byte{}, se.buf...), se.allErrors)
	if err != nil {
		t.Fatal(err)
	}

	if g, e := len(se.toks), len(fresh.toks); g != e {
		t.Fatalf("got %d tokens, expected %d\ngot:\n%s\nexpected:\n%s", g, e, streamString(se.toks), streamString(fresh.toks))
	}

	for i := range se.toks {
		g, e := &se.toks[i], &fresh.toks[i]
		if g.Ch != e.Ch || g.off != e.off || string(g.Src()) != string(e.Src()) {
			t.Fatalf("token #%d differs: got %d %s %q, expected %d %s %q", i, g.off, g.Ch, g.Src(), e.off, e.Ch, e.Src())
		}

		if g.Position().String() != e.Position().String() {
			t.Fatalf("token #%d position differs: got %v, expected %v", i, g.Position(), e.Position())
		}
	}
	if g, e := se.eof.off, fresh.eof.off; g != e {
		t.Fatalf("EOF offset differs: got %d, expected %d", g, e)
	}
}

func TestIncrementalEquivalence(t *testing.T) {
	buf := helloSpec(t)
	for _, test := range []struct {
		name string
		old  string
		new  string
	}{
		{"replace", "%make_build", "%make_install"},
		{"insert", "gcc", "gcc-c++"},
		{"delete", "--enable-extras", ""},
		{"late", "Update to 1.2.3", "Initial package"},
	} {
		t.Run(test.name, func(t *testing.T) {
			se, err := newSession("hello.spec", append([]byte{}, buf...), true)
			if err != nil {
				t.Fatal(err)
			}

			start := bytes.Index(se.buf, []byte(test.old))
			if start < 0 {
				t.Fatalf("%q not in testdata", test.old)
			}

			if err := se.edit(start, start+len(test.old), []byte(test.new)); err != nil {
				t.Fatal(err)
			}

			checkEquivalent(t, se)
		})
	}
}

// An edit late in the file must reuse the scanned prefix rather than
// rescanning from the start.
func TestIncrementalPrefixReuse(t *testing.T) {
	buf := helloSpec(t)
	se, err := newSession("hello.spec", append([]byte{}, buf...), true)
	if err != nil {
		t.Fatal(err)
	}

	start := bytes.Index(se.buf, []byte("Update to"))
	if start < 0 {
		t.Fatal("marker not in testdata")
	}

	if err := se.edit(start, start+len("Update to"), []byte("Bump to")); err != nil {
		t.Fatal(err)
	}

	if se.toks[0].source == se.src {
		t.Fatal("prefix was rescanned")
	}

	checkEquivalent(t, se)
}

// An edit exactly at a snapshot offset must not resume from that snapshot:
// the token committed there may have been classified by peeking at the byte
// the edit replaces.
func TestEditAtSnapshotBoundary(t *testing.T) {
	// Two tokens per line put the first stride snapshot right after the
	// trailing "%", whose classification depends on the byte that follows.
	src := strings.Repeat("a\n", 15) + "b%" + "\n"
	se, err := newSession("x.spec", []byte(src), true)
	if err != nil {
		t.Fatal(err)
	}

	if len(se.snaps) == 0 {
		t.Fatal("no snapshots recorded")
	}

	off := int(se.snaps[0].off)
	if se.buf[off-1] != '%' {
		t.Fatalf("snapshot at %d does not follow the percent", off)
	}

	if err := se.edit(off, off, []byte("x")); err != nil {
		t.Fatal(err)
	}

	checkEquivalent(t, se)
}

func TestReparseKeepsDiagnosticsStable(t *testing.T) {
	cfg, err := NewConfig(ConfigCache(nopCache{}))
	if err != nil {
		t.Fatal(err)
	}

	// Enough filler to put a scanner snapshot between the diagnostics and
	// the edited tail, so the resumed scan keeps the prefix.
	buf := []byte("%endif\n%endif\n" + strings.Repeat("x\n", 20) + "Name: a\n")
	sf, _ := cfg.Parse("x.spec", buf)
	before := strings.Count(sf.Err().Error(), "unexpected %endif")
	if g, e := before, 2; g != e {
		t.Fatalf("got %d diagnostics, expected %d", g, e)
	}

	start := bytes.Index(sf.session.buf, []byte(": a")) + len(": ")
	if err := sf.Reparse(start, start+1, []byte("b")); err != nil {
		t.Fatal(err)
	}

	if g, e := strings.Count(sf.Err().Error(), "unexpected %endif"), before; g != e {
		t.Fatalf("got %d diagnostics after reparse, expected %d", g, e)
	}
}

func TestReparseInvalidatesCache(t *testing.T) {
	cfg, err := NewConfig()
	if err != nil {
		t.Fatal(err)
	}

	buf := []byte("Version: 1\n")
	sf, err := cfg.Parse("a.spec", append([]byte{}, buf...))
	if err != nil {
		t.Fatal(err)
	}

	start := bytes.Index(sf.session.buf, []byte("1"))
	if err := sf.Reparse(start, start+1, []byte("zzz")); err != nil {
		t.Fatal(err)
	}

	sf2, err := cfg.Parse("a.spec", append([]byte{}, buf...))
	if err != nil {
		t.Fatal(err)
	}

	if sf2 == sf {
		t.Fatal("stale cache entry returned after reparse")
	}

	tok, ok := sf2.Items[0].(*TagLine).Value[0].(Token)
	if !ok || string(tok.Src()) != "1" {
		t.Fatalf("unexpected value node %v", sf2.Items[0].(*TagLine).Value[0])
	}
}

func TestEditFixesUnterminated(t *testing.T) {
	se, err := newSession("x.spec", []byte("Name: a\nRelease: 1%{dist\n"), true)
	if err != nil {
		t.Fatal(err)
	}

	if len(se.errs) == 0 {
		t.Fatal("expected unterminated construct error")
	}

	if err := se.edit(len(se.buf)-1, len(se.buf)-1, []byte("}")); err != nil {
		t.Fatal(err)
	}

	if err := se.errs.Err(se.src); err != nil {
		t.Fatalf("stale diagnostics after fixing edit: %v", err)
	}

	checkEquivalent(t, se)
}

func TestEditBreaksConstruct(t *testing.T) {
	se, err := newSession("x.spec", []byte("Release: 1%{dist}\n"), true)
	if err != nil {
		t.Fatal(err)
	}

	if err := se.errs.Err(se.src); err != nil {
		t.Fatal(err)
	}

	off := bytes.IndexByte(se.buf, '}')
	if err := se.edit(off, off+1, nil); err != nil {
		t.Fatal(err)
	}

	if err := se.errs.Err(se.src); err == nil || !strings.Contains(err.Error(), "unterminated") {
		t.Fatalf("expected unterminated construct error, got %v", err)
	}

	checkEquivalent(t, se)
}

// Scanning a prefix, serializing, deserializing and continuing must produce
// the same stream as scanning from scratch.
func TestResumeRoundTrip(t *testing.T) {
	buf := helloSpec(t)
	se, err := newSession("hello.spec", buf, true)
	if err != nil {
		t.Fatal(err)
	}

	if len(se.snaps) == 0 {
		t.Fatal("no snapshots recorded")
	}

	for _, snap := range []snapshot{se.snaps[0], se.snaps[len(se.snaps)/2], se.snaps[len(se.snaps)-1]} {
		s, err := resumeScanner(buf, "hello.spec", snap, true)
		if err != nil {
			t.Fatal(err)
		}

		var toks []Token
		s.SetAccept(snap.accept)
		accept := snap.accept
		for s.Scan() {
			toks = append(toks, s.Tok)
			accept = nextAccept(accept, &s.Tok)
			s.SetAccept(accept)
		}
		expected := se.toks[snap.n:]
		if g, e := len(toks), len(expected); g != e {
			t.Fatalf("snapshot at %d: got %d tokens, expected %d", snap.off, g, e)
		}

		for i := range toks {
			g, e := &toks[i], &expected[i]
			if g.Ch != e.Ch || g.off != e.off || string(g.Src()) != string(e.Src()) || g.Position().String() != e.Position().String() {
				t.Fatalf("snapshot at %d: token #%d differs: got %d %s %q at %v, expected %d %s %q at %v",
					snap.off, i, g.off, g.Ch, g.Src(), g.Position(), e.off, e.Ch, e.Src(), e.Position())
			}
		}
	}
}

// A corrupt snapshot must force a full rescan, not a silently wrong resume.
func TestCorruptSnapshotFallsBack(t *testing.T) {
	buf := helloSpec(t)
	se, err := newSession("hello.spec", append([]byte{}, buf...), true)
	if err != nil {
		t.Fatal(err)
	}

	for i := range se.snaps {
		se.snaps[i].state = []byte{0xba, 0xad}
	}
	start := bytes.Index(se.buf, []byte("Update to"))
	if err := se.edit(start, start+len("Update to"), []byte("Bump to")); err != nil {
		t.Fatal(err)
	}

	checkEquivalent(t, se)
}

func TestEditRangeValidation(t *testing.T) {
	se, err := newSession("x.spec", []byte("Name: a\n"), true)
	if err != nil {
		t.Fatal(err)
	}

	for itest, test := range [][2]int{{-1, 0}, {5, 3}, {0, 1000}} {
		if err := se.edit(test[0], test[1], nil); err == nil {
			t.Errorf("#%d: invalid range accepted", itest)
		}
	}
}

func TestReparse(t *testing.T) {
	cfg, err := NewConfig()
	if err != nil {
		t.Fatal(err)
	}

	sf, err := cfg.ParseFile(filepath.FromSlash("testdata/hello.spec"))
	if err != nil {
		t.Fatal(err)
	}

	start := bytes.Index(sf.session.buf, []byte("%{somever}.3"))
	if start < 0 {
		t.Fatal("marker not in testdata")
	}

	if err := sf.Reparse(start, start+len("%{somever}.3"), []byte("2.0")); err != nil {
		t.Fatal(err)
	}

	if err := sf.Err(); err != nil {
		t.Fatal(err)
	}

	var version *TagLine
	for _, it := range sf.Items {
		if tl, ok := it.(*TagLine); ok && string(tl.Tag.Src()) == "Version" {
			version = tl
		}
	}
	if version == nil {
		t.Fatal("no Version tag after reparse")
	}

	if g, e := len(version.Value), 1; g != e {
		t.Fatalf("got %d value nodes, expected %d", g, e)
	}

	tok, ok := version.Value[0].(Token)
	if !ok || string(tok.Src()) != "2.0" {
		t.Fatalf("unexpected value node %v", version.Value[0])
	}
}
