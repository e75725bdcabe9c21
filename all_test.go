// Copyright 2026 The Rpmspec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpmspec // import "github.com/shaba/rpmspec"

import (
	"flag"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/dustin/go-humanize"
	"github.com/pmezard/go-difflib/difflib"
	"modernc.org/mathutil"
)

var (
	oRE  = flag.String("re", "", "")
	oTrc = flag.Bool("trc", false, "")

	re *regexp.Regexp
)

func TestMain(m *testing.M) {
	flag.BoolVar(&extendedErrors, "exterr", false, "")
	flag.Parse()
	if s := *oRE; s != "" {
		re = regexp.MustCompile(s)
	}

	os.Exit(m.Run())
}

func caller(s string, va ...interface{}) {
	if s == "" {
		s = strings.Repeat("%v ", len(va))
	}
	_, fn, fl, _ := runtime.Caller(2)
	fmt.Fprintf(os.Stderr, "# caller: %s:%d: ", path.Base(fn), fl)
	fmt.Fprintf(os.Stderr, s, va...)
	fmt.Fprintln(os.Stderr)
	os.Stderr.Sync()
}

func dbg(s string, va ...interface{}) {
	if s == "" {
		s = strings.Repeat("%v ", len(va))
	}
	_, fn, fl, _ := runtime.Caller(1)
	fmt.Fprintf(os.Stderr, "# dbg %s:%d: ", path.Base(fn), fl)
	fmt.Fprintf(os.Stderr, s, va...)
	fmt.Fprintln(os.Stderr)
	os.Stderr.Sync()
}

func stack() []byte { return debug.Stack() }

func use(...interface{}) {}

func init() {
	use(caller, dbg, stack) //TODOOK
}

// ----------------------------------------------------------------------------

type golden struct {
	a  []string
	f  *os.File
	mu sync.Mutex
	t  *testing.T

	discard bool
}

func newGolden(t *testing.T, fn string) *golden {
	if re != nil {
		return &golden{discard: true}
	}

	f, err := os.Create(filepath.FromSlash(fn))
	if err != nil { // Possibly R/O fs in a VM
		base := filepath.Base(filepath.FromSlash(fn))
		f, err = os.CreateTemp("", base)
		if err != nil {
			t.Fatal(err)
		}

		t.Logf("writing results to %s\n", f.Name())
	}

	return &golden{t: t, f: f}
}

func (g *golden) w(s string, args ...interface{}) {
	if g.discard {
		return
	}

	g.mu.Lock()

	defer g.mu.Unlock()

	if s = strings.TrimRight(s, " \t\n\r"); !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	g.a = append(g.a, fmt.Sprintf(s, args...))
}

func (g *golden) close() {
	if g.discard || g.f == nil {
		return
	}

	defer func() { g.f = nil }()

	sort.Strings(g.a)
	if _, err := g.f.WriteString(strings.Join(g.a, "")); err != nil {
		g.t.Fatal(err)
	}

	if err := g.f.Sync(); err != nil {
		g.t.Fatal(err)
	}

	if err := g.f.Close(); err != nil {
		g.t.Fatal(err)
	}
}

// tokenStream scans src to completion and returns the produced tokens, not
// including the EOF token.
func tokenStream(t testing.TB, src string) *session {
	se, err := newSession("test.spec", []byte(src), true)
	if err != nil {
		t.Fatal(err)
	}

	return se
}

// streamString renders tokens one per line for diffing.
func streamString(toks []Token) string {
	var b strings.Builder
	for i := range toks {
		tok := &toks[i]
		fmt.Fprintf(&b, "%d %s %q\n", tok.off, tok.Ch, tok.Src())
	}
	return b.String()
}

func diff(expected, got string) string {
	d := difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		B:        difflib.SplitLines(got),
		FromFile: "expected",
		ToFile:   "got",
		Context:  0,
	}
	s, _ := difflib.GetUnifiedDiffString(d)
	return s
}

func expectStream(t *testing.T, src string, expected string) {
	t.Helper()
	se := tokenStream(t, src)
	got := streamString(se.toks)
	if expected != got {
		t.Errorf("%q: unexpected token stream:\n%s", src, diff(expected, got))
	}
}

// nestGen builds pseudo random, balanced nested macro constructs using the
// full cycle PRNG the rest of the modernc tests use.
type nestGen struct {
	rng *mathutil.FC32
}

func newNestGen(t testing.TB) *nestGen {
	rng, err := mathutil.NewFC32(0, 1<<20, false)
	if err != nil {
		t.Fatal(err)
	}

	return &nestGen{rng: rng}
}

func (g *nestGen) kind() MacroKind { return MacroKind(g.rng.Next() % 3) }

// gen returns a balanced construct of exactly depth nested levels and the
// kinds used, outermost first.
func (g *nestGen) gen(depth int) (string, []MacroKind) {
	if depth == 0 {
		return "x", nil
	}

	k := g.kind()
	open, close := k.delimiters()
	inner, kinds := g.gen(depth - 1)
	return fmt.Sprintf("%%%ca%sb%c", open, inner, close), append([]MacroKind{k}, kinds...)
}

func BenchmarkScanner(b *testing.B) {
	buf, err := os.ReadFile(filepath.FromSlash("testdata/hello.spec"))
	if err != nil {
		b.Fatal(err)
	}

	var toks int64
	b.SetBytes(int64(len(buf)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s, err := NewScanner(buf, "hello.spec", false)
		if err != nil {
			b.Fatal(err)
		}

		s.SetAccept(AcceptDefault)
		for s.Scan() {
			toks++
		}
	}
	b.StopTimer()
	if *oTrc {
		b.Logf("%s tokens in %s bytes/op", humanize.Comma(toks), humanize.Comma(int64(len(buf))))
	}
}

func BenchmarkParse(b *testing.B) {
	buf, err := os.ReadFile(filepath.FromSlash("testdata/hello.spec"))
	if err != nil {
		b.Fatal(err)
	}

	cfg, err := NewConfig(ConfigCache(nopCache{}))
	if err != nil {
		b.Fatal(err)
	}

	b.SetBytes(int64(len(buf)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cfg.Parse("hello.spec", buf); err != nil {
			b.Fatal(err)
		}
	}
}

type nopCache struct{}

func (nopCache) Get(name, sum string) *SpecFile { return nil }
func (nopCache) Put(*SpecFile)                  {}
