// Copyright 2026 The Rpmspec Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rpmspec parses RPM spec files.
//
// The package recognizes package metadata tags, conditional blocks, shell
// scriptlets, file lists and, centrally, the macro expansion micro language:
// %name, %{name}, %(shell) and %[expr], recursively nestable and textually
// ambiguous at the character level. The grammar alone cannot decide whether
// a '%' starts a macro, escapes a literal percent or is plain text, so the
// tokenizer consults a delimiter aware macro boundary scanner, MacroScanner,
// at every such position. The scanner owns a stack of open literal contexts,
// one per unclosed construct, each counting its own delimiter pair, and its
// state serializes to an opaque blob so that scanning can resume after a
// source edit without retokenizing the unedited prefix.
//
// Macro bodies are delimited, not evaluated; expansion semantics are out of
// scope.
package rpmspec // import "github.com/shaba/rpmspec"

import (
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// defaultCacheSize bounds the default parse cache.
const defaultCacheSize = 100

// Cache is a store of parsed spec files, keyed by name and content sum.
// Cached trees are shared; a Reparse of a cached tree is visible to every
// holder.
type Cache interface {
	Get(name, sum string) *SpecFile
	Put(*SpecFile)
}

type lruCache struct {
	c *lru.Cache[string, *SpecFile]
}

func newLRUCache(size int) (*lruCache, error) {
	c, err := lru.New[string, *SpecFile](size)
	if err != nil {
		return nil, err
	}

	return &lruCache{c: c}, nil
}

func (l *lruCache) Get(name, sum string) *SpecFile {
	// A Reparse mutates the cached tree in place and updates its sum, making
	// the entry stale under its original key.
	if r, ok := l.c.Get(name + "\x00" + sum); ok && r.sum == sum {
		return r
	}

	return nil
}

func (l *lruCache) Put(sf *SpecFile) { l.c.Add(sf.name+"\x00"+sf.sum, sf) }

// ConfigOption configures NewConfig.
type ConfigOption func(*Config) error

// Config configures parsing. Config instances can be shared, the instance
// is never mutated once created and configured.
type Config struct {
	cache    Cache
	fs       fs.FS
	parallel *parallel

	allErrors  bool
	configured bool
}

// NewConfig returns a newly created config or an error, if any.
func NewConfig(opts ...ConfigOption) (*Config, error) {
	r := &Config{
		parallel: newParallel(),
	}

	defer func() { r.configured = true }()

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.cache == nil {
		cache, err := newLRUCache(defaultCacheSize)
		if err != nil {
			return nil, err
		}

		r.cache = cache
	}
	return r, nil
}

// ConfigCache configures a cache.
func ConfigCache(c Cache) ConfigOption {
	return func(cfg *Config) error {
		if cfg.configured {
			return errorf("ConfigCache: Config instance already configured")
		}

		cfg.cache = c
		return nil
	}
}

// ConfigFS configures a file system used for opening spec files. If not
// explicitly configured, the host file system is used.
func ConfigFS(fs fs.FS) ConfigOption {
	return func(cfg *Config) error {
		if cfg.configured {
			return errorf("ConfigFS: Config instance already configured")
		}

		cfg.fs = fs
		return nil
	}
}

// ConfigAllErrors overrides the limit on reported scan and parse errors.
func ConfigAllErrors(cfg *Config) error {
	if cfg.configured {
		return errorf("ConfigAllErrors: Config instance already configured")
	}

	cfg.allErrors = true
	return nil
}

func (c *Config) open(name string) (fs.File, error) {
	if c.fs == nil {
		return os.Open(name)
	}

	return c.fs.Open(name)
}

func (c *Config) glob(pattern string) (matches []string, err error) {
	if c.fs == nil {
		return filepath.Glob(pattern)
	}

	return fs.Glob(c.fs, pattern)
}

// Parse parses buf and returns the *SpecFile. Positions are reported as if
// buf is coming from a file named name. The buffer becomes owned by the
// result and must not be modified after calling Parse.
//
// The tree is returned even when err is non-nil; it covers what was
// recognized and err carries the positioned diagnostics.
func (cfg *Config) Parse(name string, buf []byte) (*SpecFile, error) {
	sum := fmt.Sprintf("%x", sha256.Sum256(buf))
	if cfg.cache != nil {
		if r := cfg.cache.Get(name, sum); r != nil {
			return r, r.Err()
		}
	}

	se, err := newSession(name, buf, cfg.allErrors)
	if err != nil {
		return nil, err
	}

	p := newParser(name, se)
	r := &SpecFile{
		Items:   p.parse(),
		EOF:     se.eof,
		name:    name,
		sum:     sum,
		session: se,
	}
	r.errs = append(append(errList(nil), se.errs...), p.errs...)
	if cfg.cache != nil {
		cfg.cache.Put(r)
	}
	return r, r.Err()
}

// ParseFile parses the spec file at path.
func (cfg *Config) ParseFile(path string) (*SpecFile, error) {
	f, err := cfg.open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, errorf("reading %s: %v", path, err)
	}

	return cfg.Parse(path, b)
}

// Dir represents the spec files of one directory.
type Dir struct {
	FSPath           string
	Specs            map[string]*SpecFile
	InvalidSpecFiles map[string]error // errors for particular files, if any

	cfg *Config
}

// Files returns the paths of the valid spec files, sorted.
func (d *Dir) Files() []string {
	r := maps.Keys(d.Specs)
	slices.Sort(r)
	return r
}

// ParseDir parses all *.spec files in fsPath, in parallel. Files with
// diagnostics are recorded in InvalidSpecFiles and excluded from Specs.
func (cfg *Config) ParseDir(fsPath string) (*Dir, error) {
	pat := filepath.Join(fsPath, "*.spec")
	matches, err := cfg.glob(pat)
	if err != nil {
		return nil, errorf("glob %s: %v", pat, err)
	}

	if len(matches) == 0 {
		return nil, errorf("no spec files in %s", fsPath)
	}

	slices.Sort(matches)
	r := &Dir{
		FSPath: fsPath,
		Specs:  map[string]*SpecFile{},
		cfg:    cfg,
	}
	var mu sync.Mutex
	for _, path := range matches {
		path := path
		cfg.parallel.file()
		cfg.parallel.exec(func() {
			sf, err := cfg.ParseFile(path)

			mu.Lock()

			defer mu.Unlock()

			switch {
			case sf == nil:
				// I/O failure, no tree at all.
				cfg.parallel.fail()
				cfg.parallel.err(err)
			case err != nil:
				cfg.parallel.fail()
				if r.InvalidSpecFiles == nil {
					r.InvalidSpecFiles = map[string]error{}
				}
				r.InvalidSpecFiles[path] = err
			default:
				cfg.parallel.ok()
				r.Specs[path] = sf
			}
		})
	}
	if err := cfg.parallel.wait(); err != nil {
		return r, err
	}

	return r, nil
}
