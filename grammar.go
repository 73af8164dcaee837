// Package grammar implements a grammar-directed text and binary generator,
// of the kind used to drive fuzz targets: you describe the shape of valid
// (and near-valid) input as a set of weighted productions, and Generate
// walks that grammar to produce one concrete instance at a time.
//
// # Basic usage
//
//   - New() parses a grammar from a reader, or NewFromFile() from a path
//   - (*Grammar).Generate() walks it from a chosen start symbol
//
// # Input format
//
// A grammar is a sequence of named definitions, one or more per line:
//
//	greeting "hello there"
//
// The body of a definition is a sequence of symbols: quoted text, x-quoted
// binary data (hex-encoded), a regex-like character generator, a reference
// to another symbol, a parenthesized group, or a call to a registered
// function. Symbols in a body are concatenated in order:
//
//	greeting "hello, " name "!"
//	name     "Alice"
//
// A definition given a weight instead of a bare body becomes one weighted
// alternative of a Choice; repeating the name (or continuing on an indented
// line) adds another alternative:
//
//	greeting 3 "hello there"
//	         1 "good " daypart
//	daypart  1 "morning"
//	daypart  1 "evening"
//
// A '+' weight names another Choice symbol instead of a number: the
// alternative inherits that symbol's total weight, so a pool of extra
// alternatives can be spliced in with the combined weight it carries on its
// own (here 2+1=3, against 3+1=4 for "hi" and "hey"):
//
//	greeting 3 "hi"
//	greeting 1 "hey"
//	greeting + extra_greeting
//	extra_greeting 2 "good day"
//	extra_greeting 1 "salutations"
//
// Postfix `{n}`, `{n,m}` repeats the preceding symbol a fixed or ranged
// number of times; `?` is shorthand for `{0,1}`. `<n,m>` samples n..m
// alternatives from the preceding Choice symbol *without* replacement:
//
//	words  word{1,8}          # one to eight repeats of word
//	recipe ingredient<2,4>    # 2 to 4 distinct ingredients, no repeats
//
// `/.../ ` is a small regex sublanguage for character generation only (no
// matching, no capture groups, no alternation): character classes `[a-z]`,
// negation `[^0-9]`, `.` for a fixed built-in alphabet, the `?`, `{n}` and
// `{n,m}` quantifiers of the surrounding grammar, plus `*` (0 to 5 repeats)
// and `+` (1 to 5 repeats):
//
//	token /[A-Za-z_][A-Za-z0-9_]{0,15}/
//
// `@name` captures the text a tracked symbol produces the next time it's
// generated, so a later reference to the same name can replay it verbatim
// (a back-reference, not a fresh independent draw). When nothing has been
// captured yet, `@name` generates name fresh and captures that value:
//
//	id      /[0-9]{4,8}/
//	session "id=" @id ",echo=" @id
//
// `name(args)` calls a registered function, passing each argument's
// generated text (or a bare numeric literal) as a string; rndint, rndflt
// and rndpow2 are always available and may be shadowed by a caller-supplied
// Func of the same name (spec.md §4.6).
//
//	count   rndint(1, 20)
//
// A grammar can import another file's definitions under a local prefix:
//
//	shared import("common.grammar")
//	greeting "hello, " shared.name
//
// `#` begins a comment extending to end of line; `\` at end of line joins
// the next physical line onto the current one.
//
// # Termination and the length limit
//
// Every Grammar carries a soft output-length limit. As generation
// approaches it, Repeat/RepeatSample counts bias toward their minimum and
// Choice alternatives bias toward ones proven to terminate (spec.md §3),
// so a recursive grammar still tends to wind down rather than exhaust
// memory. The limit is a bias, not a hard cutoff: output can still run past
// it. A grammar in which a reachable named symbol has no terminating
// expansion at all is rejected by New with an *IntegrityError.
package grammar

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// DefaultLimit is the soft output-length bias target used when a Grammar is
// constructed with limit <= 0.
const DefaultLimit = 10000

// Grammar is a parsed, normalized, integrity-checked set of symbol
// definitions, ready to generate from. It is immutable after New/
// NewFromFile return and safe for concurrent Generate calls, provided each
// call is given (or falls back to) its own *rand.Rand (spec.md §5).
type Grammar struct {
	symtab  SymbolTable
	tracked map[string]bool
	funcs   map[string]Func
	limit   int
	logger  *slog.Logger
}

// New parses, normalizes, and integrity-checks a grammar read from r. name
// is used for error messages and to resolve relative import paths; pass ""
// if r isn't backed by a file. funcs registers caller-supplied callables in
// addition to the three always-available builtins; limit <= 0 selects
// DefaultLimit.
func New(r io.Reader, name string, limit int, funcs map[string]Func, opts ...GrammarOpt) (*Grammar, error) {
	cfg := newGrammarConfig(opts)

	text, err := readAll(r)
	if err != nil {
		return nil, err
	}

	dir := "."
	if name != "" {
		dir = filepath.Dir(name)
	}

	ctx := &parseCtx{
		symtab:         SymbolTable{},
		tracked:        map[string]bool{},
		hashToFriendly: map[string]string{},
	}

	if _, err := parseGrammarText(ctx, text, name, dir, ""); err != nil {
		return nil, err
	}
	cfg.logger.Debug("parsed grammar", "file", name, "symbols", len(ctx.symtab))

	if err := normalize(ctx); err != nil {
		return nil, err
	}
	cfg.logger.Debug("normalized grammar", "symbols", len(ctx.symtab))

	if err := checkIntegrity(ctx, "root", funcs); err != nil {
		return nil, err
	}
	cfg.logger.Debug("integrity check passed")

	return &Grammar{
		symtab:  ctx.symtab,
		tracked: ctx.tracked,
		funcs:   funcs,
		limit:   resolveLimit(limit),
		logger:  cfg.logger,
	}, nil
}

// NewFromFile reads and parses a grammar from path.
func NewFromFile(path string, limit int, funcs map[string]Func, opts ...GrammarOpt) (*Grammar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return New(f, path, limit, funcs, opts...)
}

func resolveLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// Generate expands start to a concrete instance: plain text as a string, or
// []byte when the output is binary (x-quoted) data. A generation that mixes
// text and binary output fails with a *GenerationError.
func (g *Grammar) Generate(start string, opts ...GenOpt) (any, error) {
	cfg := newGenConfig(opts)

	if _, ok := g.symtab[start]; !ok {
		return nil, fmt.Errorf("no such definition: %s", start)
	}

	funcs := make(map[string]Func, len(g.funcs)+len(builtinFuncNames))
	for name, fn := range defaultBuiltins(cfg.rng) {
		funcs[name] = fn
	}
	for name, fn := range g.funcs {
		funcs[name] = fn
	}

	g.logger.Debug("generate", "start", start, "limit", g.limit)
	return runGeneration(g.symtab, g.tracked, funcs, cfg.rng, g.limit, start)
}
