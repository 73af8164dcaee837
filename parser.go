package grammar

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// parseCtx is shared by every file parsed while building one Grammar,
// including all transitively imported files.
type parseCtx struct {
	symtab       SymbolTable
	tracked      map[string]bool
	hashToFriendly map[string]string // grammar hash -> friendly prefix, first-seen wins
}

// parseState is per-file parser state: the current hash prefix, the local
// import table, and line bookkeeping. It mirrors the retrieved teacher
// grammar's tokenizer state (current line, per-line implicit counter),
// generalized with an import table and a "currently open choice" pointer
// per spec.md §4.1.
type parseState struct {
	ctx    *parseCtx
	prefix string // this file's grammar hash, used to qualify names while parsing
	file   string
	dir    string // directory of this file, for relative import resolution

	line      int
	implicitN int

	imports     map[string]importRef // local import name -> target
	importsUsed map[string]bool

	lastDefined string // name of the most recently defined symbol, for choice continuation
}

type importRef struct {
	hash string
	line int
}

func (ps *parseState) nextImplicit() int {
	ps.implicitN++
	return ps.implicitN
}

func qualify(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + "." + local
}

// parseGrammarText parses grammar source text under the given local prefix
// name (used only to seed the hash->friendly map; actual symbol keys use
// this file's content hash until normalization rewrites them) and returns
// that file's hash.
func parseGrammarText(ctx *parseCtx, text, filename, dir, friendlyPrefix string) (string, error) {
	sum := sha512.Sum512([]byte(text))
	hash := hex.EncodeToString(sum[:])[:6]

	if _, seen := ctx.hashToFriendly[hash]; seen {
		return hash, nil // already parsed this exact content; dedupe (avalanche.py import hashing)
	}
	ctx.hashToFriendly[hash] = friendlyPrefix

	ps := &parseState{
		ctx:         ctx,
		prefix:      hash,
		file:        filename,
		dir:         dir,
		imports:     map[string]importRef{},
		importsUsed: map[string]bool{},
	}

	lines := splitLines(text, filename)
	var i int
	for i < len(lines) {
		ps.line = lines[i].Line
		ps.implicitN = -1
		if err := ps.parseLine(lines[i].Text); err != nil {
			return "", err
		}
		i++
	}

	for name := range ps.imports {
		if !ps.importsUsed[name] {
			return "", newIntegrityErr(ps.imports[name].line, "unused import: %s", name)
		}
	}

	return hash, nil
}

// parseLine dispatches one logical line per spec.md §4.1.
func (ps *parseState) parseLine(line string) error {
	if isBlankOrComment(line) {
		return nil
	}

	if startsWithSpace(line) {
		return ps.parseChoiceContinuation(strings.TrimSpace(line))
	}

	name, rest, ok := splitName(line)
	if !ok {
		return newParseErr(ps, "failed to parse definition at: %s", line)
	}
	if rest == "" {
		return newParseErr(ps, "missing definition body for %s", name)
	}
	if name == "import" {
		return newParseErr(ps, "'import' is a reserved name")
	}

	if weight, isWeight, rem, werr := peekWeight(rest); werr != nil {
		return ps.wrap(werr)
	} else if isWeight {
		return ps.startChoice(name, weight, false, rem)
	} else if plus, rem := peekPlus(rest); plus {
		return ps.startChoice(name, 0, true, rem)
	}

	if strings.HasPrefix(rest, "import(") {
		return ps.parseImport(name, rest[len("import("):])
	}

	return ps.defineConcat(name, rest)
}

// peekWeight recognizes a leading decimal integer weight followed by
// whitespace and a body, per spec.md §4.1.
func peekWeight(rest string) (weight float64, ok bool, remainder string, err error) {
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, false, rest, nil
	}
	if i >= len(rest) || (rest[i] != ' ' && rest[i] != '\t') {
		return 0, false, rest, nil
	}
	n, convErr := strconv.ParseFloat(rest[:i], 64)
	if convErr != nil {
		return 0, false, rest, fmt.Errorf("invalid weight: %s", rest[:i])
	}
	return n, true, strings.TrimLeft(rest[i:], " \t"), nil
}

// peekPlus recognizes a lone '+' weight marker.
func peekPlus(rest string) (ok bool, remainder string) {
	if rest == "" || rest[0] != '+' {
		return false, rest
	}
	after := rest[1:]
	if after != "" && after[0] != ' ' && after[0] != '\t' {
		return false, rest
	}
	return true, strings.TrimLeft(after, " \t")
}

func (ps *parseState) wrap(err error) error {
	if err == nil {
		return nil
	}
	return newParseErr(ps, "%s", err.Error())
}

// startChoice opens (or, if name already a Choice, continues) a Choice
// symbol definition with one weighted alternative.
func (ps *parseState) startChoice(name string, weight float64, plus bool, body string) error {
	qname := qualify(ps.prefix, name)

	sym, exists := ps.ctx.symtab[qname]
	if !exists || sym.Kind == KindUnresolved {
		// Either a fresh definition, or a forward reference minted a
		// placeholder before this definition was reached — either way,
		// bind installs a fresh Choice symbol (the same allowance
		// defineConcat makes for placeholders).
		sym = &Symbol{Kind: KindChoice, Name: qname, Line: ps.line, File: ps.file}
		if err := ps.bind(name, qname, sym); err != nil {
			return err
		}
	} else if sym.Kind != KindChoice {
		return newParseErr(ps, "redefinition of symbol %s previously declared on line %d", name, sym.Line)
	}

	children, rem, err := parseBodySeq(ps, body, false, false)
	if err != nil {
		return err
	}
	if rem != "" {
		return newParseErr(ps, "unexpected token in definition: %s", rem)
	}

	sym.Alts = append(sym.Alts, ChoiceAlt{Children: children, Weight: weight, WeightPlus: plus})
	ps.lastDefined = qname
	return nil
}

// parseChoiceContinuation handles a line beginning with whitespace: it must
// continue the most recently opened Choice.
func (ps *parseState) parseChoiceContinuation(line string) error {
	sym := ps.ctx.symtab[ps.lastDefined]
	if ps.lastDefined == "" || sym == nil || sym.Kind != KindChoice {
		return newParseErr(ps, "unexpected continuation of choice symbol")
	}

	if weight, isWeight, rem, werr := peekWeight(line); werr != nil {
		return ps.wrap(werr)
	} else if isWeight {
		children, remainder, err := parseBodySeq(ps, rem, false, false)
		if err != nil {
			return err
		}
		if remainder != "" {
			return newParseErr(ps, "unexpected token in definition: %s", remainder)
		}
		sym.Alts = append(sym.Alts, ChoiceAlt{Children: children, Weight: weight})
		return nil
	}

	if plus, rem := peekPlus(line); plus {
		children, remainder, err := parseBodySeq(ps, rem, false, false)
		if err != nil {
			return err
		}
		if remainder != "" {
			return newParseErr(ps, "unexpected token in definition: %s", remainder)
		}
		sym.Alts = append(sym.Alts, ChoiceAlt{Children: children, WeightPlus: true})
		return nil
	}

	return newParseErr(ps, "unexpected continuation of choice symbol")
}

// defineConcat handles the fallthrough "anything else" case of spec.md
// §4.1: a named Concat body.
func (ps *parseState) defineConcat(name, body string) error {
	qname := qualify(ps.prefix, name)
	if existing, ok := ps.ctx.symtab[qname]; ok && existing.Kind != KindUnresolved {
		return newParseErr(ps, "redefinition of symbol %s previously declared on line %d", name, existing.Line)
	}

	children, rem, err := parseBodySeq(ps, body, false, false)
	if err != nil {
		return err
	}
	if rem != "" {
		return newParseErr(ps, "unexpected token in definition: %s", rem)
	}

	sym := &Symbol{Kind: KindConcat, Name: qname, Line: ps.line, File: ps.file, Children: children}
	if err := ps.bind(name, qname, sym); err != nil {
		return err
	}
	ps.lastDefined = qname
	return nil
}

// bind installs sym at qname, replacing a forward-declaration placeholder
// if one is present, and rejecting any other redefinition.
func (ps *parseState) bind(name, qname string, sym *Symbol) error {
	if existing, ok := ps.ctx.symtab[qname]; ok && existing.Kind != KindUnresolved {
		return newParseErr(ps, "redefinition of symbol %s previously declared on line %d", name, existing.Line)
	}
	ps.ctx.symtab[qname] = sym
	return nil
}

// parseImport handles `<Name> import("path")`.
func (ps *parseState) parseImport(name, rest string) error {
	qname := qualify(ps.prefix, name)
	if existing, ok := ps.ctx.symtab[qname]; ok {
		return newParseErr(ps, "redefinition of symbol %s previously declared on line %d", name, existing.Line)
	}

	path, rem, err := parseQuoted(rest)
	if err != nil {
		return ps.wrap(err)
	}
	rem = strings.TrimLeft(rem, " \t")
	if !strings.HasPrefix(rem, ")") {
		return newParseErr(ps, "expected ')' parsing import at: %s", rem)
	}
	rem = strings.TrimLeft(rem[1:], " \t")
	if rem != "" && rem[0] != '#' {
		return newParseErr(ps, "unexpected input following import: %s", rem)
	}

	candidates := []string{}
	if ps.file != "" {
		candidates = append(candidates, filepath.Join(ps.dir, path))
	}
	candidates = append(candidates, path)

	var contents []byte
	var foundDir string
	var readErr error
	for _, candidate := range candidates {
		contents, readErr = os.ReadFile(candidate)
		if readErr == nil {
			foundDir = filepath.Dir(candidate)
			break
		}
	}
	if readErr != nil {
		return newIntegrityErr(ps.line, "could not find imported grammar: %s", path)
	}

	childHash, perr := parseGrammarText(ps.ctx, string(contents), path, foundDir, name)
	if perr != nil {
		return perr
	}

	ps.imports[name] = importRef{hash: childHash, line: ps.line}
	return nil
}

// getPrefixed resolves a possibly-prefixed reference (`<Import>.<name>`) to
// a fully qualified name under this file's hash prefix or an imported
// file's hash, per spec.md §4.1/§6.
func (ps *parseState) getPrefixed(importName, local string) (string, error) {
	if importName == "" {
		return qualify(ps.prefix, local), nil
	}
	ref, ok := ps.imports[importName]
	if !ok {
		return "", newParseErr(ps, "attempt to use symbol from unknown prefix: %s", importName)
	}
	ps.importsUsed[importName] = true
	return qualify(ref.hash, local), nil
}

// readAll is a small helper so callers constructing a Grammar from an
// io.Reader don't need to import io/ioutil-equivalent boilerplate twice.
func readAll(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
