package grammar

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// parseBodySeq parses a definition body into an ordered list of child
// symbol names, per the token grammar in spec.md §4.1. inFunc stops at a
// bare ',' or ')' (a function argument boundary); inConcat additionally
// stops at ')' (the close of an implicit concat or a func-arg list nested
// one level up).
func parseBodySeq(ps *parseState, defn string, inFunc, inConcat bool) ([]string, string, error) {
	var result []string

	for defn != "" {
		c := defn[0]

		switch {
		case c == ' ' || c == '\t':
			defn = defn[1:]
			continue

		case c == '#':
			return result, "", nil

		case c == '"' || c == '\'':
			sym, rem, err := parseTextLiteral(ps, defn)
			if err != nil {
				return nil, "", err
			}
			result = append(result, sym.Name)
			defn = rem

		case c == 'x' && len(defn) > 1 && (defn[1] == '"' || defn[1] == '\''):
			sym, rem, err := parseBinLiteral(ps, defn)
			if err != nil {
				return nil, "", err
			}
			result = append(result, sym.Name)
			defn = rem

		case c == '/':
			name, rem, err := parseRegex(ps, defn)
			if err != nil {
				return nil, "", err
			}
			result = append(result, name)
			defn = rem

		case c == '(':
			parts, rem, err := parseBodySeq(ps, defn[1:], false, true)
			if err != nil {
				return nil, "", err
			}
			if !strings.HasPrefix(rem, ")") {
				return nil, "", newParseErr(ps, "expecting ) at: %s", rem)
			}
			name := qualify(ps.prefix, fmt.Sprintf("[concat (line %d #%d)]", ps.line, ps.nextImplicit()))
			ps.ctx.symtab[name] = &Symbol{Kind: KindConcat, Name: name, Line: ps.line, File: ps.file, Implicit: true, Children: parts}
			result = append(result, name)
			defn = rem[1:]

		case c == ',' || c == ')':
			if inFunc || (inConcat && c == ')') {
				return result, defn, nil
			}
			return nil, "", newParseErr(ps, "unexpected token in definition: %s", defn)

		case c == '@':
			name, rem, err := parseRef(ps, defn[1:])
			if err != nil {
				return nil, "", err
			}
			result = append(result, name)
			defn = rem

		case c == '?':
			r, err := wrapRepeat(ps, result, KindRepeat, 0, 1)
			if err != nil {
				return nil, "", err
			}
			result = r
			defn = defn[1:]

		case c == '{' || c == '<':
			kind, min, max, rem, err := parseRepeatSpec(ps, defn)
			if err != nil {
				return nil, "", err
			}
			r, err := wrapRepeat(ps, result, kind, min, max)
			if err != nil {
				return nil, "", err
			}
			result = r
			defn = rem

		case isIdentByte(c):
			name, rem, isFunc, err := parseIdentOrFunc(ps, defn)
			if err != nil {
				return nil, "", err
			}
			if isFunc {
				fname := name
				childName, rem2, err := parseFuncCall(ps, fname, rem)
				if err != nil {
					return nil, "", err
				}
				result = append(result, childName)
				defn = rem2
			} else {
				sym, ok := ps.ctx.symtab[name]
				if !ok {
					sym = &Symbol{Kind: KindUnresolved, Name: name, Line: ps.line, File: ps.file, Implicit: isImplicitName(name)}
					ps.ctx.symtab[name] = sym
				}
				result = append(result, name)
				defn = rem
			}

		default:
			return nil, "", newParseErr(ps, "unexpected token in definition: %s", defn)
		}
	}

	return result, "", nil
}

// parseIdentOrFunc scans a (possibly import-prefixed) identifier and
// reports whether it is immediately followed by '(' (a function call).
func parseIdentOrFunc(ps *parseState, defn string) (name, remainder string, isFunc bool, err error) {
	i := 0
	for i < len(defn) && isIdentByte(defn[i]) {
		i++
	}
	tok1 := defn[:i]
	rest := defn[i:]

	if rest != "" && rest[0] == '(' {
		return tok1, rest[1:], true, nil
	}

	prefix := ""
	local := tok1
	if rest != "" && rest[0] == '.' {
		prefix = tok1
		j := 1
		for j < len(rest) && isIdentByte(rest[j]) {
			j++
		}
		local = rest[1:j]
		rest = rest[j:]
	}

	qname, qerr := ps.getPrefixed(prefix, local)
	if qerr != nil {
		return "", "", false, qerr
	}
	return qname, rest, false, nil
}

// parseRef handles the body after a leading '@': `@[<prefix>.]<name>`.
func parseRef(ps *parseState, defn string) (string, string, error) {
	name, rem, isFunc, err := parseIdentOrFunc(ps, defn)
	if err != nil {
		return "", "", err
	}
	if isFunc {
		return "", "", newParseErr(ps, "unexpected token in definition: @%s(", name)
	}

	refName := "@" + name
	if _, ok := ps.ctx.symtab[refName]; !ok {
		if _, targetExists := ps.ctx.symtab[name]; !targetExists {
			ps.ctx.symtab[name] = &Symbol{Kind: KindUnresolved, Name: name, Line: ps.line, File: ps.file, Implicit: isImplicitName(name)}
		}
		ps.ctx.symtab[refName] = &Symbol{Kind: KindRef, Name: refName, Line: ps.line, File: ps.file, RefTarget: name}
	}
	ps.ctx.tracked[name] = true

	return refName, rem, nil
}

// wrapRepeat wraps the last parsed child in result in a new Repeat or
// RepeatSample symbol, lifting an implicit concat's children directly in
// rather than nesting an extra layer (spec.md §4.1).
func wrapRepeat(ps *parseState, result []string, kind Kind, min, max int) ([]string, error) {
	if len(result) == 0 {
		return nil, newParseErr(ps, "unexpected token in definition: repeat with no preceding symbol")
	}
	last := result[len(result)-1]
	result = result[:len(result)-1]

	name := qualify(ps.prefix, fmt.Sprintf("[repeat (line %d #%d)]", ps.line, ps.nextImplicit()))
	sym := &Symbol{Kind: kind, Name: name, Line: ps.line, File: ps.file, Implicit: true, Min: min, Max: max, SampleIdx: -1}

	if child, ok := ps.ctx.symtab[last]; ok && child.Kind == KindConcat && child.Implicit {
		sym.Children = child.Children
		delete(ps.ctx.symtab, last)
	} else {
		sym.Children = []string{last}
	}

	ps.ctx.symtab[name] = sym
	return append(result, name), nil
}

// parseRepeatSpec parses `{n}`, `{n,m}`, or `<n,m>` starting at defn[0].
func parseRepeatSpec(ps *parseState, defn string) (Kind, int, int, string, error) {
	open := defn[0]
	want := byte('}')
	kind := KindRepeat
	if open == '<' {
		want = '>'
		kind = KindRepeatSample
	}

	i := 1
	for i < len(defn) && defn[i] != '}' && defn[i] != '>' {
		i++
	}
	if i >= len(defn) {
		return 0, 0, 0, "", newParseErr(ps, "unterminated repeat specifier at: %s", defn)
	}
	if defn[i] != want {
		return 0, 0, 0, "", newParseErr(ps, "mismatched repeat delimiters at: %s", defn)
	}

	inner := strings.TrimSpace(defn[1:i])
	rest := defn[i+1:]

	parts := strings.SplitN(inner, ",", 2)
	minVal, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, 0, "", newParseErr(ps, "invalid repeat bound: %s", inner)
	}
	maxVal := minVal
	if len(parts) == 2 {
		maxVal, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, 0, 0, "", newParseErr(ps, "invalid repeat bound: %s", inner)
		}
	}
	if minVal < 0 || maxVal < minVal {
		return 0, 0, 0, "", newParseErr(ps, "invalid repeat bounds {%d,%d}", minVal, maxVal)
	}

	return kind, minVal, maxVal, rest, nil
}

// parseFuncCall parses the argument list of `name(` up to and including
// the matching ')'.
func parseFuncCall(ps *parseState, fname, rest string) (string, string, error) {
	if fname == "import" {
		return "", "", newParseErr(ps, "'import' is a reserved function name")
	}

	name := qualify(ps.prefix, fmt.Sprintf("[%s (line %d #%d)]", fname, ps.line, ps.nextImplicit()))
	sym := &Symbol{Kind: KindFunc, Name: name, Line: ps.line, File: ps.file, Implicit: true, FuncName: fname}
	ps.ctx.symtab[name] = sym

	defn := rest
	for {
		children, rem, err := parseBodySeq(ps, defn, true, false)
		if err != nil {
			return "", "", err
		}
		if rem == "" || (rem[0] != ',' && rem[0] != ')') {
			return "", "", newParseErr(ps, "expected , or ) parsing function args at: %s", rem)
		}
		done := rem[0] == ')'
		defn = rem[1:]

		if len(children) > 0 || !done {
			arg, err := makeFuncArg(ps, sym, len(sym.Args), children)
			if err != nil {
				return "", "", err
			}
			sym.Args = append(sym.Args, arg)
		}
		if done {
			break
		}
	}

	return name, defn, nil
}

func localPart(name string) string {
	if i := strings.Index(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

// makeFuncArg classifies one function argument: a single bare identifier
// that lexes as a number becomes a literal (integer tried before float, per
// spec.md §9); anything else becomes a synthetic Concat child reference.
func makeFuncArg(ps *parseState, sym *Symbol, idx int, children []string) (FuncArg, error) {
	if len(children) == 1 {
		if csym, ok := ps.ctx.symtab[children[0]]; ok && csym.Kind == KindUnresolved {
			local := localPart(children[0])
			if _, err := strconv.ParseInt(local, 10, 64); err == nil {
				delete(ps.ctx.symtab, children[0])
				return FuncArg{Literal: true, LitText: local}, nil
			}
			if _, err := strconv.ParseFloat(local, 64); err == nil {
				delete(ps.ctx.symtab, children[0])
				return FuncArg{Literal: true, LitText: local}, nil
			}
		}
	}

	name := strings.TrimSuffix(sym.Name, "]") + fmt.Sprintf(".arg%d]", idx)
	ps.ctx.symtab[name] = &Symbol{Kind: KindConcat, Name: name, Line: ps.line, File: ps.file, Implicit: true, Children: children}
	return FuncArg{ChildName: name}, nil
}

// parseQuoted scans a quoted string (used for import paths), applying the
// same escapes as TextSymbol.
func parseQuoted(defn string) (string, string, error) {
	if defn == "" || (defn[0] != '\'' && defn[0] != '"') {
		return "", "", simpleErr("expected a quoted string")
	}
	qchar := defn[0]
	var sb strings.Builder
	i := 1
	for i < len(defn) {
		c := defn[i]
		if c == qchar {
			return sb.String(), defn[i+1:], nil
		}
		if c == '\\' && i+1 < len(defn) {
			sb.WriteByte(escapeChar(defn[i+1]))
			i += 2
			continue
		}
		sb.WriteByte(c)
		i++
	}
	return "", "", simpleErr("unterminated string literal")
}

func escapeChar(c byte) byte {
	switch c {
	case 'f':
		return '\f'
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'v':
		return '\v'
	default:
		return c
	}
}

func parseTextLiteral(ps *parseState, defn string) (*Symbol, string, error) {
	value, rem, err := parseQuoted(defn)
	if err != nil {
		return nil, "", ps.wrap(err)
	}
	name := qualify(ps.prefix, fmt.Sprintf("[text (line %d #%d)]", ps.line, ps.nextImplicit()))
	sym := &Symbol{Kind: KindText, Name: name, Line: ps.line, File: ps.file, Implicit: true, Text: value, Term: termTrue}
	ps.ctx.symtab[name] = sym
	return sym, rem, nil
}

func parseBinLiteral(ps *parseState, defn string) (*Symbol, string, error) {
	if len(defn) < 2 {
		return nil, "", newParseErr(ps, "error parsing binary string at: %s", defn)
	}
	qchar := defn[1]
	if qchar != '\'' && qchar != '"' {
		return nil, "", newParseErr(ps, "error parsing binary string at: %c%c", defn[0], qchar)
	}
	rest := defn[2:]
	idx := strings.IndexByte(rest, qchar)
	if idx == -1 {
		return nil, "", newParseErr(ps, "unterminated bin literal")
	}
	data, err := hex.DecodeString(rest[:idx])
	if err != nil {
		return nil, "", newParseErr(ps, "invalid hex string: %s", err.Error())
	}
	name := qualify(ps.prefix, fmt.Sprintf("[bin (line %d #%d)]", ps.line, ps.nextImplicit()))
	sym := &Symbol{Kind: KindBin, Name: name, Line: ps.line, File: ps.file, Implicit: true, Bin: data, Term: termTrue}
	ps.ctx.symtab[name] = sym
	return sym, rest[idx+1:], nil
}
