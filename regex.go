package grammar

import (
	"fmt"
	"strconv"
	"strings"
)

// regexAlphabet is the fixed character set backing the regex "." construct
// (spec.md §4.2): uppercase, lowercase, digits, and ASCII punctuation /
// whitespace. It is interned once per Grammar as "[regex alpha]".
const regexAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"abcdefghijklmnopqrstuvwxyz" +
	"0123456789" +
	",./<>?;':\"[]\\{}|=_+`~!@#$%^&*() -"

const regexAlphaName = "[regex alpha]"

// parseRegex parses a `/…/` body into a Concat of implicit children, per
// spec.md §4.2. defn must start with '/'.
func parseRegex(ps *parseState, defn string) (string, string, error) {
	if defn == "" || defn[0] != '/' {
		return "", "", newParseErr(ps, "regex definitions must begin with /")
	}

	name := qualify(ps.prefix, fmt.Sprintf("[regex (line %d #%d)]", ps.line, ps.nextImplicit()))
	sym := &Symbol{Kind: KindConcat, Name: name, Line: ps.line, File: ps.file, Implicit: true, Term: termTrue}
	ps.ctx.symtab[name] = sym

	base := strings.TrimSuffix(name, "]")
	n := 0
	mint := func(tag string) string {
		nm := fmt.Sprintf("%s.%s%d]", base, tag, n)
		n++
		return nm
	}

	addText := func(val string) {
		nm := mint("text")
		ps.ctx.symtab[nm] = &Symbol{Kind: KindText, Name: nm, Line: ps.line, File: ps.file, Implicit: true, Text: val, Term: termTrue}
		sym.Children = append(sym.Children, nm)
	}
	addAlpha := func(alpha string) {
		nm := mint("charset")
		ps.ctx.symtab[nm] = &Symbol{Kind: KindTextChoice, Name: nm, Line: ps.line, File: ps.file, Implicit: true, Text: alpha, Term: termTrue}
		sym.Children = append(sym.Children, nm)
	}
	addRepeat := func(min, max int) error {
		if len(sym.Children) == 0 {
			return newParseErr(ps, "error parsing regex, unexpected repeat")
		}
		last := sym.Children[len(sym.Children)-1]
		if lastSym, ok := ps.ctx.symtab[last]; ok && lastSym.Kind == KindRepeat {
			return newParseErr(ps, "error parsing regex, unexpected repeat")
		}
		sym.Children = sym.Children[:len(sym.Children)-1]
		nm := mint("rep")
		ps.ctx.symtab[nm] = &Symbol{Kind: KindRepeat, Name: nm, Line: ps.line, File: ps.file, Implicit: true, Min: min, Max: max, SampleIdx: -1, Children: []string{last}}
		sym.Children = append(sym.Children, nm)
		return nil
	}

	rest := defn[1:]
	for rest != "" {
		c := rest[0]
		switch {
		case c == '/':
			return name, rest[1:], nil

		case c == '.':
			if _, ok := ps.ctx.symtab[regexAlphaName]; !ok {
				ps.ctx.symtab[regexAlphaName] = &Symbol{Kind: KindTextChoice, Name: regexAlphaName, Implicit: true, Text: regexAlphabet, Term: termTrue}
			}
			sym.Children = append(sym.Children, regexAlphaName)
			rest = rest[1:]

		case c == '\\':
			if len(rest) < 2 {
				return "", "", newParseErr(ps, "unterminated regular expression")
			}
			addText(string(escapeChar(rest[1])))
			rest = rest[2:]

		case c == '[':
			alpha, remainder, err := parseCharSet(ps, rest[1:])
			if err != nil {
				return "", "", err
			}
			addAlpha(alpha)
			rest = remainder

		case c == '?':
			if err := addRepeat(0, 1); err != nil {
				return "", "", err
			}
			rest = rest[1:]

		case c == '*':
			if err := addRepeat(0, 5); err != nil {
				return "", "", err
			}
			rest = rest[1:]

		case c == '+':
			if err := addRepeat(1, 5); err != nil {
				return "", "", err
			}
			rest = rest[1:]

		case c == '{':
			j := 1
			for j < len(rest) && rest[j] != '}' {
				j++
			}
			if j >= len(rest) {
				return "", "", newParseErr(ps, "unterminated regular expression")
			}
			inner := strings.TrimSpace(rest[1:j])
			parts := strings.SplitN(inner, ",", 2)
			minVal, perr := strconv.Atoi(strings.TrimSpace(parts[0]))
			if perr != nil {
				return "", "", newParseErr(ps, "invalid repeat bound in regex: %s", inner)
			}
			maxVal := minVal
			if len(parts) == 2 {
				maxVal, perr = strconv.Atoi(strings.TrimSpace(parts[1]))
				if perr != nil {
					return "", "", newParseErr(ps, "invalid repeat bound in regex: %s", inner)
				}
			}
			if err := addRepeat(minVal, maxVal); err != nil {
				return "", "", err
			}
			rest = rest[j+1:]

		default:
			addText(string(c))
			rest = rest[1:]
		}
	}

	return "", "", newParseErr(ps, "unterminated regular expression")
}

// parseCharSet parses the interior of `[...]` / `[^...]`. The caller passes
// the text starting right after '['; this function detects the optional '^'
// itself.
func parseCharSet(ps *parseState, rest string) (string, string, error) {
	inverse := false
	pos := 0
	if pos < len(rest) && rest[pos] == '^' {
		inverse = true
		pos++
	}

	var alpha []byte
	seen := map[byte]bool{}
	add := func(b byte) {
		if !seen[b] {
			seen[b] = true
			alpha = append(alpha, b)
		}
	}

	inRange := false
	closed := false

	for pos < len(rest) {
		ch := rest[pos]

		if ch == ']' {
			if inRange {
				add('-')
			}
			pos++
			closed = true
			break
		}

		if ch == '-' {
			if len(alpha) == 0 {
				add('-')
				pos++
				continue
			}
			if inRange {
				return "", "", newParseErr(ps, "parse error in regex at: %s", rest[pos:])
			}
			inRange = true
			pos++
			continue
		}

		var lit byte
		if ch == '\\' {
			if pos+1 >= len(rest) {
				return "", "", newParseErr(ps, "parse error in regex at: %s", rest[pos:])
			}
			lit = escapeChar(rest[pos+1])
			pos += 2
		} else {
			lit = ch
			pos++
		}

		if inRange {
			start := alpha[len(alpha)-1]
			if start > lit {
				return "", "", newParseErr(ps, "empty range in regex at: %s", rest)
			}
			for r := int(start); r <= int(lit); r++ {
				add(byte(r))
			}
			inRange = false
		} else {
			add(lit)
		}
	}

	if !closed {
		return "", "", newParseErr(ps, "unterminated set in regex")
	}

	remainder := rest[pos:]
	if !inverse {
		return string(alpha), remainder, nil
	}

	var inv []byte
	for i := 0; i < len(regexAlphabet); i++ {
		if !seen[regexAlphabet[i]] {
			inv = append(inv, regexAlphabet[i])
		}
	}
	return string(inv), remainder, nil
}
