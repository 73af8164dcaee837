package grammar

import (
	"fmt"
	"strings"
)

// Dump renders the symbol reachable from start as a box-drawing tree, for
// debugging a grammar's structure. It is the retrieved teacher grammar's
// Tree.Format, adapted from a parsed syntax tree of literal nodes to a walk
// over a normalized SymbolTable: Concat/Repeat/RepeatSample children,
// Choice alternatives (each labeled with its weight), Func arguments, and
// Ref targets. A symbol already on the current path is rendered once and
// not expanded again, since grammars are routinely self-recursive.
func (g *Grammar) Dump(start string, opts ...DumpOption) string {
	lines := g.dumpOne("", start, map[string]bool{}, opts)
	return strings.Join(treeLines(lines, opts), "\n")
}

func (g *Grammar) dumpChildren(prefix string, names []string, visiting map[string]bool, opts []DumpOption) []dumpLine {
	var out []dumpLine
	for _, name := range names {
		out = append(out, g.dumpOne(prefix, name, visiting, opts)...)
	}
	return out
}

func (g *Grammar) dumpOne(prefix, name string, visiting map[string]bool, opts []DumpOption) []dumpLine {
	sym, ok := g.symtab[name]

	label := name
	right := ""
	if !ok {
		label = name + " (undefined)"
	} else {
		label = labelFor(sym, name, opts)
		if hasDumpOption(DumpSource, opts) {
			right = fmt.Sprintf("%s:%d", sym.File, sym.Line)
		}
	}
	if ok && visiting[name] {
		label += " (…)"
	}

	out := []dumpLine{{left: prefix + "└─ " + label, right: right}}
	if !ok || visiting[name] {
		return out
	}

	visiting[name] = true
	defer delete(visiting, name)
	childPrefix := prefix + "   "

	switch sym.Kind {
	case KindConcat, KindRepeat, KindRepeatSample:
		out = append(out, g.dumpChildren(childPrefix, sym.Children, visiting, opts)...)

	case KindChoice:
		for i, alt := range sym.Alts {
			out = append(out, dumpLine{left: fmt.Sprintf("%s└─ alt %d (weight %g)", childPrefix, i, alt.Weight)})
			out = append(out, g.dumpChildren(childPrefix+"   ", alt.Children, visiting, opts)...)
		}

	case KindFunc:
		for _, a := range sym.Args {
			if a.Literal {
				out = append(out, dumpLine{left: childPrefix + "└─ " + a.LitText})
				continue
			}
			out = append(out, g.dumpOne(childPrefix, a.ChildName, visiting, opts)...)
		}

	case KindRef:
		out = append(out, g.dumpOne(childPrefix, sym.RefTarget, visiting, opts)...)
	}

	return out
}

// treeLines beautifies a sequence of "└─ " prefixed lines with box-drawing
// characters, unchanged from the retrieved teacher grammar's algorithm:
// scan bottom-up, column by column, turning a corner under a connected
// column into a tee and a blank under one into a vertical bar.
func treeLines(input []dumpLine, opts []DumpOption) []string {
	lines := len(input)
	runes := make([][]rune, lines)

	maxWidth := 0
	for i := 0; i < lines; i++ {
		runes[i] = []rune(input[i].left)
		if len(runes[i]) > maxWidth {
			maxWidth = len(runes[i])
		}
	}

	connected := make([]bool, maxWidth)

	for i := lines - 1; i >= 0; i-- {
		rl := &runes[i]
		thisLen := len(*rl)

		for j := 0; j < maxWidth; j++ {
			if j >= thisLen {
				connected[j] = false
				continue
			}

			r := &(*rl)[j]
			switch {
			case *r != '└' && *r != ' ':
				connected[j] = false
			case *r == '└' && connected[j]:
				*r = '├'
			case *r == ' ' && connected[j]:
				*r = '│'
			case *r == '└':
				connected[j] = true
			}
		}
	}

	ret := make([]string, lines)
	hasSource := hasDumpOption(DumpSource, opts)
	for i := 0; i < lines; i++ {
		if hasSource && input[i].right != "" {
			ret[i] = fmt.Sprintf("%-*s%s", maxWidth, string(runes[i]), input[i].right)
		} else {
			ret[i] = string(runes[i])
		}
	}

	return ret
}
