package grammar

import "fmt"

// DumpOption alters what Dump includes for each symbol line, in the style
// of the retrieved teacher grammar's TreeFormatOption.
type DumpOption int

const (
	// DumpSource includes each symbol's file:line.
	DumpSource DumpOption = iota
	// DumpKind includes each symbol's Kind tag.
	DumpKind
)

func hasDumpOption(find DumpOption, in []DumpOption) bool {
	for _, option := range in {
		if option == find {
			return true
		}
	}
	return false
}

// dumpLine is one rendered row: the box-drawing-prefixed label, and an
// optional right column (source location).
type dumpLine struct {
	left  string
	right string
}

func labelFor(sym *Symbol, name string, opts []DumpOption) string {
	label := name
	if hasDumpOption(DumpKind, opts) {
		label = fmt.Sprintf("%s [%s]", label, sym.Kind)
	}
	return label
}
