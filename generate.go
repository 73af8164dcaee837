package grammar

import "math/rand"

// genState drives one Generate call. Expansion is stack based rather than
// recursive, since a deeply nested Concat/Repeat chain can run far past a
// comfortable Go call-stack depth; only Func argument evaluation recurses
// (via expandToString), since function-call nesting more than a handful of
// levels deep essentially never occurs in a grammar.
type genState struct {
	symtab  SymbolTable
	tracked map[string]bool
	funcs   map[string]Func
	rng     *rand.Rand
	limit   int

	buf  []byte
	kind bufKind

	stack []genFrame
	path  []string // names currently being expanded, outermost first

	// instances records, for each tracked symbol, the bytes produced by its
	// most recently completed expansion, so a later @Ref can replay it
	// (spec.md §4.5, back-reference capture).
	instances map[string]string
	// instanceKind records the bufKind established while each tracked
	// symbol's captured span was generated, so a later @Ref replay is
	// checked against the established output type exactly like any other
	// append (bufKindUnset if the span produced no output at all).
	instanceKind map[string]bufKind
}

// bufKind tracks which of Text or Bin output a generation has committed to.
// spec.md §3/§4.5 forbid mixing the two within a single generation, mirroring
// avalanche.py's _GenState.append, which raises GenerationError the moment a
// value's type disagrees with the first value ever appended.
type bufKind int8

const (
	bufKindUnset bufKind = iota
	bufKindText
	bufKindBin
)

// genFrame is either a symbol to expand (pop == false) or the completion
// marker pushed alongside it, which pops gs.path and, for a tracked symbol,
// captures its generated span into gs.instances.
type genFrame struct {
	name     string
	pop      bool
	tracked  bool
	bufStart int
}

func newGenState(symtab SymbolTable, tracked map[string]bool, funcs map[string]Func, rng *rand.Rand, limit int) *genState {
	return &genState{
		symtab:       symtab,
		tracked:      tracked,
		funcs:        funcs,
		rng:          rng,
		limit:        limit,
		instances:    map[string]string{},
		instanceKind: map[string]bufKind{},
	}
}

// appendTyped appends data to gs.buf, establishing gs.kind on the first
// call and rejecting any later append of the other kind.
func (gs *genState) appendTyped(k bufKind, data []byte) error {
	if gs.kind == bufKindUnset {
		gs.kind = k
	} else if gs.kind != k {
		return newGenErr(gs, "cannot mix text and binary output in a single generation")
	}
	gs.buf = append(gs.buf, data...)
	return nil
}

func (gs *genState) backtrace() []string {
	out := make([]string, len(gs.path))
	copy(out, gs.path)
	return out
}

func (gs *genState) push(name string) {
	tracked := gs.tracked[name]
	gs.stack = append(gs.stack, genFrame{name: name, pop: true, tracked: tracked, bufStart: len(gs.buf)})
	gs.path = append(gs.path, name)
	gs.stack = append(gs.stack, genFrame{name: name})
}

func (gs *genState) pop() genFrame {
	f := gs.stack[len(gs.stack)-1]
	gs.stack = gs.stack[:len(gs.stack)-1]
	return f
}

// run drains the stack starting from name, appending to gs.buf.
func (gs *genState) run(name string) error {
	gs.push(name)
	for len(gs.stack) > 0 {
		f := gs.pop()
		if f.pop {
			gs.path = gs.path[:len(gs.path)-1]
			if f.tracked {
				captured := gs.buf[f.bufStart:]
				gs.instances[f.name] = string(captured)
				if len(captured) == 0 {
					gs.instanceKind[f.name] = bufKindUnset
				} else {
					gs.instanceKind[f.name] = gs.kind
				}
			}
			continue
		}
		if err := gs.step(f.name); err != nil {
			return err
		}
	}
	return nil
}

func (gs *genState) step(name string) error {
	sym, ok := gs.symtab[name]
	if !ok {
		return newGenErr(gs, "undefined symbol during generation: %s", name)
	}

	switch sym.Kind {
	case KindText:
		if err := gs.appendTyped(bufKindText, []byte(sym.Text)); err != nil {
			return err
		}

	case KindBin:
		if err := gs.appendTyped(bufKindBin, sym.Bin); err != nil {
			return err
		}

	case KindTextChoice:
		if sym.Text == "" {
			return newGenErr(gs, "empty character set: %s", name)
		}
		if err := gs.appendTyped(bufKindText, []byte{sym.Text[gs.rng.Intn(len(sym.Text))]}); err != nil {
			return err
		}

	case KindConcat:
		for i := len(sym.Children) - 1; i >= 0; i-- {
			gs.push(sym.Children[i])
		}

	case KindRepeat:
		n := gs.chooseRepeatCount(sym.Min, sym.Max)
		if len(sym.Children) == 0 || n == 0 {
			return nil
		}
		for i := 0; i < n; i++ {
			for j := len(sym.Children) - 1; j >= 0; j-- {
				gs.push(sym.Children[j])
			}
		}

	case KindRepeatSample:
		n := gs.chooseRepeatCount(sym.Min, sym.Max)
		if n == 0 {
			return nil
		}
		choiceSym, ok := gs.symtab[sym.Children[0]]
		if !ok || choiceSym.Kind != KindChoice {
			return newGenErr(gs, "repeat-sample %s: child is not a choice", name)
		}
		picks, err := gs.sampleChoice(choiceSym, n)
		if err != nil {
			return wrapGenErr(gs, err, "repeat-sample %s", name)
		}
		for i := len(picks) - 1; i >= 0; i-- {
			children := picks[i]
			for j := len(children) - 1; j >= 0; j-- {
				gs.push(children[j])
			}
		}

	case KindChoice:
		children, err := gs.chooseAlt(sym)
		if err != nil {
			return wrapGenErr(gs, err, "choice %s", name)
		}
		for i := len(children) - 1; i >= 0; i-- {
			gs.push(children[i])
		}

	case KindFunc:
		args := make([]string, len(sym.Args))
		for i, a := range sym.Args {
			if a.Literal {
				args[i] = a.LitText
				continue
			}
			sub, err := gs.expandToString(a.ChildName)
			if err != nil {
				return err
			}
			args[i] = sub
		}
		fn, ok := gs.funcs[sym.FuncName]
		if !ok {
			return newGenErr(gs, "unregistered function: %s", sym.FuncName)
		}
		result, err := fn(args...)
		if err != nil {
			return wrapGenErr(gs, err, "function %s", sym.FuncName)
		}
		if err := gs.appendTyped(bufKindText, []byte(result)); err != nil {
			return err
		}

	case KindRef:
		val, ok := gs.instances[sym.RefTarget]
		if !ok {
			// Nothing captured yet: generate the target fresh. It is tracked,
			// so its completion marker captures this value for later refs.
			gs.push(sym.RefTarget)
			return nil
		}
		if k := gs.instanceKind[sym.RefTarget]; k != bufKindUnset {
			if err := gs.appendTyped(k, []byte(val)); err != nil {
				return err
			}
		}

	case KindUnresolved:
		return newGenErr(gs, "undefined symbol: %s", name)
	}

	return nil
}

// expandToString runs a nested, isolated expansion of name and returns its
// text, used to evaluate a Func argument before the call is made.
func (gs *genState) expandToString(name string) (string, error) {
	savedBuf, savedStack, savedKind := gs.buf, gs.stack, gs.kind
	gs.buf, gs.stack, gs.kind = nil, nil, bufKindUnset

	err := gs.run(name)
	result := string(gs.buf)

	gs.buf, gs.stack, gs.kind = savedBuf, savedStack, savedKind
	if err != nil {
		return "", err
	}
	return result, nil
}

// chooseRepeatCount picks a repeat count in [min, max], softly biased
// toward min as the buffer approaches the length limit, per spec.md §4.5.
func (gs *genState) chooseRepeatCount(min, max int) int {
	span := max - min
	if span <= 0 {
		return min
	}
	if gs.limit <= 0 {
		return min + gs.rng.Intn(span+1)
	}
	used := float64(len(gs.buf)) / float64(gs.limit)
	if used > 1 {
		used = 1
	}
	upper := min + int(float64(span)*(1-used))
	if upper < min {
		upper = min
	}
	return min + gs.rng.Intn(upper-min+1)
}

// chooseAlt picks one Choice alternative, weighted, preferring alternatives
// proven to terminate once the buffer has reached the length limit so
// generation can still wind down (spec.md §3, §4.5).
func (gs *genState) chooseAlt(sym *Symbol) ([]string, error) {
	nearLimit := gs.limit > 0 && len(gs.buf) >= gs.limit
	hasTerm := false
	if nearLimit {
		for _, alt := range sym.Alts {
			if alt.Terminates == termTrue {
				hasTerm = true
				break
			}
		}
	}

	var wc weightedChoice[int]
	for i, alt := range sym.Alts {
		if nearLimit && hasTerm && alt.Terminates != termTrue {
			continue
		}
		wc.append(i, alt.Weight)
	}
	idx, err := wc.choose(gs.rng)
	if err != nil {
		return nil, err
	}
	return sym.Alts[idx].Children, nil
}

// sampleChoice draws n distinct alternatives without replacement from a
// Choice symbol, for RepeatSample.
func (gs *genState) sampleChoice(choiceSym *Symbol, n int) ([][]string, error) {
	var wc weightedChoice[int]
	for i, alt := range choiceSym.Alts {
		wc.append(i, alt.Weight)
	}
	idxs, err := wc.sample(gs.rng, n)
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(idxs))
	for i, idx := range idxs {
		out[i] = choiceSym.Alts[idx].Children
	}
	return out, nil
}

// runGeneration expands start to completion and returns a string, unless
// the output settled on Bin (gs.appendTyped rejects any grammar that mixes
// Text and Bin within one generation), in which case it returns []byte.
func runGeneration(symtab SymbolTable, tracked map[string]bool, funcs map[string]Func, rng *rand.Rand, limit int, start string) (any, error) {
	gs := newGenState(symtab, tracked, funcs, rng, limit)
	if err := gs.run(start); err != nil {
		return nil, err
	}
	if gs.kind == bufKindBin {
		out := make([]byte, len(gs.buf))
		copy(out, gs.buf)
		return out, nil
	}
	return string(gs.buf), nil
}
