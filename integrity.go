package grammar

// checkIntegrity runs the semantic checks of spec.md §4.4 over an already
// normalized symbol table: undefined symbols, a missing root, unreachable
// named symbols, function coverage, the RepeatSample single-Choice-child
// constraint, and termination analysis.
func checkIntegrity(ctx *parseCtx, root string, funcs map[string]Func) error {
	if err := checkUndefined(ctx.symtab); err != nil {
		return err
	}

	if _, ok := ctx.symtab[root]; !ok {
		return newIntegrityErr(0, "grammar has no %q symbol", root)
	}

	reachable := reachableFrom(ctx.symtab, root)
	if err := checkReachability(ctx.symtab, reachable); err != nil {
		return err
	}

	if err := checkFunctionCoverage(ctx.symtab, funcs); err != nil {
		return err
	}

	if err := checkRepeatSamples(ctx.symtab); err != nil {
		return err
	}

	runTerminationAnalysis(ctx.symtab)
	if err := checkTermination(ctx.symtab, reachable); err != nil {
		return err
	}
	return nil
}

// checkTermination enforces spec invariant 4: every reachable, explicitly
// named symbol must prove Term == termTrue once runTerminationAnalysis has
// reached its fixpoint. A symbol left termFalse or termUnknown is a
// non-terminating recursion with no base case (e.g. "root A" / "A A") and
// is rejected here, matching avalanche.py's sanity_check raising
// IntegrityError("Symbol has no paths to termination...").
func checkTermination(symtab SymbolTable, reachable map[string]bool) error {
	for name, sym := range symtab {
		if sym.Implicit || !reachable[name] {
			continue
		}
		if sym.Term != termTrue {
			return newIntegrityErr(sym.Line, "symbol %s has no path to termination", name)
		}
	}
	return nil
}

func checkUndefined(symtab SymbolTable) error {
	for name, sym := range symtab {
		if sym.Kind == KindUnresolved {
			return newIntegrityErr(sym.Line, "undefined symbol: %s", name)
		}
	}
	return nil
}

// reachableFrom walks the symbol graph from root, returning the set of
// names reachable via children().
func reachableFrom(symtab SymbolTable, root string) map[string]bool {
	seen := map[string]bool{root: true}
	queue := []string{root}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		sym, ok := symtab[name]
		if !ok {
			continue
		}
		for _, child := range sym.children() {
			if !seen[child] {
				seen[child] = true
				queue = append(queue, child)
			}
		}
	}
	return seen
}

// checkReachability flags any explicitly named (non-implicit) symbol that
// the root can never reach, per spec invariant 3. Parser-synthesized
// implicit symbols are exempt: many are dead after concat flattening and
// that's expected, not a grammar author error.
func checkReachability(symtab SymbolTable, reachable map[string]bool) error {
	for name, sym := range symtab {
		if sym.Implicit {
			continue
		}
		if reachable[name] {
			continue
		}
		return newIntegrityErr(sym.Line, "symbol %s is unreachable from the root", name)
	}
	return nil
}

// checkFunctionCoverage requires every Func call in the grammar to name a
// registered callable (a builtin or a caller-supplied Func), and every
// caller-supplied Func to be used by at least one call, per spec.md §4.6.
func checkFunctionCoverage(symtab SymbolTable, funcs map[string]Func) error {
	used := map[string]bool{}
	for _, sym := range symtab {
		if sym.Kind == KindFunc {
			used[sym.FuncName] = true
		}
	}

	for name := range used {
		if builtinFuncNames[name] {
			continue
		}
		if _, ok := funcs[name]; !ok {
			return newIntegrityErr(0, "call to unregistered function: %s", name)
		}
	}

	for name := range funcs {
		if builtinFuncNames[name] {
			continue
		}
		if !used[name] {
			return newIntegrityErr(0, "registered function never called by grammar: %s", name)
		}
	}

	return nil
}

// checkRepeatSamples enforces that every RepeatSample symbol names exactly
// one Choice child to sample without replacement from, and records its
// index (spec.md §9, "RepeatSample constraint").
func checkRepeatSamples(symtab SymbolTable) error {
	for name, sym := range symtab {
		if sym.Kind != KindRepeatSample {
			continue
		}
		if len(sym.Children) != 1 {
			return newIntegrityErr(sym.Line, "repeat-sample %s must name exactly one child", name)
		}
		child, ok := symtab[sym.Children[0]]
		if !ok || child.Kind != KindChoice {
			return newIntegrityErr(sym.Line, "repeat-sample %s must sample from a choice symbol", name)
		}
		sym.SampleIdx = 0
	}
	return nil
}

// runTerminationAnalysis propagates the tri-state can_terminate flag
// (spec.md §3) to a fixpoint. A symbol left termFalse or termUnknown once
// the fixpoint is reached has no proven base case; checkTermination turns
// that into an integrity error for every reachable, named symbol.
func runTerminationAnalysis(symtab SymbolTable) {
	for {
		changed := false
		for _, sym := range symtab {
			if termOfSymbol(symtab, sym) {
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// termOfSymbol recomputes sym.Term (and, for Choice, its per-alternative
// Terminates flags) from its children's current Term values. Returns true
// if anything changed.
func termOfSymbol(symtab SymbolTable, sym *Symbol) bool {
	changed := false

	switch sym.Kind {
	case KindText, KindBin, KindTextChoice:
		if sym.Term != termTrue {
			sym.Term = termTrue
			changed = true
		}

	case KindConcat:
		if sym.Term == termUnknown {
			if t, ok := allTerm(symtab, sym.Children); ok {
				sym.Term = boolTerm(t)
				changed = true
			}
		}

	case KindRepeat, KindRepeatSample:
		if sym.Term == termUnknown {
			if sym.Max == 0 {
				sym.Term = termTrue
				changed = true
			} else if t, ok := allTerm(symtab, sym.Children); ok {
				sym.Term = boolTerm(t)
				changed = true
			}
		}

	case KindFunc:
		if sym.Term == termUnknown {
			var children []string
			for _, a := range sym.Args {
				if !a.Literal {
					children = append(children, a.ChildName)
				}
			}
			if t, ok := allTerm(symtab, children); ok {
				sym.Term = boolTerm(t)
				changed = true
			}
		}

	case KindRef:
		if sym.Term == termUnknown {
			if target, ok := symtab[sym.RefTarget]; ok && target.Term != termUnknown {
				sym.Term = target.Term
				changed = true
			}
		}

	case KindChoice:
		anyTrue := false
		allFalse := true
		allResolved := true
		for i := range sym.Alts {
			alt := &sym.Alts[i]
			if alt.Terminates == termUnknown {
				if t, ok := allTerm(symtab, alt.Children); ok {
					alt.Terminates = boolTerm(t)
					changed = true
				}
			}
			switch alt.Terminates {
			case termTrue:
				anyTrue = true
				allFalse = false
			case termFalse:
				// allFalse stays as-is
			default:
				allFalse = false
				allResolved = false
			}
		}
		if sym.Term == termUnknown {
			if anyTrue {
				sym.Term = termTrue
				changed = true
			} else if allFalse && allResolved {
				sym.Term = termFalse
				changed = true
			}
		}
	}

	return changed
}

// allTerm reports whether every name in children is proven to terminate
// (true, true), proven not to (false, true), or still undetermined
// (_, false). An empty list is vacuously terminating.
func allTerm(symtab SymbolTable, children []string) (bool, bool) {
	if len(children) == 0 {
		return true, true
	}
	sawUnknown := false
	for _, name := range children {
		sym, ok := symtab[name]
		if !ok {
			return false, false
		}
		switch sym.Term {
		case termTrue:
			continue
		case termFalse:
			return false, true
		default:
			sawUnknown = true
		}
	}
	if sawUnknown {
		return false, false
	}
	return true, true
}

func boolTerm(t bool) termState {
	if t {
		return termTrue
	}
	return termFalse
}
