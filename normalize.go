package grammar

import "strings"

// normalize runs the post-parse rewrite passes described in spec.md §4.3:
// rewriting hash prefixes to friendly import names, flattening
// parser-synthesized (implicit) concats produced by parenthesization, and
// resolving '+' weight markers on Choice alternatives.
func normalize(ctx *parseCtx) error {
	renamePrefixes(ctx)
	flattenConcats(ctx)
	return resolvePlusWeights(ctx)
}

// renamePrefixes rewrites every symbol's key and every name it references
// from its parse-time grammar-hash prefix to the friendly import name that
// first introduced that content (spec.md §6). The root file's hash maps to
// the empty prefix, so its symbols end up unprefixed.
func renamePrefixes(ctx *parseCtx) {
	rewritten := make(SymbolTable, len(ctx.symtab))
	for name, sym := range ctx.symtab {
		sym.Name = rewriteRef(sym.Name, ctx.hashToFriendly)
		sym.Children = rewriteRefs(sym.Children, ctx.hashToFriendly)
		sym.RefTarget = rewriteRef(sym.RefTarget, ctx.hashToFriendly)
		for i := range sym.Alts {
			sym.Alts[i].Children = rewriteRefs(sym.Alts[i].Children, ctx.hashToFriendly)
		}
		for i := range sym.Args {
			if !sym.Args[i].Literal {
				sym.Args[i].ChildName = rewriteRef(sym.Args[i].ChildName, ctx.hashToFriendly)
			}
		}
		rewritten[rewriteRef(name, ctx.hashToFriendly)] = sym
	}
	ctx.symtab = rewritten

	tracked := make(map[string]bool, len(ctx.tracked))
	for name := range ctx.tracked {
		tracked[rewriteRef(name, ctx.hashToFriendly)] = true
	}
	ctx.tracked = tracked
}

// rewriteRef rewrites a single fully qualified symbol name's hash prefix to
// its friendly equivalent. Names with no recognized hash prefix (global
// singletons like "[regex alpha]", or already-empty names) pass through
// unchanged.
func rewriteRef(name string, hashToFriendly map[string]string) string {
	if name == "" {
		return name
	}
	at := ""
	rest := name
	if strings.HasPrefix(name, "@") {
		at = "@"
		rest = name[1:]
	}
	dot := strings.IndexByte(rest, '.')
	if dot < 0 {
		return name
	}
	friendly, ok := hashToFriendly[rest[:dot]]
	if !ok {
		return name
	}
	local := rest[dot+1:]
	if friendly == "" {
		return at + local
	}
	return at + friendly + "." + local
}

func rewriteRefs(names []string, hashToFriendly map[string]string) []string {
	if names == nil {
		return nil
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = rewriteRef(n, hashToFriendly)
	}
	return out
}

// flattenConcats splices any implicit (parser-synthesized) Concat symbol
// directly into every place it's referenced as a plain child, since it was
// minted for exactly one parenthesized group or regex body and is never
// addressed by name. Iterates to a fixpoint so nested parenthesization collapses fully.
func flattenConcats(ctx *parseCtx) {
	for {
		changed := false
		for _, sym := range ctx.symtab {
			switch sym.Kind {
			case KindConcat, KindRepeat, KindRepeatSample:
				if newChildren, ok := spliceImplicitConcats(ctx.symtab, sym.Children); ok {
					sym.Children = newChildren
					changed = true
				}
			case KindChoice:
				for i := range sym.Alts {
					if newChildren, ok := spliceImplicitConcats(ctx.symtab, sym.Alts[i].Children); ok {
						sym.Alts[i].Children = newChildren
						changed = true
					}
				}
			}
		}
		if !changed {
			return
		}
	}
}

func spliceImplicitConcats(symtab SymbolTable, children []string) ([]string, bool) {
	changed := false
	var out []string
	for _, name := range children {
		if sym, ok := symtab[name]; ok && sym.Kind == KindConcat && sym.Implicit {
			out = append(out, sym.Children...)
			changed = true
			continue
		}
		out = append(out, name)
	}
	if !changed {
		return children, false
	}
	return out, true
}

// resolvePlusWeights assigns the weight of every '+'-marked Choice
// alternative to the total weight of the Choice symbol its body names
// (spec.md §4.1/§4.3): the alternative's body must be a single reference to
// another Choice symbol, and '+' is replaced with that target's current
// total weight. Targets are resolved recursively (depth-first, memoized by
// recursion) so a target that itself has unresolved '+' alternatives is
// normalized first; a cycle of such indirections is an integrity error.
func resolvePlusWeights(ctx *parseCtx) error {
	resolving := map[string]bool{}

	var resolve func(name string) error
	resolve = func(name string) error {
		sym, ok := ctx.symtab[name]
		if !ok || sym.Kind != KindChoice {
			return nil
		}
		if resolving[name] {
			return newIntegrityErr(sym.Line, "choice %s: cyclic '+' weight reference", sym.Name)
		}
		resolving[name] = true
		defer delete(resolving, name)

		for i := range sym.Alts {
			alt := &sym.Alts[i]
			if !alt.WeightPlus {
				continue
			}
			if len(alt.Children) != 1 {
				return newIntegrityErr(sym.Line, "choice %s: '+' alternative must reference exactly one Choice symbol", sym.Name)
			}
			target, ok := ctx.symtab[alt.Children[0]]
			if !ok || target.Kind != KindChoice {
				return newIntegrityErr(sym.Line, "choice %s: '+' alternative must reference a Choice symbol, got %s", sym.Name, alt.Children[0])
			}
			if err := resolve(alt.Children[0]); err != nil {
				return err
			}
			alt.Weight = choiceTotalWeight(target)
			alt.WeightPlus = false
		}
		return nil
	}

	for name, sym := range ctx.symtab {
		if sym.Kind != KindChoice {
			continue
		}
		if err := resolve(name); err != nil {
			return err
		}
	}
	return nil
}

func choiceTotalWeight(sym *Symbol) float64 {
	var total float64
	for _, alt := range sym.Alts {
		total += alt.Weight
	}
	return total
}
