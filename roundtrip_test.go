package grammar

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// parseToCtx runs the parse/normalize/integrity pipeline stages directly on
// source, short of constructing a Grammar, so tests can inspect the
// resulting SymbolTable.
func parseToCtx(t *testing.T, src string) *parseCtx {
	t.Helper()
	ctx := &parseCtx{
		symtab:         SymbolTable{},
		tracked:        map[string]bool{},
		hashToFriendly: map[string]string{},
	}
	if _, err := parseGrammarText(ctx, src, "", ".", ""); err != nil {
		t.Fatalf("parse failed: %s", err)
	}
	if err := normalize(ctx); err != nil {
		t.Fatalf("normalize failed: %s", err)
	}
	if err := checkIntegrity(ctx, "root", nil); err != nil {
		t.Fatalf("integrity check failed: %s", err)
	}
	return ctx
}

// TestRoundTripSymbolTableIsStable exercises spec.md §8's round-trip
// invariant: parsing the same grammar text twice yields a structurally
// equivalent symbol table (line numbers, implicit-name counters, and
// resolved '+' weights are all deterministic functions of the source text).
func TestRoundTripSymbolTableIsStable(t *testing.T) {
	src := `root 2 "hello, " name "!"
root 1 "hi, " name
root + extra
root 1 id count sample
extra 1 "yo, " name
name 1 "Alice"
name 1 "Bob"
name 1 "Carol"
tag /[0-9]{4,6}/
count rndint(1, 10)
id "id=" @tag ",echo=" @tag
sample ingredient<2,3>
ingredient 1 "flour"
ingredient 1 "sugar"
ingredient 1 "salt"
ingredient 1 "yeast"`

	first := parseToCtx(t, src)
	second := parseToCtx(t, src)

	if diff := cmp.Diff(first.symtab, second.symtab); diff != "" {
		t.Fatalf("two parses of the same grammar produced different symbol tables (-first +second):\n%s", diff)
	}
}

// TestRoundTripWeightsAreResolved checks invariant 4 from spec.md §8: after
// '+' resolution every Choice's alternatives carry concrete weights, with
// no WeightPlus left pending.
func TestRoundTripWeightsAreResolved(t *testing.T) {
	ctx := parseToCtx(t, "root 1 \"a\"\nroot 1 \"b\"\nroot + extra\nextra 1 \"c\"\nextra 3 \"d\"")

	sym, ok := ctx.symtab["root"]
	if !ok || sym.Kind != KindChoice {
		t.Fatalf("expected root to be a resolved Choice symbol, got %+v", sym)
	}

	// extra's total weight (1+3=4) is what root's '+' alternative inherits.
	want := []ChoiceAlt{
		{Children: sym.Alts[0].Children, Weight: 1, Terminates: termTrue},
		{Children: sym.Alts[1].Children, Weight: 1, Terminates: termTrue},
		{Children: sym.Alts[2].Children, Weight: 4, Terminates: termTrue},
	}
	if diff := cmp.Diff(want, sym.Alts); diff != "" {
		t.Fatalf("unexpected resolved weights (-want +got):\n%s", diff)
	}
}
