package grammar

import (
	"strings"
	"testing"
)

// These build SymbolTables as plain Go literals, isolating integrity.go's
// checks from the parser, in the style of the teacher grammar's
// TestCountNodes.

func TestCheckUndefinedFlagsUnresolvedSymbol(t *testing.T) {
	symtab := SymbolTable{
		"root": {Kind: KindUnresolved, Name: "root", Line: 3},
	}
	if err := checkUndefined(symtab); err == nil {
		t.Fatal("expected an undefined-symbol error")
	}
}

func TestCheckReachabilityFlagsUnreachableNamedSymbol(t *testing.T) {
	symtab := SymbolTable{
		"root":   {Kind: KindText, Name: "root", Text: "hi"},
		"orphan": {Kind: KindText, Name: "orphan", Text: "bye"},
	}
	reachable := reachableFrom(symtab, "root")
	if err := checkReachability(symtab, reachable); err == nil {
		t.Fatal("expected unreachable symbol orphan to be flagged")
	}
}

func TestCheckReachabilityAllowsUnreachableImplicitSymbol(t *testing.T) {
	symtab := SymbolTable{
		"root":         {Kind: KindText, Name: "root", Text: "hi"},
		"[implicit.1]": {Kind: KindText, Name: "[implicit.1]", Implicit: true, Text: "dead after flattening"},
	}
	reachable := reachableFrom(symtab, "root")
	if err := checkReachability(symtab, reachable); err != nil {
		t.Fatalf("implicit symbols should be exempt from reachability, got: %s", err)
	}
}

func TestCheckFunctionCoverageRejectsUnregisteredCall(t *testing.T) {
	symtab := SymbolTable{
		"root": {Kind: KindFunc, Name: "root", FuncName: "mystery"},
	}
	if err := checkFunctionCoverage(symtab, nil); err == nil {
		t.Fatal("expected a call to an unregistered function to be rejected")
	}
}

func TestCheckFunctionCoverageRejectsUnusedCallerFunc(t *testing.T) {
	symtab := SymbolTable{
		"root": {Kind: KindText, Name: "root", Text: "hi"},
	}
	funcs := map[string]Func{"unused": func(args ...string) (string, error) { return "", nil }}
	if err := checkFunctionCoverage(symtab, funcs); err == nil {
		t.Fatal("expected a registered but never-called function to be rejected")
	}
}

func TestCheckFunctionCoverageAllowsBuiltinWithoutCallerFunc(t *testing.T) {
	symtab := SymbolTable{
		"root": {Kind: KindFunc, Name: "root", FuncName: "rndint"},
	}
	// rndint is always available even with no caller-supplied funcs.
	if err := checkFunctionCoverage(symtab, nil); err != nil {
		t.Fatalf("builtin call should be covered without a caller Func, got: %s", err)
	}
}

func TestCheckRepeatSamplesRejectsNonChoiceChild(t *testing.T) {
	symtab := SymbolTable{
		"sample":     {Kind: KindRepeatSample, Name: "sample", Children: []string{"notachoice"}},
		"notachoice": {Kind: KindConcat, Name: "notachoice"},
	}
	if err := checkRepeatSamples(symtab); err == nil {
		t.Fatal("expected repeat-sample over a non-Choice child to be rejected")
	}
}

func TestRunTerminationAnalysisChoiceNeedsOnlyOneTerminatingAlt(t *testing.T) {
	// "a" recurses into itself in one alternative, but a sibling alternative
	// is plain text, so "a" as a whole is still proven to terminate.
	symtab := SymbolTable{
		"a": {Kind: KindChoice, Name: "a", Alts: []ChoiceAlt{
			{Children: []string{"a"}},
			{Children: []string{"base"}},
		}},
		"base": {Kind: KindText, Name: "base", Text: "x", Term: termTrue},
	}

	runTerminationAnalysis(symtab)

	if symtab["a"].Term != termTrue {
		t.Fatalf("expected a to be proven terminating via its base-case alternative, got %v", symtab["a"].Term)
	}
}

func TestCheckTerminationRejectsUnprovenRecursion(t *testing.T) {
	// root -> A, A -> A : no base case anywhere in the cycle (spec.md §8
	// scenario 7). Both symbols stay termUnknown forever, so either may be
	// the one checkTermination reports first (map iteration is unordered);
	// only the failure itself, not which symbol is named, is asserted.
	symtab := SymbolTable{
		"root": {Kind: KindConcat, Name: "root", Line: 1, Children: []string{"A"}},
		"A":    {Kind: KindConcat, Name: "A", Line: 5, Children: []string{"A"}},
	}

	runTerminationAnalysis(symtab)
	reachable := reachableFrom(symtab, "root")

	err := checkTermination(symtab, reachable)
	if err == nil {
		t.Fatal("expected a non-terminating recursion to be rejected")
	}
	if _, ok := err.(*IntegrityError); !ok {
		t.Fatalf("expected *IntegrityError, got %T", err)
	}
}

func TestCheckTerminationIgnoresUnreachableSymbols(t *testing.T) {
	symtab := SymbolTable{
		"root":            {Kind: KindText, Name: "root", Text: "hi", Term: termTrue},
		"unreachable_rec": {Kind: KindConcat, Name: "unreachable_rec", Children: []string{"unreachable_rec"}},
	}
	runTerminationAnalysis(symtab)
	reachable := reachableFrom(symtab, "root")

	if err := checkTermination(symtab, reachable); err != nil {
		t.Fatalf("a non-terminating symbol unreachable from root should not fail construction, got: %s", err)
	}
}

func TestCheckTerminationEndToEndViaNew(t *testing.T) {
	_, err := New(strings.NewReader("root A\nA A"), "", 0, nil)
	if err == nil {
		t.Fatal("expected New to reject a grammar with a non-terminating recursive symbol")
	}
	if _, ok := err.(*IntegrityError); !ok {
		t.Fatalf("expected *IntegrityError, got %T: %s", err, err)
	}
}
