package grammar

import (
	"math/rand"
	"os"
	"regexp"
	"strings"
	"testing"
)

func parse(t *testing.T, src string) *Grammar {
	t.Helper()
	g, err := New(strings.NewReader(src), "", 0, nil)
	if err != nil {
		t.Fatalf("New(%q) failed: %s", src, err)
	}
	return g
}

func mustGenerate(t *testing.T, g *Grammar, start string, seed int64) string {
	t.Helper()
	out, err := g.Generate(start, WithSeed(seed))
	if err != nil {
		t.Fatalf("Generate(%q) failed: %s", start, err)
	}
	s, ok := out.(string)
	if !ok {
		t.Fatalf("Generate(%q) returned %T, want string", start, out)
	}
	return s
}

func TestParsingAndGenerate(t *testing.T) {
	input := []string{
		"root \"hello there\"",
		"root 3 \"hello there\"\nroot 1 \"good morning\"",
		"root \"hello, \" name \"!\"\nname \"Alice\"",
		"root word{1,4}\nword 1 \"a\"\nword 1 \"b\"\nword 1 \"c\"",
		"root word<2,3>\nword 1 \"a\"\nword 1 \"b\"\nword 1 \"c\"\nword 1 \"d\"",
		"root /[A-Za-z]{3,5}/",
		"root \"id=\" @tag \",echo=\" @tag\ntag /[0-9]{4}/",
		"root rndint(1, 6)",
		"root greeting\ngreeting 1 \"hi\"\ngreeting + extra\nextra 1 \"yo\"",
		"root \"(\" inner \")\"\ninner 1 \"x\"\ninner 1 \"y\"",
	}

	for _, src := range input {
		g := parse(t, src)
		out := mustGenerate(t, g, "root", 1)
		if out == "" {
			t.Fatalf("%q produced empty output", src)
		}
	}
}

func TestGenerateDeterministicWithSeed(t *testing.T) {
	src := "root 1 \"a\"\nroot 1 \"b\"\nroot 1 \"c\"\nroot 1 \"d\"\nroot 1 \"e\""
	g := parse(t, src)

	first := mustGenerate(t, g, "root", 42)
	for i := 0; i < 5; i++ {
		again := mustGenerate(t, g, "root", 42)
		if again != first {
			t.Fatalf("same seed produced different output: %q vs %q", first, again)
		}
	}
}

func TestChoiceWeighting(t *testing.T) {
	src := "root 9 \"common\"\nroot 1 \"rare\""
	g := parse(t, src)

	rng := rand.New(rand.NewSource(7))
	counts := map[string]int{}
	for i := 0; i < 500; i++ {
		out, err := g.Generate("root", WithRand(rng))
		if err != nil {
			t.Fatalf("Generate failed: %s", err)
		}
		counts[out.(string)]++
	}

	if counts["common"] <= counts["rare"] {
		t.Fatalf("expected common to dominate rare, got %v", counts)
	}
}

func TestPlusWeightInheritsReferencedChoiceTotal(t *testing.T) {
	// greeting's third alternative is '+', naming "extra": extra's total
	// weight is 2+1=3, so that alternative carries weight 3 against the 3+1=4
	// of "hi" and "hey" combined.
	src := "root greeting\n" +
		"greeting 3 \"hi\"\n" +
		"greeting 1 \"hey\"\n" +
		"greeting + extra\n" +
		"extra 2 \"good day\"\n" +
		"extra 1 \"salutations\""
	g := parse(t, src)

	rng := rand.New(rand.NewSource(3))
	counts := map[string]int{}
	for i := 0; i < 400; i++ {
		out, err := g.Generate("greeting", WithRand(rng))
		if err != nil {
			t.Fatalf("Generate failed: %s", err)
		}
		counts[out.(string)]++
	}

	for _, want := range []string{"hi", "hey", "good day", "salutations"} {
		if counts[want] == 0 {
			t.Fatalf("expected %q to appear at least once in %v", want, counts)
		}
	}
}

func TestRepeatSampleIsWithoutReplacement(t *testing.T) {
	src := "root ingredient<4,4>\n" +
		"ingredient 1 \"flour\"\n" +
		"ingredient 1 \"sugar\"\n" +
		"ingredient 1 \"salt\"\n" +
		"ingredient 1 \"yeast\""
	g := parse(t, src)

	for i := 0; i < 50; i++ {
		out := mustGenerate(t, g, "root", int64(i))
		for _, word := range []string{"flour", "sugar", "salt", "yeast"} {
			if strings.Count(out, word) != 1 {
				t.Fatalf("expected exactly one %q in %q", word, out)
			}
		}
	}
}

func TestRefReplaysCapturedInstance(t *testing.T) {
	src := "root \"id=\" @tag \",echo=\" @tag\ntag /[0-9]{6}/"
	g := parse(t, src)

	out := mustGenerate(t, g, "root", 9)
	parts := strings.Split(out, ",")
	if len(parts) != 2 {
		t.Fatalf("unexpected shape: %q", out)
	}
	id := strings.TrimPrefix(parts[0], "id=")
	echo := strings.TrimPrefix(parts[1], "echo=")
	if id != echo {
		t.Fatalf("@tag did not replay the same captured instance: %q vs %q", id, echo)
	}
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(dir+"/shared.grammar", []byte("name 1 \"Alice\"\nname 1 \"Bob\""), 0o644); err != nil {
		t.Fatal(err)
	}

	src := "shared import(\"shared.grammar\")\nroot \"hello, \" shared.name \"!\""
	if err := os.WriteFile(dir+"/main.grammar", []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	g, err := NewFromFile(dir+"/main.grammar", 0, nil)
	if err != nil {
		t.Fatalf("NewFromFile failed: %s", err)
	}
	out := mustGenerate(t, g, "root", 1)
	if !strings.HasPrefix(out, "hello, ") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestBuiltinRndInt(t *testing.T) {
	g := parse(t, "root rndint(10, 10)")
	out := mustGenerate(t, g, "root", 1)
	if out != "10" {
		t.Fatalf("expected deterministic output 10, got %q", out)
	}
}

func TestBuiltinRndPow2(t *testing.T) {
	g := parse(t, "root rndpow2(4, 0)")
	want := regexp.MustCompile(`^(1|2|4|8|16)$`)
	for i := 0; i < 20; i++ {
		out := mustGenerate(t, g, "root", int64(i))
		if !want.MatchString(out) {
			t.Fatalf("rndpow2(4,0) produced %q, want a power of two up to 16", out)
		}
	}
}

func TestCustomFunc(t *testing.T) {
	upper := func(args ...string) (string, error) {
		return strings.ToUpper(args[0]), nil
	}
	g, err := New(strings.NewReader("root upper(\"hi\")"), "", 0, map[string]Func{"upper": upper})
	if err != nil {
		t.Fatalf("New failed: %s", err)
	}
	out := mustGenerate(t, g, "root", 1)
	if out != "HI" {
		t.Fatalf("expected HI, got %q", out)
	}
}

func TestBinLiteral(t *testing.T) {
	g := parse(t, `root x"deadbeef"`)
	out, err := g.Generate("root", WithSeed(1))
	if err != nil {
		t.Fatalf("Generate failed: %s", err)
	}
	data, ok := out.([]byte)
	if !ok {
		t.Fatalf("expected []byte output for a grammar containing a bin literal, got %T", out)
	}
	if string(data) != "\xde\xad\xbe\xef" {
		t.Fatalf("unexpected bin output: %x", data)
	}
}

func TestMixedTextAndBinIsGenerationError(t *testing.T) {
	g := parse(t, `root "x" x"ab"`)
	_, err := g.Generate("root", WithSeed(1))
	if err == nil {
		t.Fatal("expected an error generating a grammar that mixes text and bin output")
	}
	if _, ok := err.(*GenerationError); !ok {
		t.Fatalf("expected *GenerationError, got %T: %s", err, err)
	}
}

func TestParsingErrors(t *testing.T) {
	badInput := []string{
		"",
		"root",
		"root \"unterminated",
		"root undefined_symbol",
		"root \"a\"\nroot \"a\"", // redefinition
		"root (",
		"root word{2,1}",
		"root word<1,1>\nword \"only one\"",
		"root /[z-a]/",
		"root /unterminated",
	}

	for _, in := range badInput {
		_, err := New(strings.NewReader(in), "", 0, nil)
		if err == nil {
			t.Fatalf("%q should have failed to parse, but didn't", in)
		}
	}
}

func TestMissingRootIsIntegrityError(t *testing.T) {
	_, err := New(strings.NewReader("greeting \"hi\""), "", 0, nil)
	if err == nil {
		t.Fatal("expected an error for a grammar with no root symbol")
	}
	if _, ok := err.(*IntegrityError); !ok {
		t.Fatalf("expected *IntegrityError, got %T: %s", err, err)
	}
}

func TestUnregisteredFunctionIsIntegrityError(t *testing.T) {
	_, err := New(strings.NewReader("root mystery(1, 2)"), "", 0, nil)
	if err == nil {
		t.Fatal("expected an error for a call to an unregistered function")
	}
	if _, ok := err.(*IntegrityError); !ok {
		t.Fatalf("expected *IntegrityError, got %T: %s", err, err)
	}
}

func TestGenerateUnknownStart(t *testing.T) {
	g := parse(t, `root "a"`)
	if _, err := g.Generate("missing"); err == nil {
		t.Fatal("expected an error generating from an undefined start symbol")
	}
}

func TestDump(t *testing.T) {
	g := parse(t, "root 1 \"a\"\nroot 1 \"b\"")
	out := g.Dump("root")
	if !strings.Contains(out, "root") {
		t.Fatalf("Dump() output missing root: %q", out)
	}
	if strings.Count(out, "alt") != 2 {
		t.Fatalf("Dump() expected 2 alternatives rendered, got: %q", out)
	}
}
