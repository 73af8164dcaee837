package grammar

import (
	"math/rand"
	"strconv"
)

// Func is a caller-supplied callable usable from a grammar via `name(args)`
// (spec.md §4.6). Each argument is either a literal number's source text or
// the generated output of a child symbol.
type Func func(args ...string) (string, error)

// builtinFuncNames are always registered and may be shadowed by a
// caller-supplied Func of the same name.
var builtinFuncNames = map[string]bool{
	"rndint":  true,
	"rndflt":  true,
	"rndpow2": true,
}

// defaultBuiltins constructs the three always-available callables, bound to
// the generation run's seeded RNG so output is reproducible under a fixed
// seed (spec.md §4.6).
func defaultBuiltins(rng *rand.Rand) map[string]Func {
	return map[string]Func{
		"rndint":  builtinRndInt(rng),
		"rndflt":  builtinRndFlt(rng),
		"rndpow2": builtinRndPow2(rng),
	}
}

// rndint(a, b) returns a uniformly chosen integer in [a, b], inclusive.
func builtinRndInt(rng *rand.Rand) Func {
	return func(args ...string) (string, error) {
		a, b, err := twoInts(args)
		if err != nil {
			return "", err
		}
		if b < a {
			return "", simpleErr("rndint: upper bound below lower bound")
		}
		return strconv.Itoa(a + rng.Intn(b-a+1)), nil
	}
}

// rndflt(a, b) returns a uniformly chosen float in [a, b).
func builtinRndFlt(rng *rand.Rand) Func {
	return func(args ...string) (string, error) {
		if len(args) != 2 {
			return "", simpleErr("rndflt: expected 2 arguments")
		}
		a, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return "", simpleErr("rndflt: invalid argument: " + args[0])
		}
		b, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return "", simpleErr("rndflt: invalid argument: " + args[1])
		}
		if b < a {
			return "", simpleErr("rndflt: upper bound below lower bound")
		}
		v := a + rng.Float64()*(b-a)
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	}
}

// rndpow2(exp_limit, variation) returns an integer near a power of two:
// 2**e + d, where e is drawn uniformly from [0, exp_limit] and d from
// [-variation, variation]. This concentrates output on the boundary values
// (2**e - 1, 2**e, 2**e + 1, ...) that most often trip off-by-one bugs in
// fuzzed integer handling.
func builtinRndPow2(rng *rand.Rand) Func {
	return func(args ...string) (string, error) {
		expLimit, variation, err := twoInts(args)
		if err != nil {
			return "", err
		}
		if expLimit < 0 || expLimit > 62 {
			return "", simpleErr("rndpow2: exp_limit out of range")
		}
		if variation < 0 {
			return "", simpleErr("rndpow2: variation must be non-negative")
		}
		exp := rng.Intn(expLimit + 1)
		value := int64(1) << uint(exp)
		if variation > 0 {
			value += int64(rng.Intn(2*variation+1) - variation)
		}
		return strconv.FormatInt(value, 10), nil
	}
}

func twoInts(args []string) (int, int, error) {
	if len(args) != 2 {
		return 0, 0, simpleErr("expected 2 arguments")
	}
	a, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, simpleErr("invalid argument: " + args[0])
	}
	b, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, simpleErr("invalid argument: " + args[1])
	}
	return a, b, nil
}
