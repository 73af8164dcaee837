package grammar

import (
	"log/slog"
	"math/rand"
)

// GrammarOpt configures a Grammar at construction time, in the style of the
// retrieved teacher grammar's TreeFormatOption variadic-option pattern
// (_examples/japmimaviessu-grammar/node.go), generalized to carry a logger
// instead of formatting flags. Caller-supplied Func callables are passed to
// New/NewFromFile directly, not through an option.
type GrammarOpt func(*grammarConfig)

type grammarConfig struct {
	logger *slog.Logger
}

// WithLogger directs parse/normalize/integrity diagnostics to l instead of
// the package default (slog.Default() at LevelDebug).
func WithLogger(l *slog.Logger) GrammarOpt {
	return func(c *grammarConfig) { c.logger = l }
}

func newGrammarConfig(opts []GrammarOpt) grammarConfig {
	cfg := grammarConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// GenOpt configures a single Generate call.
type GenOpt func(*genConfig)

type genConfig struct {
	rng *rand.Rand
}

// WithRand supplies the random source for a Generate call. Callers that
// need reproducible output, or that call Generate concurrently from many
// goroutines, should pass their own *rand.Rand: Grammar shares none of its
// own across calls (spec.md §5).
func WithRand(rng *rand.Rand) GenOpt {
	return func(c *genConfig) { c.rng = rng }
}

// WithSeed is shorthand for WithRand(rand.New(rand.NewSource(seed))).
func WithSeed(seed int64) GenOpt {
	return func(c *genConfig) { c.rng = rand.New(rand.NewSource(seed)) }
}

func newGenConfig(opts []GenOpt) genConfig {
	cfg := genConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.rng == nil {
		cfg.rng = defaultRand()
	}
	return cfg
}
