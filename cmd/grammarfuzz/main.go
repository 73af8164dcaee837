// Command grammarfuzz parses a grammar file and writes one generated
// instance to a file or standard output, following the retrieved teacher
// cli's cobra command-tree shape (_examples/opal-lang-opal/cli/main.go):
// a single RunE root command, SilenceErrors so error formatting stays in
// our hands, and an explicit exit code rather than panicking out.
package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	grammar "github.com/mozilla/grammarfuzz"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "grammarfuzz:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		limit      int
		seed       int64
		useSeed    bool
		start      string
		funcFlags  []string
		outputPath string
	)

	cmd := &cobra.Command{
		Use:           "grammarfuzz <grammar-file> [output-file]",
		Short:         "Generate a test case from a grammar file",
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			funcs, err := parseFuncFlags(funcFlags)
			if err != nil {
				return err
			}

			g, err := grammar.NewFromFile(args[0], limit, funcs)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}

			var genOpts []grammar.GenOpt
			if useSeed {
				genOpts = append(genOpts, grammar.WithSeed(seed))
			}

			out, err := g.Generate(start, genOpts...)
			if err != nil {
				return fmt.Errorf("generating from %s: %w", start, err)
			}

			dest := outputPath
			if len(args) == 2 {
				dest = args[1]
			}
			return writeOutput(dest, out)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&limit, "limit", "l", grammar.DefaultLimit, "soft generation length limit")
	flags.Int64VarP(&seed, "seed", "s", 0, "deterministic RNG seed (default: random)")
	flags.StringVarP(&start, "start", "r", "root", "name of the symbol to generate from")
	flags.StringArrayVarP(&funcFlags, "function", "f", nil, "register a generator function as name=template, e.g. -f filter='{{index .Args 0}}'")
	flags.StringVarP(&outputPath, "output", "o", "", "output path (default: standard output)")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		useSeed = cmd.Flags().Changed("seed")
		return nil
	}

	return cmd
}

// parseFuncFlags turns each "name=template" pair into a Func that renders a
// text/template against its call-time arguments, a Go-idiomatic stand-in
// for avalanche.py's `-f name 'lambda x: ...'` (which eval's a Python
// expression — not something a Go binary can do safely or at all).
func parseFuncFlags(flags []string) (map[string]grammar.Func, error) {
	if len(flags) == 0 {
		return nil, nil
	}

	funcs := make(map[string]grammar.Func, len(flags))
	for _, raw := range flags {
		name, body, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("--function expects name=template, got %q", raw)
		}

		tmpl, err := template.New(name).Parse(body)
		if err != nil {
			return nil, fmt.Errorf("--function %s: %w", name, err)
		}

		funcs[name] = func(args ...string) (string, error) {
			var buf bytes.Buffer
			if err := tmpl.Execute(&buf, struct{ Args []string }{Args: args}); err != nil {
				return "", err
			}
			return buf.String(), nil
		}
	}
	return funcs, nil
}

func writeOutput(path string, out any) error {
	var data []byte
	switch v := out.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unexpected generation result type %T", out)
	}

	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
