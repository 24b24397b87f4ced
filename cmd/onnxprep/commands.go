package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/onnxprep/ir"
	"github.com/gomlx/onnxprep/ir/irtext"
	"github.com/gomlx/onnxprep/preprocess"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// runFlags holds the flags of the run command.
type runFlags struct {
	configPath       string
	dce              bool
	strictAccumulate bool
	lint             bool
	stats            bool
}

func newRootCommand(goFlags *flag.FlagSet) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "onnxprep",
		Short: "Preprocess tensor-program graphs for ONNX export",
		Long: `Reads a graph in the textual IR form, rewrites list-producing, list arithmetic,
boolean-mask indexing and list-destructuring operations into their ONNX friendly forms.`,
	}
	if goFlags != nil {
		// klog flags, e.g. -v=2 to log every rewrite.
		cmd.PersistentFlags().AddGoFlagSet(goFlags)
	}
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newLintCommand())
	return cmd
}

func newRunCommand() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:          "run <file.ir>",
		Short:        "Run the ONNX preprocessing passes and print the resulting graph",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreprocess(cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], flags, cmd.Flags().Changed)
		},
	}
	cmd.Flags().StringVar(&flags.configPath, "config", "", "YAML file with the preprocessing options")
	cmd.Flags().BoolVar(&flags.dce, "dce", false, "remove prim::ListUnpack nodes left dead by the passes")
	cmd.Flags().BoolVar(&flags.strictAccumulate, "strict-accumulate", false,
		"only lower aten::index_put_ whose accumulate flag is a constant false")
	cmd.Flags().BoolVar(&flags.lint, "lint", false, "check the graph invariants after every pass")
	cmd.Flags().BoolVar(&flags.stats, "stats", false, "print the number of rewrites per pass to stderr")
	return cmd
}

func newLintCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "lint <file.ir>",
		Short:        "Check the graph invariants",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(cmd.ErrOrStderr(), args[0])
			if err != nil {
				return err
			}
			if err := g.Lint(); err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "%s: ok (%d nodes)\n", args[0], g.NumNodes())
			return nil
		},
	}
}

// loadOptions reads the options from the YAML file, if given, and then applies the flags explicitly set.
func loadOptions(flags *runFlags, changed func(name string) bool) (preprocess.Options, error) {
	var opts preprocess.Options
	if flags.configPath != "" {
		contents, err := os.ReadFile(flags.configPath)
		if err != nil {
			return opts, errors.Wrapf(err, "failed to read config file %s", flags.configPath)
		}
		if err := yaml.Unmarshal(contents, &opts); err != nil {
			return opts, errors.Wrapf(err, "failed to parse config file %s", flags.configPath)
		}
	}
	if changed("dce") {
		opts.EliminateDeadUnpacks = flags.dce
	}
	if changed("strict-accumulate") {
		opts.StrictAccumulate = flags.strictAccumulate
	}
	if changed("lint") {
		opts.Lint = flags.lint
	}
	return opts, nil
}

func runPreprocess(out, errOut io.Writer, path string, flags *runFlags, changed func(name string) bool) error {
	opts, err := loadOptions(flags, changed)
	if err != nil {
		return err
	}
	g, err := loadGraph(errOut, path)
	if err != nil {
		return err
	}
	var stats preprocess.Stats
	err = exceptions.TryCatch[error](func() { stats = preprocess.Run(g, opts) })
	if err != nil {
		return errors.WithMessagef(err, "while preprocessing %s", path)
	}
	if flags.stats {
		header := color.New(color.Bold)
		header.Fprintf(errOut, "%-28s %s\n", "pass", "rewrites")
		for _, stat := range stats {
			fmt.Fprintf(errOut, "%-28s %d\n", stat.Name, stat.Rewrites)
		}
	}
	_, err = io.WriteString(out, g.String())
	return err
}

// loadGraph parses the file, reporting syntax errors with a caret under the offending column.
func loadGraph(errOut io.Writer, path string) (*ir.Graph, error) {
	g, err := irtext.ParseFile(path)
	if err == nil {
		return g, nil
	}
	if line, column, ok := irtext.ErrorPosition(err); ok {
		if source, readErr := os.ReadFile(path); readErr == nil {
			reportSyntaxError(errOut, string(source), line, column)
		}
	}
	return nil, err
}

func reportSyntaxError(errOut io.Writer, source string, line, column int) {
	lines := strings.Split(source, "\n")
	if line <= 0 || line > len(lines) || column <= 0 {
		return
	}
	red := color.New(color.FgRed)
	red.Fprintf(errOut, "syntax error at line %d, column %d:\n", line, column)
	fmt.Fprintln(errOut, lines[line-1])
	color.New(color.FgHiRed).Fprintln(errOut, strings.Repeat(" ", column-1)+"^")
}
