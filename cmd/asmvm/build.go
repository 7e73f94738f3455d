package main

import (
	"log/slog"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"asmvm/pkg/build"
	"asmvm/pkg/diag"
	"asmvm/pkg/link"
	"asmvm/pkg/utils"
)

var (
	buildOutput      string
	buildDumpModules bool
)

var buildCmd = &cobra.Command{
	Use:   "build [-o out.bin] FILE...",
	Short: "Translate and link assembly modules into a binary",
	Long: `Build translates every FILE as one module, links the modules in the
order given and writes the binary. Without -o the output is named after the
first FILE with a .bin extension.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, bin, err := buildWithSources(cmd, args)
		if err != nil {
			return err
		}
		out := buildOutput
		if out == "" {
			out = utils.OutputPath(args[0], ".bin")
		}
		if err := link.Save(bin, out); err != nil {
			return err
		}
		cmd.Printf("linked %d bytes, entry 0x%x -> %s\n", len(bin.Code), bin.Entry, out)
		return nil
	},
}

func init() {
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "output binary path")
	buildCmd.Flags().BoolVar(&buildDumpModules, "dump-modules", false, "dump translated modules to stderr")
	rootCmd.AddCommand(buildCmd)
}

// buildWithSources translates and links paths. Syntax errors are rendered
// with their source line before the command fails. The returned SourceFunc
// serves the sources for later diagnostics.
func buildWithSources(cmd *cobra.Command, paths []string) (diag.SourceFunc, *link.Binary, error) {
	sources, err := build.ReadSources(paths)
	if err != nil {
		return nil, nil, err
	}
	texts := make(map[string]string, len(sources))
	for i := range sources {
		sources[i].Name = utils.ModuleName(sources[i].Name)
		texts[sources[i].Name] = sources[i].Text
	}
	lookup := diag.MapSource(texts)

	modules, err := build.Translate(cmd.Context(), sources)
	if err != nil {
		stderrPrinter(lookup).Print(err)
		return nil, nil, &exitError{code: 1}
	}
	if buildDumpModules {
		spew.Fdump(os.Stderr, modules)
	}
	bin, err := link.Link(modules, link.WithLogger(slog.Default()))
	if err != nil {
		return nil, nil, err
	}
	return lookup, bin, nil
}
