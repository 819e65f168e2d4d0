package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Conceptual-Machines/solfa-api/internal/logger"
)

var (
	generateJSON    bool
	generateExclude int
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a pattern for a preset or rule set",
	Args:  cobra.NoArgs,
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().BoolVar(&generateJSON, "json", false, "Print the pattern and diagnostics as JSON")
	generateCmd.Flags().IntVar(&generateExclude, "exclude", -1, "Pool index to skip, as after a retry")
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	t, err := resolveTier()
	if err != nil {
		return err
	}

	var exclude *int
	if generateExclude >= 0 {
		exclude = &generateExclude
	}
	start := time.Now()
	p, diag := newGenerator().Generate(t.rules, exclude)
	logger.Debug("Pattern generated", logger.Fields{
		"preset":   t.name,
		"source":   diag.Source,
		"attempts": diag.Attempts,
		"duration": time.Since(start).String(),
	})

	out := cmd.OutOrStdout()
	if generateJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"pattern":     p,
			"notation":    p.String(),
			"diagnostics": diag,
		})
	}
	fmt.Fprintln(out, p.String())
	fmt.Fprintf(cmd.ErrOrStderr(), "source=%s attempts=%d\n", diag.Source, diag.Attempts)
	return nil
}
