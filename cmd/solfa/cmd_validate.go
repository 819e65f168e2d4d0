package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Conceptual-Machines/solfa-api/internal/models"
	"github.com/Conceptual-Machines/solfa-api/internal/pattern"
)

// errInvalidPattern makes the process exit non-zero after the report is printed
var errInvalidPattern = errors.New("pattern breaks the rules")

var validateCmd = &cobra.Command{
	Use:   "validate NOTATION",
	Short: "Check a pattern in compact notation against a preset",
	Long: `Checks a pattern such as "Do:q Re:q Mi:h | ..." against the rules of a
preset and lists every violation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	t, err := resolveTier()
	if err != nil {
		return err
	}
	notes, err := models.ParseNotes(strings.Join(args, " "))
	if err != nil {
		return err
	}

	res := pattern.Validate(models.NewPattern(notes), t.rules)
	out := cmd.OutOrStdout()
	if res.IsValid {
		fmt.Fprintf(out, "✅ valid for %s\n", t.name)
		return nil
	}
	for _, v := range res.Violations {
		fmt.Fprintf(out, "❌ %-22s %s\n", v.Code, v.Message)
	}
	return fmt.Errorf("%w: %d violations", errInvalidPattern, len(res.Violations))
}
