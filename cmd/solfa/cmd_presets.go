package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Conceptual-Machines/solfa-api/internal/presets"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the built-in difficulty presets",
	Args:  cobra.NoArgs,
	RunE:  runPresets,
}

func runPresets(cmd *cobra.Command, _ []string) error {
	catalog, err := presets.Load()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, p := range catalog.All() {
		marker := " "
		if p.Name == catalog.Default {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %-14s %d beats in %d/4  %s\n", marker, p.Name,
			p.Rules.RequiredBeats, p.Rules.Normalized().BeatsPerMeasure, p.Description)
	}
	return nil
}
