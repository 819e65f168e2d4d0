// Command solfa generates, validates and renders sight-singing exercises
// from the command line using the same packages as the API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Conceptual-Machines/solfa-api/internal/config"
)

var (
	presetName string
	rulesFile  string
	seed       uint64
	seeded     bool
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "solfa",
	Short:         "Sight-singing exercise generator",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		_ = godotenv.Load()
		cfg = config.Load()
		seeded = cmd.Flags().Changed("seed")
		return cfg.Validate()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&presetName, "preset", "p", "", "Preset name (default: DEFAULT_PRESET)")
	rootCmd.PersistentFlags().StringVar(&rulesFile, "rules", "", "YAML rule set file, overrides --preset")
	rootCmd.PersistentFlags().Uint64Var(&seed, "seed", 0, "Random seed for reproducible output")

	rootCmd.AddCommand(presetsCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(renderCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
