/*
Copyright © 2025 SubstantialCattle5, nilaysharan.com
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/substantialcattle5/syv/internal/spec"
	"github.com/substantialcattle5/syv/internal/substitute"
)

var substituteDataFile string

var substituteCmd = &cobra.Command{
	Use:   "substitute [src:dst ...]",
	Short: "Render text/template templates against a JSON or YAML dataset (auxiliary tool; shares no state with the vault)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in *os.File
		if substituteDataFile == "" || substituteDataFile == "-" {
			in = os.Stdin
		} else {
			f, err := os.Open(substituteDataFile)
			if err != nil {
				return fmt.Errorf("could not open dataset %q: %w", substituteDataFile, err)
			}
			defer f.Close()
			in = f
		}

		dataset, err := substitute.DecodeDataset(in)
		if err != nil {
			return err
		}

		specs := make([]spec.Spec, 0, len(args))
		for _, raw := range args {
			s, err := spec.Parse(raw)
			if err != nil {
				return err
			}
			specs = append(specs, s)
		}
		return substitute.Run(dataset, specs)
	},
}

func init() {
	rootCmd.AddCommand(substituteCmd)
	substituteCmd.Flags().StringVarP(&substituteDataFile, "data", "d", "", "path to the JSON/YAML dataset (default: standard input)")
}
