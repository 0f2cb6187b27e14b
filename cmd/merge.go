/*
Copyright © 2025 SubstantialCattle5, nilaysharan.com
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/substantialcattle5/syv/internal/mergeextract"
)

var (
	mergeOverwrite bool
	mergeOutput    string
)

var mergeCmd = &cobra.Command{
	Use:   "merge [path ...]",
	Short: "Merge JSON or YAML documents from standard input or files (auxiliary tool)",
	RunE: func(cmd *cobra.Command, args []string) error {
		var docs []map[string]any
		if len(args) == 0 {
			doc, err := mergeextract.Decode(os.Stdin)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		for _, path := range args {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("could not open %q: %w", path, err)
			}
			doc, err := mergeextract.Decode(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("%q: %w", path, err)
			}
			docs = append(docs, doc)
		}

		mode := mergeextract.NoOverwrite
		if mergeOverwrite {
			mode = mergeextract.Overwrite
		}
		merged, err := mergeextract.Merge(docs, mode)
		if err != nil {
			return err
		}

		out := mergeextract.OutputJSON
		if mergeOutput == "yaml" {
			out = mergeextract.OutputYAML
		}
		rendered, err := mergeextract.Serialize(merged, out)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(rendered)
		return err
	},
}

var extractPointer string

var extractCmd = &cobra.Command{
	Use:     "extract [path]",
	Aliases: []string{"fetch"},
	Short:   "Extract a scalar or complex value from a JSON or YAML document by path (auxiliary tool)",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := os.Stdin
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("could not open %q: %w", args[0], err)
			}
			defer f.Close()
			in = f
		}
		doc, err := mergeextract.Decode(in)
		if err != nil {
			return err
		}
		value, err := mergeextract.Extract(doc, extractPointer)
		if err != nil {
			return err
		}
		if scalar, ok := mergeextract.FormatScalar(value); ok {
			fmt.Fprintln(os.Stdout, scalar)
			return nil
		}
		rendered, err := mergeextract.Serialize(value, mergeextract.OutputJSON)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(rendered)
		return err
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd, extractCmd)
	mergeCmd.Flags().BoolVar(&mergeOverwrite, "overwrite", false, "let later documents overwrite earlier values (default: no-overwrite)")
	mergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "json", "json or yaml")
	extractCmd.Flags().StringVar(&extractPointer, "pointer", "", "dotted or slash-separated path, e.g. 'a.b.0' or '0/a/b'")
	extractCmd.MarkFlagRequired("pointer")
}
