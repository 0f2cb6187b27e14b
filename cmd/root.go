/*
Copyright © 2025 SubstantialCattle5, nilaysharan.com
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "syv",
	Short: "syv - an OpenPGP-encrypted secrets vault",
	Long: `syv stores small, file-shaped secrets encrypted with OpenPGP and
shared among a controlled set of recipients. A vault description file
lists one or more partitions, each a directory of ciphertext files
plus a recipients list of fingerprints authorized to decrypt it.`,
}

var (
	descriptorPath string
	vaultSelector  string
	verboseFlag    bool
	quietFlag      bool
)

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to
// happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&descriptorPath, "config", "c", "syv.yml", "path to the vault descriptor file ('-' for standard input)")
	rootCmd.PersistentFlags().StringVarP(&vaultSelector, "vault", "V", "", "select a vault by index, name, or secrets path (default: the leader)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "disable progress bars and reduce output")
}
