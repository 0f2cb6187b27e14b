/*
Copyright © 2025 SubstantialCattle5, nilaysharan.com
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/substantialcattle5/syv/internal/dispatch"
)

var addCmd = &cobra.Command{
	Use:   "add [src:dst ...]",
	Short: "Encrypt one or more resources into the vault",
	Long: `Add encrypts each src:dst spec's source (standard input when src is
empty, a file when given, or $EDITOR on an empty buffer when neither
is given and standard input is a terminal) for the owning partition's
current recipients, writing <dst>.gpg.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch.Dispatch(dispatch.Context{
			DescriptorPath: descriptorPath,
			Selector:       vaultSelector,
			Command:        dispatch.ResourceAddCmd{Specs: args},
			Stdin:          os.Stdin,
			Stdout:         os.Stdout,
			Stderr:         os.Stderr,
			Quiet:          quietFlag,
		})
	},
}

var removeCmd = &cobra.Command{
	Use:     "remove [src:dst ...]",
	Aliases: []string{"rm"},
	Short:   "Remove one or more resources from the vault",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch.Dispatch(dispatch.Context{
			DescriptorPath: descriptorPath,
			Selector:       vaultSelector,
			Command:        dispatch.ResourceRemoveCmd{Specs: args},
			Stdout:         os.Stdout,
			Stderr:         os.Stderr,
			Quiet:          quietFlag,
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show <dst>",
	Short: "Decrypt a resource and write it to standard output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch.Dispatch(dispatch.Context{
			DescriptorPath: descriptorPath,
			Selector:       vaultSelector,
			Command:        dispatch.ResourceShowCmd{Spec: args[0]},
			Stdout:         os.Stdout,
			Stderr:         os.Stderr,
			Quiet:          quietFlag,
		})
	},
}

var (
	editEditor  string
	editCreate  bool
	editNoProbe bool
)

var editCmd = &cobra.Command{
	Use:   "edit <dst>",
	Short: "Decrypt, edit, and re-encrypt a resource in place",
	Long: `Edit decrypts the resource to a restrictively-permissioned temporary
file, invokes the editor on it synchronously, and re-encrypts the
result for the partition's current recipients. The temporary file is
always removed, and a probe encryption is attempted before the editor
runs so a failing recipient set can never lose an edit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		createMode := dispatch.RefuseCreate
		if editCreate {
			createMode = dispatch.CreateIfMissing
		}
		editor := editEditor
		if editor == "" {
			editor = os.Getenv("EDITOR")
		}
		return dispatch.Dispatch(dispatch.Context{
			DescriptorPath: descriptorPath,
			Selector:       vaultSelector,
			Command: dispatch.ResourceEditCmd{
				Spec:       args[0],
				Editor:     editor,
				Create:     createMode,
				TryEncrypt: !editNoProbe,
			},
			Stdout: os.Stdout,
			Stderr: os.Stderr,
			Quiet:  quietFlag,
		})
	},
}

func init() {
	rootCmd.AddCommand(addCmd, removeCmd, showCmd, editCmd)

	editCmd.Flags().StringVar(&editEditor, "editor", "", "editor command to invoke (default: $EDITOR)")
	editCmd.Flags().BoolVar(&editCreate, "create", false, "create the resource if it does not already exist")
	editCmd.Flags().BoolVar(&editNoProbe, "no-probe", false, "skip the pre-edit probe encryption")
}
