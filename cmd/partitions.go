/*
Copyright © 2025 SubstantialCattle5, nilaysharan.com
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/substantialcattle5/syv/internal/dispatch"
)

var partitionsCmd = &cobra.Command{
	Use:   "partitions",
	Short: "Manage the vault's partitions",
}

var (
	partitionsAddName       string
	partitionsAddKeyIDs     []string
	partitionsAddRecipients string
)

var partitionsAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Add a new partition under the leader's secrets parent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch.Dispatch(dispatch.Context{
			DescriptorPath: descriptorPath,
			Command: dispatch.PartitionsAddCmd{
				Path:           args[0],
				Name:           partitionsAddName,
				GPGKeyIDs:      partitionsAddKeyIDs,
				RecipientsFile: partitionsAddRecipients,
			},
			Stdout: os.Stdout,
			Stderr: os.Stderr,
			Quiet:  quietFlag,
		})
	},
}

var partitionsRemoveCmd = &cobra.Command{
	Use:   "remove <selector>",
	Short: "Remove a partition from the descriptor (ciphertext files are left on disk)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch.Dispatch(dispatch.Context{
			DescriptorPath: descriptorPath,
			Command:        dispatch.PartitionsRemoveCmd{Selector: args[0]},
			Stdout:         os.Stdout,
			Stderr:         os.Stderr,
			Quiet:          quietFlag,
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the leader and all its partitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch.Dispatch(dispatch.Context{
			DescriptorPath: descriptorPath,
			Command:        dispatch.ListCmd{},
			Stdout:         os.Stdout,
			Stderr:         os.Stderr,
			Quiet:          quietFlag,
		})
	},
}

func init() {
	rootCmd.AddCommand(partitionsCmd, listCmd)
	partitionsCmd.AddCommand(partitionsAddCmd, partitionsRemoveCmd)

	partitionsAddCmd.Flags().StringVar(&partitionsAddName, "name", "", "display name for the new partition")
	partitionsAddCmd.Flags().StringArrayVarP(&partitionsAddKeyIDs, "gpg-key-id", "i", nil, "id of a key to seed the new partition's recipients list (repeatable)")
	partitionsAddCmd.Flags().StringVar(&partitionsAddRecipients, "recipients-file", "", "explicit recipients list path (default: the leader's recipients filename, under the new secrets directory)")
}
