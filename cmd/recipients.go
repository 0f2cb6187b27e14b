/*
Copyright © 2025 SubstantialCattle5, nilaysharan.com
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/substantialcattle5/syv/internal/dispatch"
	"github.com/substantialcattle5/syv/internal/vault"
)

var recipientsCmd = &cobra.Command{
	Use:   "recipients",
	Short: "Manage a partition's authorized recipients",
}

var recipientsInitKeyIDs []string

var recipientsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Export the operator's own public key(s) into gpg_keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch.Dispatch(dispatch.Context{
			DescriptorPath: descriptorPath,
			Selector:       vaultSelector,
			Command:        dispatch.RecipientsInitCmd{GPGKeyIDs: recipientsInitKeyIDs},
			Stdout:         os.Stdout,
			Stderr:         os.Stderr,
			Quiet:          quietFlag,
		})
	},
}

var recipientsListFormat string

var recipientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a partition's current recipients",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch.Dispatch(dispatch.Context{
			DescriptorPath: descriptorPath,
			Selector:       vaultSelector,
			Command:        dispatch.RecipientsListCmd{Format: recipientsListFormat},
			Stdout:         os.Stdout,
			Stderr:         os.Stderr,
			Quiet:          quietFlag,
		})
	},
}

var (
	recipientsAddIDs       []string
	recipientsAddVerified  bool
	recipientsAddSigner    string
	recipientsAddPartition []string
)

var recipientsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add recipients, importing and signing unverified keys by default",
	Long: `Add resolves each -i id to a key and appends its fingerprint to the
recipients list, then re-encrypts every stored secret for the new
recipient set. Unless --verified is given, each id's key is first
imported from gpg_keys (or the keychain) and locally signed with the
operator's own key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		signing := dispatch.RecipientsAddCmd{
			GPGKeyIDs:    recipientsAddIDs,
			Sign:         !recipientsAddVerified,
			SigningKeyID: recipientsAddSigner,
			Partitions:   recipientsAddPartition,
		}
		return dispatch.Dispatch(dispatch.Context{
			DescriptorPath: descriptorPath,
			Selector:       vaultSelector,
			Command:        signing,
			Stdout:         os.Stdout,
			Stderr:         os.Stderr,
			Quiet:          quietFlag,
		})
	},
}

var (
	recipientsRemoveIDs       []string
	recipientsRemovePartition []string
	recipientsRemoveConfirm   bool
)

var recipientsRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove recipients and re-encrypt for the remaining set",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !recipientsRemoveConfirm && !quietFlag {
			if !vault.ConfirmDestructive("This re-encrypts every stored secret, continue") {
				return nil
			}
		}
		return dispatch.Dispatch(dispatch.Context{
			DescriptorPath: descriptorPath,
			Selector:       vaultSelector,
			Command: dispatch.RecipientsRemoveCmd{
				GPGKeyIDs:  recipientsRemoveIDs,
				Partitions: recipientsRemovePartition,
			},
			Stdout: os.Stdout,
			Stderr: os.Stderr,
			Quiet:  quietFlag,
		})
	},
}

func init() {
	rootCmd.AddCommand(recipientsCmd)
	recipientsCmd.AddCommand(recipientsInitCmd, recipientsListCmd, recipientsAddCmd, recipientsRemoveCmd)

	recipientsInitCmd.Flags().StringArrayVarP(&recipientsInitKeyIDs, "gpg-key-id", "i", nil, "id of a key to export (default: all secret keys)")

	recipientsListCmd.Flags().StringVar(&recipientsListFormat, "format", "text", "text or yaml")

	recipientsAddCmd.Flags().StringArrayVarP(&recipientsAddIDs, "gpg-key-id", "i", nil, "id of a key to add as a recipient (repeatable)")
	recipientsAddCmd.Flags().BoolVar(&recipientsAddVerified, "verified", false, "skip import-and-sign; resolve ids directly against the keychain")
	recipientsAddCmd.Flags().StringVar(&recipientsAddSigner, "signing-key-id", "", "explicit signing key (default: the unique secret key that is a current recipient)")
	recipientsAddCmd.Flags().StringArrayVar(&recipientsAddPartition, "partition", nil, "restrict to this partition selector (repeatable; default: the selected vault)")

	recipientsRemoveCmd.Flags().StringArrayVarP(&recipientsRemoveIDs, "gpg-key-id", "i", nil, "id of a recipient to remove (repeatable)")
	recipientsRemoveCmd.Flags().StringArrayVar(&recipientsRemovePartition, "partition", nil, "restrict to this partition selector (repeatable; default: the selected vault)")
	recipientsRemoveCmd.Flags().BoolVarP(&recipientsRemoveConfirm, "yes", "y", false, "skip the confirmation prompt")
}
