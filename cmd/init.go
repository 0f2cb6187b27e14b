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

var (
	initName        string
	initSecrets     string
	initRecipients  string
	initGPGKeys     string
	initGPGKeyIDs   []string
	initTrustModel  string
	initAutoImport  bool
	initInteractive bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new vault",
	Long: `Initialize a new vault descriptor with a secrets directory, a
recipients list, and (optionally) a key directory for publishing
recipient public keys.

Examples:
  # Quickstart leader vault at the current directory
  syv init

  # Named vault with an initial recipient
  syv init --name desert-cache --secrets . --gpg-keys .gpg-keys -i ALICE_FINGERPRINT`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := initName
		if initInteractive && name == "" {
			prompted, err := vault.PromptVaultName()
			if err != nil {
				return err
			}
			name = prompted
		}

		var autoImport *bool
		if cmd.Flags().Changed("auto-import") {
			autoImport = &initAutoImport
		}

		return dispatch.Dispatch(dispatch.Context{
			DescriptorPath: descriptorPath,
			Command: dispatch.InitCmd{
				Name:       name,
				Secrets:    initSecrets,
				Recipients: initRecipients,
				GPGKeys:    initGPGKeys,
				GPGKeyIDs:  initGPGKeyIDs,
				TrustModel: initTrustModel,
				AutoImport: autoImport,
			},
			Stdout: os.Stdout,
			Stderr: os.Stderr,
			Quiet:  quietFlag,
		})
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initName, "name", "", "display name for the vault")
	initCmd.Flags().StringVar(&initSecrets, "secrets", ".", "directory holding ciphertext files")
	initCmd.Flags().StringVar(&initRecipients, "recipients", ".gpg-id", "path to the recipients list")
	initCmd.Flags().StringVar(&initGPGKeys, "gpg-keys", "", "directory holding exported recipient public keys")
	initCmd.Flags().StringArrayVarP(&initGPGKeyIDs, "gpg-key-id", "i", nil, "id of a key to add as the first recipient (repeatable)")
	initCmd.Flags().StringVar(&initTrustModel, "trust-model", "", "gpg-web-of-trust (default) or always")
	initCmd.Flags().BoolVar(&initInteractive, "interactive", false, "prompt for the vault name when --name is not given")
	initCmd.Flags().BoolVar(&initAutoImport, "auto-import", false, "auto-import missing recipient keys from gpg-keys during encryption")
}
