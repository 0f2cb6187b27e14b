// Package vault holds the small set of interactive prompts the CLI
// layer uses around vault creation; the vault core itself never
// prompts (§1, out of scope).
package vault

import (
	"fmt"

	"github.com/manifoldco/promptui"

	"github.com/substantialcattle5/syv/internal/constants"
)

// PromptVaultName asks for the vault's display name during
// interactive init, the same prompt shape as the teacher's
// PromptBasicConfig name prompt.
func PromptVaultName() (string, error) {
	namePrompt := promptui.Prompt{
		Label:     constants.VaultNameLabel,
		Default:   constants.VaultNameDefault,
		AllowEdit: true,
		Validate: func(input string) error {
			if len(input) < constants.VaultNameMinLength {
				return fmt.Errorf("vault name must be at least %d characters", constants.VaultNameMinLength)
			}
			return nil
		},
	}
	result, err := namePrompt.Run()
	if err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	return result, nil
}

// ConfirmDestructive asks a yes/no question before a destructive
// overwrite, matching the teacher's confirmation prompt style.
func ConfirmDestructive(label string) bool {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	_, err := prompt.Run()
	// promptui.Run returns a non-nil error (ErrAbort) for any answer
	// but "y"; treat that as "no".
	return err == nil
}
