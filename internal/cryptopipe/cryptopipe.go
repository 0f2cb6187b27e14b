// Package cryptopipe implements the crypto pipeline (C6): encrypt,
// decrypt, and bulk re-encrypt ciphertext files under a partition's
// secrets directory.
package cryptopipe

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/substantialcattle5/syv/internal/constants"
	"github.com/substantialcattle5/syv/internal/editor"
	"github.com/substantialcattle5/syv/internal/keydir"
	"github.com/substantialcattle5/syv/internal/pgpprovider"
	"github.com/substantialcattle5/syv/internal/recipients"
	"github.com/substantialcattle5/syv/internal/spec"
	"github.com/substantialcattle5/syv/internal/vaultconfig"
	"github.com/substantialcattle5/syv/internal/vaulterr"
)

// RoutePartition finds the owning vault for a vault-relative dst: the
// most specific vault (the leader included) whose secrets directory is
// a prefix of the resolved target path (§4.6). A destination outside
// every secrets directory, the leader's included, is a Validation
// error, also when there are no partitions.
func RoutePartition(leader *vaultconfig.Vault, dst string) (owner *vaultconfig.Vault, absPath string, err error) {
	target := filepath.Join(leader.ResolvedAt, spec.Normalize(dst))

	all := vaultconfig.AllInOrder(leader)
	// Longest-prefix match: sort candidates by secrets path length
	// descending so a partition nested relative to the leader root
	// wins over the leader itself.
	sort.SliceStable(all, func(i, j int) bool {
		return len(all[i].SecretsPath()) > len(all[j].SecretsPath())
	})
	for _, v := range all {
		sp := v.SecretsPath()
		if target == sp || strings.HasPrefix(target, sp+string(filepath.Separator)) {
			return v, target, nil
		}
	}
	return nil, "", vaulterr.New(vaulterr.Validation, "destination %q is not under any partition's secrets directory", dst)
}

// OpenInput resolves a Spec's source to plaintext bytes (§4.9
// "Polymorphism over sources"): stdin, a file, or an editor-launched
// temp file when stdin is a terminal and no path was given.
func OpenInput(s spec.Spec, stdin io.Reader) ([]byte, error) {
	switch s.SrcKind {
	case spec.SourceStdin:
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, vaulterr.Wrap(vaulterr.IORead, err, "could not read standard input")
		}
		return b, nil
	case spec.SourcePath:
		b, err := os.ReadFile(s.SrcPath)
		if err != nil {
			return nil, vaulterr.Wrap(vaulterr.IORead, err, "could not read %q", s.SrcPath)
		}
		return b, nil
	case spec.SourceTerminalEditor:
		return editor.EditEmpty(os.Getenv("EDITOR"))
	default:
		return nil, vaulterr.New(vaulterr.SpecInvalid, "unknown source kind")
	}
}

// BuildRecipientKeys resolves a partition's recipients list to actual
// provider keys, optionally auto-importing missing ones from the
// leader's gpg_keys directory (§9 open question 1: auto_import is
// applied unconditionally of trust_model, the policy this
// implementation picked and documents in its design notes).
func BuildRecipientKeys(provider pgpprovider.Provider, leader, partition *vaultconfig.Vault) ([]pgpprovider.Key, error) {
	fprs, err := recipients.Read(partition.RecipientsFilePath())
	if err != nil {
		return nil, err
	}
	if len(fprs) == 0 {
		return nil, vaulterr.New(vaulterr.Validation, "recipients list for %q is empty", partition.DisplayName())
	}

	keys := make([]pgpprovider.Key, 0, len(fprs))
	for _, fpr := range fprs {
		key, err := provider.GetKey(fpr)
		if err != nil && partition.EffectiveAutoImport(leader) {
			if dir, dirErr := partition.GPGKeysDir(leader); dirErr == nil {
				if _, content, rfErr := keydir.ReadFingerprintFile(fpr, dir); rfErr == nil {
					if _, impErr := provider.Import(content); impErr == nil {
						key, err = provider.GetKey(fpr)
					}
				}
			}
		}
		if err != nil {
			return nil, vaulterr.Wrap(vaulterr.KeyNotFound, err, "recipient %q did not resolve to a key", fpr)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func trustModel(partition, leader *vaultconfig.Vault) pgpprovider.TrustModel {
	if partition.EffectiveTrustModel(leader) == vaultconfig.TrustAlways {
		return pgpprovider.TrustAlways
	}
	return pgpprovider.TrustGPGWebOfTrust
}

// EncryptResource routes s.Dst to its owning partition, encrypts
// plaintext for that partition's current recipients, and writes the
// ciphertext to <dst>.gpg under the partition's secrets directory.
// Returns the absolute path written.
func EncryptResource(provider pgpprovider.Provider, leader *vaultconfig.Vault, s spec.Spec, plaintext []byte, mode vaultconfig.WriteMode) (string, error) {
	partition, target, err := RoutePartition(leader, s.Dst)
	if err != nil {
		return "", err
	}
	keys, err := BuildRecipientKeys(provider, leader, partition)
	if err != nil {
		return "", err
	}
	ciphertext, err := provider.Encrypt(keys, plaintext, trustModel(partition, leader))
	if err != nil {
		return "", err
	}

	outPath, err := spec.GPGOutputFilename(target)
	if err != nil {
		return "", err
	}
	if mode == vaultconfig.RefuseOverwrite {
		if _, statErr := os.Stat(outPath); statErr == nil {
			return "", vaulterr.New(vaulterr.ConfigExists, "resource %q already exists", outPath)
		}
	}
	if err := os.MkdirAll(filepath.Dir(outPath), constants.SecureDirPerms); err != nil {
		return "", vaulterr.Wrap(vaulterr.IOWrite, err, "could not create directory for %q", outPath)
	}
	if err := os.WriteFile(outPath, ciphertext, constants.SecureFilePerms); err != nil {
		return "", vaulterr.Wrap(vaulterr.IOWrite, err, "could not write %q", outPath)
	}
	return outPath, nil
}

// DecryptResource tries <p>.gpg then p itself, decrypts it, and writes
// plaintext to w. Returns the path actually read.
func DecryptResource(provider pgpprovider.Provider, leader *vaultconfig.Vault, p string, w io.Writer) (string, error) {
	_, target, err := RoutePartition(leader, p)
	if err != nil {
		return "", err
	}

	candidates := []string{target + ".gpg", target}
	var lastErr error
	for _, candidate := range candidates {
		ciphertext, readErr := os.ReadFile(candidate)
		if readErr != nil {
			lastErr = vaulterr.Wrap(vaulterr.IORead, readErr, "could not read %q", candidate)
			continue
		}
		plaintext, decErr := provider.Decrypt(ciphertext)
		if decErr != nil {
			return "", decErr
		}
		if _, err := w.Write(plaintext); err != nil {
			return "", vaulterr.Wrap(vaulterr.IOWrite, err, "could not write decrypted output")
		}
		return candidate, nil
	}
	return "", lastErr
}

// ReencryptAll decrypts and re-encrypts every *.gpg file under
// partition's secrets directory for its current recipient set.
// A failure aborts the whole operation; already-rewritten files stay
// as they are (§4.6 "Re-encrypt all").
func ReencryptAll(provider pgpprovider.Provider, leader, partition *vaultconfig.Vault, quiet bool, progress io.Writer) error {
	secretsDir := partition.SecretsPath()
	var files []string
	err := filepath.WalkDir(secretsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".gpg") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return vaulterr.Wrap(vaulterr.IORead, err, "could not walk secrets directory %q", secretsDir)
	}
	sort.Strings(files)

	keys, err := BuildRecipientKeys(provider, leader, partition)
	if err != nil {
		return err
	}
	trust := trustModel(partition, leader)

	var bar *progressbar.ProgressBar
	if !quiet && len(files) > 1 {
		bar = progressbar.NewOptions(len(files), progressbar.OptionSetWriter(progress), progressbar.OptionSetDescription("re-encrypting"))
	}

	for _, file := range files {
		ciphertext, err := os.ReadFile(file)
		if err != nil {
			return vaulterr.Wrap(vaulterr.IORead, err, "could not read %q", file)
		}
		plaintext, err := provider.Decrypt(ciphertext)
		if err != nil {
			return vaulterr.Wrap(vaulterr.DecryptionOther, err, "could not decrypt %q to re-encrypt for new recipients", file)
		}
		newCiphertext, err := provider.Encrypt(keys, plaintext, trust)
		if err != nil {
			return vaulterr.Wrap(vaulterr.EncryptionOther, err, "failed to re-encrypt %q", file)
		}
		if err := os.WriteFile(file, newCiphertext, constants.SecureFilePerms); err != nil {
			return vaulterr.Wrap(vaulterr.IOWrite, err, "could not write re-encrypted %q", file)
		}
		if !quiet {
			if bar != nil {
				bar.Add(1)
			} else {
				fmt.Fprintf(progress, "Re-encrypted %q for new recipients\n", spec.StripExt(file))
			}
		}
	}
	return nil
}

// EncryptEmptyProbe performs a dummy encryption of an empty buffer for
// partition's current recipients, used by the interactive edit flow
// (§4.9 step 3) to prove encryption will succeed before invoking the
// editor.
func EncryptEmptyProbe(provider pgpprovider.Provider, leader, partition *vaultconfig.Vault) error {
	keys, err := BuildRecipientKeys(provider, leader, partition)
	if err != nil {
		return err
	}
	_, err = provider.Encrypt(keys, []byte{}, trustModel(partition, leader))
	return err
}
