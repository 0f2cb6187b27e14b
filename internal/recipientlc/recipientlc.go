// Package recipientlc implements the recipient lifecycle (C7):
// add/remove/init recipients, including the import-and-sign path for
// unverified keys and the machine-readable recipient listing.
package recipientlc

import (
	"fmt"
	"io"

	yaml "gopkg.in/yaml.v2"

	"github.com/substantialcattle5/syv/internal/cryptopipe"
	"github.com/substantialcattle5/syv/internal/keydir"
	"github.com/substantialcattle5/syv/internal/pgpprovider"
	"github.com/substantialcattle5/syv/internal/recipients"
	"github.com/substantialcattle5/syv/internal/vaultconfig"
	"github.com/substantialcattle5/syv/internal/vaulterr"
)

// SigningMode selects whether imported keys get a local signature
// before being trusted as recipients (§4.7 step 1).
type SigningMode int

const (
	// SigningNone resolves ids directly against the keychain; the
	// caller is expected to have verified them out of band
	// (equivalent to the CLI's --verified flag).
	SigningNone SigningMode = iota
	// SigningPublic imports each id's key from the leader's gpg_keys
	// directory (or the keychain as a fallback) and locally signs it
	// with the operator's own key before trusting it.
	SigningPublic
)

// AddOptions carries the inputs to AddRecipients (§4.7 "Add
// recipients").
type AddOptions struct {
	IDs          []string
	Signing      SigningMode
	SigningKeyID string // optional explicit signer; "" selects automatically
}

// AddRecipients runs the add-recipient algorithm against each of
// partitions in turn: resolve/import/sign, append to the recipients
// list, and re-encrypt every stored secret.
func AddRecipients(provider pgpprovider.Provider, leader *vaultconfig.Vault, partitions []*vaultconfig.Vault, opts AddOptions, out io.Writer, quiet bool) error {
	if len(opts.IDs) == 0 {
		return vaulterr.New(vaulterr.SpecInvalid, "recipients add requires at least one id")
	}

	for _, partition := range partitions {
		if opts.Signing == SigningPublic {
			if err := importAndSign(provider, leader, partition, opts, out); err != nil {
				return err
			}
		}

		keys, err := provider.FindKeys(opts.IDs)
		if err != nil {
			return err
		}
		if len(keys) != len(opts.IDs) {
			return vaulterr.New(vaulterr.KeyNotFound, "%d of %d ids resolved to a key", len(keys), len(opts.IDs))
		}

		if gpgDir, dirErr := partition.GPGKeysDir(leader); dirErr == nil {
			for _, key := range keys {
				if fpr, path, expErr := keydir.ExportKey(provider, gpgDir, key); expErr == nil && !quiet {
					fmt.Fprintf(out, "Exported key %q to %q.\n", fpr, path)
				}
			}
		}

		existing, err := recipients.Read(partition.RecipientsFilePath())
		if err != nil {
			return err
		}
		for _, key := range keys {
			existing = append(existing, provider.Fingerprint(key))
		}
		if err := recipients.Write(partition.RecipientsFilePath(), existing); err != nil {
			return err
		}

		if err := cryptopipe.ReencryptAll(provider, leader, partition, quiet, out); err != nil {
			return err
		}
		if !quiet {
			fmt.Fprintf(out, "Added recipient(s) %v to %q.\n", opts.IDs, partition.DisplayName())
		}
	}
	return nil
}

// importAndSign implements §4.7 step 1: for each id, read
// <gpg_keys>/<id> (falling back to the existing keychain entry),
// import it, pick a signing key, and sign.
func importAndSign(provider pgpprovider.Provider, leader, partition *vaultconfig.Vault, opts AddOptions, out io.Writer) error {
	gpgDir, dirErr := partition.GPGKeysDir(leader)

	for _, id := range opts.IDs {
		if err := keydir.ValidFingerprint(id); err != nil {
			return err
		}
		if dirErr == nil {
			if _, content, rfErr := keydir.ReadFingerprintFile(id, gpgDir); rfErr == nil {
				fprs, impErr := provider.Import(content)
				if impErr != nil {
					return vaulterr.Wrap(vaulterr.ProviderUnsupported, impErr, "could not import key file for %q", id)
				}
				if len(fprs) > 1 {
					return vaulterr.New(vaulterr.Validation, "key file for %q contains %d fingerprints, expected exactly one", id, len(fprs))
				}
			} else if _, getErr := provider.GetKey(id); getErr != nil {
				return vaulterr.New(vaulterr.KeyNotFound, "id %q has no key file in %q and no keychain entry", id, gpgDir)
			}
		} else if _, getErr := provider.GetKey(id); getErr != nil {
			return vaulterr.Wrap(vaulterr.KeyNotFound, getErr, "id %q not found and no gpg_keys directory is configured", id)
		}
	}

	signer, err := selectSigningKey(provider, partition, opts.SigningKeyID)
	if err != nil {
		return err
	}

	for _, id := range opts.IDs {
		key, err := provider.GetKey(id)
		if err != nil {
			return vaulterr.Wrap(vaulterr.KeyNotFound, err, "could not resolve %q after import", id)
		}
		if err := provider.SignKey(key, signer); err != nil {
			return err
		}
		if dirErr == nil {
			if fpr, path, expErr := keydir.ExportKey(provider, gpgDir, key); expErr == nil {
				fmt.Fprintf(out, "Exported signed key %q to %q.\n", fpr, path)
			}
		}
		fmt.Fprintf(out, "Signed key %q with %q.\n", provider.Fingerprint(key), provider.Fingerprint(signer))
	}
	return nil
}

// selectSigningKey resolves the signing key for import-and-sign: an
// explicit id must be a current recipient with a secret key;
// otherwise the unique secret key that is also a current recipient.
func selectSigningKey(provider pgpprovider.Provider, partition *vaultconfig.Vault, explicitID string) (pgpprovider.Key, error) {
	current, err := recipients.Read(partition.RecipientsFilePath())
	if err != nil {
		return pgpprovider.Key{}, err
	}

	if explicitID != "" {
		key, err := provider.GetKey(explicitID)
		if err != nil {
			return pgpprovider.Key{}, vaulterr.Wrap(vaulterr.KeyNotFound, err, "signing key %q not found", explicitID)
		}
		if !recipients.Contains(current, provider.Fingerprint(key)) {
			return pgpprovider.Key{}, vaulterr.New(vaulterr.Validation, "signing key %q is not a current recipient of %q", explicitID, partition.DisplayName())
		}
		return key, nil
	}

	secretKeys, err := provider.SecretKeys()
	if err != nil {
		return pgpprovider.Key{}, err
	}
	var candidates []pgpprovider.Key
	for _, k := range secretKeys {
		if recipients.Contains(current, provider.Fingerprint(k)) {
			candidates = append(candidates, k)
		}
	}
	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return pgpprovider.Key{}, vaulterr.New(vaulterr.KeyNotFound, "no secret key in the keychain is a current recipient of %q; specify a signing key explicitly", partition.DisplayName())
	default:
		return pgpprovider.Key{}, vaulterr.New(vaulterr.Validation, "multiple secret keys are current recipients of %q; specify a signing key explicitly", partition.DisplayName())
	}
}

// keysByIDs resolves ids against the keychain, auto-importing from
// the key directory and retrying once when autoImport is enabled and
// the first lookup fails (§4.7 "Remove recipients").
func keysByIDs(provider pgpprovider.Provider, leader, partition *vaultconfig.Vault, ids []string, autoImport bool) ([]pgpprovider.Key, error) {
	keys := make([]pgpprovider.Key, 0, len(ids))
	for _, id := range ids {
		key, err := provider.GetKey(id)
		if err != nil && autoImport {
			if dir, dirErr := partition.GPGKeysDir(leader); dirErr == nil {
				if _, content, rfErr := keydir.ReadFingerprintFile(id, dir); rfErr == nil {
					if _, impErr := provider.Import(content); impErr == nil {
						key, err = provider.GetKey(id)
					}
				}
			}
		}
		if err != nil {
			return nil, vaulterr.Wrap(vaulterr.KeyNotFound, err, "id %q did not resolve to a key", id)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// RemoveRecipients resolves ids to keys, requires each to currently be
// a recipient of the partition, removes them (refusing to empty the
// list), best-effort deletes now-unreferenced key files, and
// re-encrypts.
func RemoveRecipients(provider pgpprovider.Provider, leader *vaultconfig.Vault, partitions []*vaultconfig.Vault, ids []string, out io.Writer, quiet bool) error {
	if len(ids) == 0 {
		return vaulterr.New(vaulterr.SpecInvalid, "recipients remove requires at least one id")
	}

	for _, partition := range partitions {
		autoImport := partition.EffectiveAutoImport(leader)
		keys, err := keysByIDs(provider, leader, partition, ids, autoImport)
		if err != nil {
			return err
		}

		current, err := recipients.Read(partition.RecipientsFilePath())
		if err != nil {
			return err
		}
		var fprs []string
		for _, key := range keys {
			fpr := provider.Fingerprint(key)
			if !recipients.Contains(current, fpr) {
				return vaulterr.New(vaulterr.Validation, "%q is not currently a recipient of %q", fpr, partition.DisplayName())
			}
			fprs = append(fprs, fpr)
		}

		updated := recipients.Remove(current, fprs...)
		if err := recipients.Write(partition.RecipientsFilePath(), updated); err != nil {
			return err
		}

		if gpgDir, dirErr := partition.GPGKeysDir(leader); dirErr == nil {
			for _, fpr := range fprs {
				if stillReferenced(leader, partition, fpr) {
					continue
				}
				if removed, rmErr := keydir.RemoveKeyFile(gpgDir, fpr); rmErr == nil && removed && !quiet {
					fmt.Fprintf(out, "Removed key file for %q.\n", fpr)
				}
			}
		}

		if err := cryptopipe.ReencryptAll(provider, leader, partition, quiet, out); err != nil {
			return err
		}
		if !quiet {
			fmt.Fprintf(out, "Removed recipient(s) %v from %q.\n", fprs, partition.DisplayName())
		}
	}
	return nil
}

// stillReferenced reports whether fpr remains in any partition's
// recipients list other than the one currently being modified (which
// has already been written with fpr removed).
func stillReferenced(leader, modified *vaultconfig.Vault, fpr string) bool {
	for _, v := range vaultconfig.AllInOrder(leader) {
		if v == modified {
			continue
		}
		list, err := recipients.Read(v.RecipientsFilePath())
		if err != nil {
			continue
		}
		if recipients.Contains(list, fpr) {
			return true
		}
	}
	return false
}

// InitRecipients exports the operator's own public key(s) into the
// leader's gpg_keys directory so collaborators can find them, without
// modifying any recipients list.
func InitRecipients(provider pgpprovider.Provider, leader *vaultconfig.Vault, keyIDs []string, out io.Writer) error {
	gpgDir, err := leader.GPGKeysDir(leader)
	if err != nil {
		return err
	}

	keys, err := resolveOwnKeys(provider, keyIDs)
	if err != nil {
		return err
	}
	for _, key := range keys {
		fpr, path, err := keydir.ExportKey(provider, gpgDir, key)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Exported key %q to %q.\n", fpr, path)
	}
	return nil
}

func resolveOwnKeys(provider pgpprovider.Provider, keyIDs []string) ([]pgpprovider.Key, error) {
	if len(keyIDs) > 0 {
		keys, err := provider.FindKeys(keyIDs)
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			return nil, vaulterr.New(vaulterr.KeyNotFound, "none of %v resolved to a key", keyIDs)
		}
		return keys, nil
	}
	return provider.SecretKeys()
}

// recipientListing is the machine-readable shape for
// ListRecipients(format="yaml").
type recipientListing struct {
	Partition string   `yaml:"partition"`
	Keys      []string `yaml:"keys"`
}

// ListRecipients prints "<fingerprint> (<user-ids>)" lines per
// partition, followed by " <email>" from the key's first user id when
// it has one (format "text"), or a yaml.v2-marshaled listing (format
// "yaml") for scripting (§4.7, supplemented per SPEC_FULL.md §4).
func ListRecipients(provider pgpprovider.Provider, leader *vaultconfig.Vault, partitions []*vaultconfig.Vault, format string, out io.Writer) error {
	multi := len(partitions) > 1 || (len(partitions) == 1 && len(vaultconfig.AllInOrder(leader)) > 1)

	if format == "yaml" {
		var listings []recipientListing
		for _, partition := range partitions {
			fprs, err := recipients.Read(partition.RecipientsFilePath())
			if err != nil {
				return err
			}
			listings = append(listings, recipientListing{Partition: partition.URL(), Keys: fprs})
		}
		enc, err := yaml.Marshal(listings)
		if err != nil {
			return vaulterr.Wrap(vaulterr.ConfigSerde, err, "could not marshal recipient listing")
		}
		_, err = out.Write(enc)
		return err
	}

	for _, partition := range partitions {
		if multi {
			fmt.Fprintf(out, "%s:\n", partition.URL())
		}
		fprs, err := recipients.Read(partition.RecipientsFilePath())
		if err != nil {
			return err
		}
		for _, fpr := range fprs {
			key, err := provider.GetKey(fpr)
			if err != nil {
				fmt.Fprintf(out, "%s\n", fpr)
				continue
			}
			line := keydir.FingerprintUserID(fpr, key.UserIDs)
			if len(key.UserIDs) > 0 {
				if email := pgpprovider.UserIDEmail(key.UserIDs[0]); email != "" {
					line = fmt.Sprintf("%s <%s>", line, email)
				}
			}
			fmt.Fprintf(out, "%s\n", line)
		}
	}
	return nil
}
