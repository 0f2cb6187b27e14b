// Package partitionlc implements the partition lifecycle (C8):
// adding and removing partitions from a vault descriptor.
package partitionlc

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/substantialcattle5/syv/internal/keydir"
	"github.com/substantialcattle5/syv/internal/pgpprovider"
	"github.com/substantialcattle5/syv/internal/recipients"
	"github.com/substantialcattle5/syv/internal/vaultconfig"
	"github.com/substantialcattle5/syv/internal/vaulterr"
)

// AddOptions carries the inputs to AddPartition (§4.8 "Add").
type AddOptions struct {
	Path           string // relative to the leader's secrets parent
	Name           string
	GPGKeyIDs      []string
	RecipientsFile string // optional explicit recipients path
}

// AddPartition creates a new partition under leader: computes its
// secrets/recipients paths, assigns the next free index, appends it
// to the descriptor, rewrites the descriptor file, creates the
// partition's (empty) secrets directory, seeds its recipients list
// from the resolved keys, and exports each key to the leader's
// gpg_keys directory when configured.
func AddPartition(provider pgpprovider.Provider, leader *vaultconfig.Vault, descriptorPath string, opts AddOptions, out io.Writer) (*vaultconfig.Vault, error) {
	if opts.Path == "" {
		return nil, vaulterr.New(vaulterr.SpecInvalid, "partitions add requires a path")
	}

	leaderSecrets := leader.Secrets
	if leaderSecrets == "" {
		leaderSecrets = "."
	}
	newSecrets := leader.AbsolutePath(filepath.Join(filepath.Dir(leaderSecrets), opts.Path))

	partition := &vaultconfig.Vault{
		Name:       opts.Name,
		Kind:       vaultconfig.KindPartition,
		ResolvedAt: leader.ResolvedAt,
	}
	relSecrets, err := filepath.Rel(leader.ResolvedAt, newSecrets)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.SpecInvalid, err, "could not relate partition path %q to vault root", opts.Path)
	}
	partition.Secrets = relSecrets

	if opts.RecipientsFile != "" {
		partition.Recipients = opts.RecipientsFile
	} else {
		partition.Recipients = filepath.Base(leader.RecipientsFilePath())
	}

	maxIndex := 0
	for _, p := range leader.Partitions {
		if p.Index > maxIndex {
			maxIndex = p.Index
		}
	}
	partition.Index = maxIndex + 1
	leader.Partitions = append(leader.Partitions, partition)

	if err := vaultconfig.Validate(leader); err != nil {
		leader.Partitions = leader.Partitions[:len(leader.Partitions)-1]
		return nil, err
	}

	if err := vaultconfig.ToFile(leader, descriptorPath, vaultconfig.AllowOverwrite); err != nil {
		return nil, err
	}

	if err := keydir.AssureEmptyDirectoryExists(partition.SecretsPath()); err != nil {
		return nil, err
	}

	var fprs []string
	if len(opts.GPGKeyIDs) > 0 {
		keys, err := provider.FindKeys(opts.GPGKeyIDs)
		if err != nil {
			return nil, err
		}
		if len(keys) != len(opts.GPGKeyIDs) {
			return nil, vaulterr.New(vaulterr.KeyNotFound, "%d of %d ids resolved to a key", len(keys), len(opts.GPGKeyIDs))
		}
		if gpgDir, dirErr := leader.GPGKeysDir(leader); dirErr == nil {
			for _, key := range keys {
				if fpr, path, expErr := keydir.ExportKey(provider, gpgDir, key); expErr == nil {
					fmt.Fprintf(out, "Exported key %q to %q.\n", fpr, path)
				}
			}
		}
		for _, key := range keys {
			fprs = append(fprs, provider.Fingerprint(key))
		}
	}

	if err := recipients.WriteAllowEmpty(partition.RecipientsFilePath(), fprs); err != nil {
		return nil, err
	}

	fmt.Fprintf(out, "Added partition %q at %q.\n", partition.DisplayName(), partition.SecretsPath())
	return partition, nil
}

// RemovePartition resolves selector against leader's partitions and
// removes that entry from the descriptor (the leader's own index is
// not removable). Ciphertext files are never touched (§4.8 "Remove").
func RemovePartition(leader *vaultconfig.Vault, descriptorPath, selector string) error {
	target, err := vaultconfig.Find(leader, selector)
	if err != nil {
		return err
	}
	if target == leader {
		return vaulterr.New(vaulterr.Validation, "the leader vault cannot be removed as a partition")
	}

	remaining := make([]*vaultconfig.Vault, 0, len(leader.Partitions))
	removed := false
	for _, p := range leader.Partitions {
		if p.Index == target.Index && !removed {
			removed = true
			continue
		}
		remaining = append(remaining, p)
	}
	if !removed {
		return vaulterr.New(vaulterr.Validation, "partition %q was not found among the leader's partitions", selector)
	}
	leader.Partitions = remaining

	return vaultconfig.ToFile(leader, descriptorPath, vaultconfig.AllowOverwrite)
}
