// Package keydir implements the on-disk key directory (C3): armored
// recipient public keys, one file per key, named by full fingerprint.
package keydir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/substantialcattle5/syv/internal/constants"
	"github.com/substantialcattle5/syv/internal/pgpprovider"
	"github.com/substantialcattle5/syv/internal/vaulterr"
)

// ExportKey computes key's fingerprint, exports its armored bytes via
// provider, and writes them atomically to dir/<fingerprint>.
func ExportKey(provider pgpprovider.Provider, dir string, key pgpprovider.Key) (fingerprint, path string, err error) {
	fpr := provider.Fingerprint(key)
	if fpr == "" {
		return "", "", vaulterr.New(vaulterr.KeyNotFound, "key has no fingerprint")
	}
	armored, err := provider.Export(key)
	if err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(dir, constants.StandardDirPerms); err != nil {
		return "", "", vaulterr.Wrap(vaulterr.IOWrite, err, "could not create key directory %q", dir)
	}
	keyPath := filepath.Join(dir, fpr)
	tmp := keyPath + ".tmp"
	if err := os.WriteFile(tmp, armored, constants.StandardFilePerms); err != nil {
		return "", "", vaulterr.Wrap(vaulterr.IOWrite, err, "could not write key file %q", tmp)
	}
	if err := os.Rename(tmp, keyPath); err != nil {
		return "", "", vaulterr.Wrap(vaulterr.IOWrite, err, "could not finalize key file %q", keyPath)
	}
	return fpr, keyPath, nil
}

// ReadFingerprintFile reads dir/<fpr> when fpr is a full 40-char
// fingerprint; otherwise it globs dir/*<fpr> and requires exactly one
// match (§4.3).
func ReadFingerprintFile(fpr, dir string) (path string, content []byte, err error) {
	var fprPath string
	if len(fpr) == 40 {
		fprPath = filepath.Join(dir, fpr)
	} else {
		pattern := filepath.Join(dir, "*"+fpr)
		matches, globErr := filepath.Glob(pattern)
		if globErr != nil {
			return "", nil, vaulterr.Wrap(vaulterr.IORead, globErr, "invalid glob pattern %q", pattern)
		}
		switch len(matches) {
		case 1:
			fprPath = matches[0]
		case 0:
			return "", nil, vaulterr.New(vaulterr.KeyNotFound, "did not find key file matching %q in %q", pattern, dir)
		default:
			return "", nil, vaulterr.New(vaulterr.KeyNotFound, "found %d matching key files for %q in %q, expected just one", len(matches), pattern, dir)
		}
	}

	content, readErr := os.ReadFile(fprPath)
	if readErr != nil {
		return "", nil, vaulterr.Wrap(vaulterr.IORead, readErr, "could not read key file %q", fprPath)
	}
	return fprPath, content, nil
}

// AssureEmptyDirectoryExists creates dir if missing; fails if dir
// exists and is non-empty.
func AssureEmptyDirectoryExists(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(dir, constants.StandardDirPerms); mkErr != nil {
				return vaulterr.Wrap(vaulterr.IOWrite, mkErr, "could not create directory %q", dir)
			}
			return nil
		}
		return vaulterr.Wrap(vaulterr.IORead, err, "could not inspect directory %q", dir)
	}
	if len(entries) > 0 {
		return vaulterr.New(vaulterr.Validation, "directory %q already exists and is not empty", dir)
	}
	return nil
}

// RemoveKeyFile best-effort removes dir/<fpr>; a missing file is not
// fatal (§4.7 remove recipients).
func RemoveKeyFile(dir, fpr string) (removed bool, err error) {
	path := filepath.Join(dir, fpr)
	if rmErr := os.Remove(path); rmErr != nil {
		if os.IsNotExist(rmErr) {
			return false, nil
		}
		return false, vaulterr.Wrap(vaulterr.IOWrite, rmErr, "could not remove key file %q", path)
	}
	return true, nil
}

// ValidFingerprint validates id as an 8-40 character hex fingerprint
// suffix/full form (§4.7 step 1).
func ValidFingerprint(id string) error {
	if len(id) < 8 || len(id) > 40 {
		return vaulterr.New(vaulterr.SpecInvalid, "fingerprint %q must be between 8 and 40 characters long", id)
	}
	for _, c := range id {
		isHex := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
		if !isHex {
			return vaulterr.New(vaulterr.SpecInvalid, "fingerprint %q must only contain characters a-f, A-F and 0-9", id)
		}
	}
	return nil
}

// FingerprintUserID formats a key for progress-line display:
// "<fingerprint> (<user-ids>)".
func FingerprintUserID(fpr string, userIDs []string) string {
	return fmt.Sprintf("%s (%v)", fpr, userIDs)
}
