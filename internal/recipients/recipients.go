// Package recipients implements the fingerprint list file (C4): read,
// write (sorted, deduped), one fingerprint per line.
package recipients

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/substantialcattle5/syv/internal/constants"
	"github.com/substantialcattle5/syv/internal/vaulterr"
)

// Read opens path and returns its fingerprints in file order (order is
// preserved for diagnostics; Write is what normalizes it).
func Read(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.IORead, err, "could not open recipients file %q", path)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, vaulterr.Wrap(vaulterr.IORead, err, "could not read recipients file %q", path)
	}
	return out, nil
}

// Write sorts and dedups fingerprints and writes them to path, one per
// line, creating parent directories as needed. It is the single writer
// for recipients lists (§4.4); refuses to write an empty list (§3
// invariant 3 — the last recipient cannot be removed).
func Write(path string, fingerprints []string) error {
	normalized := normalize(fingerprints)
	if len(normalized) == 0 {
		return vaulterr.New(vaulterr.Validation, "recipients list at %q would become empty", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), constants.SecureDirPerms); err != nil {
		return vaulterr.Wrap(vaulterr.IOWrite, err, "could not create parent directory for %q", path)
	}

	var b strings.Builder
	for _, fpr := range normalized {
		b.WriteString(fpr)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), constants.SecureFilePerms); err != nil {
		return vaulterr.Wrap(vaulterr.IOWrite, err, "could not write recipients file %q", path)
	}
	return nil
}

// WriteAllowEmpty is Write without the non-empty invariant, used by
// init-time scaffolding and partition creation before any recipient
// has been added.
func WriteAllowEmpty(path string, fingerprints []string) error {
	normalized := normalize(fingerprints)
	if err := os.MkdirAll(filepath.Dir(path), constants.SecureDirPerms); err != nil {
		return vaulterr.Wrap(vaulterr.IOWrite, err, "could not create parent directory for %q", path)
	}
	var b strings.Builder
	for _, fpr := range normalized {
		b.WriteString(fpr)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), constants.SecureFilePerms); err != nil {
		return vaulterr.Wrap(vaulterr.IOWrite, err, "could not write recipients file %q", path)
	}
	return nil
}

func normalize(fingerprints []string) []string {
	seen := make(map[string]bool, len(fingerprints))
	out := make([]string, 0, len(fingerprints))
	for _, fpr := range fingerprints {
		if fpr == "" || seen[fpr] {
			continue
		}
		seen[fpr] = true
		out = append(out, fpr)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether fpr is present in fingerprints.
func Contains(fingerprints []string, fpr string) bool {
	for _, f := range fingerprints {
		if f == fpr {
			return true
		}
	}
	return false
}

// Remove returns fingerprints with every occurrence of any id in ids
// removed.
func Remove(fingerprints []string, ids ...string) []string {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	out := make([]string, 0, len(fingerprints))
	for _, f := range fingerprints {
		if !drop[f] {
			out = append(out, f)
		}
	}
	return out
}
