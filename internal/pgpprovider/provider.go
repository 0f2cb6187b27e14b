// Package pgpprovider implements the OpenPGP provider capability (§4.2)
// by shelling out to the system `gpg` binary, the same technique the
// vault core's teacher uses for its GPG backend: no OpenPGP library is
// linked in. Key listing uses --with-colons machine-readable output;
// Encrypt additionally wires --status-fd to classify untrusted
// recipients on the INV_RECP token instead of parsing human stderr.
package pgpprovider

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/substantialcattle5/syv/internal/vaulterr"
)

// TrustModel selects how the provider enforces recipient key validity
// at encryption time (§4.2 "trust model mapping").
type TrustModel int

const (
	// TrustGPGWebOfTrust enforces key validity the normal gpg way.
	TrustGPGWebOfTrust TrustModel = iota
	// TrustAlways passes gpg a "do not check trust" flag.
	TrustAlways
)

// Key is a handle to a public (and possibly secret) OpenPGP key.
type Key struct {
	Fingerprint string
	KeyID       string
	UserIDs     []string
	HasSecret   bool
	Expired     bool
}

// Provider is the capability interface the vault core depends on (C2).
// GPGProvider is the only implementation; callers should still program
// against this interface so a future provider can be swapped in without
// touching C3-C9.
type Provider interface {
	FindKeys(ids []string) ([]Key, error)
	GetKey(id string) (Key, error)
	SecretKeys() ([]Key, error)
	Fingerprint(key Key) string
	Import(armored []byte) ([]string, error)
	Export(key Key) ([]byte, error)
	SignKey(key Key, signer Key) error
	Encrypt(keys []Key, plaintext []byte, trust TrustModel) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// GPGProvider drives the system gpg binary.
type GPGProvider struct {
	// Binary overrides the executable name; defaults to "gpg".
	Binary string
}

// NewGPGProvider returns a provider backed by the gpg binary on PATH.
func NewGPGProvider() *GPGProvider {
	return &GPGProvider{Binary: "gpg"}
}

func (p *GPGProvider) bin() string {
	if p.Binary == "" {
		return "gpg"
	}
	return p.Binary
}

func (p *GPGProvider) run(stdin []byte, args ...string) (stdout, stderr []byte, err error) {
	cmd := exec.Command(p.bin(), args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// runWithStatus is like run but additionally wires gpg's --status-fd to
// fd 3, returning the machine-readable status stream separately from
// stderr so callers can classify failures on tokens like INV_RECP and
// NO_SECKEY instead of parsing gpg's human-readable text.
func (p *GPGProvider) runWithStatus(stdin []byte, args ...string) (stdout, stderr, status []byte, err error) {
	pr, pw, perr := os.Pipe()
	if perr != nil {
		return nil, nil, nil, perr
	}

	cmd := exec.Command(p.bin(), append([]string{"--status-fd", "3"}, args...)...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	cmd.ExtraFiles = []*os.File{pw}

	statusCh := make(chan []byte, 1)
	go func() {
		data, _ := io.ReadAll(pr)
		statusCh <- data
	}()

	err = cmd.Run()
	pw.Close()
	status = <-statusCh
	pr.Close()
	return outBuf.Bytes(), errBuf.Bytes(), status, err
}

// Available reports whether the gpg binary can be invoked at all; used
// to surface a Provider(Unsupported) error with an install hint before
// doing real work.
func (p *GPGProvider) Available() bool {
	_, _, err := p.run(nil, "--version")
	return err == nil
}

// FindKeys resolves each id to zero-or-more keys; unresolved ids are
// silently dropped, per §4.2 ("may return fewer than requested").
func (p *GPGProvider) FindKeys(ids []string) ([]Key, error) {
	var found []Key
	for _, id := range ids {
		out, _, err := p.run(nil, "--with-colons", "--list-keys", id)
		if err != nil {
			continue
		}
		found = append(found, parseKeyList(string(out))...)
	}
	return found, nil
}

// GetKey resolves id to exactly one key.
func (p *GPGProvider) GetKey(id string) (Key, error) {
	out, stderr, err := p.run(nil, "--with-colons", "--list-keys", id)
	if err != nil {
		return Key{}, vaulterr.Wrap(vaulterr.KeyNotFound, err, "key %q not found in keyring: %s", id, strings.TrimSpace(string(stderr)))
	}
	keys := parseKeyList(string(out))
	if len(keys) != 1 {
		return Key{}, vaulterr.New(vaulterr.KeyNotFound, "id %q resolved to %d keys, expected exactly one", id, len(keys))
	}
	return keys[0], nil
}

// SecretKeys iterates the keys for which a secret key is available.
func (p *GPGProvider) SecretKeys() ([]Key, error) {
	out, stderr, err := p.run(nil, "--with-colons", "--list-secret-keys")
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.ProviderUnsupported, err, "could not list secret keys: %s", strings.TrimSpace(string(stderr)))
	}
	keys := parseKeyList(string(out))
	for i := range keys {
		keys[i].HasSecret = true
	}
	return keys, nil
}

// Fingerprint extracts the full fingerprint string from key.
func (p *GPGProvider) Fingerprint(key Key) string { return key.Fingerprint }

// Import imports one or more public keys from armored bytes, returning
// every fingerprint that was actually imported.
func (p *GPGProvider) Import(armored []byte) ([]string, error) {
	_, stderr, err := p.run(armored, "--batch", "--import")
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.ProviderUnsupported, err, "import failed: %s", strings.TrimSpace(string(stderr)))
	}
	return parseImportedFingerprints(string(stderr)), nil
}

var importFprRe = regexp.MustCompile(`key ([0-9A-Fa-f]{8,40}):`)

func parseImportedFingerprints(stderr string) []string {
	var out []string
	for _, m := range importFprRe.FindAllStringSubmatch(stderr, -1) {
		out = append(out, m[1])
	}
	return out
}

// Export returns the ASCII-armored export of key, including signatures.
func (p *GPGProvider) Export(key Key) ([]byte, error) {
	out, stderr, err := p.run(nil, "--armor", "--export", key.Fingerprint)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.ProviderUnsupported, err, "export of %s failed: %s", key.Fingerprint, strings.TrimSpace(string(stderr)))
	}
	if len(out) == 0 {
		return nil, vaulterr.New(vaulterr.KeyNotFound, "export of %s produced no output", key.Fingerprint)
	}
	return out, nil
}

// SignKey adds signer's local signature to key.
func (p *GPGProvider) SignKey(key Key, signer Key) error {
	_, stderr, err := p.run(nil, "--batch", "--yes", "--default-key", signer.Fingerprint, "--sign-key", key.Fingerprint)
	if err != nil {
		return vaulterr.Wrap(vaulterr.ProviderUnsupported, err, "signing %s with %s failed: %s", key.Fingerprint, signer.Fingerprint, strings.TrimSpace(string(stderr)))
	}
	return nil
}

// Encrypt encrypts plaintext for keys under trust. On failure it
// re-runs per-recipient encryption into a discarded buffer to enumerate
// which recipients are unusable (§4.2), attaching that enumeration to
// the returned error.
func (p *GPGProvider) Encrypt(keys []Key, plaintext []byte, trust TrustModel) ([]byte, error) {
	if len(keys) == 0 {
		return nil, vaulterr.New(vaulterr.EncryptionOther, "no recipients to encrypt for")
	}
	args := []string{"--armor", "--encrypt"}
	if trust == TrustAlways {
		args = append(args, "--trust-model", "always")
	}
	for _, k := range keys {
		args = append(args, "--recipient", k.Fingerprint)
	}
	out, stderr, status, err := p.runWithStatus(plaintext, args...)
	if err == nil {
		return out, nil
	}

	offenders := p.findOffendingKeys(keys, trust)
	kind := vaulterr.EncryptionOther
	msg := fmt.Sprintf("encryption failed: %s", strings.TrimSpace(string(stderr)))
	if bytes.Contains(status, []byte("INV_RECP")) {
		kind = vaulterr.EncryptionUntrusted
		msg = "at least one recipient is untrusted under the current trust model; consider signing their key or trusting it"
	}
	return nil, vaulterr.New(kind, "%s", msg).WithOffenders(offenders)
}

// findOffendingKeys re-encrypts for each recipient individually into a
// discarded buffer, naming which ones fail. Grounded directly on
// find_offending_keys in the provider this core was distilled from.
func (p *GPGProvider) findOffendingKeys(keys []Key, trust TrustModel) []string {
	var offenders []string
	for _, k := range keys {
		args := []string{"--armor", "--encrypt", "--recipient", k.Fingerprint}
		if trust == TrustAlways {
			args = append(args, "--trust-model", "always")
		}
		if _, stderr, err := p.run([]byte{}, args...); err != nil {
			offenders = append(offenders, fmt.Sprintf("could not encrypt for recipient %s: %s", k.Fingerprint, strings.TrimSpace(string(stderr))))
		}
	}
	return offenders
}

// Decrypt decrypts ciphertext, distinguishing "not encrypted for any
// available secret key" from other failures.
func (p *GPGProvider) Decrypt(ciphertext []byte) ([]byte, error) {
	out, stderr, err := p.run(ciphertext, "--quiet", "--batch", "--decrypt")
	if err == nil {
		return out, nil
	}
	if bytes.Contains(stderr, []byte("No secret key")) || bytes.Contains(stderr, []byte("decryption failed: No secret key")) {
		return nil, vaulterr.Wrap(vaulterr.DecryptionNotForYou, err, "the content was not encrypted for you")
	}
	return nil, vaulterr.Wrap(vaulterr.DecryptionOther, err, "decryption failed: %s", strings.TrimSpace(string(stderr)))
}

var emailRe = regexp.MustCompile(`<([^>]+)>`)

// parseKeyList parses `gpg --with-colons --list-keys`-style output into
// Key values, grouping fpr/uid records under the preceding pub/sec
// record the same way the teacher's ListGPGKeys parser does.
func parseKeyList(output string) []Key {
	var keys []Key
	var current *Key

	flush := func() {
		if current != nil && current.Fingerprint != "" {
			keys = append(keys, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "pub", "sec":
			flush()
			k := Key{Expired: len(fields) > 1 && fields[1] == "e", HasSecret: fields[0] == "sec"}
			if len(fields) >= 5 {
				k.KeyID = fields[4]
			}
			current = &k
		case "fpr":
			if current != nil && len(fields) >= 10 {
				current.Fingerprint = fields[9]
			}
		case "uid":
			if current != nil && len(fields) >= 10 {
				uid := fields[9]
				current.UserIDs = append(current.UserIDs, uid)
			}
		}
	}
	flush()
	return keys
}

// UserIDEmail extracts the first <email> found in a user id string.
func UserIDEmail(uid string) string {
	m := emailRe.FindStringSubmatch(uid)
	if len(m) > 1 {
		return m[1]
	}
	return ""
}
