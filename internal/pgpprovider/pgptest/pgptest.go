// Package pgptest provides an in-memory pgpprovider.Provider for unit
// tests across the vault packages, standing in for a real `gpg`
// binary so recipient, partition, and dispatch logic can be exercised
// without shelling out.
package pgptest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/substantialcattle5/syv/internal/pgpprovider"
	"github.com/substantialcattle5/syv/internal/vaulterr"
)

// Provider is a deterministic in-memory stand-in for pgpprovider.GPGProvider.
// Keys are identified by fingerprint; "encryption" tags the recipient
// set in front of the plaintext so round-trips are verifiable, and
// "signing" is recorded rather than cryptographically real.
type Provider struct {
	keys    map[string]pgpprovider.Key
	secrets map[string]bool
	signed  map[string][]string // fingerprint -> signer fingerprints
}

// New returns an empty Provider.
func New() *Provider {
	return &Provider{
		keys:    map[string]pgpprovider.Key{},
		secrets: map[string]bool{},
		signed:  map[string][]string{},
	}
}

// AddKey registers a key, optionally with a local secret key
// available (hasSecret), and returns it for convenience.
func (p *Provider) AddKey(fpr string, userIDs []string, hasSecret bool) pgpprovider.Key {
	k := pgpprovider.Key{Fingerprint: fpr, KeyID: fpr[len(fpr)-16:], UserIDs: userIDs, HasSecret: hasSecret}
	p.keys[fpr] = k
	if hasSecret {
		p.secrets[fpr] = true
	}
	return k
}

func (p *Provider) FindKeys(ids []string) ([]pgpprovider.Key, error) {
	var found []pgpprovider.Key
	for _, id := range ids {
		if k, ok := p.lookup(id); ok {
			found = append(found, k)
		}
	}
	return found, nil
}

func (p *Provider) GetKey(id string) (pgpprovider.Key, error) {
	if k, ok := p.lookup(id); ok {
		return k, nil
	}
	return pgpprovider.Key{}, fmt.Errorf("pgptest: key %q not found", id)
}

func (p *Provider) lookup(id string) (pgpprovider.Key, bool) {
	if k, ok := p.keys[id]; ok {
		return k, true
	}
	for fpr, k := range p.keys {
		if strings.HasSuffix(fpr, id) {
			return k, true
		}
	}
	return pgpprovider.Key{}, false
}

func (p *Provider) SecretKeys() ([]pgpprovider.Key, error) {
	var out []pgpprovider.Key
	for fpr := range p.secrets {
		out = append(out, p.keys[fpr])
	}
	return out, nil
}

func (p *Provider) Fingerprint(k pgpprovider.Key) string { return k.Fingerprint }

// Import registers a key from armored bytes of the form "KEY:<fpr>",
// the encoding Export produces below.
func (p *Provider) Import(armored []byte) ([]string, error) {
	fpr := strings.TrimPrefix(string(armored), "KEY:")
	if fpr == string(armored) {
		return nil, fmt.Errorf("pgptest: malformed armored key")
	}
	if _, ok := p.keys[fpr]; !ok {
		p.keys[fpr] = pgpprovider.Key{Fingerprint: fpr}
	}
	return []string{fpr}, nil
}

func (p *Provider) Export(k pgpprovider.Key) ([]byte, error) {
	return []byte("KEY:" + k.Fingerprint), nil
}

func (p *Provider) SignKey(k, signer pgpprovider.Key) error {
	p.signed[k.Fingerprint] = append(p.signed[k.Fingerprint], signer.Fingerprint)
	return nil
}

// SignedBy reports whether signer has locally signed fpr, for test
// assertions on the import-and-sign path.
func (p *Provider) SignedBy(fpr, signer string) bool {
	for _, s := range p.signed[fpr] {
		if s == signer {
			return true
		}
	}
	return false
}

func (p *Provider) Encrypt(keys []pgpprovider.Key, plaintext []byte, trust pgpprovider.TrustModel) ([]byte, error) {
	var buf bytes.Buffer
	for _, k := range keys {
		buf.WriteString(k.Fingerprint)
		buf.WriteByte(',')
	}
	buf.WriteByte('\n')
	buf.Write(plaintext)
	return buf.Bytes(), nil
}

func (p *Provider) Decrypt(ciphertext []byte) ([]byte, error) {
	idx := bytes.IndexByte(ciphertext, '\n')
	if idx < 0 {
		return ciphertext, nil
	}
	recipients := strings.Split(string(ciphertext[:idx]), ",")
	for _, fpr := range recipients {
		if p.secrets[fpr] {
			return ciphertext[idx+1:], nil
		}
	}
	return nil, vaulterr.New(vaulterr.DecryptionNotForYou, "no available secret key matches recipients %v", recipients)
}
