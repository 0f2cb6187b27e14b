// Package vaultconfig implements the vault descriptor (C5): a typed
// configuration loaded from a multi-document YAML file, one document
// per vault (leader first, then partitions).
package vaultconfig

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/substantialcattle5/syv/internal/constants"
	"github.com/substantialcattle5/syv/internal/spec"
	"github.com/substantialcattle5/syv/internal/vaulterr"
)

// Kind distinguishes the leader vault from its partitions (§3).
type Kind int

const (
	KindLeader Kind = iota
	KindPartition
)

const (
	defaultSecrets    = "."
	defaultRecipients = ".gpg-id"

	// TrustGPGWebOfTrust and TrustAlways are the two accepted
	// trust_model values (§3).
	TrustGPGWebOfTrust = "gpg-web-of-trust"
	TrustAlways        = "always"
)

// WriteMode selects overwrite behavior for descriptor writes (§4.5).
type WriteMode int

const (
	RefuseOverwrite WriteMode = iota
	AllowOverwrite
)

// Vault is one YAML document of the descriptor file: either the leader
// or a single partition.
type Vault struct {
	Name       string `yaml:"name,omitempty"`
	Secrets    string `yaml:"secrets,omitempty"`
	GPGKeys    string `yaml:"gpg_keys,omitempty"`
	Recipients string `yaml:"recipients,omitempty"`
	TrustModel string `yaml:"trust_model,omitempty"`
	AutoImport *bool  `yaml:"auto_import,omitempty"`
	// VaultID is stamped only on the leader document, an ambient
	// diagnostic identifier with no bearing on vault semantics.
	VaultID string `yaml:"vault_id,omitempty"`

	// Transient fields, never serialized (§3).
	Kind       Kind     `yaml:"-"`
	Index      int      `yaml:"-"`
	ResolvedAt string   `yaml:"-"`
	Partitions []*Vault `yaml:"-"`
}

func newLeaderDefaults() *Vault {
	return &Vault{
		Secrets:    defaultSecrets,
		Recipients: defaultRecipients,
		TrustModel: TrustGPGWebOfTrust,
		Kind:       KindLeader,
	}
}

// secretsOrDefault returns Secrets, defaulting to "." (§3).
func (v *Vault) secretsOrDefault() string {
	if v.Secrets == "" {
		return defaultSecrets
	}
	return v.Secrets
}

// recipientsOrDefault returns Recipients, defaulting to ".gpg-id" (§3).
func (v *Vault) recipientsOrDefault() string {
	if v.Recipients == "" {
		return defaultRecipients
	}
	return v.Recipients
}

// trustModelOrDefault returns TrustModel, defaulting to
// gpg-web-of-trust (§3).
func (v *Vault) trustModelOrDefault() string {
	if v.TrustModel == "" {
		return TrustGPGWebOfTrust
	}
	return v.TrustModel
}

// AbsolutePath resolves p relative to the vault's resolved directory.
func (v *Vault) AbsolutePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(v.ResolvedAt, p)
}

// SecretsPath returns the absolute path to the vault's secrets
// directory.
func (v *Vault) SecretsPath() string {
	return v.AbsolutePath(v.secretsOrDefault())
}

// RecipientsFilePath returns the absolute path to the vault's
// recipients list: a bare filename is resolved relative to Secrets, an
// explicit path (containing a separator) is used relative to
// ResolvedAt (§3).
func (v *Vault) RecipientsFilePath() string {
	rp := v.recipientsOrDefault()
	if filepath.IsAbs(rp) {
		return rp
	}
	if strings.ContainsRune(rp, filepath.Separator) || strings.ContainsRune(rp, '/') {
		return v.AbsolutePath(rp)
	}
	return filepath.Join(v.SecretsPath(), rp)
}

// GPGKeysDir returns the absolute gpg_keys directory, falling back to
// the leader's when this vault (a partition) has none configured, and
// an error when neither has one configured.
func (v *Vault) GPGKeysDir(leader *Vault) (string, error) {
	if v.GPGKeys != "" {
		return v.AbsolutePath(v.GPGKeys), nil
	}
	if leader != nil && leader != v && leader.GPGKeys != "" {
		return leader.AbsolutePath(leader.GPGKeys), nil
	}
	return "", vaulterr.New(vaulterr.Validation, "no gpg_keys directory configured for vault %q", v.DisplayName())
}

// EffectiveTrustModel is partition.trust_model ∪ leader.trust_model ∪
// default (§4.6).
func (v *Vault) EffectiveTrustModel(leader *Vault) string {
	if v.TrustModel != "" {
		return v.TrustModel
	}
	if leader != nil && leader != v && leader.TrustModel != "" {
		return leader.TrustModel
	}
	return TrustGPGWebOfTrust
}

// EffectiveAutoImport is partition.auto_import ∪ leader.auto_import ∪
// false.
func (v *Vault) EffectiveAutoImport(leader *Vault) bool {
	if v.AutoImport != nil {
		return *v.AutoImport
	}
	if leader != nil && leader != v && leader.AutoImport != nil {
		return *leader.AutoImport
	}
	return false
}

// DisplayName returns Name if set, else "(unnamed)".
func (v *Vault) DisplayName() string {
	if v.Name != "" {
		return v.Name
	}
	return "(unnamed)"
}

// URL renders the vault's display URL: syv://[name@]absolute-secrets-path.
func (v *Vault) URL() string {
	if v.Name != "" {
		return fmt.Sprintf("syv://%s@%s", v.Name, v.SecretsPath())
	}
	return fmt.Sprintf("syv://%s", v.SecretsPath())
}

// AllInOrder returns leader followed by its partitions, sorted by
// index (§4.8's partition ordering).
func AllInOrder(leader *Vault) []*Vault {
	all := make([]*Vault, 0, len(leader.Partitions)+1)
	all = append(all, leader)
	all = append(all, leader.Partitions...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Index < all[j].Index })
	return all
}

// Load reads the descriptor file at path (or standard input when path
// is "-"), splits it into one or more YAML documents, and returns the
// leader with its partitions attached and validated (§4.5). If path
// does not exist but a sibling .gpg-id file does, a fallback
// single-leader descriptor is synthesized (§4.5 "Fallback").
func Load(path string) (*Vault, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				if fallback, fbErr := loadFallback(path); fbErr == nil {
					return fallback, nil
				}
			}
			return nil, vaulterr.Wrap(vaulterr.IORead, err, "could not open descriptor %q", path)
		}
		defer f.Close()
		r = f
	}

	resolvedAt := Normalize(filepath.Dir(absPathOrSelf(path)))

	dec := yaml.NewDecoder(r)
	var vaults []*Vault
	for {
		var v Vault
		if err := dec.Decode(&v); err != nil {
			if err == io.EOF {
				break
			}
			return nil, vaulterr.Wrap(vaulterr.ConfigSerde, err, "could not parse descriptor %q", path)
		}
		v.ResolvedAt = resolvedAt
		vaults = append(vaults, &v)
	}
	if len(vaults) == 0 {
		return nil, vaulterr.New(vaulterr.ConfigSerde, "descriptor %q contains no documents", path)
	}

	leader := vaults[0]
	leader.Kind = KindLeader
	leader.Index = 0
	for i, p := range vaults[1:] {
		p.Kind = KindPartition
		p.Index = i + 1
		leader.Partitions = append(leader.Partitions, p)
	}

	if err := Validate(leader); err != nil {
		return nil, err
	}
	return leader, nil
}

func absPathOrSelf(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// loadFallback synthesizes a single-leader descriptor from a sibling
// .gpg-id file when the descriptor path itself does not exist.
func loadFallback(descriptorPath string) (*Vault, error) {
	dir := filepath.Dir(descriptorPath)
	gpgID := filepath.Join(dir, defaultRecipients)
	if _, err := os.Stat(gpgID); err != nil {
		return nil, vaulterr.Wrap(vaulterr.IORead, err, "no descriptor and no sibling %q", gpgID)
	}
	leader := newLeaderDefaults()
	leader.ResolvedAt = Normalize(absPathOrSelf(dir))
	return leader, nil
}

// Normalize is a thin forward to spec.Normalize so callers in this
// package don't need to import both.
func Normalize(p string) string { return spec.Normalize(p) }

// Validate checks the cross-partition invariants of §3.
func Validate(leader *Vault) error {
	all := AllInOrder(leader)

	for i, a := range all {
		for j, b := range all {
			if i == j || a == leader || b == leader {
				continue
			}
			as, bs := a.SecretsPath(), b.SecretsPath()
			if as == bs {
				continue
			}
			if isPrefixDir(as, bs) {
				return vaulterr.New(vaulterr.Validation, "partition %q secrets path is nested inside %q", b.DisplayName(), a.DisplayName())
			}
		}
	}

	seen := make(map[string]string, len(all))
	for _, v := range all {
		rp := v.RecipientsFilePath()
		if owner, ok := seen[rp]; ok {
			return vaulterr.New(vaulterr.Validation, "recipients path %q is shared by %q and %q", rp, owner, v.DisplayName())
		}
		seen[rp] = v.DisplayName()
	}
	return nil
}

// isPrefixDir reports whether child is nested under parent.
func isPrefixDir(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}

// Find resolves selector against leader's full vault set by (a)
// numeric index, (b) exact name, (c) secrets path equality (§4.5),
// without promoting the match to operational leader. Use this to look
// up a specific partition among several (e.g. RecipientsAdd's
// partition selector list); use Select when the match should become
// the command's operational leader.
func Find(leader *Vault, selector string) (*Vault, error) {
	all := AllInOrder(leader)

	if idx, err := strconv.Atoi(selector); err == nil {
		for _, v := range all {
			if v.Index == idx {
				return v, nil
			}
		}
		return nil, vaulterr.New(vaulterr.Validation, "vault index %d is out of bounds", idx)
	}

	var matches []*Vault
	for _, v := range all {
		if v.Name == selector || v.SecretsPath() == selector {
			matches = append(matches, v)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, vaulterr.New(vaulterr.Validation, "vault name %q is unknown", selector)
	default:
		return nil, vaulterr.New(vaulterr.Validation, "vault name %q is ambiguous across %d partitions", selector, len(matches))
	}
}

// Select resolves selector against leader's full vault set (see
// Find's rules) and promotes the match to operational leader for the
// remainder of the command: when the selected vault is not the file's
// leader, it is marked as leader and the former leader becomes a
// partition.
func Select(leader *Vault, selector string) (*Vault, error) {
	v, err := Find(leader, selector)
	if err != nil {
		return nil, err
	}
	return promote(leader, v), nil
}

// promote rebuilds the operational vault set around selected: selected
// becomes the leader (index 0) and every other vault, including the
// former file leader, is renumbered into its partition list in their
// prior relative order. Without this, ToFile's leader-only guard would
// panic the first time a write command selected a partition.
func promote(fileLeader, selected *Vault) *Vault {
	if selected == fileLeader {
		return fileLeader
	}
	all := AllInOrder(fileLeader)
	newPartitions := make([]*Vault, 0, len(all)-1)
	for _, v := range all {
		if v == selected {
			continue
		}
		newPartitions = append(newPartitions, v)
	}
	selected.Kind = KindLeader
	selected.Index = 0
	selected.Partitions = newPartitions
	for i, v := range newPartitions {
		v.Kind = KindPartition
		v.Index = i + 1
	}
	return selected
}

// ToFile serializes leader and its partitions as multiple YAML
// documents separated by "---" document markers (§4.5). Only leaders may
// serialize; calling this on a partition is a programming error.
func ToFile(leader *Vault, path string, mode WriteMode) error {
	if leader.Kind != KindLeader {
		panic("vaultconfig: ToFile called on a non-leader vault")
	}
	if mode == RefuseOverwrite {
		if _, err := os.Stat(path); err == nil {
			return vaulterr.New(vaulterr.ConfigExists, "descriptor %q already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), constants.StandardDirPerms); err != nil {
		return vaulterr.Wrap(vaulterr.IOWrite, err, "could not create parent directory for %q", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return vaulterr.Wrap(vaulterr.IOWrite, err, "could not open %q for writing", path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	docs := AllInOrder(leader)
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return vaulterr.Wrap(vaulterr.ConfigSerde, err, "could not serialize vault %q", doc.DisplayName())
		}
	}
	if err := enc.Close(); err != nil {
		return vaulterr.Wrap(vaulterr.ConfigSerde, err, "could not finalize descriptor %q", path)
	}
	return w.Flush()
}

// NewLeader builds a fresh leader vault with an ambient VaultID
// (google/uuid), ready for ToFile with RefuseOverwrite.
func NewLeader(name, secrets, gpgKeys, recipientsFile, trustModel string, autoImport *bool) *Vault {
	v := newLeaderDefaults()
	v.Name = name
	if secrets != "" {
		v.Secrets = secrets
	}
	v.GPGKeys = gpgKeys
	if recipientsFile != "" {
		v.Recipients = recipientsFile
	}
	if trustModel != "" {
		v.TrustModel = trustModel
	}
	v.AutoImport = autoImport
	v.VaultID = uuid.NewString()
	return v
}
