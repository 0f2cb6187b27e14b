package recipientlc

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/substantialcattle5/syv/internal/cryptopipe"
	"github.com/substantialcattle5/syv/internal/pgpprovider/pgptest"
	"github.com/substantialcattle5/syv/internal/recipients"
	"github.com/substantialcattle5/syv/internal/spec"
	"github.com/substantialcattle5/syv/internal/vaultconfig"
	"github.com/substantialcattle5/syv/testutil"
)

const (
	aliceFpr = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	bobFpr   = "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
)

func newLeader(t *testing.T, recipientFprs ...string) *vaultconfig.Vault {
	t.Helper()
	dir := testutil.TempDir(t, "recipientlc")
	leader := testutil.CreateTestLeader(t, dir, "vault")
	if err := recipients.WriteAllowEmpty(leader.RecipientsFilePath(), recipientFprs); err != nil {
		t.Fatalf("seed recipients: %v", err)
	}
	return leader
}

func TestAddRecipientsRequiresIDs(t *testing.T) {
	provider := pgptest.New()
	leader := newLeader(t, aliceFpr)

	err := AddRecipients(provider, leader, []*vaultconfig.Vault{leader}, AddOptions{}, &bytes.Buffer{}, true)
	if err == nil {
		t.Fatal("expected an error for empty IDs")
	}
}

func TestAddRecipientsAppendsAndReencrypts(t *testing.T) {
	provider := pgptest.New()
	provider.AddKey(aliceFpr, []string{"alice"}, true)
	provider.AddKey(bobFpr, []string{"bob"}, true)

	leader := newLeader(t, aliceFpr)

	s, err := spec.Parse(":one")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	path, err := cryptopipe.EncryptResource(provider, leader, s, []byte("hello"), vaultconfig.RefuseOverwrite)
	if err != nil {
		t.Fatalf("EncryptResource: %v", err)
	}

	err = AddRecipients(provider, leader, []*vaultconfig.Vault{leader}, AddOptions{
		IDs: []string{bobFpr}, Signing: SigningNone,
	}, &bytes.Buffer{}, true)
	if err != nil {
		t.Fatalf("AddRecipients: %v", err)
	}

	fprs, err := recipients.Read(leader.RecipientsFilePath())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !recipients.Contains(fprs, aliceFpr) || !recipients.Contains(fprs, bobFpr) {
		t.Fatalf("expected both recipients present, got %v", fprs)
	}

	ciphertext, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	header := string(ciphertext[:bytes.IndexByte(ciphertext, '\n')])
	if !strings.Contains(header, bobFpr) {
		t.Fatalf("expected re-encrypted ciphertext to be tagged for bob, got %q", header)
	}
}

func TestAddRecipientsRejectsUnknownKey(t *testing.T) {
	provider := pgptest.New()
	provider.AddKey(aliceFpr, []string{"alice"}, true)
	leader := newLeader(t, aliceFpr)

	err := AddRecipients(provider, leader, []*vaultconfig.Vault{leader}, AddOptions{
		IDs: []string{"DEADBEEF"},
	}, &bytes.Buffer{}, true)
	if err == nil {
		t.Fatal("expected an error for an unresolved key id")
	}
}

func TestRemoveRecipientsDropsFingerprintAndReencrypts(t *testing.T) {
	provider := pgptest.New()
	provider.AddKey(aliceFpr, []string{"alice"}, true)
	provider.AddKey(bobFpr, []string{"bob"}, true)

	leader := newLeader(t, aliceFpr, bobFpr)

	s, err := spec.Parse(":one")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	path, err := cryptopipe.EncryptResource(provider, leader, s, []byte("hello"), vaultconfig.RefuseOverwrite)
	if err != nil {
		t.Fatalf("EncryptResource: %v", err)
	}

	err = RemoveRecipients(provider, leader, []*vaultconfig.Vault{leader}, []string{bobFpr}, &bytes.Buffer{}, true)
	if err != nil {
		t.Fatalf("RemoveRecipients: %v", err)
	}

	fprs, err := recipients.Read(leader.RecipientsFilePath())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if recipients.Contains(fprs, bobFpr) {
		t.Fatalf("expected bob to be removed, got %v", fprs)
	}
	if !recipients.Contains(fprs, aliceFpr) {
		t.Fatalf("expected alice to remain, got %v", fprs)
	}

	ciphertext, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	header := string(ciphertext[:bytes.IndexByte(ciphertext, '\n')])
	if strings.Contains(header, bobFpr) {
		t.Fatalf("expected re-encrypted ciphertext to drop bob, got %q", header)
	}
}

func TestRemoveRecipientsRejectsNonRecipient(t *testing.T) {
	provider := pgptest.New()
	provider.AddKey(aliceFpr, []string{"alice"}, true)
	provider.AddKey(bobFpr, []string{"bob"}, true)
	leader := newLeader(t, aliceFpr)

	err := RemoveRecipients(provider, leader, []*vaultconfig.Vault{leader}, []string{bobFpr}, &bytes.Buffer{}, true)
	if err == nil {
		t.Fatal("expected an error removing a non-recipient")
	}
}

func TestSelectSigningKeyPicksUniqueCandidate(t *testing.T) {
	provider := pgptest.New()
	provider.AddKey(aliceFpr, []string{"alice"}, true)
	leader := newLeader(t, aliceFpr)

	key, err := selectSigningKey(provider, leader, "")
	if err != nil {
		t.Fatalf("selectSigningKey: %v", err)
	}
	if provider.Fingerprint(key) != aliceFpr {
		t.Fatalf("expected alice, got %q", provider.Fingerprint(key))
	}
}

func TestSelectSigningKeyAmbiguous(t *testing.T) {
	provider := pgptest.New()
	provider.AddKey(aliceFpr, []string{"alice"}, true)
	provider.AddKey(bobFpr, []string{"bob"}, true)
	leader := newLeader(t, aliceFpr, bobFpr)

	if _, err := selectSigningKey(provider, leader, ""); err == nil {
		t.Fatal("expected an ambiguity error with two candidate signers")
	}
}

func TestInitRecipientsExportsOwnKeys(t *testing.T) {
	provider := pgptest.New()
	provider.AddKey(aliceFpr, []string{"alice"}, true)
	leader := newLeader(t)

	var out bytes.Buffer
	if err := InitRecipients(provider, leader, []string{aliceFpr}, &out); err != nil {
		t.Fatalf("InitRecipients: %v", err)
	}
	gpgDir, err := leader.GPGKeysDir(leader)
	if err != nil {
		t.Fatalf("GPGKeysDir: %v", err)
	}
	testutil.AssertFileExists(t, filepath.Join(gpgDir, aliceFpr))
}

func TestListRecipientsText(t *testing.T) {
	provider := pgptest.New()
	provider.AddKey(aliceFpr, []string{"alice"}, true)
	leader := newLeader(t, aliceFpr)

	var out bytes.Buffer
	if err := ListRecipients(provider, leader, vaultconfig.AllInOrder(leader), "text", &out); err != nil {
		t.Fatalf("ListRecipients: %v", err)
	}
	if !strings.Contains(out.String(), aliceFpr) {
		t.Fatalf("expected listing to contain %q, got %q", aliceFpr, out.String())
	}
}

func TestListRecipientsYAML(t *testing.T) {
	provider := pgptest.New()
	provider.AddKey(aliceFpr, []string{"alice"}, true)
	leader := newLeader(t, aliceFpr)

	var out bytes.Buffer
	if err := ListRecipients(provider, leader, vaultconfig.AllInOrder(leader), "yaml", &out); err != nil {
		t.Fatalf("ListRecipients: %v", err)
	}
	if !strings.Contains(out.String(), "partition:") {
		t.Fatalf("expected yaml listing, got %q", out.String())
	}
}
