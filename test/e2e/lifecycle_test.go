package e2e

import (
	"strings"
	"testing"
)

// TestInitSeedsRecipientAndKeyFile covers scenario 1: init with an
// initial recipient writes the descriptor, the recipients list, and
// exports the key to gpg_keys.
func TestInitSeedsRecipientAndKeyFile(t *testing.T) {
	vault, aliceFpr := InitializeVault(t)

	AssertFileExistsAt(t, vault.Path, "syv.yml")
	AssertFileExistsAt(t, vault.Path, ".gpg-id")
	AssertFileExistsAt(t, vault.Path, ".gpg-keys/"+aliceFpr)

	content := vault.ReadFile(t, ".gpg-id")
	if strings.TrimSpace(content) != aliceFpr {
		t.Errorf("expected .gpg-id to contain %q, got %q", aliceFpr, content)
	}
}

// TestAddShowRoundTrip covers scenario 2: adding a resource from
// standard input and showing it round-trips the plaintext.
func TestAddShowRoundTrip(t *testing.T) {
	vault, _ := InitializeVault(t)

	stdout, stderr, err := vault.RunCommandWithStdin(t, "hello", "add", ":secret/one")
	AssertCommandSuccess(t, err, stderr, "add :secret/one")
	AssertOutputContains(t, stdout, "secret/one.gpg", "add should report the written path")

	AssertFileExistsAt(t, vault.Path, "secret/one.gpg")

	stdout, stderr, err = vault.Show(t, "secret/one")
	AssertCommandSuccess(t, err, stderr, "show secret/one")
	if stdout != "hello" {
		t.Errorf("expected decrypted content %q, got %q", "hello", stdout)
	}
}

// TestPartitionRestrictsRecipients covers scenario 3: a partition
// seeded with only BOB as a recipient encrypts resources that BOB can
// read but ALICE (owner, not a partition recipient) cannot.
func TestPartitionRestrictsRecipients(t *testing.T) {
	vault, _ := InitializeVault(t)
	bobFpr := vault.GenRemoteKey(t, "BOB")

	_, stderr, err := vault.RunCommand(t, "partitions", "add", "p", "--gpg-key-id", bobFpr)
	AssertCommandSuccess(t, err, stderr, "partitions add p")

	_, stderr, err = vault.RunCommandWithStdin(t, "bobs-secret", "add", ":p/x")
	AssertCommandSuccess(t, err, stderr, "add :p/x")

	stdout, stderr, err := vault.ShowAs(t, bobFpr, "p/x")
	AssertCommandSuccess(t, err, stderr, "show p/x as Bob")
	if stdout != "bobs-secret" {
		t.Errorf("expected %q, got %q", "bobs-secret", stdout)
	}

	// ALICE is the vault's operator key but is not a recipient of
	// partition p, so decrypting as her must fail.
	_, stderr, err = vault.Show(t, "p/x")
	AssertCommandFails(t, err, "show p/x as non-recipient")
	AssertOutputContains(t, stderr, "ask an existing recipient", "should hint how to gain access")
}

// TestRecipientsAddImportsSignsAndReEncrypts covers scenario 4:
// recipients add imports and signs an unverified key, appends its
// fingerprint, and re-encrypts existing secrets for it.
func TestRecipientsAddImportsSignsAndReEncrypts(t *testing.T) {
	vault, _ := InitializeVault(t)
	carolFpr := vault.GenRemoteKey(t, "CAROL")

	// Export Carol's key into gpg_keys the way an out-of-band channel
	// would, so `recipients add` can import it from there.
	_, stderr, err := vault.RunCommand(t, "recipients", "init", "-i", carolFpr)
	AssertCommandSuccess(t, err, stderr, "recipients init -i CAROL (seed gpg_keys)")

	_, stderr, err = vault.RunCommandWithStdin(t, "shared", "add", ":secret/two")
	AssertCommandSuccess(t, err, stderr, "add :secret/two")

	_, stderr, err = vault.RunCommand(t, "recipients", "add", "-i", carolFpr)
	AssertCommandSuccess(t, err, stderr, "recipients add -i CAROL")

	idList := vault.ReadFile(t, ".gpg-id")
	AssertOutputContains(t, idList, carolFpr, ".gpg-id should list Carol")

	stdout, stderr, err := vault.ShowAs(t, carolFpr, "secret/two")
	AssertCommandSuccess(t, err, stderr, "show secret/two as Carol")
	if stdout != "shared" {
		t.Errorf("expected %q, got %q", "shared", stdout)
	}
}

// TestRecipientsRemoveRevokesAccess covers scenario 5: removing a
// recipient drops their fingerprint and their key file (when no other
// partition references it), and re-encrypts for the remaining set.
func TestRecipientsRemoveRevokesAccess(t *testing.T) {
	vault, _ := InitializeVault(t)
	carolFpr := vault.GenRemoteKey(t, "CAROL")

	_, stderr, err := vault.RunCommand(t, "recipients", "init", "-i", carolFpr)
	AssertCommandSuccess(t, err, stderr, "recipients init -i CAROL")
	_, stderr, err = vault.RunCommand(t, "recipients", "add", "-i", carolFpr)
	AssertCommandSuccess(t, err, stderr, "recipients add -i CAROL")

	_, stderr, err = vault.RunCommandWithStdin(t, "still-here", "add", ":secret/three")
	AssertCommandSuccess(t, err, stderr, "add :secret/three")

	_, stderr, err = vault.RunCommand(t, "recipients", "remove", "-i", carolFpr, "--yes")
	AssertCommandSuccess(t, err, stderr, "recipients remove -i CAROL")

	idList := vault.ReadFile(t, ".gpg-id")
	if strings.Contains(idList, carolFpr) {
		t.Errorf(".gpg-id should no longer list Carol, got %q", idList)
	}
	AssertFileNotExistsAt(t, vault.Path, ".gpg-keys/"+carolFpr)

	stdout, stderr, err := vault.Show(t, "secret/three")
	AssertCommandSuccess(t, err, stderr, "show secret/three as Alice")
	if stdout != "still-here" {
		t.Errorf("expected %q, got %q", "still-here", stdout)
	}

	_, stderr, err = vault.ShowAs(t, carolFpr, "secret/three")
	AssertCommandFails(t, err, "show secret/three as revoked Carol")
}

// TestEditPreservesOnEditorFailure covers scenario 6: a successful
// edit replaces the plaintext; an editor that exits non-zero leaves
// the prior ciphertext untouched.
func TestEditPreservesOnEditorFailure(t *testing.T) {
	vault, _ := InitializeVault(t)

	_, stderr, err := vault.RunCommandWithStdin(t, "hello", "add", ":secret/one")
	AssertCommandSuccess(t, err, stderr, "add :secret/one")

	failEditor := vault.WriteEditorScript(t, "fail-editor.sh", "#!/bin/sh\nexit 7\n")
	_, _, err = vault.RunCommand(t, "edit", "secret/one", "--editor", failEditor)
	AssertCommandFails(t, err, "edit with failing editor")

	stdout, stderr, err := vault.Show(t, "secret/one")
	AssertCommandSuccess(t, err, stderr, "show secret/one after failed edit")
	if stdout != "hello" {
		t.Errorf("expected content to survive a failed edit, got %q", stdout)
	}

	okEditor := vault.WriteEditorScript(t, "ok-editor.sh", `#!/bin/sh
printf 'world\n' > "$1"
`)
	_, stderr, err = vault.RunCommand(t, "edit", "secret/one", "--editor", okEditor)
	AssertCommandSuccess(t, err, stderr, "edit with succeeding editor")

	stdout, stderr, err = vault.Show(t, "secret/one")
	AssertCommandSuccess(t, err, stderr, "show secret/one after edit")
	if stdout != "world\n" {
		t.Errorf("expected %q, got %q", "world\n", stdout)
	}
}

// TestInitRefusesExistingDescriptor checks that init does not clobber
// an existing descriptor.
func TestInitRefusesExistingDescriptor(t *testing.T) {
	vault, _ := InitializeVault(t)

	_, stderr, err := vault.Init(t, "--name", "test-vault")
	AssertCommandFails(t, err, "re-running init over an existing descriptor")
	if stderr == "" {
		t.Error("expected an error message about the existing descriptor")
	}
}

// TestListShowsLeaderAndPartitions exercises the `list` command across
// a leader with one partition.
func TestListShowsLeaderAndPartitions(t *testing.T) {
	vault, _ := InitializeVault(t)
	bobFpr := vault.GenKey(t, "BOB")

	_, stderr, err := vault.RunCommand(t, "partitions", "add", "p", "--name", "desert-cache", "--gpg-key-id", bobFpr)
	AssertCommandSuccess(t, err, stderr, "partitions add p")

	stdout, stderr, err := vault.RunCommand(t, "list")
	AssertCommandSuccess(t, err, stderr, "list")
	AssertOutputContains(t, stdout, "syv://", "list should print vault URLs")
	AssertOutputContains(t, stdout, "desert-cache", "list should include the named partition")
}
