// Package e2e drives the built syv binary against a real GnuPG
// keyring to exercise the end-to-end scenarios named in the design
// notes: init, add/show, partitions, and recipient lifecycle changes.
package e2e

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// TestVault is a temporary vault directory plus the operator's
// isolated GnuPG home, driven through the built syv binary.
//
// GNUPGHome holds the operator's (ALICE's) secret key and every
// remote recipient's public key, the way an operator's real keyring
// would. Remote recipients generated with GenRemoteKey get their own
// private home (tracked in homes, keyed by fingerprint) holding only
// their own secret key, so ShowAs can decrypt as a non-operator
// identity without that identity's secret key ever touching the
// operator's keyring.
type TestVault struct {
	Path       string
	GNUPGHome  string
	homes      map[string]string
	t          *testing.T
	binaryPath string
}

// NewTestVault creates a temporary vault directory and an isolated
// GnuPG home (so tests never touch the operator's real keyring).
func NewTestVault(t *testing.T) *TestVault {
	t.Helper()

	vaultPath := t.TempDir()
	gnupgHome := newGNUPGHome(t)

	return &TestVault{
		Path:       vaultPath,
		GNUPGHome:  gnupgHome,
		homes:      make(map[string]string),
		t:          t,
		binaryPath: ensureBinary(t),
	}
}

func newGNUPGHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	if err := os.Chmod(home, 0700); err != nil {
		t.Fatalf("could not chmod GNUPGHOME: %v", err)
	}
	return home
}

// ensureBinary builds the syv binary if it doesn't already exist and
// returns its path.
func ensureBinary(t *testing.T) string {
	t.Helper()

	projectRoot := getProjectRoot(t)
	binaryPath := filepath.Join(projectRoot, "syv")

	if _, err := os.Stat(binaryPath); err == nil {
		return binaryPath
	}

	t.Logf("Building syv binary...")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/syv")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("Failed to build syv binary: %v\nOutput: %s", err, output)
	}

	return binaryPath
}

// getProjectRoot finds the module root directory by walking up to the
// nearest go.mod.
func getProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("Could not find module root (no go.mod found)")
		}
		dir = parent
	}
}

// GenKey generates an unprotected OpenPGP key for name <name@example.test>
// directly in the vault's operator keyring and returns its 40-hex
// fingerprint. Use this for the vault owner (ALICE); use GenRemoteKey
// for any identity whose secret key must not be usable from the
// operator's own keyring.
func (v *TestVault) GenKey(t *testing.T, name string) string {
	t.Helper()
	return genKeyIn(t, v.GNUPGHome, name)
}

// GenRemoteKey generates an unprotected OpenPGP key for name in its
// own private GnuPG home, imports only its public key into the
// vault's operator keyring (as if received out-of-band), and records
// the private home so ShowAs can later decrypt as that identity.
// Returns the key's 40-hex fingerprint.
func (v *TestVault) GenRemoteKey(t *testing.T, name string) string {
	t.Helper()

	home := newGNUPGHome(t)
	fpr := genKeyIn(t, home, name)

	armored := runGPG(t, home, nil, "--armor", "--export", fpr)
	runGPG(t, v.GNUPGHome, armored, "--import")

	v.homes[fpr] = home
	return fpr
}

func genKeyIn(t *testing.T, home, name string) string {
	t.Helper()

	batch := fmt.Sprintf(`%%no-protection
Key-Type: RSA
Key-Length: 2048
Name-Real: %s
Name-Email: %s@example.test
Expire-Date: 0
%%commit
`, name, strings.ToLower(name))

	runGPG(t, home, []byte(batch), "--batch", "--gen-key")
	return fingerprintIn(t, home, name)
}

func fingerprintIn(t *testing.T, home, query string) string {
	t.Helper()

	out := runGPG(t, home, nil, "--with-colons", "--fingerprint", query)
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Split(line, ":")
		if len(fields) > 9 && fields[0] == "fpr" {
			return fields[9]
		}
	}
	t.Fatalf("no fingerprint found for %s in %s", query, home)
	return ""
}

// runGPG invokes gpg with GNUPGHOME=home, feeding stdin and returning
// its stdout untrimmed. Stderr (where gpg writes its status chatter) is
// captured separately and only shown when gpg fails.
func runGPG(t *testing.T, home string, stdin []byte, args ...string) []byte {
	t.Helper()

	cmd := exec.Command("gpg", args...)
	cmd.Env = gpgEnvFor(home)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		t.Fatalf("gpg %s failed: %v\n%s", strings.Join(args, " "), err, errOut.String())
	}
	return out.Bytes()
}

func gpgEnvFor(home string) []string {
	env := os.Environ()
	filtered := env[:0]
	for _, e := range env {
		if !strings.HasPrefix(e, "GNUPGHOME=") {
			filtered = append(filtered, e)
		}
	}
	return append(filtered, "GNUPGHOME="+home)
}

func (v *TestVault) gpgEnv() []string {
	return gpgEnvFor(v.GNUPGHome)
}

// Init runs `syv init` in the vault directory.
func (v *TestVault) Init(t *testing.T, extraArgs ...string) (string, string, error) {
	t.Helper()
	args := append([]string{"init"}, extraArgs...)
	return v.RunCommand(t, args...)
}

// Add encrypts specs into the vault.
func (v *TestVault) Add(t *testing.T, specs ...string) (string, string, error) {
	t.Helper()
	args := append([]string{"add"}, specs...)
	return v.RunCommand(t, args...)
}

// Show decrypts spec and returns its plaintext on stdout.
func (v *TestVault) Show(t *testing.T, spec string) (string, string, error) {
	t.Helper()
	return v.RunCommand(t, "show", spec)
}

// RunCommand runs the syv binary with args in the vault directory,
// with no standard input.
func (v *TestVault) RunCommand(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	return v.runWithStdin(t, "", args...)
}

// RunCommandWithStdin is RunCommand but pipes stdinContent to the
// child process's standard input.
func (v *TestVault) RunCommandWithStdin(t *testing.T, stdinContent string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	return v.runWithStdin(t, stdinContent, args...)
}

func (v *TestVault) runWithStdin(t *testing.T, stdinContent string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	return v.runAs(t, v.GNUPGHome, stdinContent, args...)
}

func (v *TestVault) runAs(t *testing.T, home, stdinContent string, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	cmd := exec.Command(v.binaryPath, args...)
	cmd.Dir = v.Path
	cmd.Env = gpgEnvFor(home)
	if stdinContent != "" {
		cmd.Stdin = strings.NewReader(stdinContent)
	}

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err = cmd.Run()
	stdout = outBuf.String()
	stderr = errBuf.String()

	if t.Failed() || testing.Verbose() {
		t.Logf("Command: syv %s", strings.Join(args, " "))
		t.Logf("Working Dir: %s", v.Path)
		t.Logf("Exit: %v", err)
		if stdout != "" {
			t.Logf("Stdout:\n%s", stdout)
		}
		if stderr != "" {
			t.Logf("Stderr:\n%s", stderr)
		}
	}

	return stdout, stderr, err
}

// ShowAs decrypts spec using the given identity's fingerprint: when
// that fingerprint was generated with GenRemoteKey, the decryption
// runs against that identity's own private GnuPG home (which holds
// only its secret key), genuinely exercising whether the identity can
// decrypt rather than relying on the operator's keyring holding every
// secret key. Fingerprints generated with GenKey (the operator) fall
// back to the vault's own keyring.
func (v *TestVault) ShowAs(t *testing.T, fpr, spec string) (string, string, error) {
	t.Helper()
	home, ok := v.homes[fpr]
	if !ok {
		home = v.GNUPGHome
	}
	return v.runAs(t, home, "", "show", spec)
}

// AssertFileExistsAt asserts that relativePath exists under root.
func AssertFileExistsAt(t *testing.T, root, relativePath string) {
	t.Helper()
	if _, err := os.Stat(filepath.Join(root, relativePath)); err != nil {
		t.Fatalf("expected %q to exist: %v", relativePath, err)
	}
}

// AssertFileNotExistsAt asserts that relativePath does not exist
// under root.
func AssertFileNotExistsAt(t *testing.T, root, relativePath string) {
	t.Helper()
	if _, err := os.Stat(filepath.Join(root, relativePath)); err == nil {
		t.Fatalf("expected %q to not exist", relativePath)
	}
}

// ReadFile reads relativePath under the vault directory as a string.
func (v *TestVault) ReadFile(t *testing.T, relativePath string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(v.Path, relativePath))
	if err != nil {
		t.Fatalf("could not read %q: %v", relativePath, err)
	}
	return string(data)
}

// WriteEditorScript writes an executable shell script under the vault
// directory suitable for passing to `edit --editor`, where $1 is the
// temp file path the editor is expected to modify in place.
func (v *TestVault) WriteEditorScript(t *testing.T, name, script string) string {
	t.Helper()
	path := filepath.Join(v.Path, name)
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("could not write editor script %q: %v", name, err)
	}
	return path
}

// CreateFile writes a plaintext file inside the vault directory, for
// specs that read from a source file rather than standard input.
func (v *TestVault) CreateFile(t *testing.T, relativePath, content string) string {
	t.Helper()

	fullPath := filepath.Join(v.Path, relativePath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		t.Fatalf("Failed to create directories for %s: %v", relativePath, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create file %s: %v", relativePath, err)
	}
	return fullPath
}

// AssertOutputContains checks if output contains expected string.
func AssertOutputContains(t *testing.T, output, expected, context string) {
	t.Helper()
	if !strings.Contains(output, expected) {
		t.Errorf("%s: output does not contain expected string.\nExpected substring: %q\nActual output:\n%s",
			context, expected, output)
	}
}

// AssertCommandSuccess checks if command succeeded.
func AssertCommandSuccess(t *testing.T, err error, stderr, context string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: command failed: %v\nStderr: %s", context, err, stderr)
	}
}

// AssertCommandFails checks if command failed as expected.
func AssertCommandFails(t *testing.T, err error, context string) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s: expected command to fail, but it succeeded", context)
	}
}

// InitializeVault creates a vault, generates an owner key ALICE, and
// runs `syv init` seeding that key as the first recipient.
func InitializeVault(t *testing.T) (*TestVault, string) {
	t.Helper()

	vault := NewTestVault(t)
	aliceFpr := vault.GenKey(t, "ALICE")

	_, stderr, err := vault.Init(t, "--name", "test-vault", "--gpg-keys", ".gpg-keys", "-i", aliceFpr)
	AssertCommandSuccess(t, err, stderr, "vault initialization")

	return vault, aliceFpr
}
