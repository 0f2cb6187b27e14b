// Package testutil provides common testing utilities shared across the
// module's package-level test suites.
package testutil

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/substantialcattle5/syv/internal/vaultconfig"
)

// TempDir creates a temporary directory for testing.
func TempDir(t *testing.T, prefix string) string {
	t.Helper()
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	t.Cleanup(func() {
		if err := os.RemoveAll(dir); err != nil {
			t.Errorf("Failed to clean up temp dir %s: %v", dir, err)
		}
	})

	return dir
}

// CreateTestFile creates a test file with specified content.
func CreateTestFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	filePath := filepath.Join(dir, filename)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		t.Fatalf("Failed to create directory for test file: %v", err)
	}

	if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test file %s: %v", filePath, err)
	}

	return filePath
}

// CreateTestLeader builds a single-document leader vault rooted at dir,
// with secrets and recipients resolved underneath it, ready for
// vaultconfig.ToFile or direct use in package tests.
func CreateTestLeader(t *testing.T, dir, name string) *vaultconfig.Vault {
	t.Helper()

	leader := vaultconfig.NewLeader(name, ".", "gpg_keys", ".gpg-id", vaultconfig.TrustAlways, nil)
	leader.ResolvedAt = vaultconfig.Normalize(dir)

	if err := os.MkdirAll(leader.SecretsPath(), 0755); err != nil {
		t.Fatalf("Failed to create secrets dir: %v", err)
	}
	return leader
}

// AssertFileExists checks if a file exists and fails the test if it doesn't.
func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("Expected file %s to exist, but it doesn't", path)
	}
}

// AssertFileNotExists checks if a file doesn't exist and fails the test if it does.
func AssertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("Expected file %s to not exist, but it does", path)
	}
}

// AssertDirExists checks if a directory exists and fails the test if it doesn't.
func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Fatalf("Expected directory %s to exist, but it doesn't", path)
	}
	if err != nil {
		t.Fatalf("Error checking directory %s: %v", path, err)
	}
	if !info.IsDir() {
		t.Fatalf("Expected %s to be a directory, but it's not", path)
	}
}

// AssertFileContains checks if a file contains specific content.
func AssertFileContains(t *testing.T, path, expectedContent string) {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}

	if !strings.Contains(string(content), expectedContent) {
		t.Fatalf("File %s does not contain expected content '%s'", path, expectedContent)
	}
}

// CaptureOutput captures stdout/stderr for testing CLI commands.
func CaptureOutput(t *testing.T, fn func()) (stdout, stderr string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("Failed to create stdout pipe: %v", err)
	}

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("Failed to create stderr pipe: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	stdoutCh := make(chan string)
	stderrCh := make(chan string)

	go func() {
		defer close(stdoutCh)
		output, _ := io.ReadAll(stdoutR)
		stdoutCh <- string(output)
	}()

	go func() {
		defer close(stderrCh)
		output, _ := io.ReadAll(stderrR)
		stderrCh <- string(output)
	}()

	fn()

	stdoutW.Close()
	stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdout = <-stdoutCh
	stderr = <-stderrCh

	stdoutR.Close()
	stderrR.Close()

	return stdout, stderr
}

// SkipIfShort skips the test if running in short mode.
func SkipIfShort(t *testing.T, reason string) {
	t.Helper()
	if testing.Short() {
		t.Skipf("Skipping test in short mode: %s", reason)
	}
}

// CompareBytes compares two byte slices and reports differences.
func CompareBytes(t *testing.T, expected, actual []byte, context string) {
	t.Helper()

	if len(expected) != len(actual) {
		t.Fatalf("%s: length mismatch - expected %d bytes, got %d bytes",
			context, len(expected), len(actual))
	}

	for i := 0; i < len(expected); i++ {
		if expected[i] != actual[i] {
			t.Fatalf("%s: byte mismatch at position %d - expected %02x, got %02x",
				context, i, expected[i], actual[i])
		}
	}
}
