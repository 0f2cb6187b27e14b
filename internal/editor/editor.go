// Package editor shells out to an external editor for interactive
// secret editing. This is out-of-scope plumbing (§1): the vault core
// only needs "give me bytes" and "hand bytes to an editor and give me
// back what it wrote", so the implementation here is intentionally
// thin.
package editor

import (
	"os"
	"os/exec"

	"github.com/substantialcattle5/syv/internal/vaulterr"
)

// EditEmpty opens editorCmd on a fresh empty temp file and returns
// whatever the editor wrote. Used when stdin is a terminal and no
// source path was given (spec.SourceTerminalEditor).
func EditEmpty(editorCmd string) ([]byte, error) {
	return Edit(editorCmd, nil)
}

// Edit writes initial to a temp file, opens editorCmd on it
// synchronously, and returns the file's final contents. The temp file
// is always removed, regardless of error path (§4.9 step 6).
func Edit(editorCmd string, initial []byte) ([]byte, error) {
	if editorCmd == "" {
		return nil, vaulterr.New(vaulterr.ProviderUnsupported, "no editor configured; set $EDITOR")
	}

	tmp, err := os.CreateTemp("", "syv-edit-*")
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.IOWrite, err, "could not create temporary file for editing")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if len(initial) > 0 {
		if _, err := tmp.Write(initial); err != nil {
			tmp.Close()
			return nil, vaulterr.Wrap(vaulterr.IOWrite, err, "could not seed temporary file for editing")
		}
	}
	if err := tmp.Close(); err != nil {
		return nil, vaulterr.Wrap(vaulterr.IOWrite, err, "could not close temporary file for editing")
	}

	cmd := exec.Command(editorCmd, tmpPath)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, vaulterr.Wrap(vaulterr.ProviderUnsupported, err, "editor %q exited with an error", editorCmd)
	}

	edited, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.IORead, err, "could not read back edited temporary file")
	}
	return edited, nil
}
