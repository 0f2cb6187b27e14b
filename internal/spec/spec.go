// Package spec parses and renders resource specs (src:dst pairs) and
// computes ciphertext filenames, per the vault's on-disk naming rules.
package spec

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/substantialcattle5/syv/internal/vaulterr"
)

// SourceKind tags the three ways a Spec's input can be produced.
type SourceKind int

const (
	// SourceStdin reads the plaintext from standard input.
	SourceStdin SourceKind = iota
	// SourcePath reads the plaintext from a file on disk.
	SourcePath
	// SourceTerminalEditor opens $EDITOR on an empty temp file when
	// stdin is a terminal and no path was given.
	SourceTerminalEditor
)

// Spec is a parsed src:dst resource reference (§3 Resource spec).
type Spec struct {
	SrcKind SourceKind
	SrcPath string // valid when SrcKind == SourcePath
	Dst     string
}

// String renders a Spec back to its src:dst form; Parse(s.String()) == s
// for every successfully parsed spec (round-trip property, §8).
func (s Spec) String() string {
	switch s.SrcKind {
	case SourcePath:
		if s.SrcPath == s.Dst {
			return s.SrcPath
		}
		return fmt.Sprintf("%s:%s", s.SrcPath, s.Dst)
	default:
		return ":" + s.Dst
	}
}

// Parse parses a resource spec per §3's rules.
func Parse(input string) (Spec, error) {
	if input == "" {
		return Spec{}, vaulterr.New(vaulterr.SpecInvalid, "empty spec")
	}

	parts := strings.Split(input, ":")
	switch len(parts) {
	case 1:
		src := parts[0]
		if filepath.IsAbs(src) || hasDotDot(src) {
			return Spec{}, vaulterr.New(vaulterr.SpecInvalid,
				"spec %q has no explicit destination but its source is not a plain relative path; give an explicit dst", input)
		}
		return Spec{SrcKind: SourcePath, SrcPath: src, Dst: src}, nil
	case 2:
		src, dst := parts[0], parts[1]
		if dst == "" {
			if src == "" {
				return Spec{}, vaulterr.New(vaulterr.SpecInvalid, "empty spec")
			}
			if hasDotDot(src) {
				return Spec{}, vaulterr.New(vaulterr.SpecInvalid, "spec %q has a '..' source but no explicit destination", input)
			}
			dst = src
		}
		if filepath.IsAbs(dst) {
			return Spec{}, vaulterr.New(vaulterr.SpecInvalid, "destination %q must be relative", dst)
		}
		if src == "" {
			return Spec{SrcKind: SourceStdin, Dst: dst}, nil
		}
		return Spec{SrcKind: SourcePath, SrcPath: src, Dst: dst}, nil
	default:
		return Spec{}, vaulterr.New(vaulterr.SpecInvalid, "spec %q has more than one ':'", input)
	}
}

func hasDotDot(p string) bool {
	for _, c := range strings.Split(filepath.ToSlash(p), "/") {
		if c == ".." {
			return true
		}
	}
	return false
}

// GPGOutputFilename appends ".gpg" to the filename component of p,
// failing if p has no filename component.
func GPGOutputFilename(p string) (string, error) {
	base := filepath.Base(p)
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "", vaulterr.New(vaulterr.SpecInvalid, "path %q has no filename component", p)
	}
	return filepath.Join(filepath.Dir(p), base+".gpg"), nil
}

// StripExt removes one extension from p (the inverse of appending
// ".gpg" during GPGOutputFilename).
func StripExt(p string) string {
	ext := filepath.Ext(p)
	if ext == "" {
		return p
	}
	return strings.TrimSuffix(p, ext)
}

// Normalize removes "." components and collapses an empty result to
// ".". ".." components are preserved verbatim (they are significant:
// Parse rejects them unless dst is explicit).
func Normalize(p string) string {
	slash := filepath.ToSlash(p)
	parts := strings.Split(slash, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "." || part == "" {
			continue
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return "."
	}
	return filepath.FromSlash(strings.Join(out, "/"))
}
