package spec

import "testing"

func TestParseRoundTrip(t *testing.T) {
	cases := []string{"secret/one", "src:secret/one", ":secret/one"}
	for _, in := range cases {
		s, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		out := s.String()
		s2, err := Parse(out)
		if err != nil {
			t.Fatalf("Parse(render(%q)=%q): %v", in, out, err)
		}
		if s2 != s {
			t.Fatalf("round-trip mismatch for %q: %+v != %+v", in, s, s2)
		}
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := Parse(""); err == nil {
		t.Fatalf("expected error for empty spec")
	}
	if _, err := Parse(":"); err == nil {
		t.Fatalf("expected error for empty spec via bare colon")
	}
}

func TestParseTooManyColons(t *testing.T) {
	if _, err := Parse("a:b:c"); err == nil {
		t.Fatalf("expected error for more than one colon")
	}
}

func TestParseMissingSrc(t *testing.T) {
	s, err := Parse(":secret/one")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.SrcKind != SourceStdin {
		t.Fatalf("expected stdin source, got %v", s.SrcKind)
	}
	if s.Dst != "secret/one" {
		t.Fatalf("unexpected dst: %q", s.Dst)
	}
}

func TestParseMissingDst(t *testing.T) {
	s, err := Parse("secret/one")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Dst != "secret/one" || s.SrcPath != "secret/one" {
		t.Fatalf("expected dst defaulted to src, got %+v", s)
	}
}

func TestParseDotDotRequiresExplicitDst(t *testing.T) {
	if _, err := Parse("../outside"); err == nil {
		t.Fatalf("expected error for .. without explicit dst")
	}
	s, err := Parse("../outside:inside")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Dst != "inside" {
		t.Fatalf("unexpected dst: %q", s.Dst)
	}
}

func TestGPGOutputFilename(t *testing.T) {
	out, err := GPGOutputFilename("secret/one")
	if err != nil {
		t.Fatalf("GPGOutputFilename: %v", err)
	}
	if out != "secret/one.gpg" {
		t.Fatalf("unexpected output filename: %q", out)
	}

	out, err = GPGOutputFilename("secret/one.txt")
	if err != nil {
		t.Fatalf("GPGOutputFilename: %v", err)
	}
	if out != "secret/one.txt.gpg" {
		t.Fatalf("unexpected output filename: %q", out)
	}
}

func TestStripExt(t *testing.T) {
	if got := StripExt("secret/one.gpg"); got != "secret/one" {
		t.Fatalf("unexpected stripped path: %q", got)
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"./a/./b": "a/b",
		"":        ".",
		".":       ".",
		"../a":    "../a",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
