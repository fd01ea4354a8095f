package manifest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

const (
	testDigestMac   = "ca978112ca1bbdcafac231b39a23dc4da786eff8147c4e72b9807785afee48bb"
	testDigestLinux = "3e23e8160039594a33894f6564e1b1348bbd7a0088d42c4acb73eeaed59c009d"
)

const multiQueryFormula = `
formula = {
  name = "multi-query",
  version = "0.0.8",
  desc = "Multi-database query executor with unified JSON output",
  homepage = "https://github.com/w00fmeow/multi-query",
  variants = {
    { os = OS.macos, url = "https://github.com/w00fmeow/multi-query/releases/download/#{version}/multi-query-#{version}-x86_64-apple-darwin.tar.gz", sha256 = "` + testDigestMac + `" },
    { os = OS.linux, url = "https://github.com/w00fmeow/multi-query/releases/download/#{version}/multi-query-#{version}-x86_64-unknown-linux-musl.tar.gz", sha256 = "` + testDigestLinux + `" },
  },
  conflicts_with = "multi-query",
  install = {
    { from = "multi-query", kind = kind.binary },
    { from = "doc/multi-query.1", kind = kind.man_page },
    { from = "complete/multi-query.bash", kind = kind.completion_bash, as = "multi-query" },
    { from = "complete/_multi-query", kind = kind.completion_zsh },
    { from = "complete/multi-query.fish", kind = kind.completion_fish },
  },
}
`

func TestParseString_MultiQuery(t *testing.T) {
	m, err := NewParser().ParseString(context.Background(), multiQueryFormula)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}

	if m.Name != "multi-query" {
		t.Errorf("Name = %q, want multi-query", m.Name)
	}
	if m.Version != "0.0.8" {
		t.Errorf("Version = %q, want 0.0.8", m.Version)
	}
	if m.Description != "Multi-database query executor with unified JSON output" {
		t.Errorf("Description = %q", m.Description)
	}
	if len(m.Variants) != 2 {
		t.Fatalf("len(Variants) = %d, want 2", len(m.Variants))
	}
	if m.Variants[0].OS != OSMacOS || m.Variants[1].OS != OSLinux {
		t.Errorf("variant order = %s, %s; want macos, linux", m.Variants[0].OS, m.Variants[1].OS)
	}
	if m.Variants[0].Arch != DefaultArch {
		t.Errorf("Arch = %q, want default %q", m.Variants[0].Arch, DefaultArch)
	}
	wantURL := "https://github.com/w00fmeow/multi-query/releases/download/0.0.8/multi-query-0.0.8-x86_64-apple-darwin.tar.gz"
	if got := m.Variants[0].URL(m.Version); got != wantURL {
		t.Errorf("URL() = %q, want %q", got, wantURL)
	}
	if len(m.Conflicts) != 1 || m.Conflicts[0] != "multi-query" {
		t.Errorf("Conflicts = %v", m.Conflicts)
	}

	wantRules := []InstallRule{
		{From: "multi-query", Kind: KindBinary},
		{From: "doc/multi-query.1", Kind: KindManPage},
		{From: "complete/multi-query.bash", Kind: KindCompletionBash, As: "multi-query"},
		{From: "complete/_multi-query", Kind: KindCompletionZsh},
		{From: "complete/multi-query.fish", Kind: KindCompletionFish},
	}
	if len(m.InstallRules) != len(wantRules) {
		t.Fatalf("len(InstallRules) = %d, want %d", len(m.InstallRules), len(wantRules))
	}
	for i, want := range wantRules {
		if m.InstallRules[i] != want {
			t.Errorf("InstallRules[%d] = %+v, want %+v", i, m.InstallRules[i], want)
		}
	}
}

func TestParseString_Errors(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		wantParse bool
		wantValid bool
	}{
		{
			name:      "syntax_error",
			code:      `formula = {`,
			wantParse: true,
		},
		{
			name:      "missing_formula_table",
			code:      `x = 1`,
			wantParse: true,
		},
		{
			name:      "wrong_field_type",
			code:      `formula = { name = 42, variants = {} }`,
			wantParse: true,
		},
		{
			name:      "variant_not_a_table",
			code:      `formula = { name = "x", variants = { "linux" } }`,
			wantParse: true,
		},
		{
			name:      "no_variants",
			code:      `formula = { name = "x", version = "1.0.0" }`,
			wantValid: true,
		},
		{
			name: "bad_kind",
			code: `formula = { name = "x", version = "1.0.0",
				variants = { { os = OS.linux, url = "https://e.com/{version}.tar.gz" } },
				install = { { from = "x", kind = "library" } } }`,
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().ParseString(context.Background(), tt.code)
			if err == nil {
				t.Fatal("expected error but got none")
			}

			var parseErr *ParseError
			var validErr *ValidationError
			if tt.wantParse && !errors.As(err, &parseErr) {
				t.Errorf("expected *ParseError, got %T: %v", err, err)
			}
			if tt.wantValid && !errors.As(err, &validErr) {
				t.Errorf("expected *ValidationError, got %T: %v", err, err)
			}
		})
	}
}

func TestParseString_Sandbox(t *testing.T) {
	forbidden := []string{
		`os.execute("true")`,
		`io.open("/etc/passwd")`,
		`require("socket")`,
		`dofile("/tmp/x.lua")`,
		`loadstring("return 1")()`,
		`debug.getinfo(1)`,
	}

	for _, code := range forbidden {
		t.Run(code, func(t *testing.T) {
			_, err := NewParser().ParseString(context.Background(), code)
			if err == nil {
				t.Fatalf("expected sandbox to reject %q", code)
			}
		})
	}
}

func TestParseString_ConstantsAreReadOnly(t *testing.T) {
	code := `OS.macos = "linux"`
	_, err := NewParser().ParseString(context.Background(), code)
	if err == nil {
		t.Fatal("expected error writing to OS table")
	}
	if !strings.Contains(err.Error(), "read-only") {
		t.Errorf("error = %v, want read-only message", err)
	}
}

func TestParseString_ContextTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewParser().ParseString(ctx, `while true do end`)
	if err == nil {
		t.Fatal("expected runaway formula to be interrupted")
	}
}

func TestParseString_RunawayFormulaTimesOut(t *testing.T) {
	p := &Parser{timeout: 50 * time.Millisecond}

	start := time.Now()
	_, err := p.ParseString(context.Background(), `while true do end`)
	if err == nil {
		t.Fatal("expected runaway formula to be interrupted without a caller deadline")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("evaluation ran for %v", elapsed)
	}
}

func TestParseString_AliasesAndDedup(t *testing.T) {
	code := `
formula = {
  name = "tool",
  version = "1.2.3",
  variants = { { os = "darwin", arch = "aarch64", url = "https://e.com/{version}/{arch}.tar.gz" } },
  conflicts = { "legacy-tool", "legacy-tool" },
}
`
	m, err := NewParser().ParseString(context.Background(), code)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	if len(m.Conflicts) != 1 || m.Conflicts[0] != "legacy-tool" {
		t.Errorf("Conflicts = %v, want [legacy-tool]", m.Conflicts)
	}
	if m.Variants[0].OS != OSMacOS || m.Variants[0].Arch != "arm64" {
		t.Errorf("variant = %s/%s, want macos/arm64", m.Variants[0].OS, m.Variants[0].Arch)
	}
	if !m.IsDraft() {
		t.Error("manifest without digests should be a draft")
	}
}

func TestFormatError(t *testing.T) {
	err := &ParseError{Message: "Lua syntax error", Detail: "line 1: bad\nstack traceback:\n\t[G]: ?"}

	short := FormatError(err, false)
	if strings.Contains(short, "stack traceback") {
		t.Errorf("non-verbose output should strip traceback: %q", short)
	}

	long := FormatError(err, true)
	if !strings.Contains(long, "Details:") {
		t.Errorf("verbose output should include details: %q", long)
	}
}
