package manifest

import (
	"errors"
	"strings"
	"testing"
)

func validManifest() *Manifest {
	return &Manifest{
		Name:    "multi-query",
		Version: "0.0.8",
		Variants: []Variant{
			{OS: OSMacOS, Arch: "x86_64", URLTemplate: "https://example.com/#{version}/mq-darwin.tar.gz", SHA256: testDigestMac},
			{OS: OSLinux, Arch: "x86_64", URLTemplate: "https://example.com/#{version}/mq-linux.tar.gz", SHA256: testDigestLinux},
		},
		Conflicts: []string{"multi-query"},
		InstallRules: []InstallRule{
			{From: "multi-query", Kind: KindBinary},
			{From: "doc/multi-query.1", Kind: KindManPage},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(m *Manifest)
		wantField string
		wantMsg   string
	}{
		{
			name:   "valid",
			mutate: func(m *Manifest) {},
		},
		{
			name:   "draft_is_structurally_valid",
			mutate: func(m *Manifest) { m.Version = ""; m.Variants[0].SHA256 = "TBD" },
		},
		{
			name:      "bad_name",
			mutate:    func(m *Manifest) { m.Name = "Multi Query" },
			wantField: "name",
		},
		{
			name:      "bad_version",
			mutate:    func(m *Manifest) { m.Version = "latest" },
			wantField: "version",
		},
		{
			name:      "bad_homepage_scheme",
			mutate:    func(m *Manifest) { m.Homepage = "ftp://example.com" },
			wantField: "homepage",
		},
		{
			name:      "no_variants",
			mutate:    func(m *Manifest) { m.Variants = nil },
			wantField: "variants",
		},
		{
			name:      "unknown_os",
			mutate:    func(m *Manifest) { m.Variants[0].OS = "windows" },
			wantField: "variants[0].os",
		},
		{
			name:      "missing_version_placeholder",
			mutate:    func(m *Manifest) { m.Variants[1].URLTemplate = "https://example.com/latest.tar.gz" },
			wantField: "variants[1].url_template",
			wantMsg:   "placeholder",
		},
		{
			name:      "unsupported_scheme",
			mutate:    func(m *Manifest) { m.Variants[0].URLTemplate = "ftp://example.com/{version}.tar.gz" },
			wantField: "variants[0].url_template",
		},
		{
			name:      "short_digest",
			mutate:    func(m *Manifest) { m.Variants[0].SHA256 = "abc123" },
			wantField: "variants[0].sha256",
		},
		{
			name:      "duplicate_platform",
			mutate:    func(m *Manifest) { m.Variants[1].OS = OSMacOS },
			wantField: "variants[1]",
			wantMsg:   "already matched by variants[0]",
		},
		{
			name:      "bad_conflict_name",
			mutate:    func(m *Manifest) { m.Conflicts = []string{"../etc"} },
			wantField: "conflicts[0]",
		},
		{
			name:      "unknown_kind",
			mutate:    func(m *Manifest) { m.InstallRules[0].Kind = "library" },
			wantField: "install_rules[0].kind",
		},
		{
			name:      "absolute_from",
			mutate:    func(m *Manifest) { m.InstallRules[0].From = "/usr/bin/mq" },
			wantField: "install_rules[0].from",
		},
		{
			name:      "traversal_from",
			mutate:    func(m *Manifest) { m.InstallRules[1].From = "doc/../../etc/passwd" },
			wantField: "install_rules[1].from",
			wantMsg:   "traversal",
		},
		{
			name:      "as_with_separator",
			mutate:    func(m *Manifest) { m.InstallRules[1].As = "man1/mq.1" },
			wantField: "install_rules[1].as",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validManifest()
			tt.mutate(m)

			err := m.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error = %v", err)
				}
				return
			}

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if vErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", vErr.Field, tt.wantField)
			}
			if tt.wantMsg != "" && !strings.Contains(vErr.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want substring %q", vErr.Message, tt.wantMsg)
			}
		})
	}
}

func TestValidate_DistinctArchitecturesAllowed(t *testing.T) {
	m := validManifest()
	m.Variants = append(m.Variants, Variant{
		OS:          OSMacOS,
		Arch:        "aarch64",
		URLTemplate: "https://example.com/{version}/mq-darwin-arm64.tar.gz",
	})
	m.Normalize()

	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidatePackageName(t *testing.T) {
	valid := []string{"multi-query", "ripgrep", "yq.v4", "g++", "a"}
	for _, name := range valid {
		if err := ValidatePackageName(name); err != nil {
			t.Errorf("ValidatePackageName(%q) error = %v", name, err)
		}
	}

	invalid := []string{"", "-leading", "Upper", "with space", "a/b", strings.Repeat("x", 129)}
	for _, name := range invalid {
		if err := ValidatePackageName(name); err == nil {
			t.Errorf("ValidatePackageName(%q) expected error", name)
		}
	}
}

func TestIsHexDigest(t *testing.T) {
	if !IsHexDigest(testDigestMac) {
		t.Error("expected valid digest")
	}
	if IsHexDigest(testDigestMac[:63]) {
		t.Error("63 characters should not be a digest")
	}
	if IsHexDigest(strings.Repeat("g", 64)) {
		t.Error("non-hex characters should not be a digest")
	}
}
