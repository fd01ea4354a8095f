package platform

import (
	"errors"
	"strings"
	"testing"

	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
)

func testManifest() *manifest.Manifest {
	return &manifest.Manifest{
		Name:    "multi-query",
		Version: "0.0.8",
		Variants: []manifest.Variant{
			{OS: manifest.OSMacOS, URLTemplate: "https://example.com/{version}/mq-x86_64-apple-darwin.tar.gz"},
			{OS: manifest.OSLinux, URLTemplate: "https://example.com/{version}/mq-x86_64-unknown-linux-musl.tar.gz"},
			{OS: manifest.OSMacOS, Arch: "arm64", URLTemplate: "https://example.com/{version}/mq-aarch64-apple-darwin.tar.gz"},
		},
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		host    *Info
		wantURL string
	}{
		{
			name:    "macos intel",
			host:    &Info{OS: manifest.OSMacOS, Arch: "x86_64"},
			wantURL: "mq-x86_64-apple-darwin",
		},
		{
			name:    "macos apple silicon",
			host:    &Info{OS: manifest.OSMacOS, Arch: "arm64"},
			wantURL: "mq-aarch64-apple-darwin",
		},
		{
			name:    "linux x86_64",
			host:    &Info{OS: manifest.OSLinux, Arch: "x86_64", Platform: "alpine"},
			wantURL: "linux-musl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Resolve(testManifest(), tt.host)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if !strings.Contains(v.URL("0.0.8"), tt.wantURL) {
				t.Errorf("Resolve() URL = %q, want substring %q", v.URL("0.0.8"), tt.wantURL)
			}
		})
	}
}

func TestResolve_NoMatch(t *testing.T) {
	tests := []struct {
		name string
		host *Info
	}{
		{"linux arm64", &Info{OS: manifest.OSLinux, GOOS: "linux", Arch: "arm64"}},
		{"windows", &Info{GOOS: "windows", Arch: "x86_64"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(testManifest(), tt.host)

			var unsupported *UnsupportedPlatformError
			if !errors.As(err, &unsupported) {
				t.Fatalf("Resolve() error = %v, want *UnsupportedPlatformError", err)
			}
			if unsupported.Host != tt.host.Key() {
				t.Errorf("Host = %q, want %q", unsupported.Host, tt.host.Key())
			}
			if len(unsupported.Available) != 3 {
				t.Errorf("Available = %v, want 3 entries", unsupported.Available)
			}
		})
	}
}

func TestResolve_ReturnsCopy(t *testing.T) {
	m := testManifest()
	v, err := Resolve(m, &Info{OS: manifest.OSLinux, Arch: "x86_64"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	v.SHA256 = "mutated"
	if m.Variants[1].SHA256 != "" {
		t.Error("Resolve() returned a pointer into the manifest")
	}
}

func TestResolve_NilArguments(t *testing.T) {
	if _, err := Resolve(nil, &Info{}); err == nil {
		t.Error("expected error for nil manifest")
	}
	if _, err := Resolve(testManifest(), nil); err == nil {
		t.Error("expected error for nil host")
	}
}
