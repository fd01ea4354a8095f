package platform

import (
	"testing"

	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
)

func TestHostOS(t *testing.T) {
	tests := []struct {
		goos string
		want manifest.OS
	}{
		{"darwin", manifest.OSMacOS},
		{"linux", manifest.OSLinux},
		{"windows", ""},
		{"freebsd", ""},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			if got := hostOS(tt.goos); got != tt.want {
				t.Errorf("hostOS(%q) = %q, want %q", tt.goos, got, tt.want)
			}
		})
	}
}

func TestNormalizePlatform(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"ubuntu", "ubuntu", "ubuntu"},
		{"Ubuntu uppercase", "Ubuntu", "ubuntu"},
		{"with spaces", "  ubuntu  ", "ubuntu"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizePlatform(tt.input)
			if got != tt.want {
				t.Errorf("normalizePlatform() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMapFamily(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"debian", "debian", "debian"},
		{"ubuntu maps to debian", "ubuntu", "debian"},
		{"centos maps to rhel", "centos", "rhel"},
		{"manjaro maps to arch", "manjaro", "arch"},
		{"RHEL all caps", "RHEL", "rhel"},
		{"with spaces", "  debian  ", "debian"},
		{"empty", "", "unknown"},
		{"unrecognized", "somethingelse", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapFamily(tt.input)
			if got != tt.want {
				t.Errorf("mapFamily() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		key      string
		wantOS   manifest.OS
		wantGOOS string
		wantArch string
		wantErr  bool
	}{
		{"macos/x86_64", manifest.OSMacOS, "darwin", "x86_64", false},
		{"darwin/aarch64", manifest.OSMacOS, "darwin", "arm64", false},
		{"linux", manifest.OSLinux, "linux", "x86_64", false},
		{"linux/amd64", manifest.OSLinux, "linux", "x86_64", false},
		{"windows/amd64", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := ParseKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.OS != tt.wantOS || got.GOOS != tt.wantGOOS || got.Arch != tt.wantArch {
				t.Errorf("ParseKey(%q) = %+v", tt.key, got)
			}
		})
	}
}
