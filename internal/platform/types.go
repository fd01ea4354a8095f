// Package platform detects the host operating system and architecture and
// selects the manifest variant whose predicate matches it.
//
// Detection uses runtime.GOOS and runtime.GOARCH, with gopsutil supplying
// Linux distribution details for diagnostics. Distribution details never
// influence variant selection.
package platform

import (
	"context"
	"fmt"

	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
)

// Linux distribution family constants.
const (
	FamilyDebian  = "debian"  // Debian, Ubuntu, Linux Mint
	FamilyRHEL    = "rhel"    // RHEL, CentOS, Rocky Linux, AlmaLinux
	FamilyFedora  = "fedora"  // Fedora
	FamilySUSE    = "suse"    // openSUSE, SLES
	FamilyArch    = "arch"    // Arch Linux, Manjaro
	FamilyAlpine  = "alpine"  // Alpine Linux
	FamilyGentoo  = "gentoo"  // Gentoo
	FamilyUnknown = "unknown" // Unrecognized distributions
)

// Info describes the host a package is being installed on.
type Info struct {
	OS       manifest.OS // "macos" or "linux"; empty for unsupported hosts
	GOOS     string      // runtime.GOOS ("darwin", "linux", ...)
	Arch     string      // canonical manifest arch ("x86_64", "arm64")
	ArchRaw  string      // original GOARCH (e.g., "amd64")
	Platform string      // distro ID (Linux only, e.g., "ubuntu")
	Family   string      // canonical family (e.g., "debian")
	Version  string      // distro version (Linux only, e.g., "22.04")
}

// Key returns the host's "os/arch" pair in manifest notation.
func (i *Info) Key() string {
	os := i.OS.String()
	if os == "" {
		os = i.GOOS
	}
	return os + "/" + i.Arch
}

// String describes the host for logs and error messages.
func (i *Info) String() string {
	if i.Platform != "" {
		return fmt.Sprintf("%s (%s %s)", i.Key(), i.Platform, i.Version)
	}
	return i.Key()
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// StaticDetector reports a fixed host. It lets callers install for a
// platform other than the running one, as with `keg install --platform`.
type StaticDetector struct {
	Info *Info
}

// Detect returns a copy of the configured host.
func (d StaticDetector) Detect(ctx context.Context) (*Info, error) {
	if d.Info == nil {
		return nil, fmt.Errorf("no platform configured")
	}
	info := *d.Info
	return &info, nil
}

// ParseKey parses an "os/arch" (or bare "os") host description.
func ParseKey(key string) (*Info, error) {
	osPart, archPart, _ := splitKey(key)
	o, err := manifest.ParseOS(osPart)
	if err != nil {
		return nil, err
	}
	arch := manifest.NormalizeArch(archPart)
	if arch == "" {
		arch = manifest.DefaultArch
	}
	goos := "linux"
	if o == manifest.OSMacOS {
		goos = "darwin"
	}
	return &Info{OS: o, GOOS: goos, Arch: arch, ArchRaw: archPart}, nil
}
