package testutil

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
)

// Entry is one member of a test archive. Link makes it a symlink.
type Entry struct {
	Name    string
	Content string
	Mode    int64
	Link    string
	Dir     bool
}

// TarGz builds a gzip-compressed tar archive in memory.
func TarGz(t *testing.T, entries []Entry) []byte {
	t.Helper()

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, e := range entries {
		header := &tar.Header{Name: e.Name, Mode: e.Mode}
		switch {
		case e.Dir:
			header.Typeflag = tar.TypeDir
		case e.Link != "":
			header.Typeflag = tar.TypeSymlink
			header.Linkname = e.Link
		default:
			header.Typeflag = tar.TypeReg
			header.Size = int64(len(e.Content))
		}
		if header.Mode == 0 {
			header.Mode = 0644
		}

		if err := tarWriter.WriteHeader(header); err != nil {
			t.Fatalf("failed to write header for %s: %v", e.Name, err)
		}
		if header.Typeflag == tar.TypeReg {
			if _, err := tarWriter.Write([]byte(e.Content)); err != nil {
				t.Fatalf("failed to write content for %s: %v", e.Name, err)
			}
		}
	}

	if err := tarWriter.Close(); err != nil {
		t.Fatalf("failed to close tar writer: %v", err)
	}
	if err := gzipWriter.Close(); err != nil {
		t.Fatalf("failed to close gzip writer: %v", err)
	}
	return buf.Bytes()
}

// WriteTarGz writes TarGz(entries) to dir/name and returns its path.
func WriteTarGz(t *testing.T, dir, name string, entries []Entry) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, TarGz(t, entries), 0644); err != nil {
		t.Fatalf("failed to write archive: %v", err)
	}
	return path
}

// SHA256 returns the hex digest of data.
func SHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MultiQueryEntries is the layout of a multi-query release archive.
func MultiQueryEntries(version string) []Entry {
	return []Entry{
		{Name: "multi-query", Content: "#!/bin/sh\necho multi-query " + version + "\n", Mode: 0755},
		{Name: "doc/multi-query.1", Content: ".TH MULTI-QUERY 1\n"},
		{Name: "complete/multi-query.bash", Content: "complete -F _multi_query multi-query\n"},
		{Name: "complete/_multi-query", Content: "#compdef multi-query\n"},
		{Name: "complete/multi-query.fish", Content: "complete -c multi-query\n"},
	}
}

// MultiQueryRules installs every member of MultiQueryEntries.
func MultiQueryRules() []manifest.InstallRule {
	return []manifest.InstallRule{
		{From: "multi-query", Kind: manifest.KindBinary},
		{From: "doc/multi-query.1", Kind: manifest.KindManPage},
		{From: "complete/multi-query.bash", Kind: manifest.KindCompletionBash, As: "multi-query"},
		{From: "complete/_multi-query", Kind: manifest.KindCompletionZsh},
		{From: "complete/multi-query.fish", Kind: manifest.KindCompletionFish},
	}
}

// MultiQueryManifest returns a releasable manifest whose variants all point
// at baseURL with the given digest.
func MultiQueryManifest(baseURL, version, digest string) *manifest.Manifest {
	return &manifest.Manifest{
		Name:        "multi-query",
		Version:     version,
		Description: "Multi-database query executor with unified JSON output",
		Homepage:    "https://github.com/w00fmeow/multi-query",
		Variants: []manifest.Variant{
			{OS: manifest.OSMacOS, Arch: "x86_64", URLTemplate: baseURL + "/download/{version}/multi-query-{version}-x86_64-apple-darwin.tar.gz", SHA256: digest},
			{OS: manifest.OSLinux, Arch: "x86_64", URLTemplate: baseURL + "/download/{version}/multi-query-{version}-x86_64-unknown-linux-musl.tar.gz", SHA256: digest},
		},
		Conflicts:    []string{"multi-query"},
		InstallRules: MultiQueryRules(),
	}
}
