package install

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxEntrySize bounds a single extracted file (1 GiB).
const maxEntrySize = 1 << 30

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zipMagic  = []byte("PK\x03\x04")
)

// extract unpacks a .tar.gz or .zip archive into destDir, chosen by content.
func extract(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return &ExtractError{Archive: archivePath, Err: err}
	}
	defer f.Close()

	head := make([]byte, 4)
	n, _ := io.ReadFull(f, head)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return &ExtractError{Archive: archivePath, Err: err}
	}

	switch {
	case bytes.HasPrefix(head[:n], gzipMagic):
		err = extractTarGz(f, destDir)
	case bytes.HasPrefix(head[:n], zipMagic):
		err = extractZip(archivePath, destDir)
	default:
		err = errors.New("unsupported archive format (expected .tar.gz or .zip)")
	}
	if err != nil {
		return &ExtractError{Archive: archivePath, Err: err}
	}
	return nil
}

// extractTarGz extracts a gzip-compressed tar stream to a destination directory.
// Symlinks are created after every regular entry is written, so no write can
// pass through a link the archive planted.
func extractTarGz(r io.Reader, destDir string) error {
	gzipReader, err := gzip.NewReader(bufio.NewReader(r))
	if err != nil {
		return fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	realDest, err := filepath.EvalSymlinks(destDir)
	if err != nil {
		return fmt.Errorf("resolve destination: %w", err)
	}

	tarReader := tar.NewReader(gzipReader)
	var links []*tar.Header

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		target, err := safeJoin(realDest, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create directory %s: %w", header.Name, err)
			}

		case tar.TypeReg:
			if header.Size > maxEntrySize {
				return fmt.Errorf("entry %s too large (%d bytes)", header.Name, header.Size)
			}
			if err := writeEntry(target, tarReader, os.FileMode(header.Mode).Perm()); err != nil {
				return fmt.Errorf("write %s: %w", header.Name, err)
			}

		case tar.TypeSymlink:
			links = append(links, header)

		default:
			// Skip other types (hard links, devices, fifos)
			continue
		}
	}

	for _, header := range links {
		if err := createLink(realDest, header.Name, header.Linkname); err != nil {
			return err
		}
	}
	for _, header := range links {
		if err := checkResolved(realDest, header.Name); err != nil {
			return err
		}
	}
	return nil
}

// createLink creates name -> linkname under realDest once the link's real
// parent directory and its target are both inside realDest.
func createLink(realDest, name, linkname string) error {
	target, err := safeJoin(realDest, name)
	if err != nil {
		return err
	}
	parent, err := realParent(realDest, target)
	if err != nil {
		return err
	}
	if !within(realDest, parent) {
		return fmt.Errorf("illegal symlink %s: parent resolves outside the archive", name)
	}
	target = filepath.Join(parent, filepath.Base(target))
	if err := checkLink(realDest, target, linkname); err != nil {
		return err
	}
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", name, err)
	}
	if err := os.Symlink(linkname, target); err != nil {
		return fmt.Errorf("create symlink %s: %w", name, err)
	}
	return nil
}

// checkResolved rejects a created link whose full resolution leaves realDest.
// Dangling links were already checked lexically by createLink.
func checkResolved(realDest, name string) error {
	resolved, err := filepath.EvalSymlinks(filepath.Join(realDest, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve symlink %s: %w", name, err)
	}
	if !within(realDest, resolved) {
		return fmt.Errorf("illegal symlink %s: resolves outside the archive", name)
	}
	return nil
}

// realParent resolves the deepest existing ancestor of target's directory and
// re-appends the components that do not exist yet.
func realParent(realDest, target string) (string, error) {
	dir := filepath.Dir(target)
	var missing []string
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("resolve %s: %w", dir, err)
		}
		if dir == realDest || !within(realDest, dir) {
			return "", fmt.Errorf("resolve %s: %w", dir, err)
		}
		missing = append(missing, filepath.Base(dir))
		dir = filepath.Dir(dir)
	}
}

// extractZip extracts a zip archive to a destination directory.
func extractZip(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	for _, file := range zr.File {
		target, err := safeJoin(destDir, file.Name)
		if err != nil {
			return err
		}

		mode := file.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create directory %s: %w", file.Name, err)
			}
		case mode&os.ModeSymlink != 0:
			// Zip symlinks are rare in releases; treat them as unsupported.
			return fmt.Errorf("symlink entries are not supported in zip archives: %s", file.Name)
		case mode.IsRegular():
			if file.UncompressedSize64 > maxEntrySize {
				return fmt.Errorf("entry %s too large (%d bytes)", file.Name, file.UncompressedSize64)
			}
			rc, err := file.Open()
			if err != nil {
				return fmt.Errorf("open %s: %w", file.Name, err)
			}
			err = writeEntry(target, rc, mode.Perm())
			rc.Close()
			if err != nil {
				return fmt.Errorf("write %s: %w", file.Name, err)
			}
		}
	}
	return nil
}

func writeEntry(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode|0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, io.LimitReader(r, maxEntrySize+1)); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// safeJoin resolves an archive member name inside destDir, rejecting absolute
// names and names that escape destDir.
func safeJoin(destDir, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("illegal absolute path in archive: %s", name)
	}
	target := filepath.Join(destDir, name)
	if !within(destDir, target) {
		return "", fmt.Errorf("illegal file path: %s", name)
	}
	return target, nil
}

// checkLink rejects symlinks whose target leaves the workspace.
func checkLink(destDir, target, linkname string) error {
	resolved := linkname
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(target), linkname)
	}
	if !within(destDir, resolved) {
		return fmt.Errorf("illegal symlink %s -> %s", strings.TrimPrefix(target, destDir+string(os.PathSeparator)), linkname)
	}
	return nil
}

func within(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	return path == root || strings.HasPrefix(path, root+string(os.PathSeparator))
}
