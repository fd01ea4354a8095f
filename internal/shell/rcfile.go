package shell

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/keg/internal/transaction"
)

// rcLocations lists each shell's interactive startup file relative to $HOME.
var rcLocations = map[ShellType][]string{
	ShellBash: {".bashrc"},
	ShellZsh:  {".zshrc"},
	ShellFish: {".config", "fish", "config.fish"},
}

// RCFile is the startup file of one shell.
type RCFile struct {
	Path  string
	Shell ShellType
}

// rcContent is an rc file as read from disk. A missing file reads as empty
// with exists false.
type rcContent struct {
	exists bool
	mode   fs.FileMode
	data   []byte
}

// LocateRCFile returns the rc file of shell under home, or under the user's
// home directory when home is empty.
func LocateRCFile(shell ShellType, home string) (*RCFile, error) {
	parts, ok := rcLocations[shell]
	if !ok {
		return nil, &UnsupportedShellError{Shell: shell.String()}
	}
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
	}
	return &RCFile{
		Path:  filepath.Join(append([]string{home}, parts...)...),
		Shell: shell,
	}, nil
}

// read loads the file, refusing symlinks and anything that is not a regular
// file so keg never edits a file it does not own outright.
func (f *RCFile) read() (*rcContent, error) {
	info, err := os.Lstat(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return &rcContent{mode: 0644}, nil
	}
	if err != nil {
		return nil, &RCFileError{Path: f.Path, Op: "stat", Err: err}
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return nil, &RCFileError{Path: f.Path, Op: "refusing to modify a symlink"}
	}
	if !info.Mode().IsRegular() {
		return nil, &RCFileError{Path: f.Path, Op: "not a regular file"}
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, &RCFileError{Path: f.Path, Op: "read", Err: err}
	}
	return &rcContent{exists: true, mode: info.Mode().Perm(), data: data}, nil
}

// Activated reports whether an uncommented line runs `keg shell-env`.
func (f *RCFile) Activated() (bool, error) {
	c, err := f.read()
	if err != nil {
		return false, err
	}
	return c.activated(), nil
}

func (c *rcContent) activated() bool {
	scanner := bufio.NewScanner(bytes.NewReader(c.data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "#") && strings.Contains(line, ActivationMarker) {
			return true
		}
	}
	return false
}

// Backup copies the file to <path>.keg-backup with the same mode.
func (f *RCFile) Backup() (string, error) {
	c, err := f.read()
	if err != nil {
		return "", err
	}
	if !c.exists {
		return "", &RCFileError{Path: f.Path, Op: "backup", Err: fs.ErrNotExist}
	}
	backup := f.Path + BackupSuffix
	if err := transaction.WriteFile(backup, c.data, c.mode); err != nil {
		return "", &RCFileError{Path: backup, Op: "write backup", Err: err}
	}
	return backup, nil
}

// Append adds the activation line under a "# keg" header, keeping the
// file's mode. The write replaces the file atomically.
func (f *RCFile) Append(activation string) error {
	if err := validateActivationCommand(activation); err != nil {
		return &RCFileError{Path: f.Path, Op: "invalid activation command format", Err: err}
	}
	c, err := f.read()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Write(c.data)
	if len(c.data) > 0 && !bytes.HasSuffix(c.data, []byte("\n")) {
		buf.WriteByte('\n')
	}
	if len(c.data) > 0 {
		buf.WriteByte('\n')
	}
	fmt.Fprintf(&buf, "# keg - release installer\n%s\n", activation)

	if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
		return &RCFileError{Path: f.Path, Op: "create parent directory", Err: err}
	}
	if err := transaction.WriteFile(f.Path, buf.Bytes(), c.mode); err != nil {
		return &RCFileError{Path: f.Path, Op: "write", Err: err}
	}
	return nil
}

// validateActivationCommand accepts only the lines GenerateActivationCommand
// produces, so rc files never receive arbitrary shell code.
func validateActivationCommand(cmd string) error {
	program := programOf(cmd)
	if validProgram(program) {
		for _, sh := range supportedShells {
			if want, _ := GenerateActivationCommand(sh, program); want == cmd {
				return nil
			}
		}
	}
	return fmt.Errorf("%q is not a keg activation command", cmd)
}

// programOf extracts the program from `eval "$(prog shell-env sh)"` or
// `prog shell-env sh | source`.
func programOf(cmd string) string {
	cmd = strings.TrimPrefix(cmd, `eval "$(`)
	prog, _, _ := strings.Cut(cmd, " ")
	return prog
}

func validProgram(p string) bool {
	if p == "" {
		return false
	}
	for _, r := range p {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == '.' || r == '/') {
			return false
		}
	}
	return true
}
