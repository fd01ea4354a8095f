// Package transaction provides per-package locks, atomic file writes and
// the install journal used to roll back interrupted operations.
package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State represents the state of a journaled path.
type State string

const (
	StatePending    State = "pending"
	StateCompleted  State = "completed"
	StateRolledBack State = "rolled_back"
	StateFailed     State = "failed"
)

// Operation represents the kind of package operation being journaled.
type Operation string

const (
	OperationInstall   Operation = "install"
	OperationUninstall Operation = "uninstall"
)

const journalPrefix = "journal-"

// ErrNoJournal is returned by LoadJournal when no journal exists.
var ErrNoJournal = errors.New("no journal")

// Journal records every destination an operation is about to touch, before
// touching it, so an interrupted run can be rolled back.
type Journal struct {
	Version        int       `json:"version"` // Schema version for future evolution
	ID             string    `json:"id"`      // UUID for unique identification
	Operation      Operation `json:"operation"`
	Package        string    `json:"package"`
	PackageVersion string    `json:"package_version"`
	Timestamp      time.Time `json:"timestamp"`
	Entries        []Entry   `json:"entries"`
}

// Entry is one destination path in a journal.
type Entry struct {
	Path      string `json:"path"`
	Backup    string `json:"backup,omitempty"` // where a pre-existing file was moved
	State     State  `json:"state"`
	LastError string `json:"last_error,omitempty"`
}

// NewJournal creates an empty journal for pkg.
func NewJournal(op Operation, pkg, version string) *Journal {
	return &Journal{
		Version:        1,
		ID:             uuid.New().String(),
		Operation:      op,
		Package:        pkg,
		PackageVersion: version,
		Timestamp:      time.Now().UTC(),
		Entries:        []Entry{},
	}
}

// JournalPath returns the journal file of pkg inside dir.
func JournalPath(dir, pkg string) string {
	return filepath.Join(dir, journalPrefix+pkg+".json")
}

// Add appends a pending entry for path. backup is empty when nothing existed
// at path beforehand.
func (j *Journal) Add(path, backup string) {
	j.Entries = append(j.Entries, Entry{Path: path, Backup: backup, State: StatePending})
}

// SetState updates the state of the entry for path.
func (j *Journal) SetState(path string, state State, err error) {
	for i := range j.Entries {
		if j.Entries[i].Path == path {
			j.Entries[i].State = state
			if err != nil {
				j.Entries[i].LastError = err.Error()
			} else {
				j.Entries[i].LastError = ""
			}
			return
		}
	}
}

// Pending returns entries not yet rolled back, most recent first.
func (j *Journal) Pending() []Entry {
	var out []Entry
	for i := len(j.Entries) - 1; i >= 0; i-- {
		if j.Entries[i].State != StateRolledBack {
			out = append(out, j.Entries[i])
		}
	}
	return out
}

// Save writes the journal to dir atomically.
func (j *Journal) Save(dir string) error {
	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}
	if err := WriteFile(JournalPath(dir, j.Package), data, 0600); err != nil {
		return fmt.Errorf("save journal: %w", err)
	}
	return nil
}

// LoadJournal reads the journal of pkg. It returns ErrNoJournal when there
// is none.
func LoadJournal(dir, pkg string) (*Journal, error) {
	data, err := os.ReadFile(JournalPath(dir, pkg))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoJournal
		}
		return nil, fmt.Errorf("read journal: %w", err)
	}

	var j Journal
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("unmarshal journal: %w", err)
	}
	return &j, nil
}

// RemoveJournal deletes the journal of pkg. A missing journal is not an error.
func RemoveJournal(dir, pkg string) error {
	if err := os.Remove(JournalPath(dir, pkg)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove journal: %w", err)
	}
	return nil
}

// PendingJournals lists packages that have a journal in dir.
func PendingJournals(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read journal directory: %w", err)
	}

	var pkgs []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, journalPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		pkgs = append(pkgs, strings.TrimSuffix(strings.TrimPrefix(name, journalPrefix), ".json"))
	}
	sort.Strings(pkgs)
	return pkgs, nil
}
