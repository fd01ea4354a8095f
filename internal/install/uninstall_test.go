package install

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZebulonRouseFrantzich/keg/internal/record"
	"github.com/ZebulonRouseFrantzich/keg/internal/testutil"
	"github.com/ZebulonRouseFrantzich/keg/internal/transaction"
)

func TestUninstall(t *testing.T) {
	f := newFixture(t)
	m, v, archive := f.archive(t, "0.0.8", testutil.MultiQueryEntries("0.0.8"))
	rec, err := f.exec.Install(context.Background(), m, v, archive)
	require.NoError(t, err)

	// A file the user already deleted is not an error.
	require.NoError(t, os.Remove(rec.Files[1].Path))

	require.NoError(t, f.exec.Uninstall(context.Background(), rec))

	assert.Empty(t, snapshot(t, f.prefix))
	_, err = f.records.Get("multi-query")
	assert.ErrorIs(t, err, record.ErrNotFound)
	_, err = transaction.LoadJournal(f.journalDir, "multi-query")
	assert.ErrorIs(t, err, transaction.ErrNoJournal)
}

func TestUninstall_RestoresFilesOnFailure(t *testing.T) {
	f := newFixture(t)
	m, v, archive := f.archive(t, "0.0.8", testutil.MultiQueryEntries("0.0.8"))
	rec, err := f.exec.Install(context.Background(), m, v, archive)
	require.NoError(t, err)

	// A recorded path that became a directory aborts the uninstall.
	broken := *rec
	broken.Files = append(append([]record.File{}, rec.Files...), record.File{Path: filepath.Join(f.prefix, "share")})
	before := snapshot(t, f.prefix)

	err = f.exec.Uninstall(context.Background(), &broken)
	assert.ErrorContains(t, err, "is a directory")
	assert.Equal(t, before, snapshot(t, f.prefix))

	has, err := f.records.Has("multi-query")
	require.NoError(t, err)
	assert.True(t, has, "record must survive a failed uninstall")
}

func TestRemoveStale(t *testing.T) {
	f := newFixture(t)
	m, v, archive := f.archive(t, "0.0.8", testutil.MultiQueryEntries("0.0.8"))
	old, err := f.exec.Install(context.Background(), m, v, archive)
	require.NoError(t, err)

	// The next release drops the fish completion.
	m2, v2, archive2 := f.archive(t, "0.0.9", testutil.MultiQueryEntries("0.0.9"))
	m2.InstallRules = m2.InstallRules[:4]
	newer, err := f.exec.Install(context.Background(), m2, v2, archive2)
	require.NoError(t, err)

	require.NoError(t, f.exec.RemoveStale(old, newer))

	files := snapshot(t, f.prefix)
	assert.Len(t, files, 4)
	assert.NotContains(t, files, old.Files[4].Path)
	assert.Contains(t, files[newer.Files[0].Path], "0.0.9")
}

func TestRecover(t *testing.T) {
	t.Run("no journal", func(t *testing.T) {
		f := newFixture(t)
		recovered, err := f.exec.Recover(context.Background(), "multi-query")
		require.NoError(t, err)
		assert.False(t, recovered)
	})

	t.Run("rolls back interrupted install", func(t *testing.T) {
		f := newFixture(t)
		bin := filepath.Join(f.prefix, "bin", "multi-query")
		man := filepath.Join(f.prefix, "share", "man", "man1", "multi-query.1")
		require.NoError(t, os.MkdirAll(filepath.Dir(bin), 0755))
		require.NoError(t, os.MkdirAll(filepath.Dir(man), 0755))

		// State after a crash: the old binary was moved aside and replaced,
		// the man page was written fresh.
		require.NoError(t, os.WriteFile(bin+BackupSuffix, []byte("old"), 0755))
		require.NoError(t, os.WriteFile(bin, []byte("new"), 0755))
		require.NoError(t, os.WriteFile(man, []byte("new man"), 0644))

		j := transaction.NewJournal(transaction.OperationInstall, "multi-query", "0.0.8")
		j.Add(bin, bin+BackupSuffix)
		j.Add(man, "")
		j.Add(filepath.Join(f.prefix, "share", "zsh", "site-functions", "_multi-query"), "")
		require.NoError(t, j.Save(f.journalDir))

		recovered, err := f.exec.Recover(context.Background(), "multi-query")
		require.NoError(t, err)
		assert.True(t, recovered)

		assert.Equal(t, map[string]string{bin: "old"}, snapshot(t, f.prefix))
		_, err = transaction.LoadJournal(f.journalDir, "multi-query")
		assert.ErrorIs(t, err, transaction.ErrNoJournal)
	})

	t.Run("keeps original when crash preceded the move", func(t *testing.T) {
		f := newFixture(t)
		bin := filepath.Join(f.prefix, "bin", "multi-query")
		require.NoError(t, os.MkdirAll(filepath.Dir(bin), 0755))
		require.NoError(t, os.WriteFile(bin, []byte("original"), 0755))

		j := transaction.NewJournal(transaction.OperationInstall, "multi-query", "0.0.8")
		j.Add(bin, bin+BackupSuffix)
		require.NoError(t, j.Save(f.journalDir))

		_, err := f.exec.Recover(context.Background(), "multi-query")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{bin: "original"}, snapshot(t, f.prefix))
	})

	t.Run("completes committed install", func(t *testing.T) {
		f := newFixture(t)
		m, v, archive := f.archive(t, "0.0.8", testutil.MultiQueryEntries("0.0.8"))
		rec, err := f.exec.Install(context.Background(), m, v, archive)
		require.NoError(t, err)
		installed := snapshot(t, f.prefix)

		// Crash after the record was written but before cleanup.
		bin := rec.Files[0].Path
		require.NoError(t, os.WriteFile(bin+BackupSuffix, []byte("previous"), 0755))
		j := transaction.NewJournal(transaction.OperationInstall, "multi-query", "0.0.8")
		j.Add(bin, bin+BackupSuffix)
		require.NoError(t, j.Save(f.journalDir))

		recovered, err := f.exec.Recover(context.Background(), "multi-query")
		require.NoError(t, err)
		assert.True(t, recovered)
		assert.Equal(t, installed, snapshot(t, f.prefix))
	})

	t.Run("rolls back interrupted uninstall", func(t *testing.T) {
		f := newFixture(t)
		m, v, archive := f.archive(t, "0.0.8", testutil.MultiQueryEntries("0.0.8"))
		rec, err := f.exec.Install(context.Background(), m, v, archive)
		require.NoError(t, err)
		installed := snapshot(t, f.prefix)

		bin := rec.Files[0].Path
		require.NoError(t, os.Rename(bin, bin+BackupSuffix))
		j := transaction.NewJournal(transaction.OperationUninstall, "multi-query", "0.0.8")
		j.Add(bin, bin+BackupSuffix)
		require.NoError(t, j.Save(f.journalDir))

		_, err = f.exec.Recover(context.Background(), "multi-query")
		require.NoError(t, err)
		assert.Equal(t, installed, snapshot(t, f.prefix))
	})

	t.Run("pending journals", func(t *testing.T) {
		f := newFixture(t)
		for _, pkg := range []string{"beta", "alpha"} {
			require.NoError(t, transaction.NewJournal(transaction.OperationInstall, pkg, "1.0.0").Save(f.journalDir))
		}

		pending, err := f.exec.Pending()
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"alpha", "beta"}, pending)
	})
}
