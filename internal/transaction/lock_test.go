package transaction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func stubPidExists(t *testing.T, alive bool) {
	t.Helper()
	orig := pidExists
	pidExists = func(context.Context, int32) (bool, error) { return alive, nil }
	t.Cleanup(func() { pidExists = orig })
}

func TestAcquireLock(t *testing.T) {
	t.Run("creates lock file", func(t *testing.T) {
		dir := t.TempDir()
		ctx := context.Background()

		lock, err := AcquireLock(ctx, dir, "multi-query")
		if err != nil {
			t.Fatalf("AcquireLock failed: %v", err)
		}
		defer lock.Release()

		lockPath := filepath.Join(dir, "multi-query.lock")
		if lock.Path() != lockPath {
			t.Errorf("Path() = %q, want %q", lock.Path(), lockPath)
		}
		if _, err := os.Stat(lockPath); os.IsNotExist(err) {
			t.Error("lock file not created with correct name")
		}
	})

	t.Run("prevents concurrent locks", func(t *testing.T) {
		dir := t.TempDir()
		ctx := context.Background()

		lock1, err := AcquireLock(ctx, dir, "multi-query")
		if err != nil {
			t.Fatalf("first AcquireLock failed: %v", err)
		}
		defer lock1.Release()

		_, err = AcquireLock(ctx, dir, "multi-query")
		if err != ErrLockExists {
			t.Errorf("expected ErrLockExists, got %v", err)
		}
	})

	t.Run("locks are per package", func(t *testing.T) {
		dir := t.TempDir()
		ctx := context.Background()

		a, err := AcquireLock(ctx, dir, "a")
		if err != nil {
			t.Fatalf("AcquireLock(a) failed: %v", err)
		}
		defer a.Release()

		b, err := AcquireLock(ctx, dir, "b")
		if err != nil {
			t.Fatalf("AcquireLock(b) should not contend with a: %v", err)
		}
		defer b.Release()
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		dir := t.TempDir()
		ctx, cancel := context.WithCancel(context.Background())
		cancel() // Cancel immediately

		_, err := AcquireLock(ctx, dir, "multi-query")
		if err == nil {
			t.Error("expected error for cancelled context")
		}
	})

	t.Run("rejects invalid names", func(t *testing.T) {
		for _, name := range []string{"", "../x", `a\b`} {
			if _, err := AcquireLock(context.Background(), t.TempDir(), name); err == nil {
				t.Errorf("AcquireLock(%q) should fail", name)
			}
		}
	})

	t.Run("creates directory if needed", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "locks")

		lock, err := AcquireLock(context.Background(), dir, "multi-query")
		if err != nil {
			t.Fatalf("AcquireLock failed: %v", err)
		}
		defer lock.Release()

		if _, err := os.Stat(dir); os.IsNotExist(err) {
			t.Error("directory not created")
		}
	})

	t.Run("writes lock metadata", func(t *testing.T) {
		dir := t.TempDir()

		lock, err := AcquireLock(context.Background(), dir, "multi-query")
		if err != nil {
			t.Fatalf("AcquireLock failed: %v", err)
		}
		defer lock.Release()

		data, err := os.ReadFile(lock.Path())
		if err != nil {
			t.Fatalf("failed to read lock file: %v", err)
		}
		if !strings.Contains(string(data), fmt.Sprintf("pid=%d\n", os.Getpid())) {
			t.Errorf("lock file should record the owner pid, got %q", data)
		}
	})
}

func TestLockRelease(t *testing.T) {
	t.Run("removes lock file", func(t *testing.T) {
		dir := t.TempDir()

		lock, err := AcquireLock(context.Background(), dir, "multi-query")
		if err != nil {
			t.Fatalf("AcquireLock failed: %v", err)
		}
		lockPath := lock.Path()

		if err := lock.Release(); err != nil {
			t.Fatalf("Release failed: %v", err)
		}

		if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
			t.Error("lock file should be removed after release")
		}
	})

	t.Run("allows new lock after release", func(t *testing.T) {
		dir := t.TempDir()
		ctx := context.Background()

		lock1, err := AcquireLock(ctx, dir, "multi-query")
		if err != nil {
			t.Fatalf("first AcquireLock failed: %v", err)
		}
		lock1.Release()

		lock2, err := AcquireLock(ctx, dir, "multi-query")
		if err != nil {
			t.Fatalf("second AcquireLock should succeed: %v", err)
		}
		defer lock2.Release()
	})

	t.Run("is idempotent", func(t *testing.T) {
		lock, err := AcquireLock(context.Background(), t.TempDir(), "multi-query")
		if err != nil {
			t.Fatalf("AcquireLock failed: %v", err)
		}

		if err := lock.Release(); err != nil {
			t.Fatalf("first Release failed: %v", err)
		}
		if err := lock.Release(); err != nil {
			t.Fatalf("second Release should not error: %v", err)
		}
	})
}

func TestStaleLockHandling(t *testing.T) {
	writeLock := func(t *testing.T, dir string, pid int) string {
		t.Helper()
		lockPath := filepath.Join(dir, "multi-query.lock")
		data := fmt.Sprintf("pid=%d\ntimestamp=%s\n", pid, time.Now().UTC().Format(time.RFC3339))
		if err := os.WriteFile(lockPath, []byte(data), 0600); err != nil {
			t.Fatalf("failed to create lock: %v", err)
		}
		return lockPath
	}

	t.Run("keeps old lock of live process", func(t *testing.T) {
		stubPidExists(t, true)
		dir := t.TempDir()
		lockPath := writeLock(t, dir, 99999)

		staleTime := time.Now().Add(-StaleLockThreshold - time.Minute)
		if err := os.Chtimes(lockPath, staleTime, staleTime); err != nil {
			t.Fatalf("failed to set stale time: %v", err)
		}

		_, err := AcquireLock(context.Background(), dir, "multi-query")
		if err != ErrLockExists {
			t.Errorf("expected ErrLockExists for a long-running owner, got %v", err)
		}
	})

	t.Run("keeps held lock past threshold", func(t *testing.T) {
		dir := t.TempDir()
		held, err := AcquireLock(context.Background(), dir, "multi-query")
		if err != nil {
			t.Fatalf("AcquireLock failed: %v", err)
		}
		defer held.Release()

		staleTime := time.Now().Add(-StaleLockThreshold - time.Minute)
		if err := os.Chtimes(held.Path(), staleTime, staleTime); err != nil {
			t.Fatalf("failed to set stale time: %v", err)
		}

		if _, err := AcquireLock(context.Background(), dir, "multi-query"); err != ErrLockExists {
			t.Errorf("expected ErrLockExists while the owner is running, got %v", err)
		}
	})

	t.Run("breaks old lock without owner", func(t *testing.T) {
		dir := t.TempDir()
		lockPath := filepath.Join(dir, "multi-query.lock")
		if err := os.WriteFile(lockPath, []byte("garbage"), 0600); err != nil {
			t.Fatalf("failed to create lock: %v", err)
		}
		staleTime := time.Now().Add(-StaleLockThreshold - time.Minute)
		if err := os.Chtimes(lockPath, staleTime, staleTime); err != nil {
			t.Fatalf("failed to set stale time: %v", err)
		}

		lock, err := AcquireLock(context.Background(), dir, "multi-query")
		if err != nil {
			t.Fatalf("AcquireLock should break an unowned stale lock: %v", err)
		}
		defer lock.Release()
	})

	t.Run("breaks lock of exited process", func(t *testing.T) {
		stubPidExists(t, false)
		dir := t.TempDir()
		writeLock(t, dir, 99999)

		lock, err := AcquireLock(context.Background(), dir, "multi-query")
		if err != nil {
			t.Fatalf("AcquireLock should break a dead owner's lock: %v", err)
		}
		defer lock.Release()
	})

	t.Run("keeps fresh lock of live process", func(t *testing.T) {
		dir := t.TempDir()
		writeLock(t, dir, os.Getpid())

		_, err := AcquireLock(context.Background(), dir, "multi-query")
		if err != ErrLockExists {
			t.Errorf("expected ErrLockExists, got %v", err)
		}
	})

	t.Run("keeps fresh lock without owner", func(t *testing.T) {
		dir := t.TempDir()
		lockPath := filepath.Join(dir, "multi-query.lock")
		os.WriteFile(lockPath, []byte("garbage"), 0600)

		_, err := AcquireLock(context.Background(), dir, "multi-query")
		if err != ErrLockExists {
			t.Errorf("expected ErrLockExists, got %v", err)
		}
	})
}
