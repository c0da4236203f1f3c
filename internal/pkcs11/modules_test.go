package pkcs11

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeFileBackup struct {
	backedUp    map[string]bool
	backupCalls map[string]int
	restored    []string
}

func newFakeFileBackup() *fakeFileBackup {
	return &fakeFileBackup{
		backedUp:    make(map[string]bool),
		backupCalls: make(map[string]int),
	}
}

func (f *fakeFileBackup) HasFile(path string) bool { return f.backedUp[path] }
func (f *fakeFileBackup) BackupFile(path string) error {
	f.backupCalls[path]++
	f.backedUp[path] = true
	return nil
}
func (f *fakeFileBackup) RestoreFile(path string) (bool, error) {
	f.restored = append(f.restored, path)
	restored := f.backedUp[path]
	delete(f.backedUp, path)
	return restored, nil
}

type noopLabeler struct{}

func (noopLabeler) RestoreContext(_ context.Context, _ string, _ bool) {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		ModulesDir: dir,
		Modules: []Module{
			{
				Name:      "softhsm2",
				Path:      "/usr/lib64/pkcs11/libsofthsm2.so",
				DisableIn: []string{"p11-kit-proxy"},
			},
		},
	}
	return NewManager(cfg, noopLabeler{}, testLogger()), filepath.Join(dir, "softhsm2.module")
}

func TestConfigure_WritesModuleFile(t *testing.T) {
	m, path := newTestManager(t)

	written, err := m.Configure(context.Background(), newFakeFileBackup())
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if len(written) != 1 || written[0] != path {
		t.Errorf("written = %v, want [%q]", written, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	for _, want := range []string{
		"# created by idmd installer",
		"module: /usr/lib64/pkcs11/libsofthsm2.so",
		"disable-in: p11-kit-proxy",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("module file = %q, want to contain %q", content, want)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o644 {
		t.Errorf("perm = %04o, want 0644", perm)
	}
}

func TestConfigure_BacksUpForeignFileOnce(t *testing.T) {
	m, path := newTestManager(t)
	if err := os.WriteFile(path, []byte("module: /opt/other.so\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	fstore := newFakeFileBackup()
	if _, err := m.Configure(context.Background(), fstore); err != nil {
		t.Fatal(err)
	}
	// Second run sees our own generated file; it must not back it up.
	if _, err := m.Configure(context.Background(), fstore); err != nil {
		t.Fatal(err)
	}

	if got := fstore.backupCalls[path]; got != 1 {
		t.Errorf("backup calls = %d, want exactly 1", got)
	}
}

func TestConfigure_NeverBacksUpOwnFile(t *testing.T) {
	m, path := newTestManager(t)
	// A file from a previous run carries the installer marker.
	if err := os.WriteFile(path, []byte(marker+"\nmodule: /x.so\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	fstore := newFakeFileBackup()
	if _, err := m.Configure(context.Background(), fstore); err != nil {
		t.Fatal(err)
	}
	if len(fstore.backupCalls) != 0 {
		t.Errorf("backup calls = %v, want none for self-generated content", fstore.backupCalls)
	}
}

func TestRestore(t *testing.T) {
	m, path := newTestManager(t)
	if err := os.WriteFile(path, []byte("module: /opt/user.so\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	fstore := newFakeFileBackup()
	if _, err := m.Configure(context.Background(), fstore); err != nil {
		t.Fatal(err)
	}

	removed, err := m.Restore(fstore)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if len(removed) != 1 || removed[0] != path {
		t.Errorf("removed = %v, want [%q]", removed, path)
	}
	if len(fstore.restored) != 1 || fstore.restored[0] != path {
		t.Errorf("restored = %v, want [%q]", fstore.restored, path)
	}
}

func TestRestore_AbsentFile(t *testing.T) {
	m, _ := newTestManager(t)

	removed, err := m.Restore(newFakeFileBackup())
	if err != nil {
		t.Fatalf("Restore() error = %v, want nil for absent files", err)
	}
	if len(removed) != 0 {
		t.Errorf("removed = %v, want none", removed)
	}
}

func TestModulePaths(t *testing.T) {
	m, path := newTestManager(t)
	paths := m.ModulePaths()
	if len(paths) != 1 || paths[0] != path {
		t.Errorf("ModulePaths() = %v, want [%q]", paths, path)
	}
}
