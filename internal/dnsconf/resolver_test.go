package dnsconf

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type fakeNetworkService struct {
	enabled bool
	reloads int
}

func (f *fakeNetworkService) IsEnabled(_ context.Context) bool { return f.enabled }
func (f *fakeNetworkService) ReloadOrRestart(_ context.Context) error {
	f.reloads++
	return nil
}

type fakeLabeler struct {
	paths []string
}

func (f *fakeLabeler) RestoreContext(_ context.Context, path string, _ bool) {
	f.paths = append(f.paths, path)
}

type fakeFileBackup struct {
	backedUp map[string]bool
	restored []string
}

func newFakeFileBackup() *fakeFileBackup {
	return &fakeFileBackup{backedUp: make(map[string]bool)}
}

func (f *fakeFileBackup) HasFile(path string) bool { return f.backedUp[path] }
func (f *fakeFileBackup) BackupFile(path string) error {
	f.backedUp[path] = true
	return nil
}
func (f *fakeFileBackup) RestoreFile(path string) (bool, error) {
	f.restored = append(f.restored, path)
	restored := f.backedUp[path]
	delete(f.backedUp, path)
	return restored, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConfigurator(t *testing.T, nm *fakeNetworkService) (*Configurator, Config, *fakeLabeler) {
	t.Helper()
	tmpDir := t.TempDir()
	cfg := Config{
		ResolvConfPath: filepath.Join(tmpDir, "resolv.conf"),
		NMDropInPath:   filepath.Join(tmpDir, "zzz-idmd.conf"),
	}
	labeler := &fakeLabeler{}
	return New(cfg, nm, labeler, testLogger()), cfg, labeler
}

func TestConfigure_StaticResolvConf(t *testing.T) {
	nm := &fakeNetworkService{enabled: false}
	c, cfg, _ := newTestConfigurator(t, nm)

	err := c.Configure(context.Background(),
		[]string{"10.0.0.1", "10.0.0.2"}, []string{"example.com"}, false, nil)
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}

	data, err := os.ReadFile(cfg.ResolvConfPath)
	if err != nil {
		t.Fatal(err)
	}
	want := "search example.com\n" +
		"nameserver 10.0.0.1\n" +
		"nameserver 10.0.0.2\n"
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("resolv.conf mismatch (-want +got):\n%s", diff)
	}
	lines := strings.Split(string(data), "\n")
	if lines[0] != "search example.com" {
		t.Errorf("first line = %q, want %q", lines[0], "search example.com")
	}
	if nm.reloads != 0 {
		t.Errorf("reloads = %d, want 0 when NetworkManager is disabled", nm.reloads)
	}
}

func TestConfigure_StaticResolvConfIdempotent(t *testing.T) {
	nm := &fakeNetworkService{enabled: false}
	c, cfg, _ := newTestConfigurator(t, nm)

	nameservers := []string{"10.0.0.1", "10.0.0.2"}
	domains := []string{"example.com"}

	if err := c.Configure(context.Background(), nameservers, domains, false, nil); err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(cfg.ResolvConfPath)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Configure(context.Background(), nameservers, domains, false, nil); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(cfg.ResolvConfPath)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(string(first), string(second)); diff != "" {
		t.Errorf("repeated Configure produced different bytes (-first +second):\n%s", diff)
	}
}

func TestConfigure_NetworkManagerDropIn(t *testing.T) {
	nm := &fakeNetworkService{enabled: true}
	c, cfg, labeler := newTestConfigurator(t, nm)

	err := c.Configure(context.Background(),
		[]string{"10.0.0.1", "10.0.0.2"}, []string{"example.com", "sub.example.com"}, false, nil)
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}

	data, err := os.ReadFile(cfg.NMDropInPath)
	if err != nil {
		t.Fatal(err)
	}
	want := "# auto-generated by idmd installer\n" +
		"[main]\n" +
		"dns=default\n" +
		"\n" +
		"[global-dns]\n" +
		"searches=example.com,sub.example.com\n" +
		"\n" +
		"[global-dns-domain-*]\n" +
		"servers=10.0.0.1,10.0.0.2\n"
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("drop-in mismatch (-want +got):\n%s", diff)
	}

	if nm.reloads != 1 {
		t.Errorf("reloads = %d, want 1", nm.reloads)
	}
	if len(labeler.paths) != 1 || labeler.paths[0] != cfg.NMDropInPath {
		t.Errorf("labeled paths = %v, want [%q]", labeler.paths, cfg.NMDropInPath)
	}

	// NetworkManager owns resolv.conf; the static file must not be written.
	if _, err := os.Stat(cfg.ResolvConfPath); !os.IsNotExist(err) {
		t.Error("static resolv.conf written despite NetworkManager being enabled")
	}

	info, err := os.Stat(cfg.NMDropInPath)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o644 {
		t.Errorf("drop-in perm = %04o, want 0644", perm)
	}
}

func TestConfigure_SystemdResolvedMode(t *testing.T) {
	nm := &fakeNetworkService{enabled: true}
	c, cfg, _ := newTestConfigurator(t, nm)

	err := c.Configure(context.Background(),
		[]string{"10.0.0.1"}, []string{"example.com"}, true, nil)
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(cfg.NMDropInPath)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(data); !strings.Contains(got, "dns=systemd-resolved") {
		t.Errorf("drop-in = %q, want dns=systemd-resolved", got)
	}
}

func TestConfigure_BacksUpResolvConfOnce(t *testing.T) {
	nm := &fakeNetworkService{enabled: false}
	c, cfg, _ := newTestConfigurator(t, nm)
	if err := os.WriteFile(cfg.ResolvConfPath, []byte("nameserver 8.8.8.8\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	fstore := newFakeFileBackup()
	for i := 0; i < 2; i++ {
		err := c.Configure(context.Background(),
			[]string{"10.0.0.1"}, []string{"example.com"}, false, fstore)
		if err != nil {
			t.Fatal(err)
		}
	}

	if !fstore.backedUp[cfg.ResolvConfPath] {
		t.Error("resolv.conf was not backed up")
	}
}

func TestConfigure_RejectsEmptyInputs(t *testing.T) {
	c, _, _ := newTestConfigurator(t, &fakeNetworkService{})

	if err := c.Configure(context.Background(), nil, []string{"example.com"}, false, nil); err == nil {
		t.Error("Configure() = nil, want error for empty nameservers")
	}
	if err := c.Configure(context.Background(), []string{"10.0.0.1"}, nil, false, nil); err == nil {
		t.Error("Configure() = nil, want error for empty search domains")
	}
}

func TestUnconfigure(t *testing.T) {
	nm := &fakeNetworkService{enabled: true}
	c, cfg, _ := newTestConfigurator(t, nm)

	err := c.Configure(context.Background(),
		[]string{"10.0.0.1"}, []string{"example.com"}, false, nil)
	if err != nil {
		t.Fatal(err)
	}

	fstore := newFakeFileBackup()
	fstore.backedUp[cfg.ResolvConfPath] = true

	if err := c.Unconfigure(context.Background(), fstore); err != nil {
		t.Fatalf("Unconfigure() error = %v", err)
	}

	if _, err := os.Stat(cfg.NMDropInPath); !os.IsNotExist(err) {
		t.Error("drop-in still present after Unconfigure")
	}
	if nm.reloads != 2 { // one for Configure, one for Unconfigure
		t.Errorf("reloads = %d, want 2", nm.reloads)
	}
	if len(fstore.restored) != 1 || fstore.restored[0] != cfg.ResolvConfPath {
		t.Errorf("restored = %v, want [%q]", fstore.restored, cfg.ResolvConfPath)
	}
}

func TestUnconfigure_NothingToDo(t *testing.T) {
	nm := &fakeNetworkService{enabled: true}
	c, _, _ := newTestConfigurator(t, nm)

	if err := c.Unconfigure(context.Background(), newFakeFileBackup()); err != nil {
		t.Fatalf("Unconfigure() error = %v, want nil when nothing was configured", err)
	}
	if nm.reloads != 0 {
		t.Errorf("reloads = %d, want 0", nm.reloads)
	}
}
