package sysrestore

import (
	"path/filepath"
	"testing"
)

func TestStateStore_BackupGetRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	store, err := NewStateStore(path, testLogger())
	if err != nil {
		t.Fatalf("NewStateStore() error = %v", err)
	}

	if err := store.BackupState("network", "hostname", "old.example.com"); err != nil {
		t.Fatalf("BackupState() error = %v", err)
	}

	value, ok := store.GetState("network", "hostname")
	if !ok || value != "old.example.com" {
		t.Errorf("GetState() = (%q, %v), want (%q, true)", value, ok, "old.example.com")
	}

	// GetState peeks; RestoreState pops.
	value, ok, err = store.RestoreState("network", "hostname")
	if err != nil {
		t.Fatalf("RestoreState() error = %v", err)
	}
	if !ok || value != "old.example.com" {
		t.Errorf("RestoreState() = (%q, %v), want (%q, true)", value, ok, "old.example.com")
	}
	if _, ok := store.GetState("network", "hostname"); ok {
		t.Error("GetState() ok = true after restore, want false")
	}
}

func TestStateStore_ModuleState(t *testing.T) {
	store, err := NewStateStore(filepath.Join(t.TempDir(), "state.yaml"), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.BackupState("selinux", "httpd_can_connect_ldap", "off"); err != nil {
		t.Fatal(err)
	}
	if err := store.BackupState("selinux", "httpd_manage_ipa", "off"); err != nil {
		t.Fatal(err)
	}

	got := store.ModuleState("selinux")
	if len(got) != 2 || got["httpd_can_connect_ldap"] != "off" {
		t.Errorf("ModuleState() = %v, want both recorded booleans", got)
	}

	// Mutating the copy must not touch the store.
	delete(got, "httpd_manage_ipa")
	if _, ok := store.GetState("selinux", "httpd_manage_ipa"); !ok {
		t.Error("ModuleState() returned a live reference, want a copy")
	}

	if got := store.ModuleState("absent"); len(got) != 0 {
		t.Errorf("ModuleState(absent) = %v, want empty", got)
	}
}

func TestStateStore_RestoreAbsent(t *testing.T) {
	store, err := NewStateStore(filepath.Join(t.TempDir(), "state.yaml"), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	_, ok, err := store.RestoreState("authconfig", "mkhomedir")
	if err != nil {
		t.Fatalf("RestoreState() error = %v", err)
	}
	if ok {
		t.Error("RestoreState() ok = true for absent key, want false")
	}
}

func TestStateStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")

	store, err := NewStateStore(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.BackupState("authselect", "profile", "sssd"); err != nil {
		t.Fatal(err)
	}
	if err := store.BackupState("authselect", "mkhomedir", "true"); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewStateStore(path, testLogger())
	if err != nil {
		t.Fatalf("NewStateStore() reopen error = %v", err)
	}
	if !reopened.HasModule("authselect") {
		t.Error("HasModule() = false after reopen, want true")
	}
	value, ok := reopened.GetState("authselect", "profile")
	if !ok || value != "sssd" {
		t.Errorf("GetState() = (%q, %v), want (%q, true)", value, ok, "sssd")
	}
}
