package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/northcutted/pkg-inspector/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.CreateSchema(); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}
	return s
}

func testSnapshot(image string, created time.Time) *types.InventorySnapshot {
	return &types.InventorySnapshot{
		Target: types.Target{Image: image, Architecture: "amd64", Digest: "sha256:abc"},
		Records: []types.PackageRecord{
			{Name: "requests", Version: "2.31.0", License: "Apache-2.0", PackageType: types.PackageTypePython, ParentPackages: []string{}},
			{Name: "urllib3", Version: "2.0.7", License: "MIT", PackageType: types.PackageTypePython, IsDependency: true, ParentPackages: []string{"requests"}},
			{Name: "bash", Version: "5.2", License: "GPL-3.0", PackageType: types.PackageTypeBinary, PackageProvider: types.ProviderDpkg, ParentPackages: []string{}},
		},
		CreatedAt: created,
	}
}

func TestListSnapshots_NoSchema_ReturnsErrNotInitialized(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer func() { _ = s.Close() }()

	// Do NOT call CreateSchema
	_, err = s.ListSnapshots("")
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("ListSnapshots() error = %v; want ErrNotInitialized", err)
	}
}

func TestSaveAndGetSnapshot(t *testing.T) {
	s := newTestStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	orig := testSnapshot("app:2", created)

	id, err := s.SaveSnapshot(orig)
	if err != nil {
		t.Fatalf("SaveSnapshot() failed: %v", err)
	}
	if len(id) != 36 {
		t.Errorf("expected a UUID, got %q", id)
	}

	got, err := s.GetSnapshot(id)
	if err != nil {
		t.Fatalf("GetSnapshot() failed: %v", err)
	}
	if got.Target != orig.Target {
		t.Errorf("Target = %+v, want %+v", got.Target, orig.Target)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
	if len(got.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got.Records))
	}
	for i := range orig.Records {
		if got.Records[i].Name != orig.Records[i].Name {
			t.Errorf("record %d = %s, want %s (order must be kept)", i, got.Records[i].Name, orig.Records[i].Name)
		}
	}
	if !got.Records[1].IsDependency || got.Records[1].ParentPackages[0] != "requests" {
		t.Errorf("attribution lost: %+v", got.Records[1])
	}
	if got.Records[2].PackageProvider != types.ProviderDpkg {
		t.Errorf("provider lost: %+v", got.Records[2])
	}

	// A unique prefix resolves to the same snapshot.
	byPrefix, err := s.GetSnapshot(id[:8])
	if err != nil || byPrefix.Target != orig.Target {
		t.Errorf("GetSnapshot(prefix) = %+v, %v", byPrefix, err)
	}
}

func TestGetSnapshot_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetSnapshot("does-not-exist"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSnapshot() error = %v; want ErrNotFound", err)
	}
}

func TestListSnapshots(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, image := range []string{"app:1", "app:2", "other:1"} {
		if _, err := s.SaveSnapshot(testSnapshot(image, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("SaveSnapshot(%s) failed: %v", image, err)
		}
	}

	all, err := s.ListSnapshots("")
	if err != nil {
		t.Fatalf("ListSnapshots() failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(all))
	}
	if all[0].Target.Image != "other:1" {
		t.Errorf("expected newest first, got %s", all[0].Target.Image)
	}
	if all[0].PackageCount != 3 || all[0].PythonCount != 2 || all[0].BinaryCount != 1 {
		t.Errorf("counts = %+v", all[0])
	}

	filtered, err := s.ListSnapshots("app:1")
	if err != nil {
		t.Fatalf("ListSnapshots(app:1) failed: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Target.Image != "app:1" {
		t.Errorf("filtered = %+v", filtered)
	}
}

func TestListSnapshots_SubSecondOrder(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, created := range []time.Time{base.Add(100 * time.Millisecond), base, base.Add(time.Second)} {
		if _, err := s.SaveSnapshot(testSnapshot(fmt.Sprintf("app:%d", i), created)); err != nil {
			t.Fatalf("SaveSnapshot() failed: %v", err)
		}
	}

	infos, err := s.ListSnapshots("")
	if err != nil {
		t.Fatalf("ListSnapshots() failed: %v", err)
	}
	var got []string
	for _, info := range infos {
		got = append(got, info.Target.Image)
	}
	if want := []string{"app:2", "app:0", "app:1"}; !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	if !infos[1].CreatedAt.Equal(base.Add(100 * time.Millisecond)) {
		t.Errorf("CreatedAt = %v", infos[1].CreatedAt)
	}
}

func TestResolveID_LiteralPrefix(t *testing.T) {
	s := newTestStore(t)
	id, err := s.SaveSnapshot(testSnapshot("app:1", time.Now()))
	if err != nil {
		t.Fatalf("SaveSnapshot() failed: %v", err)
	}

	tests := []struct {
		name   string
		prefix string
		want   error
	}{
		{"empty", "", ErrEmptyID},
		{"blank", "  ", ErrEmptyID},
		{"percent", "%", ErrNotFound},
		{"underscore", "________", ErrNotFound},
		{"prefix with wildcard", id[:4] + "%", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.ResolveID(tt.prefix); !errors.Is(err, tt.want) {
				t.Errorf("ResolveID(%q) error = %v, want %v", tt.prefix, err, tt.want)
			}
		})
	}

	if err := s.DeleteSnapshot("%"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteSnapshot(%%) error = %v, want ErrNotFound", err)
	}
	if got, err := s.ResolveID(id[:8]); err != nil || got != id {
		t.Errorf("ResolveID(%q) = %q, %v", id[:8], got, err)
	}
}

func TestDeleteSnapshot(t *testing.T) {
	s := newTestStore(t)
	id, err := s.SaveSnapshot(testSnapshot("app:1", time.Now()))
	if err != nil {
		t.Fatalf("SaveSnapshot() failed: %v", err)
	}
	if err := s.DeleteSnapshot(id); err != nil {
		t.Fatalf("DeleteSnapshot() failed: %v", err)
	}
	if _, err := s.GetSnapshot(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSnapshot() after delete error = %v; want ErrNotFound", err)
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM snapshot_packages`).Scan(&n); err != nil || n != 0 {
		t.Errorf("packages left after delete: %d (%v)", n, err)
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.SaveSnapshot(testSnapshot("app:1", time.Now())); err != nil {
		t.Fatalf("SaveSnapshot() failed: %v", err)
	}
	_ = s.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	infos, err := reopened.ListSnapshots("")
	if err != nil || len(infos) != 1 {
		t.Errorf("ListSnapshots() after reopen = %d, %v", len(infos), err)
	}
}
