package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/northcutted/pkg-inspector/pkg/inventory"
	"github.com/northcutted/pkg-inspector/pkg/types"
)

// createdLayout is fixed-width so created_at sorts as text.
const createdLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SnapshotInfo is a row of the history listing.
type SnapshotInfo struct {
	ID           string
	Target       types.Target
	CreatedAt    time.Time
	PackageCount int
	PythonCount  int
	BinaryCount  int
}

// SaveSnapshot stores snap and returns its new ID.
func (s *Store) SaveSnapshot(snap *types.InventorySnapshot) (string, error) {
	id := uuid.New().String()
	counts := inventory.CountByType(snap)

	created := snap.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO snapshots
		(id, image, architecture, digest, created_at, package_count, python_count, binary_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		snap.Target.Image,
		snap.Target.Architecture,
		snap.Target.Digest,
		created.UTC().Format(createdLayout),
		len(snap.Records),
		counts[types.PackageTypePython],
		counts[types.PackageTypeBinary],
	)
	if err != nil {
		return "", wrapErr("failed to insert snapshot", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO snapshot_packages
		(snapshot_id, position, name, package_type, version, license, record)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", wrapErr("failed to prepare package insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, rec := range snap.Records {
		data, err := json.Marshal(rec)
		if err != nil {
			return "", fmt.Errorf("failed to marshal record %s: %w", rec.Name, err)
		}
		if _, err := stmt.Exec(id, i, rec.Name, string(rec.PackageType), rec.Version, rec.License, string(data)); err != nil {
			return "", fmt.Errorf("failed to insert package %s: %w", rec.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return id, nil
}

// ListSnapshots returns stored snapshots, newest first. A non-empty image
// limits the listing to that image.
func (s *Store) ListSnapshots(image string) ([]SnapshotInfo, error) {
	query := `
		SELECT id, image, architecture, digest, created_at, package_count, python_count, binary_count
		FROM snapshots
	`
	var args []any
	if image != "" {
		query += " WHERE image = ?"
		args = append(args, image)
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, wrapErr("failed to list snapshots", err)
	}
	defer func() { _ = rows.Close() }()

	var infos []SnapshotInfo
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, err
		}
		infos = append(infos, *info)
	}
	return infos, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInfo(row scanner) (*SnapshotInfo, error) {
	var info SnapshotInfo
	var digest sql.NullString
	var created string
	if err := row.Scan(
		&info.ID,
		&info.Target.Image,
		&info.Target.Architecture,
		&digest,
		&created,
		&info.PackageCount,
		&info.PythonCount,
		&info.BinaryCount,
	); err != nil {
		return nil, err
	}
	info.Target.Digest = digest.String

	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at for %s: %w", info.ID, err)
	}
	info.CreatedAt = t
	return &info, nil
}

// ResolveID expands a unique ID prefix to the full snapshot ID. The prefix
// is compared literally.
func (s *Store) ResolveID(prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", ErrEmptyID
	}
	rows, err := s.db.Query(`SELECT id FROM snapshots WHERE substr(id, 1, ?) = ? LIMIT 2`, utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return "", wrapErr("failed to look up snapshot", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return ids[0], nil
	}
	return "", fmt.Errorf("%w: %s", ErrAmbiguousID, prefix)
}

// GetSnapshot loads the snapshot whose ID starts with id.
func (s *Store) GetSnapshot(id string) (*types.InventorySnapshot, error) {
	full, err := s.ResolveID(id)
	if err != nil {
		return nil, err
	}

	info, err := scanInfo(s.db.QueryRow(`
		SELECT id, image, architecture, digest, created_at, package_count, python_count, binary_count
		FROM snapshots
		WHERE id = ?
	`, full))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, wrapErr("failed to get snapshot", err)
	}

	rows, err := s.db.Query(`SELECT record FROM snapshot_packages WHERE snapshot_id = ? ORDER BY position`, full)
	if err != nil {
		return nil, wrapErr("failed to get snapshot packages", err)
	}
	defer func() { _ = rows.Close() }()

	snap := &types.InventorySnapshot{
		Target:    info.Target,
		Records:   []types.PackageRecord{},
		CreatedAt: info.CreatedAt,
	}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var rec types.PackageRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode package record: %w", err)
		}
		if rec.ParentPackages == nil {
			rec.ParentPackages = []string{}
		}
		snap.Records = append(snap.Records, rec)
	}
	return snap, rows.Err()
}

// DeleteSnapshot removes a snapshot and its packages.
func (s *Store) DeleteSnapshot(id string) error {
	full, err := s.ResolveID(id)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(`DELETE FROM snapshots WHERE id = ?`, full); err != nil {
		return wrapErr("failed to delete snapshot", err)
	}
	return nil
}
