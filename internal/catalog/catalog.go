// Package catalog maintains the astrophotography image index: one row per
// saved session directory and one per captured file. The ImageServer
// subsystem answers directory listings from it and the HTTP image path
// resolves files through it.
package catalog

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/skyfield-data/originsim/internal/security"
)

// DB wraps the catalog database handle.
type DB struct {
	*sql.DB
	imageRoot string
}

// File is one captured image in a session directory.
type File struct {
	Name      string
	SizeBytes int64
	CreatedAt time.Time
}

// Open opens (creating if needed) the catalog database at path and runs all
// pending migrations. imageRoot is the on-disk directory that session
// directories live under.
func Open(path, imageRoot string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog db: %w", err)
	}
	db := &DB{DB: sqldb, imageRoot: imageRoot}
	if err := db.MigrateUp(); err != nil {
		sqldb.Close()
		return nil, err
	}
	return db, nil
}

// ImageRoot reports the on-disk directory backing the catalog.
func (db *DB) ImageRoot() string {
	return db.imageRoot
}

// EnsureSession records a session directory if it is not already present.
func (db *DB) EnsureSession(dir string) error {
	dir = security.SanitizeSegment(dir)
	_, err := db.Exec(
		`INSERT INTO sessions (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, dir)
	if err != nil {
		return fmt.Errorf("failed to record session %q: %w", dir, err)
	}
	return nil
}

// RecordCapture stores one captured file under a session directory, creating
// the session row as needed. It returns the sanitized directory and file
// names actually stored.
func (db *DB) RecordCapture(dir, name string, sizeBytes int64) (string, string, error) {
	dir = security.SanitizeSegment(dir)
	name = security.SanitizeSegment(name)
	if err := db.EnsureSession(dir); err != nil {
		return "", "", err
	}
	_, err := db.Exec(
		`INSERT INTO files (session, name, size_bytes) VALUES (?, ?, ?)
		 ON CONFLICT(session, name) DO UPDATE SET size_bytes = excluded.size_bytes`,
		dir, name, sizeBytes)
	if err != nil {
		return "", "", fmt.Errorf("failed to record capture %s/%s: %w", dir, name, err)
	}
	return dir, name, nil
}

// Directories lists all session directories, newest first.
func (db *DB) Directories() ([]string, error) {
	rows, err := db.Query(`SELECT name FROM sessions ORDER BY created_at DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var dirs []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		dirs = append(dirs, name)
	}
	return dirs, rows.Err()
}

// DirectoryContents lists the files recorded under one session directory.
func (db *DB) DirectoryContents(dir string) ([]File, error) {
	rows, err := db.Query(
		`SELECT name, size_bytes, created_at FROM files WHERE session = ? ORDER BY name`,
		security.SanitizeSegment(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to list files in %q: %w", dir, err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.Name, &f.SizeBytes, &f.CreatedAt); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// FileNames lists just the file names recorded under one session directory.
func (db *DB) FileNames(dir string) ([]string, error) {
	files, err := db.DirectoryContents(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	return names, nil
}

// TotalBytes sums the recorded size of every catalogued file.
func (db *DB) TotalBytes() (int64, error) {
	var total sql.NullInt64
	if err := db.QueryRow(`SELECT SUM(size_bytes) FROM files`).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum catalog bytes: %w", err)
	}
	return total.Int64, nil
}

// ResolveFile maps a directory and file name from an untrusted URL onto an
// on-disk path under the image root, together with the content type implied
// by the file extension. The file must be catalogued and the resolved path
// must not escape the root.
func (db *DB) ResolveFile(dir, name string) (string, string, error) {
	dir = security.SanitizeSegment(dir)
	name = security.SanitizeSegment(name)

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM files WHERE session = ? AND name = ?`, dir, name).Scan(&count)
	if err != nil {
		return "", "", fmt.Errorf("failed to look up %s/%s: %w", dir, name, err)
	}
	if count == 0 {
		return "", "", fmt.Errorf("no catalogued file %s/%s", dir, name)
	}

	full := filepath.Join(db.imageRoot, dir, name)
	if err := security.ValidatePathWithinDirectory(full, db.imageRoot); err != nil {
		return "", "", err
	}
	return full, ContentTypeFor(name), nil
}

// ContentTypeFor picks the HTTP content type for an image file name.
// Astrophotography output defaults to TIFF; live previews are JPEG.
func ContentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "image/tiff"
	}
}
