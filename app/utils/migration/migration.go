package migration

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Migration is one versioned schema change, loaded from paired
// NNN_name.up.sql / NNN_name.down.sql files.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// Migrator applies versioned schema migrations and records them in a
// schema_migrations table.
type Migrator struct {
	db           *sql.DB
	logger       *slog.Logger
	migrationsFS fs.FS
}

// NewMigrator creates a migration manager over the given filesystem.
func NewMigrator(db *sql.DB, logger *slog.Logger, migrationsFS fs.FS) *Migrator {
	return &Migrator{
		db:           db,
		logger:       logger.With("component", "migrator"),
		migrationsFS: migrationsFS,
	}
}

func (m *Migrator) createMigrationsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
		checksum VARCHAR(64) NOT NULL
	)`

	if _, err := m.db.Exec(query); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}
	return nil
}

// loadMigrations reads every paired up/down migration from the
// filesystem, sorted by version.
func (m *Migrator) loadMigrations() ([]Migration, error) {
	var migrations []Migration

	err := fs.WalkDir(m.migrationsFS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".up.sql") {
			return nil
		}

		filename := filepath.Base(path)
		parts := strings.SplitN(strings.TrimSuffix(filename, ".up.sql"), "_", 2)
		if len(parts) < 2 {
			m.logger.Warn("skipping migration with unparseable name", "filename", filename)
			return nil
		}

		version, err := strconv.Atoi(parts[0])
		if err != nil {
			m.logger.Warn("skipping migration with non-numeric version", "filename", filename)
			return nil
		}

		upSQL, err := fs.ReadFile(m.migrationsFS, path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		downPath := strings.Replace(path, ".up.sql", ".down.sql", 1)
		downSQL, err := fs.ReadFile(m.migrationsFS, downPath)
		if err != nil {
			return fmt.Errorf("reading %s: %w", downPath, err)
		}

		migrations = append(migrations, Migration{
			Version: version,
			Name:    parts[1],
			UpSQL:   string(upSQL),
			DownSQL: string(downSQL),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func (m *Migrator) appliedVersions() (map[int]string, error) {
	rows, err := m.db.Query(`SELECT version, checksum FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("querying applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]string)
	for rows.Next() {
		var version int
		var checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, err
		}
		applied[version] = checksum
	}
	return applied, rows.Err()
}

// Up applies every pending migration in version order. An already-applied
// migration whose file content changed fails loudly rather than silently
// diverging.
func (m *Migrator) Up() error {
	if err := m.createMigrationsTable(); err != nil {
		return err
	}

	migrations, err := m.loadMigrations()
	if err != nil {
		return err
	}
	applied, err := m.appliedVersions()
	if err != nil {
		return err
	}

	pending := 0
	for _, mig := range migrations {
		checksum := checksumOf(mig.UpSQL)
		if recorded, ok := applied[mig.Version]; ok {
			if recorded != checksum {
				return fmt.Errorf("migration %03d_%s changed after being applied", mig.Version, mig.Name)
			}
			continue
		}

		if err := m.apply(mig, checksum); err != nil {
			return err
		}
		pending++
	}

	m.logger.Info("migrations complete", "applied", pending, "total", len(migrations))
	return nil
}

// Down rolls back the most recently applied migration.
func (m *Migrator) Down() error {
	if err := m.createMigrationsTable(); err != nil {
		return err
	}

	migrations, err := m.loadMigrations()
	if err != nil {
		return err
	}
	applied, err := m.appliedVersions()
	if err != nil {
		return err
	}

	var last *Migration
	for i := range migrations {
		if _, ok := applied[migrations[i].Version]; ok {
			last = &migrations[i]
		}
	}
	if last == nil {
		m.logger.Info("nothing to roll back")
		return nil
	}

	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(last.DownSQL); err != nil {
		return fmt.Errorf("rolling back %03d_%s: %w", last.Version, last.Name, err)
	}
	if _, err := tx.Exec(`DELETE FROM schema_migrations WHERE version = $1`, last.Version); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	m.logger.Info("rolled back migration", "version", last.Version, "name", last.Name)
	return nil
}

// Status logs each migration and whether it has been applied.
func (m *Migrator) Status() error {
	if err := m.createMigrationsTable(); err != nil {
		return err
	}

	migrations, err := m.loadMigrations()
	if err != nil {
		return err
	}
	applied, err := m.appliedVersions()
	if err != nil {
		return err
	}

	for _, mig := range migrations {
		state := "pending"
		if _, ok := applied[mig.Version]; ok {
			state = "applied"
		}
		m.logger.Info("migration status", "version", mig.Version, "name", mig.Name, "state", state)
	}
	return nil
}

func (m *Migrator) apply(mig Migration, checksum string) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(mig.UpSQL); err != nil {
		return fmt.Errorf("applying %03d_%s: %w", mig.Version, mig.Name, err)
	}
	if _, err := tx.Exec(
		`INSERT INTO schema_migrations (version, name, checksum) VALUES ($1, $2, $3)`,
		mig.Version, mig.Name, checksum,
	); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	m.logger.Info("applied migration", "version", mig.Version, "name", mig.Name)
	return nil
}

func checksumOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
