package db

import (
	"database/sql"
	"embed"
	"fmt"
	"log"
	"sort"
)

//go:embed migrations/*
var migrationsFS embed.FS

// RunMigrations applies any pending SQL migrations for the given dialect.
// Applied versions are tracked in schema_migrations.
func RunMigrations(rawDB *sql.DB, dialect Dialect) error {
	createTableSQL := `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
	if dialect == DialectPostgres {
		createTableSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`
	}
	if _, err := rawDB.Exec(createTableSQL); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	dir := "migrations/" + string(dialect)
	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations dir %s: %w", dir, err)
	}

	var versions []string
	for _, e := range entries {
		if !e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	sort.Strings(versions)

	markSQL := "INSERT OR IGNORE INTO schema_migrations (version) VALUES (?)"
	if dialect == DialectPostgres {
		markSQL = "INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING"
	}

	for _, version := range versions {
		var applied int
		err := rawDB.QueryRow(rewriteFor(dialect, "SELECT COUNT(*) FROM schema_migrations WHERE version = ?"), version).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", version, err)
		}
		if applied > 0 {
			continue
		}

		body, err := migrationsFS.ReadFile(dir + "/" + version)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", version, err)
		}
		if _, err := rawDB.Exec(string(body)); err != nil {
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
		if _, err := rawDB.Exec(markSQL, version); err != nil {
			return fmt.Errorf("record migration %s: %w", version, err)
		}
		log.Printf("applied migration %s", version)
	}
	return nil
}

func rewriteFor(dialect Dialect, query string) string {
	if dialect == DialectPostgres {
		return rewritePlaceholders(query)
	}
	return query
}
