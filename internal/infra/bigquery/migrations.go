package bigquery

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/budget-sync/internal/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// Pattern to match migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// ReadMigrations parses every migration in fsys, substituting the project and
// dataset placeholders. The checksum is taken before substitution.
func ReadMigrations(fsys fs.FS, table Table) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("ReadMigrations: %w", err)
	}

	var migrations []Migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := migrationPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		content, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("ReadMigrations: reading %s: %w", e.Name(), err)
		}
		sql := strings.ReplaceAll(string(content), "{{PROJECT_ID}}", table.ProjectID)
		sql = strings.ReplaceAll(sql, "{{DATASET_ID}}", table.DatasetID)

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     m[2],
			Filename: e.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// EmbeddedMigrations returns the migrations shipped with the binary.
func EmbeddedMigrations(table Table) ([]Migration, error) {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("EmbeddedMigrations: %w", err)
	}
	return ReadMigrations(sub, table)
}

// ApplyMigrations runs every embedded migration not yet recorded in
// schema_migrations and returns how many were applied.
func ApplyMigrations(ctx context.Context, client *bigquery.Client, table Table, appliedBy string) (int, error) {
	log := logger.FromContext(ctx)

	if err := runAndWait(ctx, client.Query(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`, table.ref("schema_migrations")))); err != nil {
		return 0, fmt.Errorf("ApplyMigrations: ensuring schema_migrations: %w", err)
	}

	migrations, err := EmbeddedMigrations(table)
	if err != nil {
		return 0, fmt.Errorf("ApplyMigrations: %w", err)
	}

	applied, err := appliedVersions(ctx, client, table)
	if err != nil {
		return 0, fmt.Errorf("ApplyMigrations: %w", err)
	}

	count := 0
	for _, m := range migrations {
		if applied[m.Version] {
			log.Debug().Int("version", m.Version).Str("name", m.Name).Msg("Migration already applied")
			continue
		}
		if err := runAndWait(ctx, client.Query(m.SQL)); err != nil {
			return count, fmt.Errorf("ApplyMigrations: executing %s: %w", m.Filename, err)
		}

		q := client.Query(fmt.Sprintf(`
			INSERT INTO %s
			(version, name, applied_at, checksum, applied_by)
			VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
		`, table.ref("schema_migrations")))
		q.Parameters = []bigquery.QueryParameter{
			{Name: "version", Value: m.Version},
			{Name: "name", Value: m.Name},
			{Name: "checksum", Value: m.Checksum},
			{Name: "applied_by", Value: appliedBy},
		}
		if err := runAndWait(ctx, q); err != nil {
			return count, fmt.Errorf("ApplyMigrations: recording %s: %w", m.Filename, err)
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applied migration")
		count++
	}
	return count, nil
}

func appliedVersions(ctx context.Context, client *bigquery.Client, table Table) (map[int]bool, error) {
	it, err := client.Query(fmt.Sprintf(`
		SELECT version FROM %s ORDER BY version ASC
	`, table.ref("schema_migrations"))).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	versions := make(map[int]bool)
	for {
		var row struct {
			Version int64 `bigquery:"version"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating applied migrations: %w", err)
		}
		versions[int(row.Version)] = true
	}
	return versions, nil
}
