// Package migration applies embedded schema migrations at startup.
package migration

import (
	"embed"
	"io/fs"
	"sort"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed migrations/*.up.sql
var files embed.FS

var Module = fx.Module("migration",
	fx.Invoke(Run),
)

// Run applies every pending .up.sql in lexical order. Each file runs in
// its own transaction and is recorded in schema_migrations.
func Run(db *gorm.DB, log *zap.Logger) error {
	log = log.Named("migration")

	err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL
	)`).Error
	if err != nil {
		return err
	}

	entries, err := fs.ReadDir(files, "migrations")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		var applied int64
		err := db.Raw(`SELECT COUNT(1) FROM schema_migrations WHERE version = ?`, name).Scan(&applied).Error
		if err != nil {
			return err
		}
		if applied > 0 {
			continue
		}

		raw, err := files.ReadFile("migrations/" + name)
		if err != nil {
			return err
		}

		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(string(raw)).Error; err != nil {
				return err
			}
			return tx.Exec(
				`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
				name, time.Now().UTC(),
			).Error
		})
		if err != nil {
			return err
		}
		log.Info("applied migration", zap.String("version", name))
	}
	return nil
}
