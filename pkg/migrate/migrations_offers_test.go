package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/angelmondragon/offers-backend/pkg/migrate"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := migrate.Validate(migrate.Migrations()); err != nil {
		t.Fatalf("validate embedded migrations: %v", err)
	}
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}

func TestOfferMigrationsContainSchemas(t *testing.T) {
	checks := map[string][]string{
		"*_create_offers.sql": {
			"CREATE TABLE IF NOT EXISTS offers",
			"gl_rollback_version BIGINT",
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_offers_code_store",
		},
		"*_create_offer_history.sql": {
			"CREATE TABLE IF NOT EXISTS offer_history",
			"offer_history is append-only",
		},
		"*_create_campaigns.sql": {
			"CREATE TABLE IF NOT EXISTS campaigns",
			"CREATE TABLE IF NOT EXISTS campaign_offers",
		},
	}

	fsys := migrate.Migrations()
	for pattern, statements := range checks {
		matches, err := fs.Glob(fsys, pattern)
		if err != nil {
			t.Fatalf("glob %s: %v", pattern, err)
		}
		if len(matches) != 1 {
			t.Fatalf("expected one migration for %s, got %d", pattern, len(matches))
		}
		data, err := fs.ReadFile(fsys, matches[0])
		if err != nil {
			t.Fatalf("read migration file: %v", err)
		}
		for _, sub := range statements {
			if !strings.Contains(string(data), sub) {
				t.Errorf("%s missing expected statement %q", matches[0], sub)
			}
		}
	}
}

func TestValidateRejectsBadMigrations(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name": {
			"bad-name.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"duplicate version": {
			"20260301090000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"20260301090000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"missing down": {
			"20260301090000_a.sql": {Data: []byte("-- +goose Up\n")},
		},
		"empty": {},
	}
	for name, fsys := range cases {
		if err := migrate.Validate(fsys); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestValidateDirReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatalf("expected invalid filename error")
	}
}
