package db

import (
	"testing"
	"testing/fstest"

	"github.com/genetica/genetica/migrations"
)

func TestLoadMigrations(t *testing.T) {
	files := fstest.MapFS{
		"002_reports.sql": {Data: []byte("CREATE INDEX b ON t (b);")},
		"001_core.sql":    {Data: []byte("CREATE TABLE t (id SERIAL PRIMARY KEY);")},
		"010_late.sql":    {Data: []byte("SELECT 1;")},
	}

	migrations, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}

	want := []int{1, 2, 10}
	for i, v := range want {
		if migrations[i].Version != v {
			t.Errorf("migration %d: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
	if migrations[0].SQL != "CREATE TABLE t (id SERIAL PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
}

func TestLoadMigrations_SkipsNonMigrationFiles(t *testing.T) {
	files := fstest.MapFS{
		"001_core.sql":      {Data: []byte("SELECT 1;")},
		"README.md":         {Data: []byte("docs")},
		"notes.sql":         {Data: []byte("SELECT 2;")},
		"abc_bad.sql":       {Data: []byte("SELECT 3;")},
		"seed/002_data.sql": {Data: []byte("SELECT 4;")},
	}

	migrations, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 1 {
		t.Fatalf("expected 1 migration, got %d", len(migrations))
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	files := fstest.MapFS{
		"001_core.sql":  {Data: []byte("SELECT 1;")},
		"001_other.sql": {Data: []byte("SELECT 2;")},
	}

	if _, err := NewMigrator(nil, files).LoadMigrations(); err == nil {
		t.Fatal("expected error for duplicate version")
	}
}

func TestLoadMigrations_Embedded(t *testing.T) {
	migrations, err := NewMigrator(nil, migrations.FS).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("expected embedded migrations")
	}
	if migrations[0].Version != 1 {
		t.Errorf("expected first version 1, got %d", migrations[0].Version)
	}
}
