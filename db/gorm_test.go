package db

import (
	"path/filepath"
	"strings"
	"testing"

	"TrackLens/config"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
)

func testConfig(driver string) *config.Config {
	return &config.Config{
		DBDriver:   driver,
		DBHost:     "db.local",
		DBPort:     "3306",
		DBUser:     "tracklens",
		DBPassword: "p@ss:word",
		DBName:     "tracks",
		DBPath:     ":memory:",
	}
}

func TestMySQLDSN(t *testing.T) {
	dsn := MySQLDSN(testConfig("mysql"))
	for _, want := range []string{"tracklens:p@ss:word@tcp(db.local:3306)/tracks", "parseTime=true", "charset=utf8mb4", "loc=UTC"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
}

func TestDialector(t *testing.T) {
	d, err := Dialector(testConfig("mysql"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := d.(*mysql.Dialector); !ok {
		t.Errorf("mysql dialector = %T", d)
	}

	d, err = Dialector(testConfig("postgres"))
	if err != nil {
		t.Fatal(err)
	}
	pg, ok := d.(*postgres.Dialector)
	if !ok {
		t.Fatalf("postgres dialector = %T", d)
	}
	if !strings.Contains(pg.Config.DSN, "dbname=tracks") || !strings.Contains(pg.Config.DSN, "TimeZone=UTC") {
		t.Errorf("postgres dsn = %q", pg.Config.DSN)
	}

	d, err = Dialector(testConfig("sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := d.(*sqlite.Dialector); !ok {
		t.Errorf("sqlite dialector = %T", d)
	}

	if _, err := Dialector(testConfig("oracle")); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestConnectSQLiteMigrates(t *testing.T) {
	cfg := testConfig("sqlite")
	cfg.DBPath = filepath.Join(t.TempDir(), "tracklens.db")
	gdb, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer Close(gdb)
	if !gdb.Migrator().HasTable("tracks") {
		t.Error("tracks table not created")
	}
}
