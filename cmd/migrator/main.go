package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	var driver, dbUrl, migrationsPath, migrationsTable string

	flag.StringVar(&driver, "driver", "postgres", "database driver: postgres or sqlite")
	flag.StringVar(&dbUrl, "db-url", "test:12345@localhost:5433/test_db", "db url connection, or file path for sqlite")
	flag.StringVar(&migrationsPath, "migrations-path", "", "path to migrations (default ./migrations/<driver>)")
	flag.StringVar(&migrationsTable, "migrations-table", "migrations", "name of migrations table")
	flag.Parse()

	if dbUrl == "" {
		panic("storage path is required")
	}
	if migrationsPath == "" {
		migrationsPath = "./migrations/" + driver
	}

	var databaseUrl string
	switch driver {
	case "postgres":
		databaseUrl = fmt.Sprintf("postgresql://%s?x-migrations-table=%s&sslmode=disable", dbUrl, migrationsTable)
	case "sqlite":
		databaseUrl = fmt.Sprintf("sqlite://%s?x-migrations-table=%s", dbUrl, migrationsTable)
	default:
		panic("unknown driver: " + driver)
	}

	m, err := migrate.New("file://"+migrationsPath, databaseUrl)
	if err != nil {
		panic(err)
	}
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			fmt.Println("no migrations to apply")
			return
		}
		panic(err)
	}

	fmt.Println("migrations applied successfully")
}
