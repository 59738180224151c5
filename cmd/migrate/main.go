// Command migrate applies the Postgres or ClickHouse schema migrations.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/clickhouse"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"clientpulse/api/config"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	target := flag.String("target", "postgres", "database to migrate: postgres or clickhouse")
	dir := flag.String("dir", "migrations", "root directory holding one sub-directory per target")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: migrate [-target postgres|clickhouse] <up|down>")
		return exitFailure
	}
	direction := flag.Arg(0)
	if direction != "up" && direction != "down" {
		fmt.Fprintf(os.Stderr, "Invalid direction: %q (must be \"up\" or \"down\")\n", direction)
		return exitFailure
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitFailure
	}

	dsn, err := databaseURL(cfg, *target)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}

	m, err := migrate.New(fmt.Sprintf("file://%s/%s", *dir, *target), dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrate instance: %v\n", err)
		return exitFailure
	}
	defer func() { _, _ = m.Close() }()

	if err := runMigration(m, direction); err != nil {
		fmt.Fprintf(os.Stderr, "Migration %s failed: %v\n", direction, err)
		return exitFailure
	}

	fmt.Printf("Migration %s (%s) completed successfully\n", direction, *target)
	return exitSuccess
}

func databaseURL(cfg *config.Config, target string) (string, error) {
	switch target {
	case "postgres":
		return cfg.Postgres.URL, nil
	case "clickhouse":
		ch := cfg.ClickHouse
		u := url.URL{
			Scheme: "clickhouse",
			Host:   net.JoinHostPort(ch.Host, strconv.Itoa(ch.Port)),
			RawQuery: url.Values{
				"username":          {ch.Username},
				"password":          {ch.Password},
				"database":          {ch.Database},
				"x-multi-statement": {"true"},
			}.Encode(),
		}
		return u.String(), nil
	default:
		return "", fmt.Errorf("unknown target %q", target)
	}
}

func runMigration(m *migrate.Migrate, direction string) error {
	var err error
	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	}

	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("No migrations to apply")
		return nil
	}
	return err
}
