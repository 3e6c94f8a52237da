// Command migrate applies the embedded schema migrations.
//
//	migrate [-dsn url] up | down | steps N | version | force V
//
// Without -dsn the connection comes from ATLAS_DB_DSN, then from the
// service configuration.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/atlas-erp/atlas/internal/config"
	"github.com/atlas-erp/atlas/migrations"
)

func main() {
	dsn := flag.String("dsn", "", "postgres connection URL")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: migrate [-dsn url] up | down | steps N | version | force V")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(resolveDSN(*dsn), flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func resolveDSN(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("ATLAS_DB_DSN"); v != "" {
		return v
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate: no -dsn and config unavailable:", err)
		os.Exit(1)
	}
	return cfg.Database.URL()
}

func run(dsn string, args []string) error {
	src, err := migrations.Source()
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer m.Close()

	arg := func() (int, error) {
		if len(args) < 2 {
			return 0, fmt.Errorf("%s needs a number", args[0])
		}
		return strconv.Atoi(args[1])
	}

	switch args[0] {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		n, aerr := arg()
		if aerr != nil {
			return aerr
		}
		err = m.Steps(n)
	case "force":
		v, aerr := arg()
		if aerr != nil {
			return aerr
		}
		err = m.Force(v)
	case "version":
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("no migrations applied")
		return nil
	}
	if err != nil {
		return fmt.Errorf("version: %w", err)
	}
	fmt.Printf("version %d (dirty: %t)\n", version, dirty)
	return nil
}
