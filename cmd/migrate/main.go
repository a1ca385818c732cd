package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/angelmondragon/numberpool/internal/bootstrap"
	"github.com/angelmondragon/numberpool/internal/products"
	"github.com/angelmondragon/numberpool/pkg/migrate"
)

func main() {
	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate|seed")
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	catalog := flag.String("catalog", "", "catalog YAML file (for seed, defaults to NUMBERPOOL_CATALOG_FILE)")
	flag.Parse()

	// create and validate only touch the filesystem.
	switch *cmd {
	case "create":
		if *name == "" {
			fail("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		if err != nil {
			fail("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			fail("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	proc := bootstrap.Start("migrate")
	defer proc.Close()
	cfg, logg := proc.Config, proc.Logger
	ctx := logg.WithFields(proc.Context(), map[string]any{"cmd": *cmd, "dir": *dir})

	sqlDB, err := proc.DB.DB().DB()
	proc.Must("sql database", err)

	logg.Info(ctx, "migrate ready")

	switch *cmd {
	case "up", "down", "status":
		if err := migrate.Run(ctx, sqlDB, *dir, *cmd); err != nil {
			fail("goose %s failed: %v", *cmd, err)
		}
	case "version":
		if *version == "" {
			fail("missing -version for version command")
		}
		if err := migrate.MigrateToVersion(ctx, sqlDB, *dir, *version); err != nil {
			fail("goose version migrate failed: %v", err)
		}
	case "seed":
		catalogCfg := cfg.Catalog
		if *catalog != "" {
			catalogCfg.File = *catalog
		}
		if catalogCfg.File == "" {
			fail("missing -catalog and NUMBERPOOL_CATALOG_FILE for seed")
		}
		if err := bootstrap.SeedCatalog(ctx, catalogCfg, products.NewRepository(proc.DB.DB()), logg); err != nil {
			fail("catalog seed failed: %v", err)
		}
		fmt.Println("catalog seeded from", catalogCfg.File)
	default:
		fail("unknown -cmd value: %s", *cmd)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
