// Command migrate inspects and changes the database schema.
//
//	migrate status        show the schema plan and pending SQL migrations
//	migrate up            apply pending SQL migrations
//	migrate auto          run GORM AutoMigrate regardless of DB_SCHEMA_MODE
//	migrate down VERSION  revert one SQL migration
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"shutter/internal/config"
	"shutter/internal/database"

	"gorm.io/gorm"
)

type command func(ctx context.Context, db *gorm.DB, cfg *config.Config, args []string) error

var commands = map[string]command{
	"status": status,
	"up":     up,
	"auto":   auto,
	"down":   down,
}

func main() {
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: migrate <status|up|auto|down VERSION>")
	}
	flag.Parse()

	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(cmd, flag.Args()[1:]); err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

func run(cmd command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()
	return cmd(context.Background(), db, cfg, args)
}

func status(ctx context.Context, db *gorm.DB, cfg *config.Config, _ []string) error {
	plan, err := database.Status(ctx, db, cfg)
	if err != nil {
		return err
	}
	log.Printf("mode=%s env=%s sql=%t auto=%t applied=%v", plan.Mode, plan.Env, plan.SQL, plan.Auto, plan.Applied)
	for _, m := range plan.Pending {
		log.Printf("pending %s", m)
	}
	return nil
}

func up(ctx context.Context, db *gorm.DB, _ *config.Config, _ []string) error {
	m, err := database.NewEmbeddedMigrator(db)
	if err != nil {
		return err
	}
	n, err := m.Up(ctx)
	log.Printf("applied %d migration(s)", n)
	return err
}

func auto(ctx context.Context, db *gorm.DB, cfg *config.Config, _ []string) error {
	cfg.DBSchemaMode = database.SchemaModeAuto
	return database.ApplySchema(ctx, db, cfg)
}

func down(ctx context.Context, db *gorm.DB, _ *config.Config, args []string) error {
	if len(args) != 1 {
		return errors.New("down needs exactly one VERSION")
	}
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("version %q: %w", args[0], err)
	}
	m, err := database.NewEmbeddedMigrator(db)
	if err != nil {
		return err
	}
	return m.Down(ctx, version)
}
