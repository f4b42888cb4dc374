// Command seed loads demo profiles and posts into the database.
package main

import (
	"context"
	"flag"
	"log"

	"shutter/internal/config"
	"shutter/internal/database"
	"shutter/internal/seed"
)

func main() {
	extra := flag.Int("extra-posts", 0, "Number of generated posts to add on top of the fixtures")
	maxDays := flag.Int("max-days", 30, "Date generated posts up to this many days back")
	clean := flag.Bool("clean", true, "Delete existing posts and likes before seeding")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close(db) }()

	ctx := context.Background()
	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	s, err := seed.NewSeeder(db, seed.Options{
		ClearPosts: *clean,
		ExtraPosts: *extra,
		MaxDays:    *maxDays,
	})
	if err != nil {
		log.Fatalf("Failed to load fixtures: %v", err)
	}

	res, err := s.Run(ctx)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("done: %d profiles, %d posts", res.Profiles, res.Posts)
}
