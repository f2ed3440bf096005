// Package main provides a CLI tool for loading YAML content seeds into the
// database: avatars, elements, and map templates.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cjmeyer/gridverse/internal/config"
	"github.com/cjmeyer/gridverse/internal/content"
	"github.com/cjmeyer/gridverse/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	seedPath := flag.String("seed", "", "path to YAML seed file (required)")
	flag.Parse()

	if *seedPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	seed, err := content.Load(*seedPath)
	if err != nil {
		log.Fatalf("loading seed: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connecting to database: %v", err)
	}
	defer pool.Close()

	avatars := postgres.NewAvatarRepository(pool.DB())
	elements := postgres.NewElementRepository(pool.DB())
	maps := postgres.NewMapRepository(pool.DB())

	if err := content.Apply(ctx, seed, avatars, elements, maps); err != nil {
		log.Fatalf("applying seed: %v", err)
	}

	fmt.Fprintf(os.Stdout, "seeded %d avatar(s), %d element(s), %d map(s) [%s]\n",
		len(seed.Avatars), len(seed.Elements), len(seed.Maps), time.Since(start).Round(time.Millisecond))
}
