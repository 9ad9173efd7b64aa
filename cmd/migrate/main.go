package main

import (
	"flag"
	"fmt"
	"log"

	"tradeinsight/internal/config"
	"tradeinsight/internal/database"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config file")
		up         = flag.Bool("up", false, "run pending migrations")
		down       = flag.Bool("down", false, "roll back all migrations")
		version    = flag.Bool("version", false, "show current migration version")
		force      = flag.Int("force", -1, "force migration version (repairs a dirty state)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewConnection(&database.Config{
		Path:    cfg.Database.Path,
		MaxOpen: 1,
	})
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, cfg.Database.MigrationsPath)
	if err != nil {
		log.Fatalf("failed to create migrator: %v", err)
	}
	defer migrator.Close()

	switch {
	case *down:
		if err := migrator.Down(); err != nil {
			log.Fatalf("rollback failed: %v", err)
		}
		log.Println("migrations rolled back")
	case *version:
		v, err := migrator.Version()
		if err != nil {
			log.Fatalf("failed to read migration version: %v", err)
		}
		fmt.Printf("current migration version: %d\n", v)
	case *force >= 0:
		if err := migrator.Force(*force); err != nil {
			log.Fatalf("failed to force version: %v", err)
		}
		log.Printf("migration version forced to %d", *force)
	case *up:
		fallthrough
	default:
		if err := migrator.Up(); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		log.Println("migrations applied")
	}
}
