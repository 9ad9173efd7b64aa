package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"tradeinsight/internal/config"
	"tradeinsight/internal/database"
)

// Online SQLite backup via VACUUM INTO. Keeps the newest -keep backups
// and prunes the rest.
func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config file")
		backupDir  = flag.String("dir", "backups", "backup output directory")
		keep       = flag.Int("keep", 7, "number of backups to retain")
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

	if err := os.MkdirAll(*backupDir, 0o755); err != nil {
		log.Fatalf("failed to create backup directory: %v", err)
	}

	target := filepath.Join(*backupDir,
		fmt.Sprintf("tradeinsight-%s.db", time.Now().UTC().Format("20060102-150405")))

	if _, err := db.Exec(`VACUUM INTO ?`, target); err != nil {
		log.Fatalf("backup failed: %v", err)
	}
	log.Printf("backup written to %s", target)

	if err := prune(*backupDir, *keep); err != nil {
		log.Fatalf("backup pruning failed: %v", err)
	}
}

func prune(dir string, keep int) error {
	if keep <= 0 {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var backups []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, "tradeinsight-") && strings.HasSuffix(name, ".db") {
			backups = append(backups, name)
		}
	}
	if len(backups) <= keep {
		return nil
	}

	// Timestamped names sort chronologically.
	sort.Strings(backups)
	for _, name := range backups[:len(backups)-keep] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return err
		}
		log.Printf("pruned old backup %s", name)
	}
	return nil
}
