// Drops view events older than the retention window. The server does this
// daily; run this by hand to reclaim space immediately or with a custom
// retention via -days.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dilemma.fyi/internal/store"
)

func main() {
	days := flag.Int("days", 90, "drop view events older than this many days")
	flag.Parse()

	loadDotEnv(".env")

	if *days <= 0 {
		log.Fatal("-days must be positive")
	}

	ctx := context.Background()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	queries := store.New(pool)
	cutoff := time.Now().UTC().AddDate(0, 0, -*days)

	purged, err := queries.PurgeOldViews(ctx, cutoff)
	if err != nil {
		log.Fatalf("purge views: %v", err)
	}

	fmt.Printf("Purged view events before %s from %d questions.\n", cutoff.Format(time.DateOnly), purged)
}

func loadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); exists {
			continue
		}

		_ = os.Setenv(key, strings.Trim(value, `"'`))
	}
}
