// Seeds questions from a YAML file. Entries whose derived slug already
// exists in their category are skipped, so re-running the seed is safe.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"dilemma.fyi/internal/question"
	"dilemma.fyi/internal/store"
)

type seedEntry struct {
	Category string   `yaml:"category"`
	Title    string   `yaml:"title"`
	Body     string   `yaml:"body"`
	Tags     []string `yaml:"tags"`
	Type     string   `yaml:"type"`
	Choices  []string `yaml:"choices"`
	Featured bool     `yaml:"featured"`
}

func main() {
	loadDotEnv(".env")

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: questionseed <questions.yaml>\n")
		os.Exit(1)
	}

	path := os.Args[1]
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}

	var entries []seedEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		log.Fatalf("parse yaml: %v", err)
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
	now := time.Now().UTC()

	var created, skipped int
	for i, entry := range entries {
		q, err := question.New(question.Draft{
			Category: question.Category(entry.Category),
			Title:    entry.Title,
			Body:     entry.Body,
			Tags:     entry.Tags,
			Type:     question.Type(entry.Type),
			Choices:  entry.Choices,
			Featured: entry.Featured,
		}, now)
		if err != nil {
			log.Fatalf("entry %d (%q): %v", i+1, entry.Title, err)
		}

		err = queries.CreateQuestion(ctx, q)
		if errors.Is(err, store.ErrDuplicate) {
			skipped++
			continue
		}
		if err != nil {
			log.Fatalf("entry %d (%q): %v", i+1, entry.Title, err)
		}
		created++
		fmt.Printf("  %s/%s\n", q.Category, q.Slug)
	}

	fmt.Printf("Seeded %d questions (%d already present).\n", created, skipped)
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
