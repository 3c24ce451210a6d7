package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"steem-patron-bot/internal/storage/migrations"
	pgstore "steem-patron-bot/internal/storage/postgres"
)

func main() {
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	flag.Parse()

	if *postgresDSN == "" && *clickhouseDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: nothing to migrate, set --postgres-dsn and/or --clickhouse-dsn")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if *postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to PostgreSQL: %v\n", err)
			os.Exit(1)
		}
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		pool.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error migrating PostgreSQL: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("postgres: %d migration(s) applied\n", len(applied))
		for _, name := range applied {
			fmt.Printf("  %s\n", name)
		}
	}

	if *clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error migrating ClickHouse: %v\n", err)
			os.Exit(1)
		}
		_ = conn.Close()
		fmt.Println("clickhouse: schema up to date")
	}
}
