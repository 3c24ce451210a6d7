// Command patronctl publishes patron membership events to the engine's Redis
// stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"steem-patron-bot/internal/events"
	redisstore "steem-patron-bot/internal/storage/redis"
)

func main() {
	addr := flag.String("redis-addr", envOr("REDIS_ADDR", "localhost:6379"), "Redis address")
	password := flag.String("redis-password", os.Getenv("REDIS_PASSWORD"), "Redis password")
	stream := flag.String("stream", envOr("REDIS_EVENTS_STREAM", "patron:events"), "Event stream key")
	tier := flag.String("tier", "", "Patron tier for add")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: patronctl [flags] add|remove <claimant-id>")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	var eventType string
	switch flag.Arg(0) {
	case "add":
		eventType = events.TypePatronAdded
	case "remove":
		eventType = events.TypePatronRemoved
	default:
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb, err := redisstore.NewClient(ctx, redisstore.Options{Addr: *addr, Password: *password})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to Redis: %v\n", err)
		os.Exit(1)
	}
	defer rdb.Close()

	id, err := events.Publish(ctx, rdb, *stream, eventType, flag.Arg(1), *tier)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error publishing: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s %s published as %s\n", eventType, flag.Arg(1), id)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
