// cairndb is a demo driver for the cairndb embedded key/value store. It
// is not part of the store's public API — it just opens a store, runs
// one transaction, and logs what it reads back.
//
// Usage:
//
//	cairndb [flags]
//
// Flags:
//
//	-data string      Data directory (default "data")
//	-loglevel string  Log level: debug, info, warn, error (default "info")
//	-version          Show version and exit
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/cairndb/cairndb"
	"github.com/cairndb/cairndb/internal/config"
	"github.com/cairndb/cairndb/internal/version"
)

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	dataDir := flag.String("data", envOrDefault("CAIRNDB_DATA", "data"), "Data directory")
	logLevel := flag.String("loglevel", envOrDefault("CAIRNDB_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("cairndb v%s (built %s)\n", version.Version, version.BuildTime)
		return
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(*logLevel),
	})))

	cfg := config.DefaultConfig()
	cfg.DataDir = *dataDir
	cfg.LogLevel = *logLevel

	slog.Info("cairndb starting", "version", version.Version, "data_dir", cfg.DataDir)

	store, err := cairndb.Open(cfg)
	if err != nil {
		slog.Error("open failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("close failed", "err", err)
		}
	}()

	if err := runDemo(store); err != nil {
		slog.Error("demo failed", "err", err)
		os.Exit(1)
	}
}

// runDemo exercises the public API end to end: a single-key commit
// followed by a read.
func runDemo(store *cairndb.Store) error {
	tx, err := store.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := tx.Set([]byte("hello"), []byte("world")); err != nil {
		return fmt.Errorf("set: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	value, ok, err := store.Get([]byte("hello"))
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	if ok {
		slog.Info("get", "key", "hello", "value", string(value))
	} else {
		slog.Info("get", "key", "hello", "found", false)
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
