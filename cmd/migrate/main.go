package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/sitekart/sitekart/internal/app"
	"github.com/sitekart/sitekart/migrations"
)

const usage = "usage: migrate up|down|steps N|version"

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	runner, err := migrations.Open(cfg.PGDSN)
	if err != nil {
		logger.Error("open migrations", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := runner.Close(); err != nil {
			logger.Warn("close migrations", slog.Any("error", err))
		}
	}()

	if err := run(runner, os.Args[1:]); err != nil {
		logger.Error("migrate", slog.String("command", os.Args[1]), slog.Any("error", err))
		_ = runner.Close()
		os.Exit(1)
	}

	version, dirty, err := runner.Version()
	if err != nil {
		logger.Error("read version", slog.Any("error", err))
		return
	}
	logger.Info("schema version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
}

func run(runner *migrations.Runner, args []string) error {
	switch args[0] {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "steps":
		if len(args) < 2 {
			return fmt.Errorf("steps requires a count: %s", usage)
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n == 0 {
			return fmt.Errorf("invalid step count %q", args[1])
		}
		return runner.Steps(n)
	case "version":
		return nil
	default:
		return fmt.Errorf("unknown command %q: %s", args[0], usage)
	}
}
