package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dimiro1/banner"
	"github.com/joho/godotenv"

	"github.com/loqalabs/voxgen/internal/config"
	"github.com/loqalabs/voxgen/internal/runtime"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		envFile     string
		showVersion bool
		quiet       bool
	)

	flag.StringVar(&configPath, "config", "voxgen.yaml", "Path to configuration file")
	flag.StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before the config")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.BoolVar(&quiet, "quiet", false, "Skip the startup banner")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	// A missing dotenv file is normal; variables may come from the environment.
	_ = godotenv.Load(envFile)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) && !isFlagSet("config") {
			configPath = ""
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if !quiet {
		tpl := "{{ .Title \"VOXGEN\" \"\" 0 }}\nVersion: " + version + "\n"
		banner.Init(os.Stderr, true, true, bytes.NewBufferString(tpl))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Telemetry.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	rt := runtime.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
