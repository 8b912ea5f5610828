// Package main is the command line tool of idb.
//
// idb operates on one database under a data directory. Mutating commands
// queue their operations and save the table before returning. Results are
// printed as JSON on stdout, logs go to stderr.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/maruel/idb"
	dberrors "github.com/maruel/idb/internal/errors"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "idb: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var usage *usageError
	if errors.As(err, &usage) {
		return 2
	}
	return dberrors.ExitCode(err)
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	dataDir := flag.String("data-dir", "./data", "Data directory")
	dbName := flag.String("db", "default", "Database name")
	configPath := flag.String("config", "", "YAML configuration file (default <data-dir>/idb.yaml)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	history := flag.Bool("history", false, "Record saves as git commits in the database directory")
	flag.Usage = usage
	flag.Parse()

	if *version {
		printVersion()
		return nil
	}
	if flag.NArg() == 0 {
		flag.Usage()
		return &usageError{msg: "missing command"}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	slog.SetDefault(newLogger(ll))

	path := *configPath
	if path == "" {
		path = filepath.Join(*dataDir, "idb.yaml")
	}
	cfg, err := loadConfig(path, *configPath != "")
	if err != nil {
		return err
	}

	// Override with config values if not explicitly set via flags.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	if !set["db"] && cfg.Database != "" {
		*dbName = cfg.Database
	}
	if !set["log-level"] && cfg.LogLevel != "" {
		*logLevel = cfg.LogLevel
	}
	if !set["history"] && cfg.History.Enabled {
		*history = true
	}

	level, err := parseLogLevel(*logLevel)
	if err != nil {
		return err
	}
	ll.Set(level)

	var opts []idb.Option
	if *history {
		opts = append(opts, idb.WithHistory(cfg.History.Name, cfg.History.Email))
	}
	db, err := idb.Open(*dataDir, *dbName, opts...)
	if err != nil {
		return err
	}
	slog.DebugContext(ctx, "Opened database", "db", db.Name(), "dir", db.Dir(), "history", *history)

	interval := cfg.WatchInterval
	if interval == 0 {
		interval = 100 * time.Millisecond
	}
	e := &env{db: db, out: os.Stdout, watchInterval: interval}
	return e.run(ctx, flag.Args())
}

// newLogger returns a tint logger on stderr that drops zero-valued attrs.
func newLogger(level slog.Leveler) *slog.Logger {
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			skip := false
			switch t := a.Value.Any().(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case uint64:
				skip = t == 0
			case int64:
				skip = t == 0
			case float64:
				skip = t == 0
			case time.Time:
				skip = t.IsZero()
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %q", s)
	}
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "usage: idb [flags] <command> [args]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-50s %s\n", c.name+" "+c.args, c.help)
	}
	fmt.Fprintf(out, "\nFlags:\n")
	flag.PrintDefaults()
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("idb %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}
