package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/barter-backend/pkg/config"
	"github.com/angelmondragon/barter-backend/pkg/db"
	"github.com/angelmondragon/barter-backend/pkg/logger"
	"github.com/angelmondragon/barter-backend/pkg/migrate"
)

type options struct {
	cmd      string
	dir      string
	name     string
	version  string
	embedded bool
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.cmd, "cmd", "up", "up|down|status|version|create|validate")
	flag.StringVar(&o.dir, "dir", "", "migrations directory (default pkg/migrate/migrations/<driver>)")
	flag.StringVar(&o.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&o.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.BoolVar(&o.embedded, "embedded", false, "use the migrations compiled into this binary instead of -dir")
	flag.Parse()
	return o
}

func main() {
	_ = godotenv.Load()
	opts := parseFlags()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: "migrate"}).Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	if opts.dir == "" {
		opts.dir = migrate.DirFor(migrate.DefaultDir, cfg.DB.Driver)
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"cmd":      opts.cmd,
		"dir":      opts.dir,
		"driver":   cfg.DB.Driver,
		"embedded": opts.embedded,
	})

	// create and validate only touch files.
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			fail(ctx, logg, "missing -name for create", nil)
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			fail(ctx, logg, "create migration", err)
		}
		fmt.Println("created", path)
		return
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			fail(ctx, logg, "validate migrations", err)
		}
		fmt.Println("migrations valid")
		return
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		fail(ctx, logg, "connect database", err)
	}
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		fail(ctx, logg, "sql handle", err)
	}

	var source fs.FS
	if opts.embedded {
		source, err = migrate.EmbeddedFS(cfg.DB.Driver)
	} else {
		source, err = migrate.DiskFS(opts.dir)
	}
	if err != nil {
		fail(ctx, logg, "open migrations", err)
	}
	runner, err := migrate.NewRunner(sqlDB, cfg.DB.Driver, source)
	if err != nil {
		fail(ctx, logg, "build runner", err)
	}

	switch opts.cmd {
	case "up":
		results, err := runner.Up(ctx)
		report(ctx, logg, results)
		if err != nil {
			fail(ctx, logg, "migrate up", err)
		}
	case "down":
		result, err := runner.Down(ctx)
		if err != nil {
			fail(ctx, logg, "migrate down", err)
		}
		report(ctx, logg, []*goose.MigrationResult{result})
	case "status":
		statuses, err := runner.Status(ctx)
		if err != nil {
			fail(ctx, logg, "migration status", err)
		}
		printStatus(statuses)
	case "version":
		target, err := strconv.ParseInt(opts.version, 10, 64)
		if err != nil {
			fail(ctx, logg, "-version must be YYYYMMDDHHMMSS", err)
		}
		results, err := runner.To(ctx, target)
		report(ctx, logg, results)
		if err != nil {
			fail(ctx, logg, "migrate to version", err)
		}
	default:
		fail(ctx, logg, "unknown -cmd "+opts.cmd, nil)
	}
}

func report(ctx context.Context, logg *logger.Logger, results []*goose.MigrationResult) {
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":     r.Source.Version,
			"direction":   r.Direction,
			"duration_ms": r.Duration.Milliseconds(),
		}), r.Source.Path)
	}
}

func printStatus(statuses []*goose.MigrationStatus) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, s := range statuses {
		applied := "-"
		if !s.AppliedAt.IsZero() {
			applied = s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Source.Version, s.State, applied, s.Source.Path)
	}
	_ = w.Flush()
}

func fail(ctx context.Context, logg *logger.Logger, what string, err error) {
	if err == nil {
		err = fmt.Errorf("%s", what)
	}
	logg.Error(ctx, what, err)
	os.Exit(1)
}
