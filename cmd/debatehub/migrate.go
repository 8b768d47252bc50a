package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/debatehub/internal/migration"
)

// =============================================================================
// 🗄️ 数据库迁移命令
// =============================================================================

// runMigrate 分发 migrate 子命令
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	subcommand := args[0]
	subargs := args[1:]

	switch subcommand {
	case "up":
		withMigrateCLI("migrate up", subargs, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunUp(ctx)
		})
	case "down":
		runMigrateDown(subargs)
	case "steps":
		n := requireIntArg("steps", subargs)
		withMigrateCLI("migrate steps", subargs[1:], func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunSteps(ctx, n)
		})
	case "status":
		withMigrateCLI("migrate status", subargs, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunStatus(ctx)
		})
	case "info":
		withMigrateCLI("migrate info", subargs, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunInfo(ctx)
		})
	case "version":
		withMigrateCLI("migrate version", subargs, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunVersion(ctx)
		})
	case "goto":
		v := requireIntArg("goto", subargs)
		if v < 0 {
			fmt.Fprintf(os.Stderr, "Invalid version number: %d\n", v)
			os.Exit(1)
		}
		withMigrateCLI("migrate goto", subargs[1:], func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunGoto(ctx, uint(v))
		})
	case "force":
		v := requireIntArg("force", subargs)
		withMigrateCLI("migrate force", subargs[1:], func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunForce(ctx, v)
		})
	case "reset":
		withMigrateCLI("migrate reset", subargs, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunDownAll(ctx)
		})
	case "help", "-h", "--help":
		printMigrateUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", subcommand)
		printMigrateUsage()
		os.Exit(1)
	}
}

func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  debatehub migrate <subcommand> [options]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration (--all for every migration)
  steps <n>   Apply (n>0) or rollback (n<0) n migrations
  status      Show migration status
  info        Show driver and version details
  version     Show current migration version
  goto <v>    Migrate to a specific version
  force <v>   Force set migration version (clears dirty flag)
  reset       Rollback all migrations
  help        Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database driver: postgres, mysql, sqlite (default: from config)
  --db-url <dsn>      Database DSN (default: from config)

Examples:
  debatehub migrate up
  debatehub migrate up --db-type sqlite --db-url ./debatehub.db
  debatehub migrate down --all
  debatehub migrate goto 1`)
}

// migrateFlags 所有迁移子命令共享的参数
type migrateFlags struct {
	configPath string
	dbType     string
	dbURL      string
}

func bindMigrateFlags(fs *flag.FlagSet) *migrateFlags {
	f := &migrateFlags{}
	fs.StringVar(&f.configPath, "config", "", "Path to config file")
	fs.StringVar(&f.dbType, "db-type", "", "Database driver (postgres, mysql, sqlite)")
	fs.StringVar(&f.dbURL, "db-url", "", "Database DSN")
	return f
}

// createMigrator 命令行参数优先，其次读取配置文件/环境变量
func createMigrator(f *migrateFlags) (*migration.DefaultMigrator, error) {
	driver, dsn := f.dbType, f.dbURL
	if driver == "" || dsn == "" {
		cfg, err := loadConfig(f.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if driver == "" {
			driver = cfg.Database.Driver
		}
		if dsn == "" {
			dsn = cfg.Database.DSN
		}
	}
	if driver == "" || dsn == "" {
		return nil, fmt.Errorf("database driver and dsn are required")
	}
	return migration.NewMigratorFromDSN(driver, dsn, zap.NewNop())
}

// withMigrateCLI 解析参数、创建迁移器并执行 fn，失败时退出
func withMigrateCLI(name string, args []string, fn func(ctx context.Context, cli *migration.CLI) error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	flags := bindMigrateFlags(fs)
	_ = fs.Parse(args)
	runWithMigrator(flags, fn)
}

func runWithMigrator(flags *migrateFlags, fn func(ctx context.Context, cli *migration.CLI) error) {
	migrator, err := createMigrator(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	if err := fn(context.Background(), migration.NewCLI(migrator)); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		migrator.Close()
		os.Exit(1)
	}
}

// runMigrateDown 回滚最后一次迁移，--all 回滚全部
func runMigrateDown(args []string) {
	fs := flag.NewFlagSet("migrate down", flag.ExitOnError)
	all := fs.Bool("all", false, "Rollback all migrations")
	flags := bindMigrateFlags(fs)
	_ = fs.Parse(args)

	runWithMigrator(flags, func(ctx context.Context, cli *migration.CLI) error {
		if *all {
			return cli.RunDownAll(ctx)
		}
		return cli.RunDown(ctx)
	})
}

func requireIntArg(cmd string, args []string) int {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: debatehub migrate %s <n>\n", cmd)
		os.Exit(1)
	}
	v, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid number: %s\n", args[0])
		os.Exit(1)
	}
	return v
}
