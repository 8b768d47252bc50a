package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI 面向终端的迁移操作，每次变更后打印所在版本
type CLI struct {
	migrator Migrator
	output   io.Writer
}

func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, output: os.Stdout}
}

// SetOutput 替换输出目标（测试用）
func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

func (c *CLI) printf(format string, args ...any) {
	fmt.Fprintf(c.output, format, args...)
}

// change 执行一次会改变版本的操作，然后报告当前版本
func (c *CLI) change(ctx context.Context, banner, done string, op func(context.Context) error) error {
	c.printf("%s\n", banner)
	if err := op(ctx); err != nil {
		return err
	}
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	c.printf("%s Schema version: %s\n", done, formatVersion(version, dirty))
	return nil
}

func formatVersion(version uint, dirty bool) string {
	if version == 0 {
		return "none"
	}
	s := fmt.Sprintf("%06d", version)
	if dirty {
		s += " (dirty)"
	}
	return s
}

func (c *CLI) RunUp(ctx context.Context) error {
	return c.change(ctx, "Applying pending archive migrations...", "Done.", c.migrator.Up)
}

func (c *CLI) RunDown(ctx context.Context) error {
	return c.change(ctx, "Rolling back the last migration...", "Rolled back.", c.migrator.Down)
}

// RunDownAll 回滚全部迁移，debate_sessions / debate_turns 会被删除
func (c *CLI) RunDownAll(ctx context.Context) error {
	return c.change(ctx, "Dropping the transcript archive schema...", "Rolled back.", c.migrator.DownAll)
}

func (c *CLI) RunSteps(ctx context.Context, n int) error {
	banner := fmt.Sprintf("Applying %d migration(s)...", n)
	if n < 0 {
		banner = fmt.Sprintf("Rolling back %d migration(s)...", -n)
	}
	return c.change(ctx, banner, "Done.", func(ctx context.Context) error {
		return c.migrator.Steps(ctx, n)
	})
}

func (c *CLI) RunGoto(ctx context.Context, version uint) error {
	return c.change(ctx, fmt.Sprintf("Migrating to version %d...", version), "Done.", func(ctx context.Context) error {
		return c.migrator.Goto(ctx, version)
	})
}

func (c *CLI) RunForce(ctx context.Context, version int) error {
	return c.change(ctx, fmt.Sprintf("Forcing version to %d...", version), "Forced.", func(ctx context.Context) error {
		return c.migrator.Force(ctx, version)
	})
}

func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	if version == 0 {
		c.printf("No migrations applied yet.\n")
		return nil
	}
	c.printf("Current version: %s\n", formatVersion(version, dirty))
	return nil
}

// RunStatus 每个迁移一行，末尾汇总
func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		c.printf("No migrations found.\n")
		return nil
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATE")
	applied := 0
	for _, s := range statuses {
		state := "pending"
		switch {
		case s.Dirty:
			state = "dirty"
		case s.Applied:
			state = "applied"
		}
		if s.Applied {
			applied++
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, state)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	c.printf("\n%d applied, %d pending\n", applied, len(statuses)-applied)
	return nil
}

func (c *CLI) RunInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	c.printf("Archive schema:\n")
	c.printf("  version  %s\n", formatVersion(info.CurrentVersion, info.Dirty))
	c.printf("  applied  %d/%d\n", info.AppliedMigrations, info.TotalMigrations)
	c.printf("  pending  %d\n", info.PendingMigrations)
	return nil
}
