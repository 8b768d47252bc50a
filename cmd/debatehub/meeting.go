package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/debatehub/agent/conversation"
)

// =============================================================================
// 🗣️ run：终端会议
// =============================================================================

func runMeeting(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	objective := fs.String("objective", "", "meeting objective (required)")
	interactive := fs.Bool("interactive", false, "read your messages from stdin while the meeting runs")
	maxRounds := fs.Int("max-rounds", 0, "stop after n rounds (0 = until the turn limit)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*objective) == "" {
		return errors.New("--objective is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	// 单进程会议，不需要 Redis 事件推送；日志让出 stdout 给发言
	cfg.Redis.Enabled = false
	cfg.Log.OutputPaths = []string{"stderr"}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer a.close()

	_, status, err := a.manager.Create(ctx, conversation.StartRequest{Objective: *objective})
	if err != nil {
		return fmt.Errorf("start meeting: %w", err)
	}
	out := os.Stdout
	fmt.Fprintf(out, "Meeting %s: %s\n\n", status.SessionID, *objective)

	opts := conversation.RunOptions{MaxRounds: *maxRounds, OnTurn: roundPrinter(out)}
	if *interactive {
		fmt.Fprintln(out, "Type a message and press Enter to join the discussion.")
		opts.HumanInput = lineInput(ctx, os.Stdin, out)
	}

	report, runErr := a.manager.Run(ctx, status.SessionID, opts)
	// Ctrl-C 之后仍要结束会议，归档与 end 事件照常发生
	detached := context.WithoutCancel(ctx)
	if ctx.Err() != nil {
		if err := a.manager.Stop(detached, status.SessionID); err != nil {
			logger.Warn("stop after interrupt failed", zap.Error(err))
		}
	} else if runErr != nil {
		return fmt.Errorf("meeting failed: %w", runErr)
	}

	_, summary, err := a.manager.Transcript(detached, status.SessionID)
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}
	printSummary(out, report, summary)
	return nil
}

// roundPrinter 每轮一段；没人发言或会议结束时给出提示
func roundPrinter(w io.Writer) func(conversation.RoundResult) {
	return func(r conversation.RoundResult) {
		switch {
		case r.NoResponse:
			fmt.Fprintln(w, "(no expert chose to speak)")
		case r.Text != "":
			fmt.Fprintf(w, "[%s]: %s\n\n", r.SpeakerName, r.Text)
		}
		if r.Closed {
			fmt.Fprintf(w, "(meeting closed: %s)\n", r.CloseReason)
		}
	}
}

func printSummary(w io.Writer, report conversation.RunReport, s conversation.Summary) {
	fmt.Fprintf(w, "\n--- %d rounds, %d turns, participants: %s", report.Rounds, s.Turns, strings.Join(s.Participants, ", "))
	if s.CloseReason != "" {
		fmt.Fprintf(w, ", closed: %s", s.CloseReason)
	}
	fmt.Fprintln(w, " ---")
}

// lineInput 后台逐行读 r；每轮开始前最多取一行，没有输入时不阻塞
func lineInput(ctx context.Context, r io.Reader, echo io.Writer) func(context.Context) (string, bool) {
	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return func(context.Context) (string, bool) {
		select {
		case line, ok := <-lines:
			if !ok {
				return "", false
			}
			fmt.Fprintf(echo, "[You]: %s\n\n", line)
			return line, true
		default:
			return "", false
		}
	}
}
