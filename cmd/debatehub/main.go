// @title DebateHub API
// @version 1.0.0
// @description Multi-agent meetings: expert personas take turns on an objective,
// @description chosen each round by an LLM relevance vote. Humans can join at any turn.
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/debatehub/config"
	"github.com/BaSui01/debatehub/internal/telemetry"
	"github.com/BaSui01/debatehub/internal/tlsutil"
)

// 构建时通过 -ldflags "-X main.Version=..." 注入
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// command 一个子命令；run 返回错误时进程以 1 退出
type command struct {
	name    string
	summary string
	run     func(args []string) error
}

func commands() []command {
	return []command{
		{"serve", "Start the HTTP/WebSocket server", runServe},
		{"run", "Run a meeting in the terminal", runMeeting},
		{"migrate", "Database migration commands", func(args []string) error { runMigrate(args); return nil }},
		{"health", "Probe a running server", runHealthCheck},
		{"version", "Show build information", func([]string) error { printVersion(os.Stdout); return nil }},
	}
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}
	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage(os.Stdout)
		return
	}
	for _, c := range commands() {
		if c.name != name {
			continue
		}
		if err := c.run(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "debatehub %s: %v\n", name, err)
			os.Exit(1)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	printUsage(os.Stderr)
	os.Exit(2)
}

func newLoader(path string) *config.Loader {
	loader := config.NewLoader().WithEnvPrefix(config.DefaultEnvPrefix)
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	return loader
}

// loadConfig 默认值 → YAML → DEBATEHUB_ 环境变量
func loadConfig(path string) (*config.Config, error) {
	return newLoader(path).Load()
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	loader := newLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	file, envKeys := loader.Sources()
	logger.Info("starting debatehub",
		zap.String("version", Version),
		zap.String("commit", GitCommit),
		zap.String("built", BuildTime),
		zap.String("config_file", file),
		zap.Strings("env_overrides", envKeys))

	ctx := context.Background()
	otelProviders, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		// 追踪不可用不阻止启动
		logger.Warn("telemetry unavailable", zap.Error(err))
	}

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	srv := NewServer(cfg, a, otelProviders, logger)
	if err := srv.Start(); err != nil {
		srv.Shutdown()
		return fmt.Errorf("start server: %w", err)
	}
	srv.WaitForShutdown(ctx)
	logger.Info("debatehub stopped")
	return nil
}

// runHealthCheck 供容器探针使用；--ready 时检查 /readyz
func runHealthCheck(args []string) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:8080", "server base URL")
	ready := fs.Bool("ready", false, "probe /readyz instead of /healthz")
	timeout := fs.Duration("timeout", 5*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := "/healthz"
	if *ready {
		path = "/readyz"
	}
	if err := probe(tlsutil.HTTPClient(*timeout, 1), strings.TrimRight(*addr, "/")+path); err != nil {
		return err
	}
	fmt.Println("OK")
	return nil
}

func probe(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "debatehub %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "debatehub - multi-agent meeting server")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: debatehub <command> [flags]")
	fmt.Fprintln(w)
	for _, c := range commands() {
		fmt.Fprintf(w, "  %-9s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'debatehub <command> -h' for command flags.")
	fmt.Fprintln(w, "Environment overrides use the DEBATEHUB_ prefix, e.g. DEBATEHUB_LLM_API_KEY.")
}
