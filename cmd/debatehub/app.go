package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/debatehub/agent/conversation"
	"github.com/BaSui01/debatehub/agent/persona"
	"github.com/BaSui01/debatehub/api/handlers"
	"github.com/BaSui01/debatehub/config"
	"github.com/BaSui01/debatehub/internal/cache"
	"github.com/BaSui01/debatehub/internal/database"
	"github.com/BaSui01/debatehub/internal/events"
	"github.com/BaSui01/debatehub/internal/metrics"
	"github.com/BaSui01/debatehub/internal/migration"
	"github.com/BaSui01/debatehub/internal/telemetry"
	"github.com/BaSui01/debatehub/internal/tlsutil"
	"github.com/BaSui01/debatehub/llm"
	"github.com/BaSui01/debatehub/llm/embedding"
	"github.com/BaSui01/debatehub/llm/providers/openai"
	"github.com/BaSui01/debatehub/rag"
)

// =============================================================================
// 🧩 引擎装配（serve 与 run 共用）
// =============================================================================

// app 持有会话引擎及其全部外部依赖
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	metrics  *metrics.Collector
	provider *llm.ResilientProvider
	manager  *conversation.Manager

	bus      events.Bus
	cache    *cache.Manager
	db       *database.PoolManager
	archive  *database.TranscriptRepository
	qdrant   *rag.QdrantStore
	ingestor *rag.Ingestor

	// 人设热加载协程
	stopWatch context.CancelFunc
	watchDone chan struct{}
}

// buildApp 按配置装配引擎。Redis、数据库、Qdrant 均为可选依赖。
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.metrics = metrics.NewCollector("debatehub", logger)

	// 1. LLM：OpenAI 兼容上游 + 重试/熔断/限流
	httpClient := tlsutil.HTTPClient(cfg.LLM.Timeout, cfg.Orchestrator.Scoring.Concurrency)
	upstream := openai.New(cfg.LLM.ProviderConfig(), httpClient, logger)
	a.provider = llm.NewResilientProvider(upstream, cfg.LLM.ResilienceConfig(), a.metrics, logger)
	if cfg.LLM.APIKey == "" {
		logger.Warn("llm api key not configured, every round will use fallbacks")
	}

	// 2. 人设
	personas, err := loadPersonas(cfg.Personas, logger)
	if err != nil {
		return nil, err
	}

	// 3. 检索
	retriever, err := a.initRetrieval(ctx, httpClient)
	if err != nil {
		return nil, err
	}

	// 4. Redis：快照 + 事件总线；未启用时退化为进程内总线
	var opts []conversation.ManagerOption
	if cfg.Redis.Enabled {
		a.cache, err = cache.NewManager(cfg.Redis.Config, logger)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		opts = append(opts, conversation.WithSnapshotStore(cache.NewSnapshotStore(a.cache, logger)))
		a.bus = events.NewRedisBus(a.cache.Client(), logger)
	} else {
		a.bus = events.NewLocalBus(logger)
	}

	// 5. 数据库归档
	if cfg.Database.Enabled() {
		if cfg.Database.AutoMigrate {
			info, err := migration.EnsureSchema(ctx, cfg.Database.Driver, cfg.Database.DSN, logger)
			if err != nil {
				return nil, fmt.Errorf("migrate archive schema: %w", err)
			}
			logger.Info("archive schema ready", zap.Uint("version", info.CurrentVersion))
		}
		a.db, err = database.Open(cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.metrics.WatchDB(a.db.SQL(), "archive")
		a.archive = database.NewTranscriptRepository(a.db, cfg.Database.MaxRetries, logger)
		opts = append(opts, conversation.WithTranscriptSink(a.archive))
	}

	// 6. 观测：Prometheus 始终开启，OTLP 开启时同时写 OTel 指标
	var recorder conversation.Recorder = a.metrics
	if cfg.Telemetry.Enabled {
		otelRecorder, err := telemetry.NewRecorder(nil)
		if err != nil {
			return nil, fmt.Errorf("create otel recorder: %w", err)
		}
		recorder = conversation.Recorders(a.metrics, otelRecorder)
	}

	deps := conversation.Deps{
		Personas:  personas,
		Completer: conversation.NewProviderCompleter(a.provider, cfg.LLM.Model),
		Logger:    logger,
		Recorder:  recorder,
		Events:    a.bus,
	}
	if retriever != nil {
		deps.Retriever = retriever
	}
	a.manager, err = conversation.NewManager(deps, cfg.Orchestrator, nil, opts...)
	if err != nil {
		return nil, err
	}
	a.metrics.TrackSessions(func() int { return len(a.manager.List()) })

	logger.Info("engine ready",
		zap.Int("personas", personas.Len()),
		zap.String("retrieval_store", cfg.Retrieval.Store),
		zap.Bool("redis", a.cache != nil),
		zap.Bool("database", a.db != nil),
	)
	return a, nil
}

// loadPersonas 读取人设文件（未配置时用内置人设）并剔除禁用项
func loadPersonas(cfg config.PersonasConfig, logger *zap.Logger) (*persona.Registry, error) {
	registry := persona.DefaultRegistry()
	if cfg.File != "" {
		loaded, err := persona.LoadFile(cfg.File)
		if err != nil {
			return nil, err
		}
		registry = loaded
		logger.Info("personas loaded", zap.String("file", cfg.File), zap.Int("count", registry.Len()))
	}
	if len(cfg.Disabled) > 0 {
		return registry.Without(cfg.Disabled...)
	}
	return registry, nil
}

// initRetrieval 构造向量库、检索器与入库器；检索关闭时返回 nil
func (a *app) initRetrieval(ctx context.Context, httpClient *http.Client) (*rag.Retriever, error) {
	if !a.cfg.Orchestrator.Retrieval.Enabled {
		a.logger.Info("retrieval disabled")
		return nil, nil
	}

	embedder := embedding.NewOpenAIProvider(a.cfg.EmbeddingConfig(), httpClient, a.logger)

	var store rag.VectorStore
	switch a.cfg.Retrieval.Store {
	case "qdrant":
		a.qdrant = rag.NewQdrantStore(a.cfg.Retrieval.Qdrant, a.logger)
		if a.cfg.Retrieval.Qdrant.AutoCreateCollection {
			size := a.cfg.Retrieval.Qdrant.VectorSize
			if size <= 0 {
				size = embedder.Dimensions()
			}
			if err := a.qdrant.EnsureCollection(ctx, size); err != nil {
				return nil, fmt.Errorf("prepare qdrant collection: %w", err)
			}
		}
		store = a.qdrant
	default:
		store = rag.NewInMemoryVectorStore(a.logger)
	}

	ingestor, err := rag.NewIngestor(a.cfg.Retrieval.Ingest, embedder, store, a.logger)
	if err != nil {
		return nil, err
	}
	a.ingestor = ingestor
	return rag.NewRetriever(embedder, store, a.logger), nil
}

// watchPersonas 人设文件变更后替换新会话使用的人设表
func (a *app) watchPersonas(ctx context.Context) error {
	pc := a.cfg.Personas
	if !pc.Watch || pc.File == "" {
		return nil
	}
	w, err := config.NewFileWatcher(pc.File, pc.WatchInterval, a.reloadPersonas, a.logger)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithCancel(ctx)
	a.stopWatch, a.watchDone = cancel, make(chan struct{})
	go func() {
		defer close(a.watchDone)
		_ = w.Run(wctx)
	}()
	return nil
}

// reloadPersonas 只影响之后创建的会话；文件被删时保留当前人设
func (a *app) reloadPersonas(c config.Change) {
	if c.Kind == config.Removed {
		a.logger.Warn("persona file removed, keeping current personas", zap.String("path", c.Path))
		return
	}
	registry, err := loadPersonas(a.cfg.Personas, a.logger)
	if err != nil {
		a.logger.Error("persona reload failed, keeping current personas", zap.Error(err))
		return
	}
	if err := a.manager.ReplacePersonas(registry); err != nil {
		a.logger.Error("persona reload rejected", zap.Error(err))
		return
	}
	a.logger.Info("personas reloaded", zap.Stringer("change", c.Kind), zap.Int("count", len(registry.All())))
}

// healthChecks 为已启用的外部依赖生成就绪检查
func (a *app) healthChecks() []handlers.Check {
	var checks []handlers.Check
	if a.cache != nil {
		checks = append(checks, handlers.Check{Name: "redis", Probe: a.cache.Ping})
	}
	if a.db != nil {
		checks = append(checks, handlers.Check{Name: "database", Probe: a.db.Ping})
	}
	if a.qdrant != nil {
		checks = append(checks, handlers.Check{Name: "qdrant", Probe: a.qdrant.Ping, Timeout: 5 * time.Second})
	}
	// 熔断打开时会议仍可降级推进，只报 degraded
	checks = append(checks, handlers.Check{Name: "llm", Soft: true, Probe: func(context.Context) error {
		if !a.provider.Available() {
			return errors.New("circuit breaker open")
		}
		return nil
	}})
	return checks
}

// close 按依赖逆序释放资源
func (a *app) close() {
	if a.stopWatch != nil {
		a.stopWatch()
		<-a.watchDone
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.logger.Warn("event bus close error", zap.Error(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("redis close error", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("database close error", zap.Error(err))
		}
	}
}
