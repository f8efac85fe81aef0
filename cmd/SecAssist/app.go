package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	httpServer "SecAssist/api/http"
	"SecAssist/internal/config"
	"SecAssist/internal/initial"
	"SecAssist/internal/modules/ai/application/service"
	"SecAssist/internal/modules/ai/domain/repository"
	"SecAssist/internal/modules/ai/infrastructure/embedding"
	"SecAssist/internal/modules/ai/infrastructure/executor"
	"SecAssist/internal/modules/ai/infrastructure/llm"
	"SecAssist/internal/modules/ai/infrastructure/lock"
	"SecAssist/internal/modules/ai/infrastructure/memory"
	"SecAssist/internal/modules/ai/infrastructure/metrics"
	"SecAssist/internal/modules/ai/infrastructure/mq"
	"SecAssist/internal/modules/ai/infrastructure/mq/kafka"
	"SecAssist/internal/modules/ai/infrastructure/persistence"
	"SecAssist/internal/modules/ai/infrastructure/pipeline"
	"SecAssist/internal/modules/ai/infrastructure/plugins"
	"SecAssist/internal/modules/ai/infrastructure/privacy"
	"SecAssist/internal/modules/ai/infrastructure/queue"
	"SecAssist/internal/modules/ai/infrastructure/routing"
	"SecAssist/internal/modules/ai/infrastructure/synthesis"
	"SecAssist/internal/modules/ai/infrastructure/vectordb"
	aiHandler "SecAssist/internal/modules/ai/interface/http"
	"SecAssist/internal/modules/ai/interface/scheduler"
	"SecAssist/pkg/redis"
	"SecAssist/pkg/zlog"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const (
	sessionLockTTL     = 30 * time.Second
	localBrokerBuffer  = 1024
	workerRestartDelay = 5 * time.Second
)

type app struct {
	handlers  httpServer.Handlers
	scheduler *scheduler.RetentionScheduler
	worker    *queue.EmbeddingWorker
	closers   []func() error
}

// newApp wires storage, brokers and services. Redis, Milvus and Kafka are
// optional: without them the service runs on in-process locks, the in-memory
// index and the local broker.
func newApp(ctx context.Context, conf *config.Config) (*app, error) {
	a := &app{}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	a.handlers.Gatherer = reg

	db, err := initial.NewGormDB(conf)
	if err != nil {
		return nil, fmt.Errorf("mysql: %w", err)
	}
	sessions := persistence.NewSessionRepository(db)
	messages := persistence.NewMessageRepository(db)

	var cache pipeline.CacheInterface
	if initial.InitRedis(conf) {
		cache = redis.Cache{}
		a.closers = append(a.closers, redis.Close)
	}

	index, err := newMessageIndex(ctx, conf, a)
	if err != nil {
		return nil, err
	}

	embedder, embedMeta, err := embedding.NewEmbedderFromConfig(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	chatModel, chatMeta, err := llm.NewChatModelFromConfig(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("chat model: %w", err)
	}
	gen := llm.NewChatGenerator(chatModel, conf.OrchestratorConfig.GenerationTimeout())
	zlog.Info("ai providers ready",
		zap.String("embedding", embedMeta.Provider+"/"+embedMeta.Model),
		zap.Int("dim", embedMeta.Dim),
		zap.String("chat", chatMeta.Provider+"/"+chatMeta.Model),
	)

	publisher, consumer, err := newBroker(conf, a)
	if err != nil {
		return nil, err
	}
	enqueuer := queue.NewEnqueuer(publisher, conf.KafkaConfig.EmbeddingTopic)
	a.worker = queue.NewEmbeddingWorker(consumer, messages, index, embedder, conf.OrchestratorConfig.EmbeddingTimeout(), m)

	// handlers
	hp := pipeline.NewHandlerPipeline(gen, cache)
	for _, h := range plugins.DefaultHandlers() {
		hp.RegisterHandler(h)
	}
	generic := plugins.NewGenericHandler()
	hp.RegisterHandler(generic)
	registry, err := routing.NewRegistry(conf.OrchestratorConfig.MaxHandlers, hp.Descriptors()...)
	if err != nil {
		return nil, fmt.Errorf("handler registry: %w", err)
	}

	oc := conf.OrchestratorConfig
	thresholds := routing.Thresholds{
		High:              oc.HighThreshold,
		Medium:            oc.MediumThreshold,
		ClarifyMediumBand: oc.MediumBandPolicy == "clarify",
	}
	cc := conf.ContextConfig
	orchestrator, err := pipeline.NewOrchestratorPipeline(pipeline.OrchestratorDeps{
		Sessions: sessions,
		Messages: messages,
		Redactor: privacy.NewRedactor(conf.PrivacyConfig.ExemptCategories, conf.PrivacyConfig.RetainRawContent),
		Locker:   lock.New(sessionLockTTL),
		Window: memory.NewContextBuilder(messages, memory.NewGeneratorSummarizer(gen), memory.ContextBuilderConfig{
			HistoryCap:         cc.HistoryCap,
			HalfLife:           cc.HalfLife(),
			RelevanceWeight:    cc.RelevanceWeight,
			SummarizeThreshold: cc.SummarizeThreshold,
		}),
		Classifier: routing.NewClassifierGate(gen, thresholds, m),
		Registry:   registry,
		Coordinator: executor.NewCoordinator(hp, generic.Descriptor(), executor.Options{
			HandlerTimeout: oc.HandlerTimeout(),
			OverallTimeout: oc.RequestTimeout(),
			MaxParallel:    oc.MaxHandlers,
		}, m),
		Synthesizer: synthesis.NewSynthesizer(gen, m),
		Enqueuer:    enqueuer,
		Metrics:     m,
	}, pipeline.OrchestratorOptions{
		TokenBudget:         cc.TokenBudget,
		RequestTimeout:      oc.RequestTimeout(),
		ClarificationPrompt: oc.ClarificationPrompt,
		LowConfidenceNote:   oc.LowConfidenceNote,
		ErrorNotice:         oc.ErrorNotice,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	retention := privacy.NewRetentionManager(sessions, messages, index,
		privacy.PolicyFromConfig(conf.RetentionConfig), conf.RetentionConfig.BatchSize, m)

	assistantSvc := service.NewAssistantService(orchestrator, sessions, messages)
	retrieveSvc := service.NewRetrieveService(memory.NewSemanticRecall(embedder, index, messages, oc.EmbeddingTimeout()))
	privacySvc := service.NewPrivacyService(retention, sessions, messages, enqueuer)

	a.handlers.Assistant = aiHandler.NewAssistantHandler(assistantSvc)
	a.handlers.Query = aiHandler.NewQueryHandler(retrieveSvc)
	a.handlers.Privacy = aiHandler.NewPrivacyHandler(privacySvc)
	a.scheduler = scheduler.NewRetentionScheduler(privacySvc, conf.RetentionConfig.Cron, 0)
	return a, nil
}

func newMessageIndex(ctx context.Context, conf *config.Config, a *app) (repository.MessageIndex, error) {
	cli, err := initial.NewMilvusClient(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("milvus: %w", err)
	}
	if cli == nil {
		zlog.Warn("milvus not configured, using in-memory message index")
		return vectordb.NewMemoryMessageIndex(), nil
	}
	a.closers = append(a.closers, cli.Close)
	return newMilvusIndex(cli, conf)
}

func newMilvusIndex(cli mclient.Client, conf *config.Config) (repository.MessageIndex, error) {
	idx, err := vectordb.NewMilvusMessageIndex(cli, conf.MilvusConfig.CollectionName, conf.MilvusConfig.VectorDim)
	if err != nil {
		return nil, fmt.Errorf("milvus index: %w", err)
	}
	return idx, nil
}

// newBroker Kafka when brokers are configured, otherwise the in-process broker
func newBroker(conf *config.Config, a *app) (mq.Publisher, mq.Consumer, error) {
	kc := conf.KafkaConfig
	if len(kc.Brokers) == 0 {
		zlog.Warn("kafka not configured, embedding jobs use the local broker")
		b := mq.NewLocalBroker(localBrokerBuffer, kc.MaxAttempts)
		a.closers = append(a.closers, b.Close)
		return b, b, nil
	}

	if err := kafka.EnsureTopic(kafka.EmbeddingTopicFromConfig(kc)); err != nil {
		return nil, nil, fmt.Errorf("kafka topic: %w", err)
	}
	pub, err := kafka.NewPublisherFromConfig(kc)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka publisher: %w", err)
	}
	a.closers = append(a.closers, pub.Close)
	cons, err := kafka.NewConsumerFromConfig(kc)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka consumer: %w", err)
	}
	a.closers = append(a.closers, cons.Close)
	return pub, cons, nil
}

// RunWorker keeps the embedding worker alive until ctx is done
func (a *app) RunWorker(ctx context.Context) {
	for {
		err := a.worker.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, mq.ErrBrokerClosed) {
			zlog.Error("embedding worker stopped, restarting", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(workerRestartDelay):
		}
	}
}

// Close releases in reverse order of acquisition
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			zlog.Warn("close failed", zap.Error(err))
		}
	}
}
