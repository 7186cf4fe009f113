package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"loganalyzer/internal/ai"
	"loganalyzer/internal/app"
	"loganalyzer/internal/cache"
	"loganalyzer/internal/config"
	"loganalyzer/internal/model"
	mysqlClient "loganalyzer/internal/platform/mysql"
	rabbitmqClient "loganalyzer/internal/platform/rabbitmq"
	redisClient "loganalyzer/internal/platform/redis"
	sqliteClient "loganalyzer/internal/platform/sqlite"
	"loganalyzer/internal/rag"
	"loganalyzer/internal/repository"
	"loganalyzer/internal/worker"
)

const sweepInterval = time.Minute

type App struct {
	Config *config.Config

	// Optional infrastructure; nil when disabled.
	DB               *gorm.DB
	Redis            *redis.Client
	MQConn           *amqp.Connection
	Publisher        *rabbitmqClient.TranscriptPublisher
	TranscriptWorker *worker.TranscriptPersistWorker
	Builds           *repository.IndexBuildRepository

	Provider     ai.Provider
	Orchestrator *app.Orchestrator
	Sessions     *app.SessionStore

	StartedAt time.Time

	stopSweep context.CancelFunc
	sweepDone sync.WaitGroup
}

// New wires the application. Only dependencies switched on in cfg are
// dialed, and a dependency that is switched on but unreachable is fatal.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		Config:    cfg,
		StartedAt: time.Now(),
	}

	provider, err := ai.NewProvider(ai.ProviderConfig{
		Kind:           cfg.LLM.Provider,
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Timeout:        time.Duration(cfg.LLM.RequestTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("create llm provider failed: %w", err)
	}
	a.Provider = provider

	if err := a.openInfra(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	var embeddingCache rag.EmbeddingCache
	if a.Redis != nil {
		embeddingCache = cache.NewEmbeddingCache(a.Redis, time.Duration(cfg.Redis.EmbeddingTTLSeconds)*time.Second)
	}
	builder := rag.NewBuilder(provider, embeddingCache, rag.BuilderConfig{
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
		BatchSize:    cfg.RAG.EmbedBatchSize,
	})

	a.Orchestrator = app.NewOrchestrator(builder, provider, a.recorder(), app.OrchestratorConfig{
		MaxRows:     cfg.RAG.MaxRows,
		TopK:        cfg.RAG.TopK,
		MaxHistory:  cfg.LLM.MaxContextMessage,
		PreviewRows: cfg.RAG.PreviewRows,
	})
	a.Sessions = app.NewSessionStore(time.Duration(cfg.Session.IdleMinutes) * time.Minute)
	a.startSweeper(ctx)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := provider.Ping(pingCtx); err != nil {
		// the backend may come up later; uploads report the failure
		log.Printf("[bootstrap] model backend %s not reachable yet: %v", cfg.LLM.BaseURL, err)
	}

	return a, nil
}

func (a *App) openInfra(ctx context.Context) error {
	cfg := a.Config

	if cfg.Redis.Enabled {
		client, err := redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		a.Redis = client
		log.Printf("[bootstrap] embedding cache on redis %s", cfg.Redis.Addr)
	}

	if cfg.Store.Enabled {
		db, err := openStore(ctx, cfg.Store.Driver, cfg)
		if err != nil {
			return err
		}
		if err := db.AutoMigrate(&model.Message{}, &model.IndexBuild{}); err != nil {
			return fmt.Errorf("auto migrate tables failed: %w", err)
		}
		a.DB = db
		a.Builds = repository.NewIndexBuildRepository(db)
		log.Printf("[bootstrap] transcript store on %s", cfg.Store.Driver)
	}

	if cfg.RabbitMQ.Enabled {
		conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		a.MQConn = conn
		a.Publisher = rabbitmqClient.NewTranscriptPublisher(conn, cfg.RabbitMQ.TranscriptQueue)

		if a.DB != nil {
			w := worker.NewTranscriptPersistWorker(conn, repository.NewMessageRepository(a.DB), cfg.RabbitMQ.TranscriptQueue)
			if err := w.Start(ctx); err != nil {
				return fmt.Errorf("start transcript worker failed: %w", err)
			}
			a.TranscriptWorker = w
		} else {
			log.Printf("[bootstrap] rabbitmq enabled without a store: transcript messages are only published")
		}
	}
	return nil
}

func openStore(ctx context.Context, driver string, cfg *config.Config) (*gorm.DB, error) {
	switch driver {
	case "mysql":
		return mysqlClient.Open(ctx, cfg.MySQLDSN())
	case "sqlite", "":
		return sqliteClient.Open(ctx, cfg.Store.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// recorder returns nil when nothing would be recorded.
func (a *App) recorder() app.Recorder {
	if a.Publisher == nil && a.DB == nil {
		return nil
	}
	var publisher app.AsyncMessagePublisher
	if a.Publisher != nil {
		publisher = a.Publisher
	}
	var messages app.MessageStore
	var builds app.BuildStore
	if a.DB != nil {
		messages = repository.NewMessageRepository(a.DB)
		builds = a.Builds
	}
	return app.NewTranscriptRecorder(publisher, messages, builds)
}

func (a *App) startSweeper(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	a.stopSweep = cancel
	a.sweepDone.Add(1)
	go func() {
		defer a.sweepDone.Done()
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case now := <-ticker.C:
				if n := a.Sessions.Sweep(now); n > 0 {
					log.Printf("[bootstrap] expired %d idle sessions", n)
				}
			}
		}
	}()
}

func (a *App) Close() error {
	var errs []error
	if a.stopSweep != nil {
		a.stopSweep()
		a.sweepDone.Wait()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.TranscriptWorker != nil {
		a.TranscriptWorker.Close()
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
